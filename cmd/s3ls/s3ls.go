package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/studio1767/s3shift/internal/cluster"
	"github.com/studio1767/s3shift/internal/item"
	"github.com/studio1767/s3shift/internal/logging"
	"github.com/studio1767/s3shift/internal/s3io"
	"github.com/studio1767/s3shift/internal/store"
	"github.com/studio1767/s3shift/internal/tree"
)

type names []string

func (n *names) String() string {
	return strings.Join(*n, ",")
}

func (n *names) Set(value string) error {
	*n = append(*n, value)
	return nil
}

type listOptions struct {
	tree        bool
	check       bool
	sizes       bool
	upperLimit  int64
	maxClusters int
	exclude     []string
}

func main() {
	// process the command line
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [-p aws-profile] [-e endpoint] [-t [-c]] [-z] [-u upper-limit [-n clusters] [-x name]...] [-l level] <bucket> [<folder-id>]\n", filepath.Base(os.Args[0]))
		flag.PrintDefaults()
	}

	var exclude names
	profile := flag.String("p", "default", "aws profile for credentials and configuration")
	endpoint := flag.String("e", "", "endpoint of an S3-compatible server")
	printTree := flag.Bool("t", false, "print the whole tree below the folder")
	check := flag.Bool("c", false, "verify the size and count rollup of the tree")
	sizes := flag.Bool("z", false, "show the total size of each sub-folder")
	upperLimit := flag.String("u", "", "preview the clusters for this upper limit, e.g. '3 TB'")
	maxClusters := flag.Int("n", 1, "number of clusters to preview")
	level := flag.String("l", "warn", "log level")
	flag.Var(&exclude, "x", "leave this name out of the cluster preview (repeatable)")
	flag.Parse()

	if flag.NArg() != 1 && flag.NArg() != 2 {
		fmt.Fprintf(os.Stderr, "Error: incorrect arguments provided\n")
		flag.Usage()
		os.Exit(1)
	}

	bucket := flag.Arg(0)
	folder := store.RootID
	if flag.NArg() == 2 {
		folder = flag.Arg(1)
	}

	opts := listOptions{
		tree:        *printTree || *check,
		check:       *check,
		sizes:       *sizes,
		maxClusters: *maxClusters,
		exclude:     exclude,
	}
	if *upperLimit != "" {
		limit, err := item.ParseSize(*upperLimit)
		if err != nil {
			log.Fatalf("bad upper limit: %s", err)
		}
		opts.upperLimit = limit
	}

	if err := logging.Init(logging.Config{Level: *level}); err != nil {
		log.Fatal(err)
	}
	defer logging.Sync()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	client, err := s3io.NewClient(ctx, s3io.Options{
		Profile:  *profile,
		Bucket:   bucket,
		Endpoint: *endpoint,
	})
	if err != nil {
		log.Fatal(err)
	}

	if err := list(ctx, os.Stdout, client.Store(), folder, opts); err != nil {
		log.Fatal(err)
	}
}

// list prints the children of folder, or the full tree below it, and
// optionally the clusters a job with the given limit would produce.
func list(ctx context.Context, w io.Writer, lister store.Lister, folder item.ID, opts listOptions) error {
	if _, err := store.GetFolder(ctx, lister, folder); err != nil {
		return err
	}

	if opts.tree {
		t, err := tree.Build(ctx, lister, folder, tree.BuildOptions{})
		if err != nil {
			return err
		}
		if err := t.Fprint(w); err != nil {
			return err
		}
		if opts.check {
			if err := t.Check(); err != nil {
				return err
			}
			fmt.Fprintf(w, "tree check: ok\n")
		}
	}

	items, err := lister.ListChildren(ctx, folder)
	if err != nil {
		return err
	}

	sizer := cluster.NewSizer(lister)
	if !opts.tree {
		for _, it := range items {
			name := it.Name
			if it.IsFolder() {
				name += "/"
			}
			size := it.Size
			if it.IsFolder() && opts.sizes {
				if size, err = sizer.Size(ctx, it); err != nil {
					return err
				}
			}
			if it.IsFolder() && !opts.sizes {
				fmt.Fprintf(w, "%-36s  %10s  %s\n", it.ID, "-", name)
			} else {
				fmt.Fprintf(w, "%-36s  %10s  %s\n", it.ID, item.FormatSize(size), name)
			}
		}
	}

	if opts.upperLimit == 0 {
		return nil
	}

	clusterer, err := cluster.New(items, cluster.Options{
		UpperLimit:  opts.upperLimit,
		Exclude:     opts.exclude,
		MaxClusters: opts.maxClusters,
	}, sizer.Size, nil)
	if err != nil {
		return err
	}
	for clusterer.Next(ctx) {
		c := clusterer.Cluster()
		fmt.Fprintf(w, "cluster %d: %s in %d items\n", clusterer.Count(), item.FormatSize(c.Size), c.NItems)
		for _, it := range c.Items {
			fmt.Fprintf(w, "\t%s\n", it.Name)
		}
	}
	return clusterer.Err()
}
