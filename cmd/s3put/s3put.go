package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	humanize "github.com/dustin/go-humanize"

	"github.com/studio1767/s3shift/internal/item"
	"github.com/studio1767/s3shift/internal/logging"
	"github.com/studio1767/s3shift/internal/ops"
	"github.com/studio1767/s3shift/internal/s3io"
	"github.com/studio1767/s3shift/internal/store"
)

// patterns collects a repeatable flag.
type patterns []string

func (p *patterns) String() string {
	return strings.Join(*p, ",")
}

func (p *patterns) Set(value string) error {
	*p = append(*p, value)
	return nil
}

func main() {
	// process the command line
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [-v] [-p aws-profile] [-e endpoint] [-i pattern]... [-x pattern]... [-l level] <bucket> <source-dir> <folder-id>\n", filepath.Base(os.Args[0]))
		flag.PrintDefaults()
	}

	var include, exclude patterns
	verbose := flag.Bool("v", false, "verbose reporting")
	profile := flag.String("p", "default", "aws profile for credentials and configuration")
	endpoint := flag.String("e", "", "endpoint of an S3-compatible server")
	level := flag.String("l", "warn", "log level")
	flag.Var(&include, "i", "only upload files whose names match this pattern (repeatable)")
	flag.Var(&exclude, "x", "skip files whose names match this pattern (repeatable)")
	flag.Parse()

	if flag.NArg() != 3 {
		fmt.Fprintf(os.Stderr, "Error: incorrect arguments provided\n")
		flag.Usage()
		os.Exit(1)
	}

	bucket := flag.Arg(0)
	source := flag.Arg(1)
	folder := flag.Arg(2)

	if err := logging.Init(logging.Config{Level: *level}); err != nil {
		log.Fatal(err)
	}
	defer logging.Sync()

	fi, err := os.Stat(source)
	if err != nil {
		log.Fatalf("failed to stat source: %s", err)
	}
	if !fi.IsDir() {
		log.Fatalf("source is not a directory: %s", source)
	}

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

	s, err := put(ctx, client.Store(), source, folder, include, exclude, *verbose)
	if err != nil {
		log.Fatal(err)
	}
	s.print()
}

type summary struct {
	total    int
	present  int
	uploaded int
	failed   int
	bytes    int64
}

func (s summary) print() {
	fmt.Println()
	fmt.Printf("Put Summary\n")
	fmt.Printf(" files:\n")
	fmt.Printf("        total: %d\n", s.total)
	fmt.Printf("      present: %d\n", s.present)
	fmt.Printf(" actions:\n")
	fmt.Printf("     uploaded: %d (%s bytes)\n", s.uploaded, humanize.Comma(s.bytes))
	fmt.Printf("       failed: %d\n", s.failed)
	fmt.Println()
}

// put uploads the files below the local directory source into folder,
// recreating the directory structure and skipping files already present.
func put(ctx context.Context, st store.FileStore, source string, folder item.ID, include, exclude []string, verbose bool) (summary, error) {
	var s summary

	if _, err := store.GetFolder(ctx, st, folder); err != nil {
		return s, err
	}

	fmt.Printf("Processing %s\n", source)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// build the file processing chain
	ch := ops.NewFsScanner(ctx, source, ops.ScanOptions{})
	if len(include) > 0 {
		ch = ops.NewNameFilter(ctx, ch, include, true)
	}
	if len(exclude) > 0 {
		ch = ops.NewNameFilter(ctx, ch, exclude, false)
	}
	ch = ops.NewHashGenerator(ctx, ch, source)
	ch = ops.NewUploader(ctx, ch, st, source, folder)

	for ei := range ch {
		s.total++

		switch {
		case ei.Action == ops.Failed:
			s.failed++
			fmt.Printf("-   failed: %s: %s\n", ei.RelPath, ei.ActionMessage)
		case ei.Action == ops.Uploaded:
			s.uploaded++
			s.bytes += ei.Size
			fmt.Printf("- uploaded: %s (%s)\n", ei.RelPath, humanize.Comma(ei.Size))
		case ei.Status == ops.StatusExists:
			s.present++
			if verbose {
				fmt.Printf("-  present: %s\n", ei.RelPath)
			}
		}
	}

	return s, ctx.Err()
}
