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

	humanize "github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"github.com/studio1767/s3shift/internal/cluster"
	"github.com/studio1767/s3shift/internal/item"
	"github.com/studio1767/s3shift/internal/job"
	"github.com/studio1767/s3shift/internal/logging"
	"github.com/studio1767/s3shift/internal/metrics"
	"github.com/studio1767/s3shift/internal/mover"
	"github.com/studio1767/s3shift/internal/runlog"
	"github.com/studio1767/s3shift/internal/s3io"
	"github.com/studio1767/s3shift/internal/store"
	"github.com/studio1767/s3shift/internal/tree"
)

func main() {
	// process the command line
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [-p aws-profile] [-e endpoint] [-s secrets-file] [-j job-file] [-o move-log] [-k] [-l level] [-m addr] <bucket> <job>\n", filepath.Base(os.Args[0]))
		flag.PrintDefaults()
	}

	profile := flag.String("p", "default", "aws profile for credentials and configuration")
	endpoint := flag.String("e", "", "endpoint of an S3-compatible server")
	secretsFile := flag.String("s", "default", "yaml file containing secret passphrases for jobs and logs")
	jobFile := flag.String("j", "", "load the job from this local file instead of the bucket")
	moveLog := flag.String("o", "moves.log", "file to record moved items in")
	keepStage := flag.Bool("k", false, "keep the staging folder even when it was emptied")
	level := flag.String("l", "info", "log level")
	metricsAddr := flag.String("m", "", "serve prometheus metrics on this address")
	flag.Parse()

	if flag.NArg() != 2 {
		fmt.Fprintf(os.Stderr, "Error: incorrect arguments provided\n")
		flag.Usage()
		os.Exit(1)
	}

	bucket := flag.Arg(0)
	jobname := flag.Arg(1)

	if err := logging.Init(logging.Config{Level: *level}); err != nil {
		log.Fatal(err)
	}
	defer logging.Sync()
	metrics.Serve(*metricsAddr)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	client, err := s3io.NewClient(ctx, s3io.Options{
		Profile:     *profile,
		Bucket:      bucket,
		Endpoint:    *endpoint,
		SecretsFile: *secretsFile,
	})
	if err != nil {
		log.Fatal(err)
	}

	var j *job.Job
	if *jobFile != "" {
		j, err = job.Load(*jobFile)
	} else {
		j, _, err = job.Download(ctx, client, jobname)
	}
	if err != nil {
		log.Fatal(err)
	}

	mlog, err := os.Create(*moveLog)
	if err != nil {
		log.Fatal(err)
	}
	defer mlog.Close()

	summary, err := run(ctx, client.Store(), j, mlog, *keepStage)
	if err != nil {
		log.Fatal(err)
	}

	if key, err := runlog.UploadFile(ctx, client, *moveLog, j.Name, j.Label, runlog.KindMoves); err != nil {
		logging.Warn("archiving move log", zap.Error(err))
	} else if key != "" {
		fmt.Printf("- archived: %s\n", key)
	}

	summary.print()
}

type summary struct {
	clusters   int
	moved      int
	failed     int
	clustered  int64
	treeMoved  bool
	stageGone  bool
	movedBytes int64
}

func (s summary) print() {
	fmt.Println()
	fmt.Printf("Shift Summary\n")
	fmt.Printf(" clusters:\n")
	fmt.Printf("        count: %d\n", s.clusters)
	fmt.Printf("         size: %s (%s bytes)\n", item.FormatSize(s.clustered), humanize.Comma(s.clustered))
	fmt.Printf("        moved: %d\n", s.moved)
	fmt.Printf("       failed: %d\n", s.failed)
	fmt.Printf(" tree:\n")
	fmt.Printf("    all moved: %t\n", s.treeMoved)
	fmt.Printf("        bytes: %s\n", humanize.Comma(s.movedBytes))
	fmt.Printf("stage removed: %t\n", s.stageGone)
	fmt.Println()
}

// run stages up to MaxClusters size-bounded clusters of the source in the
// staging folder, then moves the staged tree to the destination.
func run(ctx context.Context, st store.Store, j *job.Job, movelog io.Writer, keepStage bool) (summary, error) {
	var s summary
	progress := logging.NewProgress(nil)

	if _, err := store.GetFolder(ctx, st, j.Destination); err != nil {
		return s, fmt.Errorf("destination: %w", err)
	}
	items, err := st.ListChildren(ctx, j.Source)
	if err != nil {
		return s, fmt.Errorf("listing source: %w", err)
	}
	fmt.Printf("Processing %s/%s: %d items in source\n", j.Name, j.Label, len(items))

	sizer := cluster.NewSizer(st)
	clusterer, err := cluster.New(items, j.ClusterOptions(), sizer.Size, progress)
	if err != nil {
		return s, err
	}

	stage, found, err := store.FindChild(ctx, st, j.Source, j.Staging, item.KindFolder)
	if err != nil {
		return s, err
	}
	if !found {
		stage, err = st.CreateFolder(ctx, j.Staging, j.Source)
		if err != nil {
			return s, fmt.Errorf("creating staging folder: %w", err)
		}
	}

	m := mover.New(st, progress, movelog)
	for clusterer.Next(ctx) {
		c := clusterer.Cluster()
		fmt.Printf("- cluster: %s\n", c)

		result := m.Move(ctx, c, stage.ID)
		s.clusters++
		s.clustered += c.Size
		s.moved += result.Moved
		s.failed += result.Failed
	}
	if err := clusterer.Err(); err != nil {
		return s, err
	}

	t, err := tree.Build(ctx, st, stage.ID, tree.BuildOptions{})
	if err != nil {
		return s, fmt.Errorf("building staged tree: %w", err)
	}
	fmt.Printf("- staged: %s in %d items\n", item.FormatSize(t.Root().Size), t.Root().NItems)

	s.treeMoved = m.MoveTree(ctx, t, j.Destination, stage.ID, stage.Name)
	s.movedBytes = m.MovedBytes()

	if s.treeMoved && !keepStage {
		if err := st.DeleteItem(ctx, stage.ID); err != nil {
			logging.Warn("removing staging folder", zap.String("id", stage.ID), zap.Error(err))
		} else {
			s.stageGone = true
		}
	}

	return s, nil
}
