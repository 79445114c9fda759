package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"

	humanize "github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"github.com/studio1767/s3shift/internal/copier"
	"github.com/studio1767/s3shift/internal/item"
	"github.com/studio1767/s3shift/internal/job"
	"github.com/studio1767/s3shift/internal/logging"
	"github.com/studio1767/s3shift/internal/metrics"
	"github.com/studio1767/s3shift/internal/review"
	"github.com/studio1767/s3shift/internal/runlog"
	"github.com/studio1767/s3shift/internal/s3io"
	"github.com/studio1767/s3shift/internal/store"
	"github.com/studio1767/s3shift/internal/tree"
)

func main() {
	// process the command line
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [-p aws-profile] [-e endpoint] [-s secrets-file] [-j job-file] [-o out-dir] [-r] [-x] [-l level] [-m addr] <bucket> <job>\n", filepath.Base(os.Args[0]))
		flag.PrintDefaults()
	}

	profile := flag.String("p", "default", "aws profile for credentials and configuration")
	endpoint := flag.String("e", "", "endpoint of an S3-compatible server")
	secretsFile := flag.String("s", "default", "yaml file containing secret passphrases for jobs and logs")
	jobFile := flag.String("j", "", "load the job from this local file instead of the bucket")
	outDir := flag.String("o", ".", "directory to write the review logs to")
	reviewOnly := flag.Bool("r", false, "skip the copy and only review")
	prune := flag.Bool("x", false, "delete copied files from the source once everything is copied")
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

	progress := logging.NewProgress(nil)
	var bulk bulkCopier
	if !*reviewOnly {
		bulk = copier.New(j.CopierConfig(), progress)
	}

	s, err := run(ctx, client.Store(), bulk, j, *outDir, *prune)
	if err != nil {
		log.Fatal(err)
	}

	logs := []struct {
		path string
		kind string
	}{
		{s.review.CopiedLog, runlog.KindCopied},
		{s.review.NotCopiedLog, runlog.KindNotCopied},
		{j.Copy.LogFile, runlog.KindCopier},
	}
	for _, l := range logs {
		if l.path == "" {
			continue
		}
		key, err := runlog.UploadFile(ctx, client, l.path, j.Name, j.Label, l.kind)
		if err != nil {
			logging.Warn("archiving log", zap.String("path", l.path), zap.Error(err))
			continue
		}
		if key != "" {
			fmt.Printf("- archived: %s\n", key)
		}
	}

	s.print()
}

type bulkCopier interface {
	Copy(ctx context.Context, req copier.Request) (int64, error)
}

type summary struct {
	sourceBytes int64
	copied      int64
	copyErr     error
	review      review.CopyStats
	pruned      *tree.PruneResult
}

func (s summary) print() {
	fmt.Println()
	fmt.Printf("Copy Summary\n")
	fmt.Printf(" copier:\n")
	fmt.Printf("       source: %s (%s bytes)\n", item.FormatSize(s.sourceBytes), humanize.Comma(s.sourceBytes))
	fmt.Printf("  transferred: %s bytes\n", humanize.Comma(s.copied))
	if s.copyErr != nil {
		fmt.Printf("        error: %s\n", s.copyErr)
	}
	fmt.Printf(" review:\n")
	fmt.Printf("   all copied: %t\n", s.review.AllCopied)
	fmt.Printf("       copied: %d (%s bytes)\n", s.review.Copied, humanize.Comma(s.review.Bytes))
	fmt.Printf("   not copied: %d (%s bytes)\n", s.review.NotCopied, humanize.Comma(s.review.MissingBytes))
	fmt.Printf("       failed: %d\n", s.review.Failed)
	if s.pruned != nil {
		fmt.Printf(" pruned:\n")
		fmt.Printf("        files: %d (%s bytes)\n", s.pruned.Files, humanize.Comma(s.pruned.Bytes))
		fmt.Printf("      folders: %d\n", s.pruned.Folders)
		fmt.Printf("       failed: %d\n", s.pruned.Failed)
	}
	fmt.Println()
}

// run copies the job's source to its destination with the bulk copier,
// reviews the result and, when asked and everything arrived, prunes the
// copied files from the source. A nil copier only reviews.
func run(ctx context.Context, st store.Store, bulk bulkCopier, j *job.Job, outDir string, prune bool) (summary, error) {
	var s summary
	progress := logging.NewProgress(nil)

	if _, err := store.GetFolder(ctx, st, j.Destination); err != nil {
		return s, fmt.Errorf("destination: %w", err)
	}
	src, err := tree.Build(ctx, st, j.Source, tree.BuildOptions{})
	if err != nil {
		return s, fmt.Errorf("building source tree: %w", err)
	}
	s.sourceBytes = src.Root().Size
	fmt.Printf("Processing %s/%s: %s in %d items\n", j.Name, j.Label, item.FormatSize(s.sourceBytes), src.Root().NItems)

	if bulk != nil {
		s.copied, s.copyErr = bulk.Copy(ctx, j.CopyRequest(s.sourceBytes))

		var invalid *copier.ErrInvalidArgument
		switch {
		case errors.As(s.copyErr, &invalid):
			return s, s.copyErr
		case errors.Is(s.copyErr, context.Canceled):
			return s, s.copyErr
		case s.copyErr != nil:
			logging.Warn("copy did not complete", zap.Error(s.copyErr))
		}
	}

	s.review, err = review.Run(ctx, st, j.Source, j.Destination, outDir, progress)
	if err != nil {
		return s, err
	}
	fmt.Printf("- review: %s\n", s.review)

	if prune && s.review.AllCopied {
		result, err := tree.Prune(ctx, st, src, src.Root().ID(), j.Destination, progress)
		if err != nil {
			return s, fmt.Errorf("pruning source: %w", err)
		}
		s.pruned = &result
	}

	return s, nil
}
