package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/studio1767/s3shift/internal/access"
	"github.com/studio1767/s3shift/internal/logging"
	"github.com/studio1767/s3shift/internal/metrics"
	"github.com/studio1767/s3shift/internal/s3io"
)

func main() {
	// process the command line
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [-p aws-profile] [-e endpoint] [-a acl] [-r retries] [-b backoff] [-l level] [-m addr] <bucket> <folder-id>\n", filepath.Base(os.Args[0]))
		flag.PrintDefaults()
	}

	profile := flag.String("p", "default", "aws profile for credentials and configuration")
	endpoint := flag.String("e", "", "endpoint of an S3-compatible server")
	acl := flag.String("a", "", "canned acl to grant (default bucket-owner-full-control)")
	retries := flag.Int("r", access.DefaultMaxRetries, "retries per item after a retryable error")
	backoff := flag.Duration("b", 2*time.Second, "pause before each retry")
	level := flag.String("l", "info", "log level")
	metricsAddr := flag.String("m", "", "serve prometheus metrics on this address")
	flag.Parse()

	if flag.NArg() != 2 {
		fmt.Fprintf(os.Stderr, "Error: incorrect arguments provided\n")
		flag.Usage()
		os.Exit(1)
	}

	bucket := flag.Arg(0)
	folder := flag.Arg(1)

	if err := logging.Init(logging.Config{Level: *level}); err != nil {
		log.Fatal(err)
	}
	defer logging.Sync()
	metrics.Serve(*metricsAddr)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	client, err := s3io.NewClient(ctx, s3io.Options{
		Profile:  *profile,
		Bucket:   bucket,
		Endpoint: *endpoint,
		GrantACL: *acl,
	})
	if err != nil {
		log.Fatal(err)
	}

	fmt.Printf("Granting access below %s\n", folder)

	result, err := access.GrantRecursive(ctx, client.Store(), folder, access.Options{
		MaxRetries: *retries,
		Backoff:    *backoff,
	}, logging.NewProgress(nil))
	if err != nil {
		log.Fatal(err)
	}

	fmt.Println()
	fmt.Printf("Grant Summary\n")
	fmt.Printf("      granted: %d\n", result.Granted)
	fmt.Printf("       failed: %d\n", result.Failed)
	fmt.Println()

	if result.Failed > 0 {
		os.Exit(1)
	}
}
