package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/studio1767/s3shift/internal/job"
	"github.com/studio1767/s3shift/internal/s3io"
)

func main() {
	// process the command line
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s  [-p <profile>] [-e endpoint] [-s secrets-file] <bucket> <jobname> <jobfile>\n", filepath.Base(os.Args[0]))
		flag.PrintDefaults()
	}

	profile := flag.String("p", "default", "aws s3 credentials profile")
	endpoint := flag.String("e", "", "endpoint of an S3-compatible server")
	secretsFile := flag.String("s", "default", "yaml file containing secret passphrases to encrypt the job")
	flag.Parse()

	if flag.NArg() != 3 {
		fmt.Fprintf(os.Stderr, "Error: incorrect arguments provided\n")
		flag.Usage()
		os.Exit(1)
	}

	bucket := flag.Arg(0)
	jobname := flag.Arg(1)
	jobfile := flag.Arg(2)

	ctx := context.Background()

	// create the client
	client, err := s3io.NewClient(ctx, s3io.Options{
		Profile:     *profile,
		Bucket:      bucket,
		Endpoint:    *endpoint,
		SecretsFile: *secretsFile,
	})
	if err != nil {
		log.Fatal(err)
	}

	// upload the jobfile
	key, err := upload(ctx, client, jobname, jobfile)
	if err != nil {
		log.Fatal(err)
	}

	fmt.Printf("uploaded to %s\n", key)
}

func upload(ctx context.Context, client s3io.Client, jobname, jobfile string) (string, error) {
	source, err := os.Open(jobfile)
	if err != nil {
		return "", err
	}
	defer source.Close()

	return job.Upload(ctx, client, source, jobname)
}
