package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/studio1767/s3shift/internal/s3io"
)

func main() {
	// process the command line
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s  [-p <profile>] [-e endpoint] [-s secrets-file] <bucket> <jobname>\n", filepath.Base(os.Args[0]))
		flag.PrintDefaults()
	}

	profile := flag.String("p", "default", "aws s3 credentials profile")
	endpoint := flag.String("e", "", "endpoint of an S3-compatible server")
	secretsFile := flag.String("s", "default", "yaml file containing secret passphrases to decrypt the job")
	flag.Parse()

	if flag.NArg() != 2 {
		fmt.Fprintf(os.Stderr, "Error: incorrect arguments provided\n")
		flag.Usage()
		os.Exit(1)
	}

	bucket := flag.Arg(0)
	jobname := flag.Arg(1)

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

	path, err := download(ctx, client, jobname)
	if err != nil {
		log.Fatal(err)
	}

	fmt.Printf("downloaded to %s\n", path)
}

func download(ctx context.Context, client s3io.Client, jobname string) (string, error) {
	prefix := fmt.Sprintf("jobs/%s/", jobname)

	// get the latest job config
	key, _, err := client.LatestMatching(ctx, prefix)
	if err != nil {
		return "", err
	}

	// the local file takes the name of the key
	ktokens := strings.Split(key, "/")
	fname := ktokens[len(ktokens)-1]

	sink, err := os.Create(fname)
	if err != nil {
		return "", err
	}
	defer sink.Close()

	if _, err := client.Download(ctx, key, sink); err != nil {
		os.Remove(fname)
		return "", fmt.Errorf("download failed: %w", err)
	}

	return fname, nil
}
