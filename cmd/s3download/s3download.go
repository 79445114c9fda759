package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	humanize "github.com/dustin/go-humanize"

	"github.com/studio1767/s3shift/internal/runlog"
	"github.com/studio1767/s3shift/internal/s3io"
)

func main() {
	// process the command line
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s  [-p <profile>] [-e endpoint] [-o] [-s secrets-file] [-i identities-file] <bucket> <key> <restore_root>\n", filepath.Base(os.Args[0]))
		fmt.Fprintf(os.Stderr, "       %s  [-p <profile>] [-e endpoint] [-o] [-s secrets-file] [-i identities-file] -L <bucket> <job/label/kind> <restore_root>\n", filepath.Base(os.Args[0]))
		flag.PrintDefaults()
	}

	profile := flag.String("p", "default", "aws s3 credentials profile")
	endpoint := flag.String("e", "", "endpoint of an S3-compatible server")
	secretsFile := flag.String("s", "default", "yaml file containing secret passphrases to decrypt log files")
	identitiesFile := flag.String("i", "default", "file containing identities to decrypt log files")
	overwrite := flag.Bool("o", false, "overwrite any existing files")
	latest := flag.Bool("L", false, "download the latest log of the given job/label/kind")
	flag.Parse()

	if flag.NArg() != 3 {
		fmt.Fprintf(os.Stderr, "Error: incorrect arguments provided\n")
		flag.Usage()
		os.Exit(1)
	}

	bucket := flag.Arg(0)
	key := flag.Arg(1)
	restoreRoot := flag.Arg(2)

	ctx := context.Background()

	// create the client
	client, err := s3io.NewClient(ctx, s3io.Options{
		Profile:        *profile,
		Bucket:         bucket,
		Endpoint:       *endpoint,
		IdentitiesFile: *identitiesFile,
		SecretsFile:    *secretsFile,
	})
	if err != nil {
		log.Fatal(err)
	}

	// run some sanity checks on the restore root
	st, err := os.Stat(restoreRoot)
	if err != nil {
		if os.IsNotExist(err) {
			if err := os.Mkdir(restoreRoot, 0755); err != nil {
				log.Fatalf("failed to create restore root: %s", err)
			}
		} else {
			log.Fatalf("failed to stat restore root: %s", err)
		}
	} else if !st.IsDir() {
		log.Fatal("the restore root is not a directory")
	}

	var source *os.File
	if *latest {
		tokens := strings.Split(key, "/")
		if len(tokens) != 3 {
			log.Fatalf("expected job/label/kind, got: %s", key)
		}
		source, key, err = runlog.Download(ctx, client, tokens[0], tokens[1], tokens[2])
	} else {
		source, err = runlog.DownloadWithKey(ctx, client, key)
	}
	if err != nil {
		log.Fatal(err)
	}
	defer os.Remove(source.Name())
	defer source.Close()

	if err := save(source, key, restoreRoot, *overwrite); err != nil {
		log.Fatal(err)
	}
}

func save(source io.Reader, key, restoreRoot string, overwrite bool) error {
	fmt.Printf("Processing %s\n", key)

	// archives are decompressed on download so drop the '.gz'
	tokens := strings.Split(key, "/")
	fname := strings.TrimSuffix(tokens[len(tokens)-1], ".gz")
	fpath := filepath.Join(restoreRoot, fname)

	fmt.Printf("- saving to %s\n", fpath)

	if !overwrite {
		if _, err := os.Stat(fpath); err == nil {
			fmt.Printf("- unable to save: file already exists\n")
			return nil
		}
	}

	sink, err := os.Create(fpath)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer sink.Close()

	size, err := io.Copy(sink, source)
	if err != nil {
		os.Remove(fpath)
		return fmt.Errorf("save failed: %w", err)
	}

	fmt.Printf("- success: %s (%s)\n", fpath, humanize.Comma(size))

	return nil
}
