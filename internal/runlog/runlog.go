// Package runlog archives the logs a run leaves behind, such as the move
// log and the review logs, in the bucket.
package runlog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/studio1767/s3shift/internal/s3io"
)

const (
	KindMoves     = "moves"
	KindCopied    = "copied"
	KindNotCopied = "not_copied"
	KindCopier    = "copier"
)

type ErrNoSuchLog struct {
	msg string
}

func (e *ErrNoSuchLog) Error() string {
	return e.msg
}

func prefix(jobname, label, kind string) string {
	return fmt.Sprintf("logs/%s/%s/%s-", jobname, label, kind)
}

// Key names the archive of one log. Keys of the same kind sort by time.
func Key(jobname, label, kind string, now time.Time) string {
	stamp := now.Format("2006-01-02")
	seconds := (((now.Hour() * 60) + now.Minute()) * 60) + now.Second()

	return fmt.Sprintf("%s%s-%05d.log.gz", prefix(jobname, label, kind), stamp, seconds)
}

// Upload archives source compressed, encrypted with the passphrase when
// there is one or else with the bucket's recipients.
func Upload(ctx context.Context, client s3io.Client, source io.Reader, jobname, label, kind string) (string, error) {
	key := Key(jobname, label, kind, time.Now())

	var err error
	switch {
	case client.HasPassphrase():
		_, err = client.UploadPassphrase(ctx, key, source, true)
	case client.HasRecipients():
		_, err = client.UploadEncrypted(ctx, key, source, true)
	default:
		_, err = client.UploadCompressed(ctx, key, source)
	}

	return key, err
}

// UploadFile archives the local log at path. A missing file is skipped
// and reported with an empty key.
func UploadFile(ctx context.Context, client s3io.Client, path, jobname, label, kind string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil
		}
		return "", err
	}
	defer f.Close()

	return Upload(ctx, client, f, jobname, label, kind)
}

// Download fetches the latest log of kind into a temporary file, opened
// and rewound.
func Download(ctx context.Context, client s3io.Client, jobname, label, kind string) (*os.File, string, error) {
	key, _, err := client.LatestMatching(ctx, prefix(jobname, label, kind))
	if err != nil {
		var nomatch *s3io.ErrNoMatch
		if errors.As(err, &nomatch) {
			return nil, "", &ErrNoSuchLog{
				msg: fmt.Sprintf("No %s log for job and label: %s:%s", kind, jobname, label),
			}
		}
		return nil, "", err
	}

	f, err := DownloadWithKey(ctx, client, key)
	return f, key, err
}

func DownloadWithKey(ctx context.Context, client s3io.Client, key string) (*os.File, error) {
	// archives are decompressed on download so drop the '.gz'
	tokens := strings.Split(key, "/")
	name := strings.TrimSuffix(tokens[len(tokens)-1], ".gz")

	f, err := os.CreateTemp("", "*-"+name)
	if err != nil {
		return nil, err
	}

	cleanup := func(err error) (*os.File, error) {
		f.Close()
		os.Remove(f.Name())
		return nil, err
	}

	if _, err := client.Download(ctx, key, f); err != nil {
		return cleanup(err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return cleanup(err)
	}

	return f, nil
}
