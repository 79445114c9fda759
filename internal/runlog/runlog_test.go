package runlog_test

import (
	"context"
	"errors"
	"io"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/studio1767/s3shift/internal/runlog"
	"github.com/studio1767/s3shift/internal/s3io"
)

func TestKeySortsByTime(t *testing.T) {
	morning := time.Date(2026, 3, 4, 0, 1, 5, 0, time.UTC)
	evening := time.Date(2026, 3, 4, 21, 0, 0, 0, time.UTC)

	require.Equal(t, "logs/films/batch1/moves-2026-03-04-00065.log.gz", runlog.Key("films", "batch1", runlog.KindMoves, morning))
	require.Less(t,
		runlog.Key("films", "batch1", runlog.KindMoves, morning),
		runlog.Key("films", "batch1", runlog.KindMoves, evening),
	)
}

func TestRunlogRoundTrip(t *testing.T) {
	profile := os.Getenv("S3SHIFT_TEST_PROFILE")
	bucket := os.Getenv("S3SHIFT_TEST_BUCKET")
	if profile == "" || bucket == "" {
		t.Skip("S3SHIFT_TEST_PROFILE and S3SHIFT_TEST_BUCKET not set")
	}
	ctx := context.Background()

	client, err := s3io.NewClient(ctx, s3io.Options{
		Profile:        profile,
		Bucket:         bucket,
		Endpoint:       os.Getenv("S3SHIFT_TEST_ENDPOINT"),
		IdentitiesFile: "default",
		SecretsFile:    "default",
	})
	require.NoError(t, err)

	jobname := "test-" + time.Now().Format("20060102150405")
	content := "stage\n\ta.mkv\n"

	key, err := runlog.Upload(ctx, client, strings.NewReader(content), jobname, "label", runlog.KindMoves)
	require.NoError(t, err)

	f, got, err := runlog.Download(ctx, client, jobname, "label", runlog.KindMoves)
	require.NoError(t, err)
	defer os.Remove(f.Name())
	defer f.Close()
	require.Equal(t, key, got)

	data, err := io.ReadAll(f)
	require.NoError(t, err)
	require.Equal(t, content, string(data))

	_, _, err = runlog.Download(ctx, client, jobname, "label", runlog.KindCopied)
	var nolog *runlog.ErrNoSuchLog
	require.True(t, errors.As(err, &nolog))
}
