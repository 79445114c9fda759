package job_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/studio1767/s3shift/internal/job"
	"github.com/studio1767/s3shift/internal/s3io"
)

const films = `
source: src-id
destination: dst-id
upper_limit: 3 TB
exclude: [Series]
copy:
  binary: rclone
  args: [copy, --rc]
  source: "gdrive:"
  destination: "shared:"
  dest_path: Films
  timeout: 15m
  warmup: 10s
  interval: 1s
  stall_threshold: 300
`

func TestParseAppliesDefaults(t *testing.T) {
	j, err := job.Parse([]byte(films), "films")
	require.NoError(t, err)

	require.Equal(t, "films", j.Name)
	require.Equal(t, "films", j.Label)
	require.Equal(t, job.DefaultStaging, j.Staging)
	require.Equal(t, 1, j.MaxClusters)
	require.Equal(t, []string{"Series", "Temporary"}, j.Exclude)
	require.Equal(t, int64(3_000_000_000_000), j.UpperLimitBytes())
	require.Equal(t, "5572", j.Copy.Port)
	require.Equal(t, 15*time.Minute, j.Copy.Timeout)

	opts := j.ClusterOptions()
	require.Equal(t, j.UpperLimitBytes(), opts.UpperLimit)
	require.Equal(t, 1, opts.MaxClusters)

	req := j.CopyRequest(42)
	require.Equal(t, "gdrive:", req.Source)
	require.Equal(t, "Films", req.DestPath)
	require.Equal(t, int64(42), req.SizeHint)

	cfg := j.CopierConfig()
	require.Equal(t, "rclone", cfg.Binary)
	require.Equal(t, 300, cfg.StallThreshold)
	require.Equal(t, 10*time.Second, cfg.Warmup)
}

func TestParseRejectsBadJobs(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"no source", "destination: d\nupper_limit: 1 TB\n"},
		{"no limit", "source: s\ndestination: d\n"},
		{"bad limit", "source: s\ndestination: d\nupper_limit: lots\n"},
		{"bad port", "source: s\ndestination: d\nupper_limit: 1 TB\ncopy:\n  port: rc\n"},
		{"negative clusters", "source: s\ndestination: d\nupper_limit: 1 TB\nmax_clusters: -1\n"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := job.Parse([]byte(tc.yaml), "bad")
			var invalid *job.ErrInvalidJob
			require.ErrorAs(t, err, &invalid)
		})
	}
}

func TestLoadNamesJobAfterFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "films.yml")
	require.NoError(t, os.WriteFile(path, []byte(films), 0644))

	j, err := job.Load(path)
	require.NoError(t, err)
	require.Equal(t, "films", j.Name)
}

func TestJobRoundTrip(t *testing.T) {
	profile := os.Getenv("S3SHIFT_TEST_PROFILE")
	bucket := os.Getenv("S3SHIFT_TEST_BUCKET")
	if profile == "" || bucket == "" {
		t.Skip("S3SHIFT_TEST_PROFILE and S3SHIFT_TEST_BUCKET not set")
	}
	ctx := context.Background()

	client, err := s3io.NewClient(ctx, s3io.Options{
		Profile:     profile,
		Bucket:      bucket,
		Endpoint:    os.Getenv("S3SHIFT_TEST_ENDPOINT"),
		SecretsFile: "default",
	})
	require.NoError(t, err)
	if !client.HasPassphrase() {
		t.Skip("no passphrase in the secrets file")
	}

	name := "test-" + time.Now().Format("20060102150405")
	first, err := job.Upload(ctx, client, jobFile(t), name)
	require.NoError(t, err)
	second, err := job.Upload(ctx, client, jobFile(t), name)
	require.NoError(t, err)
	require.Greater(t, second, first)

	j, key, err := job.Download(ctx, client, name)
	require.NoError(t, err)
	require.Equal(t, second, key)
	require.Equal(t, "src-id", j.Source)

	_, _, err = job.Download(ctx, client, name+"-missing")
	var nosuch *job.ErrNoSuchJob
	require.ErrorAs(t, err, &nosuch)
}

func jobFile(t *testing.T) *os.File {
	t.Helper()
	path := filepath.Join(t.TempDir(), "job.yml")
	require.NoError(t, os.WriteFile(path, []byte(films), 0644))
	f, err := os.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })
	return f
}
