package main

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/studio1767/s3shift/internal/copier"
	"github.com/studio1767/s3shift/internal/item"
	"github.com/studio1767/s3shift/internal/job"
	"github.com/studio1767/s3shift/internal/store"
)

// mirror plays the bulk copier by recreating the listed files under the
// destination folder.
type mirror struct {
	mem   *store.Memory
	files []item.Item
	dst   item.ID
	req   copier.Request
	err   error
}

func (m *mirror) Copy(ctx context.Context, req copier.Request) (int64, error) {
	m.req = req
	var n int64
	for _, f := range m.files {
		m.mem.AddFile(m.dst, f.Name, f.Size, f.Checksum)
		n += f.Size
	}
	return n, m.err
}

func setup(t *testing.T) (*store.Memory, *job.Job, []item.Item, item.ID) {
	t.Helper()
	mem := store.NewMemory()
	src := mem.AddFolder(store.RootID, "Films")
	dst := mem.AddFolder(store.RootID, "Shared")
	files := []item.Item{
		mem.AddFile(src.ID, "a.mkv", 100, "aa"),
		mem.AddFile(src.ID, "b.mkv", 50, "bb"),
	}

	j, err := job.Parse([]byte("source: "+src.ID+"\ndestination: "+dst.ID+"\nupper_limit: 1 GB\ncopy:\n  source: gdrive\n  destination: shared\n"), "films")
	require.NoError(t, err)
	return mem, j, files, dst.ID
}

func TestRunCopiesReviewsAndPrunes(t *testing.T) {
	ctx := context.Background()
	mem, j, files, dst := setup(t)
	bulk := &mirror{mem: mem, files: files, dst: dst}

	s, err := run(ctx, mem, bulk, j, t.TempDir(), true)
	require.NoError(t, err)

	require.Equal(t, int64(150), bulk.req.SizeHint)
	require.Equal(t, "gdrive", bulk.req.Source)
	require.Equal(t, "5572", bulk.req.Port)
	require.Equal(t, int64(150), s.copied)

	require.True(t, s.review.AllCopied)
	require.Equal(t, 2, s.review.Copied)
	require.NotEmpty(t, s.review.CopiedLog)
	require.Empty(t, s.review.NotCopiedLog)

	require.NotNil(t, s.pruned)
	require.Equal(t, 2, s.pruned.Files)
	require.False(t, mem.Exists(files[0].ID))
	require.False(t, mem.Exists(files[1].ID))
}

func TestRunKeepsSourceWhenIncomplete(t *testing.T) {
	ctx := context.Background()
	mem, j, files, dst := setup(t)
	bulk := &mirror{mem: mem, files: files[:1], dst: dst, err: &copier.ErrStalled{}}

	s, err := run(ctx, mem, bulk, j, t.TempDir(), true)
	require.NoError(t, err)

	var stalled *copier.ErrStalled
	require.True(t, errors.As(s.copyErr, &stalled))
	require.False(t, s.review.AllCopied)
	require.Equal(t, 1, s.review.NotCopied)
	require.NotEmpty(t, s.review.NotCopiedLog)
	require.Nil(t, s.pruned)
	require.True(t, mem.Exists(files[0].ID))
}

func TestRunReviewOnly(t *testing.T) {
	ctx := context.Background()
	mem, j, _, _ := setup(t)

	s, err := run(ctx, mem, nil, j, t.TempDir(), false)
	require.NoError(t, err)
	require.Zero(t, s.copied)
	require.Equal(t, 2, s.review.NotCopied)
}

func TestRunStopsOnInvalidCopyRequest(t *testing.T) {
	ctx := context.Background()
	mem, j, _, _ := setup(t)
	bulk := &mirror{mem: mem, err: &copier.ErrInvalidArgument{}}

	_, err := run(ctx, mem, bulk, j, t.TempDir(), false)
	var invalid *copier.ErrInvalidArgument
	require.True(t, errors.As(err, &invalid))
}
