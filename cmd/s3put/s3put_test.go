package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/studio1767/s3shift/internal/item"
	"github.com/studio1767/s3shift/internal/store"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	fpath := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(fpath), 0755))
	require.NoError(t, os.WriteFile(fpath, []byte(content), 0644))
}

func TestPutUploadsThenSkipsPresentFiles(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	dst := mem.AddFolder(store.RootID, "Incoming")

	root := t.TempDir()
	writeFile(t, root, "a.mkv", "aaaa")
	writeFile(t, root, "Season 1/e01.mkv", "episode one")
	writeFile(t, root, "Season 1/notes.txt", "skip me")

	s, err := put(ctx, mem, root, dst.ID, nil, []string{"*.txt"}, false)
	require.NoError(t, err)
	require.Equal(t, 2, s.total)
	require.Equal(t, 2, s.uploaded)
	require.Equal(t, int64(15), s.bytes)
	require.Zero(t, s.failed)

	season, found, err := store.FindChild(ctx, mem, dst.ID, "Season 1", item.KindFolder)
	require.NoError(t, err)
	require.True(t, found)
	ep, found, err := store.FindChild(ctx, mem, season.ID, "e01.mkv", item.KindFile)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, int64(11), ep.Size)
	require.Len(t, ep.Checksum, 64)

	// a second run finds everything in place
	s, err = put(ctx, mem, root, dst.ID, nil, []string{"*.txt"}, false)
	require.NoError(t, err)
	require.Equal(t, 2, s.present)
	require.Zero(t, s.uploaded)

	children, err := mem.ListChildren(ctx, season.ID)
	require.NoError(t, err)
	require.Len(t, children, 1)
}

func TestPutIncludePatterns(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	dst := mem.AddFolder(store.RootID, "Incoming")

	root := t.TempDir()
	writeFile(t, root, "a.mkv", "a")
	writeFile(t, root, "b.srt", "b")

	s, err := put(ctx, mem, root, dst.ID, []string{"*.mkv"}, nil, false)
	require.NoError(t, err)
	require.Equal(t, 1, s.uploaded)
}

func TestPutMissingFolder(t *testing.T) {
	mem := store.NewMemory()
	_, err := put(context.Background(), mem, t.TempDir(), "nope", nil, nil, false)
	require.Error(t, err)
}
