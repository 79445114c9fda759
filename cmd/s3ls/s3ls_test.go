package main

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/studio1767/s3shift/internal/store"
)

func films(t *testing.T) (*store.Memory, string) {
	t.Helper()
	mem := store.NewMemory()
	src := mem.AddFolder(store.RootID, "Films")
	a := mem.AddFolder(src.ID, "A")
	mem.AddFile(a.ID, "a.mkv", 100, "")
	mem.AddFile(src.ID, "b.mkv", 200, "")
	return mem, src.ID
}

func TestListChildren(t *testing.T) {
	mem, src := films(t)

	var out bytes.Buffer
	require.NoError(t, list(context.Background(), &out, mem, src, listOptions{}))
	require.Contains(t, out.String(), "         -  A/\n")
	require.Contains(t, out.String(), "     200 B  b.mkv\n")

	out.Reset()
	require.NoError(t, list(context.Background(), &out, mem, src, listOptions{sizes: true}))
	require.Contains(t, out.String(), "     100 B  A/\n")
}

func TestListTree(t *testing.T) {
	mem, src := films(t)

	var out bytes.Buffer
	require.NoError(t, list(context.Background(), &out, mem, src, listOptions{tree: true}))
	require.Equal(t, "Films/ (300 B, 3 items)\n\tA/ (100 B, 1 items)\n\t\ta.mkv (100 B)\n\tb.mkv (200 B)\n", out.String())
}

func TestListTreeCheck(t *testing.T) {
	mem, src := films(t)

	var out bytes.Buffer
	require.NoError(t, list(context.Background(), &out, mem, src, listOptions{tree: true, check: true}))
	require.Contains(t, out.String(), "tree check: ok\n")
}

func TestListClusterPreview(t *testing.T) {
	mem, src := films(t)

	var out bytes.Buffer
	opts := listOptions{tree: true, upperLimit: 250, maxClusters: 2}
	require.NoError(t, list(context.Background(), &out, mem, src, opts))
	require.Contains(t, out.String(), "cluster 1: 100 B in 1 items\n\tA\ncluster 2: 200 B in 1 items\n\tb.mkv\n")
}

func TestListNotAFolder(t *testing.T) {
	mem, src := films(t)
	children, err := mem.ListChildren(context.Background(), src)
	require.NoError(t, err)

	var out bytes.Buffer
	require.Error(t, list(context.Background(), &out, mem, children[1].ID, listOptions{}))
}
