package ops_test

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/studio1767/s3shift/internal/item"
	"github.com/studio1767/s3shift/internal/ops"
	"github.com/studio1767/s3shift/internal/store"
	"github.com/studio1767/s3shift/internal/tree"
)

func writeFiles(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		fpath := filepath.Join(root, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(fpath), 0755))
		require.NoError(t, os.WriteFile(fpath, []byte(content), 0644))
	}
}

func drain(in <-chan *ops.EntryInfo) []*ops.EntryInfo {
	var entries []*ops.EntryInfo
	for info := range in {
		entries = append(entries, info)
	}
	return entries
}

func checksum(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

func TestFsScannerSkipsDirsAndMarkers(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"a.mkv":             "aaaa",
		"Extras/b.mkv":      "bb",
		".cache/junk":       "x",
		"Private/c.mkv":     "c",
		"Private/.nobackup": "",
		"Extras/Deep/d.mkv": "ddd",
	})

	ctx := context.Background()
	entries := drain(ops.NewFsScanner(ctx, root, ops.ScanOptions{
		SkipDirs:    []string{".cache"},
		SkipMarkers: []string{".nobackup"},
	}))

	var paths []string
	for _, e := range entries {
		paths = append(paths, e.RelPath)
	}
	require.Equal(t, []string{"Extras/Deep/d.mkv", "Extras/b.mkv", "a.mkv"}, paths)
	require.Equal(t, int64(3), entries[0].Size)
}

func TestNameFilter(t *testing.T) {
	ctx := context.Background()

	feed := func() <-chan *ops.EntryInfo {
		in := make(chan *ops.EntryInfo, 4)
		in <- &ops.EntryInfo{RelPath: "x/a.mkv"}
		in <- &ops.EntryInfo{RelPath: "x/a.nfo"}
		in <- &ops.EntryInfo{RelPath: "b.MKV"}
		in <- &ops.EntryInfo{RelPath: "broken.nfo", Action: ops.Failed}
		close(in)
		return in
	}

	kept := drain(ops.NewNameFilter(ctx, feed(), []string{"*.nfo"}, false))
	require.Len(t, kept, 3)
	require.Equal(t, "x/a.mkv", kept[0].RelPath)
	require.Equal(t, "broken.nfo", kept[2].RelPath)

	kept = drain(ops.NewNameFilter(ctx, feed(), []string{"*.mkv"}, true))
	require.Len(t, kept, 2)
	require.Equal(t, "x/a.mkv", kept[0].RelPath)
}

func TestUploadPipeline(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"a.mkv":             "aaaa",
		"Extras/b.mkv":      "bb",
		"Extras/Deep/d.mkv": "ddd",
	})

	ctx := context.Background()
	mem := store.NewMemory()
	dst := mem.AddFolder(store.RootID, "Films")

	upload := func() []*ops.EntryInfo {
		ch := ops.NewFsScanner(ctx, root, ops.ScanOptions{})
		ch = ops.NewHashGenerator(ctx, ch, root)
		ch = ops.NewUploader(ctx, ch, mem, root, dst.ID)
		return drain(ch)
	}

	entries := upload()
	require.Len(t, entries, 3)
	for _, e := range entries {
		require.Equal(t, ops.Uploaded, e.Action, e.ActionMessage)
	}

	tr, err := tree.Build(ctx, mem, dst.ID, tree.BuildOptions{})
	require.NoError(t, err)
	require.Equal(t, int64(9), tr.Root().Size)
	require.Equal(t, 5, tr.Root().NItems)

	extras, found, err := store.FindChild(ctx, mem, dst.ID, "Extras", item.KindFolder)
	require.NoError(t, err)
	require.True(t, found)
	b, found, err := store.FindChild(ctx, mem, extras.ID, "b.mkv", item.KindFile)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, checksum("bb"), b.Checksum)

	// a second run finds everything in place
	entries = upload()
	for _, e := range entries {
		require.Equal(t, ops.NoAction, e.Action)
		require.Equal(t, ops.StatusExists, e.Status)
	}
	children, err := mem.ListChildren(ctx, dst.ID)
	require.NoError(t, err)
	require.Len(t, children, 2)
}

func TestReviewPipeline(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()

	src := mem.AddFolder(store.RootID, "src")
	a := mem.AddFile(src.ID, "a.mkv", 100, "aa")
	sub := mem.AddFolder(src.ID, "Sub")
	b := mem.AddFile(sub.ID, "b.mkv", 20, "")
	c := mem.AddFile(sub.ID, "c.mkv", 5, "cc")

	dst := mem.AddFolder(store.RootID, "dst")
	elsewhere := mem.AddFolder(dst.ID, "Elsewhere")
	mem.AddFile(elsewhere.ID, "a.mkv", 100, "aa")
	mem.AddFile(dst.ID, "b.mkv", 20, "bb")
	mem.AddFile(dst.ID, "c.mkv", 5, "different")

	source, err := tree.Build(ctx, mem, src.ID, tree.BuildOptions{})
	require.NoError(t, err)
	destination, err := tree.Build(ctx, mem, dst.ID, tree.BuildOptions{})
	require.NoError(t, err)

	var copied, notCopied bytes.Buffer
	ch := ops.NewTreeScanner(ctx, source)
	ch = ops.NewMatcher(ctx, ch, destination)
	ch = ops.NewLogWriter(ctx, ch, &copied, &notCopied)
	entries := drain(ch)

	require.Len(t, entries, 3)
	require.Equal(t, "a.mkv", entries[0].RelPath)
	require.Equal(t, "Sub/b.mkv", entries[1].RelPath)
	require.Equal(t, ops.StatusCopied, entries[0].Status)
	require.Equal(t, ops.StatusCopied, entries[1].Status)
	require.Equal(t, ops.StatusNotCopied, entries[2].Status)

	require.Equal(t, a.String()+"\n"+b.String()+"\n", copied.String())
	require.Equal(t, c.String()+"\n", notCopied.String())
}
