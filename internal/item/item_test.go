package item_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/studio1767/s3shift/internal/item"
)

func TestSameComparesIdentifierOnly(t *testing.T) {
	a := item.NewFile("id-1", "a.bin", 10, "abc", "p1")
	b := item.NewFile("id-1", "renamed.bin", 99, "def", "p2")
	c := item.NewFile("id-2", "a.bin", 10, "abc", "p1")

	require.True(t, item.Same(a, b))
	require.False(t, item.Same(a, c))
}

func TestSetKeysByIdentifier(t *testing.T) {
	s := item.Set{}
	s.Add(item.NewFolder("f1", "one"))
	s.Add(item.NewFolder("f1", "one-again"))

	require.Len(t, s, 1)
	require.True(t, s.Has(item.NewFile("f1", "whatever", 0, "")))
}

func TestParentOfRootIsEmpty(t *testing.T) {
	require.Equal(t, "", item.NewFolder("root", "/").Parent())
	require.Equal(t, "p1", item.NewFolder("x", "x", "p1", "p2").Parent())
}

func TestStringIsSingleLine(t *testing.T) {
	f := item.NewFile("id-1", "movie.mkv", 2048, "d41d8cd9", "p1")
	require.Equal(t, `File(id=id-1, name="movie.mkv", size=2048, checksum=d41d8cd9, parents=[p1])`, f.String())

	d := item.NewFolder("id-2", "Films", "p1", "p2")
	require.Equal(t, `Folder(id=id-2, name="Films", parents=[p1,p2])`, d.String())
}

func TestParseSize(t *testing.T) {
	n, err := item.ParseSize("3 TB")
	require.NoError(t, err)
	require.Equal(t, int64(3_000_000_000_000), n)

	n, err = item.ParseSize("1 TiB")
	require.NoError(t, err)
	require.Equal(t, int64(1<<40), n)

	_, err = item.ParseSize("lots")
	require.Error(t, err)
}

func TestFormatSize(t *testing.T) {
	require.Equal(t, "1.0 KiB", item.FormatSize(1024))
	require.Equal(t, "0 B", item.FormatSize(0))
}
