package cluster_test

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/studio1767/s3shift/internal/cluster"
	"github.com/studio1767/s3shift/internal/item"
	"github.com/studio1767/s3shift/internal/store"
)

func files(sizes ...int64) []item.Item {
	var items []item.Item
	for idx, size := range sizes {
		name := string(rune('A' + idx))
		items = append(items, item.NewFile("id-"+name, name, size, "", store.RootID))
	}
	return items
}

func ownSize(ctx context.Context, it item.Item) (int64, error) {
	return it.Size, nil
}

func names(c cluster.Cluster) []string {
	var out []string
	for _, it := range c.Items {
		out = append(out, it.Name)
	}
	return out
}

func TestInvalidMaxClustersFailsFast(t *testing.T) {
	calls := 0
	counting := func(ctx context.Context, it item.Item) (int64, error) {
		calls++
		return it.Size, nil
	}

	for _, max := range []int{0, -1} {
		_, err := cluster.New(files(1, 2), cluster.Options{UpperLimit: 10, MaxClusters: max}, counting, nil)
		var invalid *cluster.ErrInvalidArgument
		require.True(t, errors.As(err, &invalid))
	}
	require.Zero(t, calls)
}

func TestOverflowClosesBeforeAdding(t *testing.T) {
	// A fits, A+B overflows: {A} closes and the limit of one stops the pass
	cl, err := cluster.New(files(100, 200, 50), cluster.Options{UpperLimit: 250, MaxClusters: 1}, ownSize, nil)
	require.NoError(t, err)

	clusters, err := cl.All(context.Background())
	require.NoError(t, err)
	require.Len(t, clusters, 1)
	require.Equal(t, []string{"A"}, names(clusters[0]))
	require.Equal(t, int64(100), clusters[0].Size)
	require.Equal(t, 1, clusters[0].NItems)
}

func TestAllClustersWithHighLimit(t *testing.T) {
	cl, err := cluster.New(files(100, 200, 50), cluster.Options{UpperLimit: 250, MaxClusters: 10}, ownSize, nil)
	require.NoError(t, err)

	clusters, err := cl.All(context.Background())
	require.NoError(t, err)

	got := [][]string{}
	for _, c := range clusters {
		got = append(got, names(c))
	}
	want := [][]string{{"A"}, {"B", "C"}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("clusters mismatch (-want +got):\n%s", diff)
	}
	require.Equal(t, int64(250), clusters[1].Size)
}

func TestEqualToLimitIsAdmitted(t *testing.T) {
	cl, err := cluster.New(files(100, 150, 1), cluster.Options{UpperLimit: 250, MaxClusters: 5}, ownSize, nil)
	require.NoError(t, err)

	clusters, err := cl.All(context.Background())
	require.NoError(t, err)
	require.Len(t, clusters, 2)
	require.Equal(t, []string{"A", "B"}, names(clusters[0]))
	require.Equal(t, int64(250), clusters[0].Size)
	require.Equal(t, []string{"C"}, names(clusters[1]))
}

func TestOversizedItemIsASingleton(t *testing.T) {
	cl, err := cluster.New(files(500, 10, 900, 20), cluster.Options{UpperLimit: 100, MaxClusters: 10}, ownSize, nil)
	require.NoError(t, err)

	clusters, err := cl.All(context.Background())
	require.NoError(t, err)

	got := [][]string{}
	for _, c := range clusters {
		got = append(got, names(c))
	}
	want := [][]string{{"A"}, {"B"}, {"C"}, {"D"}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("clusters mismatch (-want +got):\n%s", diff)
	}
}

func TestExcludedNamesAreSkipped(t *testing.T) {
	items := files(10, 20, 30)
	cl, err := cluster.New(items, cluster.Options{UpperLimit: 100, MaxClusters: 1, Exclude: []string{"B"}}, ownSize, nil)
	require.NoError(t, err)

	clusters, err := cl.All(context.Background())
	require.NoError(t, err)
	require.Len(t, clusters, 1)
	require.Equal(t, []string{"A", "C"}, names(clusters[0]))
	require.Equal(t, int64(40), clusters[0].Size)
}

func TestTrailingClusterIsEmittedEvenIfEmpty(t *testing.T) {
	cl, err := cluster.New(nil, cluster.Options{UpperLimit: 100, MaxClusters: 3}, ownSize, nil)
	require.NoError(t, err)

	clusters, err := cl.All(context.Background())
	require.NoError(t, err)
	require.Len(t, clusters, 1)
	require.Zero(t, clusters[0].NItems)
	require.Empty(t, clusters[0].Items)
}

func TestLimitStopsBeforeVisitingRemainingItems(t *testing.T) {
	var sized []string
	tracking := func(ctx context.Context, it item.Item) (int64, error) {
		sized = append(sized, it.Name)
		return it.Size, nil
	}

	cl, err := cluster.New(files(60, 60, 60, 60), cluster.Options{UpperLimit: 100, MaxClusters: 2}, tracking, nil)
	require.NoError(t, err)

	clusters, err := cl.All(context.Background())
	require.NoError(t, err)
	require.Len(t, clusters, 2)
	require.Equal(t, []string{"A", "B", "C"}, sized)
}

func TestBoundaryItemSizedOnce(t *testing.T) {
	sized := map[string]int{}
	tracking := func(ctx context.Context, it item.Item) (int64, error) {
		sized[it.Name]++
		return it.Size, nil
	}

	cl, err := cluster.New(files(60, 60, 60, 60), cluster.Options{UpperLimit: 100, MaxClusters: 10}, tracking, nil)
	require.NoError(t, err)

	clusters, err := cl.All(context.Background())
	require.NoError(t, err)
	require.Len(t, clusters, 4)
	for _, c := range clusters {
		require.Equal(t, int64(60), c.Size)
		require.Equal(t, 1, c.NItems)
	}
	require.Equal(t, map[string]int{"A": 1, "B": 1, "C": 1, "D": 1}, sized)
}

func TestNextIsLazy(t *testing.T) {
	var sized []string
	tracking := func(ctx context.Context, it item.Item) (int64, error) {
		sized = append(sized, it.Name)
		return it.Size, nil
	}

	cl, err := cluster.New(files(60, 60, 60), cluster.Options{UpperLimit: 100, MaxClusters: 5}, tracking, nil)
	require.NoError(t, err)
	require.Empty(t, sized)

	require.True(t, cl.Next(context.Background()))
	require.Equal(t, []string{"A"}, names(cl.Cluster()))
	require.Equal(t, []string{"A", "B"}, sized)
	require.Equal(t, 1, cl.Count())
}

func TestSizeErrorStopsThePass(t *testing.T) {
	boom := errors.New("boom")
	failing := func(ctx context.Context, it item.Item) (int64, error) {
		if it.Name == "B" {
			return 0, boom
		}
		return it.Size, nil
	}

	cl, err := cluster.New(files(1, 2, 3), cluster.Options{UpperLimit: 100, MaxClusters: 5}, failing, nil)
	require.NoError(t, err)

	require.False(t, cl.Next(context.Background()))
	require.ErrorIs(t, cl.Err(), boom)
	require.False(t, cl.Next(context.Background()))
}

func TestClustersPreserveOrderAndBound(t *testing.T) {
	rng := rand.New(rand.NewSource(7))

	for round := 0; round < 200; round++ {
		n := rng.Intn(30)
		sizes := make([]int64, n)
		for i := range sizes {
			sizes[i] = rng.Int63n(400)
		}
		limit := rng.Int63n(500)
		max := 1 + rng.Intn(8)
		items := files(sizes...)

		cl, err := cluster.New(items, cluster.Options{UpperLimit: limit, MaxClusters: max}, ownSize, nil)
		require.NoError(t, err)
		clusters, err := cl.All(context.Background())
		require.NoError(t, err)
		require.LessOrEqual(t, len(clusters), max)

		var flat []item.Item
		for _, c := range clusters {
			var total int64
			for _, it := range c.Items {
				total += it.Size
			}
			require.Equal(t, total, c.Size)
			require.Equal(t, len(c.Items), c.NItems)
			if c.NItems > 1 {
				require.LessOrEqual(t, c.Size, limit, fmt.Sprintf("round %d", round))
			}
			flat = append(flat, c.Items...)
		}

		require.LessOrEqual(t, len(flat), len(items))
		for idx := range flat {
			require.Equal(t, items[idx].ID, flat[idx].ID)
		}
		if len(clusters) < max {
			require.Len(t, flat, len(items))
		}
	}
}

func TestSizerSumsAndCachesFolders(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	films := mem.AddFolder(store.RootID, "Films")
	mem.AddFile(films.ID, "a.mkv", 700, "ca")
	sub := mem.AddFolder(films.ID, "Extras")
	mem.AddFile(sub.ID, "b.mkv", 300, "cb")
	loose := mem.AddFile(store.RootID, "c.txt", 5, "cc")

	sizer := cluster.NewSizer(mem)

	size, err := sizer.Size(ctx, films)
	require.NoError(t, err)
	require.Equal(t, int64(1000), size)

	size, err = sizer.Size(ctx, films)
	require.NoError(t, err)
	require.Equal(t, int64(1000), size)
	require.Equal(t, 1, mem.ListCalls(films.ID))
	require.Equal(t, 1, mem.ListCalls(sub.ID))

	cached, ok := sizer.Cached(sub.ID)
	require.True(t, ok)
	require.Equal(t, int64(300), cached)

	size, err = sizer.Size(ctx, loose)
	require.NoError(t, err)
	require.Equal(t, int64(5), size)
}

func TestClusteringFoldersUsesRecursiveSize(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	one := mem.AddFolder(store.RootID, "one")
	mem.AddFile(one.ID, "x", 80, "cx")
	two := mem.AddFolder(store.RootID, "two")
	mem.AddFile(two.ID, "y", 80, "cy")
	mem.AddFolder(store.RootID, "Temporary")

	items, err := mem.ListChildren(ctx, store.RootID)
	require.NoError(t, err)

	sizer := cluster.NewSizer(mem)
	cl, err := cluster.New(items, cluster.Options{UpperLimit: 100, MaxClusters: 1, Exclude: []string{"Temporary"}}, sizer.Size, nil)
	require.NoError(t, err)

	require.True(t, cl.Next(ctx))
	require.Equal(t, []string{"one"}, names(cl.Cluster()))
	require.False(t, cl.Next(ctx))
	require.NoError(t, cl.Err())
}
