// Package cluster groups items into size-bounded clusters for staged
// transfer.
package cluster

import (
	"context"
	"fmt"

	"github.com/studio1767/s3shift/internal/item"
	"github.com/studio1767/s3shift/internal/logging"
	"github.com/studio1767/s3shift/internal/metrics"
)

type ErrInvalidArgument struct {
	msg string
}

func (e *ErrInvalidArgument) Error() string {
	return e.msg
}

// Cluster is one group of items. Size is the sum of the on-disk sizes of
// its members.
type Cluster struct {
	Items  []item.Item
	Size   int64
	NItems int
}

func (c Cluster) String() string {
	return fmt.Sprintf("Cluster(items=[...], size=%s, nitems=%d)", item.FormatSize(c.Size), c.NItems)
}

// SizeFunc resolves the on-disk size of an item. *Sizer.Size is one.
type SizeFunc func(ctx context.Context, it item.Item) (int64, error)

type Options struct {
	UpperLimit  int64
	Exclude     []string
	MaxClusters int
}

// Clusterer is a single forward pass over a sequence of items. Each call
// to Next resumes where the previous one stopped and closes at most one
// cluster:
//
//	cl, err := cluster.New(items, opts, sizer.Size, progress)
//	for cl.Next(ctx) {
//		c := cl.Cluster()
//	}
//	if err := cl.Err(); err != nil { ... }
//
// Abandoning the loop early drops whatever was accumulated but not yet
// returned.
type Clusterer struct {
	items    []item.Item
	limit    int64
	exclude  map[string]bool
	max      int
	size     SizeFunc
	progress logging.Progress

	pos       int
	acc       Cluster
	pending   int64
	held      bool
	nclusters int
	finished  bool
	current   Cluster
	err       error
	task      *logging.Task
}

// New checks the options and returns a Clusterer positioned before the
// first item. A nil progress discards progress reports.
func New(items []item.Item, opts Options, size SizeFunc, progress logging.Progress) (*Clusterer, error) {
	if opts.MaxClusters < 1 {
		return nil, &ErrInvalidArgument{
			msg: fmt.Sprintf("invalid cluster limit: %d", opts.MaxClusters),
		}
	}
	if opts.UpperLimit < 0 {
		return nil, &ErrInvalidArgument{
			msg: fmt.Sprintf("invalid upper limit: %d", opts.UpperLimit),
		}
	}
	if size == nil {
		return nil, &ErrInvalidArgument{msg: "no size function"}
	}
	if progress == nil {
		progress = logging.Discard()
	}

	exclude := make(map[string]bool)
	for _, name := range opts.Exclude {
		exclude[name] = true
	}

	return &Clusterer{
		items:    items,
		limit:    opts.UpperLimit,
		exclude:  exclude,
		max:      opts.MaxClusters,
		size:     size,
		progress: progress,
	}, nil
}

// Next produces the next cluster and reports whether there is one.
func (cl *Clusterer) Next(ctx context.Context) bool {
	if cl.finished {
		return false
	}
	if cl.task == nil {
		cl.task = cl.progress.Start("clustering", cl.limit)
	}

	for cl.pos < len(cl.items) {
		if err := ctx.Err(); err != nil {
			return cl.fail(err)
		}

		it := cl.items[cl.pos]
		if cl.exclude[it.Name] {
			cl.pos++
			continue
		}

		// the item that closed the last cluster keeps the size it had
		size := cl.pending
		if !cl.held {
			var err error
			size, err = cl.size(ctx, it)
			if err != nil {
				return cl.fail(fmt.Errorf("sizing %s: %w", it.Name, err))
			}
		}
		cl.held = false

		// the current item is not consumed here: it opens the next cluster
		if cl.acc.NItems > 0 && cl.acc.Size+size > cl.limit {
			cl.pending = size
			cl.held = true
			cl.emit()
			if cl.nclusters >= cl.max {
				cl.finished = true
				cl.task.Complete()
			}
			return true
		}

		cl.acc.Items = append(cl.acc.Items, it)
		cl.acc.Size += size
		cl.acc.NItems++
		cl.task.Advance(size)
		cl.pos++
	}

	// input exhausted: the trailing accumulator is the last cluster
	cl.emit()
	cl.finished = true
	cl.task.Complete()
	return true
}

func (cl *Clusterer) emit() {
	cl.current = cl.acc
	cl.acc = Cluster{}
	cl.nclusters++
	cl.task.Set(cl.current.Size, cl.current.Size)
	metrics.RecordCluster()
	if cl.nclusters < cl.max && cl.pos < len(cl.items) {
		cl.task.Set(0, cl.limit)
	}
}

func (cl *Clusterer) fail(err error) bool {
	cl.err = err
	cl.finished = true
	cl.task.Complete()
	return false
}

// Cluster returns the cluster produced by the last successful Next.
func (cl *Clusterer) Cluster() Cluster {
	return cl.current
}

// Err returns the error that stopped the pass, if any.
func (cl *Clusterer) Err() error {
	return cl.err
}

// Count returns how many clusters have been produced.
func (cl *Clusterer) Count() int {
	return cl.nclusters
}

// All drains the clusterer.
func (cl *Clusterer) All(ctx context.Context) ([]Cluster, error) {
	var clusters []Cluster
	for cl.Next(ctx) {
		clusters = append(clusters, cl.Cluster())
	}
	return clusters, cl.Err()
}
