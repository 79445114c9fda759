package tree

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/studio1767/s3shift/internal/item"
	"github.com/studio1767/s3shift/internal/logging"
	"github.com/studio1767/s3shift/internal/metrics"
	"github.com/studio1767/s3shift/internal/store"
)

// DefaultListers bounds how many folders are listed at once.
const DefaultListers = 8

type BuildOptions struct {
	Listers int64
}

// Build lists everything below root and returns the tree. Folders are
// listed in parallel; children keep their listing order and the rolled-up
// aggregates do not depend on the order listings complete in.
func Build(ctx context.Context, lister store.Lister, root item.ID, opts BuildOptions) (*Tree, error) {
	start := time.Now()

	rootItem, err := store.GetFolder(ctx, lister, root)
	if err != nil {
		return nil, err
	}

	listers := opts.Listers
	if listers < 1 {
		listers = DefaultListers
	}

	b := builder{
		lister: lister,
		sem:    semaphore.NewWeighted(listers),
		tree:   newTree(rootItem),
		logger: logging.Named("tree"),
	}
	if err := b.fill(ctx, rootItem.ID); err != nil {
		return nil, err
	}

	rootNode := b.tree.Root()
	metrics.RecordTreeBuild(rootNode.Size, rootNode.NItems, time.Since(start))
	b.logger.Debug("tree built",
		zap.String("root", root),
		zap.Int64("size", rootNode.Size),
		zap.Int("nitems", rootNode.NItems),
		zap.Duration("took", time.Since(start)),
	)

	return b.tree, nil
}

type builder struct {
	lister store.Lister
	sem    *semaphore.Weighted
	logger *zap.Logger

	mu   sync.Mutex
	tree *Tree
}

func (b *builder) fill(ctx context.Context, id item.ID) error {
	// only the listing call holds a slot, so nested folders never wait on
	// their parents
	if err := b.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	children, err := b.lister.ListChildren(ctx, id)
	b.sem.Release(1)
	if err != nil {
		return fmt.Errorf("listing %s: %w", id, err)
	}

	var folders []item.ID

	b.mu.Lock()
	parent := b.tree.nodes[id]
	for _, child := range children {
		if _, seen := b.tree.nodes[child.ID]; seen {
			b.logger.Warn("item listed twice, keeping the first", zap.String("id", child.ID))
			continue
		}
		node := &Node{
			Item:   child,
			Parent: id,
			Depth:  parent.Depth + 1,
		}
		if child.IsFile() {
			node.Size = child.Size
		} else {
			folders = append(folders, child.ID)
		}
		b.tree.nodes[child.ID] = node
		parent.children = append(parent.children, child.ID)
	}
	b.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	for _, folder := range folders {
		g.Go(func() error {
			return b.fill(gctx, folder)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	// every subtree below is complete: roll up
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, cid := range parent.children {
		child := b.tree.nodes[cid]
		parent.Size += child.Size
		parent.NItems += 1 + child.NItems
	}

	return nil
}
