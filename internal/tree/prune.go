package tree

import (
	"context"

	"go.uber.org/zap"

	"github.com/studio1767/s3shift/internal/item"
	"github.com/studio1767/s3shift/internal/logging"
	"github.com/studio1767/s3shift/internal/metrics"
	"github.com/studio1767/s3shift/internal/store"
)

// PruneResult counts what a prune removed from the source.
type PruneResult struct {
	Files   int
	Folders int
	Bytes   int64
	Failed  int
}

// Prune deletes, below the node, every file that already exists in the
// matching place under destination with the same name, size and checksum.
// Folders that have a same-named counterpart at the destination are
// pruned recursively and deleted once nothing is left in them. A folder is
// only ever deleted after all of its children were dealt with, and the
// node passed in is never deleted itself.
//
// Failures to delete or list single entries are counted, logged and
// skipped. The error return is reserved for problems with the node or the
// destination passed in.
func Prune(ctx context.Context, st store.Store, t *Tree, node, destination item.ID, progress logging.Progress) (PruneResult, error) {
	start, ok := t.Node(node)
	if !ok {
		return PruneResult{}, &ErrNoSuchNode{id: node}
	}
	if !start.IsFolder() {
		return PruneResult{}, &store.ErrTypeMismatch{ID: node, Want: item.KindFolder, Got: start.Kind()}
	}
	if progress == nil {
		progress = logging.Discard()
	}

	dest, err := st.ListChildren(ctx, destination)
	if err != nil {
		return PruneResult{}, err
	}

	p := pruner{
		store:    st,
		tree:     t,
		progress: progress,
		task:     progress.Start("pruning", start.Size),
	}
	p.prune(ctx, start, dest)
	p.task.Complete()

	return p.result, nil
}

type pruner struct {
	store    store.Store
	tree     *Tree
	progress logging.Progress
	task     *logging.Task
	result   PruneResult
}

func (p *pruner) prune(ctx context.Context, node *Node, dest []item.Item) {
	files := make(map[string][]item.Item)
	folders := make(map[string]item.Item)
	for _, it := range dest {
		if it.Trashed {
			continue
		}
		if it.IsFile() {
			files[it.Name] = append(files[it.Name], it)
		} else if _, dup := folders[it.Name]; !dup {
			folders[it.Name] = it
		}
	}

	for _, id := range node.Children() {
		if ctx.Err() != nil {
			return
		}
		child := p.tree.nodes[id]
		if child.Item.Trashed {
			continue
		}

		if !child.IsFolder() {
			if copied(child.Item, files[child.Item.Name]) {
				p.deleteFile(ctx, child)
			}
			continue
		}

		counterpart, ok := folders[child.Item.Name]
		if !ok {
			continue
		}
		below, err := p.store.ListChildren(ctx, counterpart.ID)
		if err != nil {
			p.result.Failed++
			p.progress.Warn("listing destination failed", zap.String("folder", counterpart.ID), zap.Error(err))
			continue
		}
		p.prune(ctx, child, below)

		if child.Empty() {
			p.deleteFolder(ctx, child)
		}
	}
}

func copied(source item.Item, candidates []item.Item) bool {
	for _, c := range candidates {
		if c.Size == source.Size && c.Checksum == source.Checksum {
			return true
		}
	}
	return false
}

func (p *pruner) deleteFile(ctx context.Context, node *Node) {
	err := p.store.DeleteItem(ctx, node.ID())
	metrics.RecordPrune("file", err == nil)
	if err != nil {
		p.result.Failed++
		p.progress.Warn("deleting copied file failed", zap.String("file", node.Item.Name), zap.Error(err))
		return
	}

	size := node.Size
	if err := p.tree.Remove(node.ID()); err != nil {
		p.result.Failed++
		p.progress.Warn("removing file from tree failed", zap.String("file", node.Item.Name), zap.Error(err))
		return
	}
	p.result.Files++
	p.result.Bytes += size
	p.task.Advance(size)
}

func (p *pruner) deleteFolder(ctx context.Context, node *Node) {
	err := p.store.DeleteItem(ctx, node.ID())
	metrics.RecordPrune("folder", err == nil)
	if err != nil {
		p.result.Failed++
		p.progress.Warn("deleting emptied folder failed", zap.String("folder", node.Item.Name), zap.Error(err))
		return
	}
	if err := p.tree.Remove(node.ID()); err != nil {
		p.result.Failed++
		p.progress.Warn("removing folder from tree failed", zap.String("folder", node.Item.Name), zap.Error(err))
		return
	}
	p.result.Folders++
}
