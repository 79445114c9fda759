// Package mover relocates the contents of a tree, or a flat cluster of
// items, to another folder of the store.
package mover

import (
	"context"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"

	"github.com/studio1767/s3shift/internal/cluster"
	"github.com/studio1767/s3shift/internal/item"
	"github.com/studio1767/s3shift/internal/logging"
	"github.com/studio1767/s3shift/internal/metrics"
	"github.com/studio1767/s3shift/internal/store"
	"github.com/studio1767/s3shift/internal/tree"
)

type Mover struct {
	store    store.Store
	progress logging.Progress
	movelog  io.Writer
	task     *logging.Task
}

// New returns a Mover. Moved items are recorded in movelog, one line per
// item indented by depth; a nil movelog records nothing.
func New(st store.Store, progress logging.Progress, movelog io.Writer) *Mover {
	if progress == nil {
		progress = logging.Discard()
	}
	if movelog == nil {
		movelog = io.Discard
	}
	return &Mover{
		store:    st,
		progress: progress,
		movelog:  movelog,
	}
}

// MoveTree moves everything below the root of t into destination,
// recreating the folder structure there. Files that move are taken out of
// the tree; source folders are deleted once everything below them has
// moved. It returns true only if every item below the root was relocated
// and every source folder deleted. A single failure anywhere leaves the
// folders above it in place and makes the result false. The root itself
// is left for the caller to delete.
func (m *Mover) MoveTree(ctx context.Context, t *tree.Tree, destination item.ID, source, name string) bool {
	root := t.Root()
	m.task = m.progress.Start(fmt.Sprintf("moving %s", name), root.Size)
	defer m.task.Complete()

	logging.Info("moving tree",
		zap.String("source", source),
		zap.String("name", name),
		zap.String("destination", destination),
		zap.Int64("size", root.Size),
		zap.Int("nitems", root.NItems),
	)

	m.record(0, name)
	return m.moveChildren(ctx, t, root, destination, 1)
}

func (m *Mover) moveChildren(ctx context.Context, t *tree.Tree, node *tree.Node, destination item.ID, depth int) bool {
	all := true

	for _, id := range node.Children() {
		child, _ := t.Node(id)

		if child.Item.Trashed {
			m.progress.Warn("skipping trashed item", zap.String("name", child.Item.Name), zap.String("id", id))
			all = false
			continue
		}

		if !child.IsFolder() {
			if !m.moveFile(ctx, t, child, destination, depth) {
				all = false
			}
			continue
		}

		folder, err := m.store.CreateFolder(ctx, child.Item.Name, destination)
		if err != nil {
			m.progress.Warn("creating folder failed", zap.String("name", child.Item.Name), zap.Error(err))
			all = false
			continue
		}
		m.record(depth, child.Item.Name)

		moved := m.moveChildren(ctx, t, child, folder.ID, depth+1)
		if !moved || child.Size != 0 || child.NItems != 0 {
			all = false
			continue
		}

		err = m.store.DeleteItem(ctx, child.ID())
		metrics.RecordMove("folder", 0, err == nil)
		if err != nil {
			m.progress.Warn("deleting emptied folder failed", zap.String("name", child.Item.Name), zap.Error(err))
			all = false
			continue
		}
		if err := t.Remove(child.ID()); err != nil {
			m.progress.Warn("removing folder from tree failed", zap.String("name", child.Item.Name), zap.Error(err))
			all = false
		}
	}

	return all
}

func (m *Mover) moveFile(ctx context.Context, t *tree.Tree, node *tree.Node, destination item.ID, depth int) bool {
	_, err := m.store.MoveItem(ctx, node.ID(), destination)
	metrics.RecordMove("file", node.Size, err == nil)
	if err != nil {
		m.progress.Warn("moving file failed", zap.String("name", node.Item.Name), zap.Error(err))
		return false
	}

	size := node.Size
	if err := t.Remove(node.ID()); err != nil {
		m.progress.Warn("removing file from tree failed", zap.String("name", node.Item.Name), zap.Error(err))
		return false
	}
	m.task.Advance(size)
	m.record(depth, node.Item.Name)
	return true
}

func (m *Mover) record(depth int, name string) {
	line := strings.Repeat("\t", depth) + name + "\n"
	if _, err := io.WriteString(m.movelog, line); err != nil {
		m.progress.Warn("writing move log failed", zap.Error(err))
	}
}

// MoveResult summarises a flat move.
type MoveResult struct {
	Processed int
	Moved     int
	Failed    int
}

// Move moves every item of c into destination. Items are moved one by
// one; a failure is logged and does not stop the rest.
func (m *Mover) Move(ctx context.Context, c cluster.Cluster, destination item.ID) MoveResult {
	task := m.progress.Start("moving items", int64(len(c.Items)))
	defer task.Complete()

	var result MoveResult
	for _, it := range c.Items {
		result.Processed++
		task.Advance(1)

		logging.Debug("moving item", zap.String("name", it.Name), zap.String("destination", destination))
		_, err := m.store.MoveItem(ctx, it.ID, destination)
		metrics.RecordMove(strings.ToLower(it.Kind.String()), it.Size, err == nil)
		if err != nil {
			m.progress.Warn("moving item failed", zap.String("name", it.Name), zap.Error(err))
			result.Failed++
			continue
		}
		result.Moved++
		m.record(0, it.Name)
	}

	logging.Info("top-level items moved",
		zap.Int("processed", result.Processed),
		zap.Int("moved", result.Moved),
		zap.Int("failed", result.Failed),
	)
	return result
}

// MovedBytes reports how much file content the last MoveTree relocated.
func (m *Mover) MovedBytes() int64 {
	return m.task.Completed()
}
