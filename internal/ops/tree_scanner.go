package ops

import (
	"context"
	"path"

	"github.com/studio1767/s3shift/internal/tree"
)

// NewTreeScanner emits every file of t in walk order with its path
// relative to the tree's root.
func NewTreeScanner(ctx context.Context, t *tree.Tree) <-chan *EntryInfo {
	out := make(chan *EntryInfo, 10)
	ts := treeScanner{
		ctx:  ctx,
		out:  out,
		tree: t,
	}
	go func() {
		defer close(ts.out)
		ts.run(t.Root(), "")
	}()

	return out
}

type treeScanner struct {
	ctx  context.Context
	out  chan<- *EntryInfo
	tree *tree.Tree
}

func (ts *treeScanner) run(node *tree.Node, dir string) bool {
	for _, id := range node.Children() {
		child, ok := ts.tree.Node(id)
		if !ok {
			continue
		}
		rpath := path.Join(dir, child.Item.Name)

		if child.IsFolder() {
			if !ts.run(child, rpath) {
				return false
			}
			continue
		}

		info := &EntryInfo{
			Status:   StatusNew,
			RelPath:  rpath,
			Size:     child.Item.Size,
			Checksum: child.Item.Checksum,
			Item:     child.Item,
		}
		select {
		case <-ts.ctx.Done():
			return false
		case ts.out <- info:
		}
	}
	return true
}
