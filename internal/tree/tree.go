// Package tree holds an in-memory snapshot of a folder hierarchy with
// sizes and item counts rolled up to every folder.
//
// Nodes live in an arena keyed by item identifier and point at their
// parent by identifier. For every folder node the tree keeps
//
//	Size   == sum of the children's Size
//	NItems == sum of (1 + NItems) over the children
//
// through every mutation, not just after Build.
package tree

import (
	"fmt"
	"io"
	"strings"

	"github.com/studio1767/s3shift/internal/item"
)

type ErrNoSuchNode struct {
	id item.ID
}

func (e *ErrNoSuchNode) Error() string {
	return fmt.Sprintf("no such node in tree: %s", e.id)
}

type ErrNotEmpty struct {
	id item.ID
}

func (e *ErrNotEmpty) Error() string {
	return fmt.Sprintf("folder still has children: %s", e.id)
}

type ErrRootRemoval struct{}

func (e *ErrRootRemoval) Error() string {
	return "the root of a tree cannot be removed"
}

type ErrInconsistent struct {
	msg string
}

func (e *ErrInconsistent) Error() string {
	return e.msg
}

// Node is a file or folder in a Tree.
type Node struct {
	Item   item.Item
	Parent item.ID
	Depth  int
	Size   int64
	NItems int

	children []item.ID
}

func (n *Node) ID() item.ID {
	return n.Item.ID
}

func (n *Node) Kind() item.Kind {
	return n.Item.Kind
}

func (n *Node) IsFolder() bool {
	return n.Item.IsFolder()
}

// Children returns the identifiers of the direct children in listing order.
func (n *Node) Children() []item.ID {
	return append([]item.ID(nil), n.children...)
}

func (n *Node) Empty() bool {
	return len(n.children) == 0
}

// Tree is a rooted snapshot of a folder.
type Tree struct {
	nodes map[item.ID]*Node
	root  item.ID
}

func newTree(root item.Item) *Tree {
	return &Tree{
		nodes: map[item.ID]*Node{root.ID: {Item: root}},
		root:  root.ID,
	}
}

func (t *Tree) Root() *Node {
	return t.nodes[t.root]
}

func (t *Tree) Node(id item.ID) (*Node, bool) {
	node, ok := t.nodes[id]
	return node, ok
}

// Len returns the number of nodes, root included.
func (t *Tree) Len() int {
	return len(t.nodes)
}

// Ancestors returns the ancestor chain of id, root first, parent last.
func (t *Tree) Ancestors(id item.ID) ([]*Node, error) {
	node, ok := t.nodes[id]
	if !ok {
		return nil, &ErrNoSuchNode{id: id}
	}

	var chain []*Node
	for parent := node.Parent; parent != ""; {
		anc := t.nodes[parent]
		chain = append(chain, anc)
		parent = anc.Parent
	}
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain, nil
}

// Remove takes a file or an empty folder out of the tree, subtracting its
// size and count from every ancestor.
func (t *Tree) Remove(id item.ID) error {
	node, ok := t.nodes[id]
	if !ok {
		return &ErrNoSuchNode{id: id}
	}
	if id == t.root {
		return &ErrRootRemoval{}
	}
	if !node.Empty() {
		return &ErrNotEmpty{id: id}
	}

	parent := t.nodes[node.Parent]
	for idx, child := range parent.children {
		if child == id {
			parent.children = append(parent.children[:idx:idx], parent.children[idx+1:]...)
			break
		}
	}

	for anc := parent; anc != nil; anc = t.nodes[anc.Parent] {
		anc.Size -= node.Size
		anc.NItems -= 1 + node.NItems
	}

	delete(t.nodes, id)
	return nil
}

// Walk visits every node depth first, parents before children, in
// listing order. Returning an error from fn stops the walk.
func (t *Tree) Walk(fn func(node *Node) error) error {
	return t.walk(t.Root(), fn)
}

func (t *Tree) walk(node *Node, fn func(node *Node) error) error {
	if err := fn(node); err != nil {
		return err
	}
	for _, child := range node.children {
		if err := t.walk(t.nodes[child], fn); err != nil {
			return err
		}
	}
	return nil
}

// Files returns every file node in walk order.
func (t *Tree) Files() []*Node {
	var files []*Node
	t.Walk(func(node *Node) error {
		if !node.IsFolder() {
			files = append(files, node)
		}
		return nil
	})
	return files
}

// Check recomputes every folder's aggregates and compares them with the
// stored ones.
func (t *Tree) Check() error {
	_, _, err := t.check(t.Root())
	return err
}

func (t *Tree) check(node *Node) (int64, int, error) {
	if !node.IsFolder() {
		if len(node.children) > 0 {
			return 0, 0, &ErrInconsistent{msg: fmt.Sprintf("file %s has children", node.ID())}
		}
		return node.Size, node.NItems, nil
	}

	var size int64
	var nitems int
	for _, id := range node.children {
		child, ok := t.nodes[id]
		if !ok {
			return 0, 0, &ErrInconsistent{msg: fmt.Sprintf("folder %s lists missing child %s", node.ID(), id)}
		}
		if child.Parent != node.ID() {
			return 0, 0, &ErrInconsistent{msg: fmt.Sprintf("child %s points at parent %s, not %s", id, child.Parent, node.ID())}
		}
		csize, cnitems, err := t.check(child)
		if err != nil {
			return 0, 0, err
		}
		size += csize
		nitems += 1 + cnitems
	}

	if size != node.Size || nitems != node.NItems {
		return 0, 0, &ErrInconsistent{
			msg: fmt.Sprintf("folder %s: stored size=%d nitems=%d, computed size=%d nitems=%d",
				node.ID(), node.Size, node.NItems, size, nitems),
		}
	}
	return size, nitems, nil
}

// Fprint writes the tree one node per line, tab-indented by depth.
func (t *Tree) Fprint(w io.Writer) error {
	return t.Walk(func(node *Node) error {
		indent := strings.Repeat("\t", node.Depth)
		var err error
		if node.IsFolder() {
			_, err = fmt.Fprintf(w, "%s%s/ (%s, %d items)\n", indent, node.Item.Name, item.FormatSize(node.Size), node.NItems)
		} else {
			_, err = fmt.Fprintf(w, "%s%s (%s)\n", indent, node.Item.Name, item.FormatSize(node.Size))
		}
		return err
	})
}
