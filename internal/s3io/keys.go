package s3io

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/studio1767/s3shift/internal/item"
)

// Every item is one object at nodes/<parent>/<id>/<kind>/<escaped name>,
// so a folder's children share the prefix nodes/<folder>/ and moving a
// folder never touches its descendants. index/<id> points at the node.
const (
	nodesPrefix = "nodes/"
	indexPrefix = "index/"

	kindFile   = "file"
	kindFolder = "folder"

	metaNode     = "s3shift-node"
	metaChecksum = "s3shift-checksum"
	metaTrashed  = "s3shift-trashed"
)

func nodeKey(parent, id item.ID, kind item.Kind, name string) string {
	k := kindFile
	if kind == item.KindFolder {
		k = kindFolder
	}
	return fmt.Sprintf("%s%s/%s/%s/%s", nodesPrefix, parent, id, k, url.PathEscape(name))
}

func childrenPrefix(folder item.ID) string {
	return nodesPrefix + folder + "/"
}

func indexKey(id item.ID) string {
	return indexPrefix + id
}

// node is what a node key says about its item.
type node struct {
	parent item.ID
	id     item.ID
	kind   item.Kind
	name   string
}

func parseNodeKey(key string) (node, error) {
	rest, ok := strings.CutPrefix(key, nodesPrefix)
	if !ok {
		return node{}, &ErrBadKey{key: key}
	}
	tokens := strings.Split(rest, "/")
	if len(tokens) != 4 || tokens[0] == "" || tokens[1] == "" {
		return node{}, &ErrBadKey{key: key}
	}

	var kind item.Kind
	switch tokens[2] {
	case kindFile:
		kind = item.KindFile
	case kindFolder:
		kind = item.KindFolder
	default:
		return node{}, &ErrBadKey{key: key}
	}

	name, err := url.PathUnescape(tokens[3])
	if err != nil || name == "" {
		return node{}, &ErrBadKey{key: key}
	}

	return node{parent: tokens[0], id: tokens[1], kind: kind, name: name}, nil
}

// toItem builds the item for a node from its object size and metadata.
func (n node) toItem(size int64, meta map[string]string) item.Item {
	var it item.Item
	if n.kind == item.KindFolder {
		it = item.NewFolder(n.id, n.name, n.parent)
	} else {
		checksum, _ := metadata(meta, metaChecksum)
		it = item.NewFile(n.id, n.name, size, checksum, n.parent)
	}
	if trashed, _ := metadata(meta, metaTrashed); trashed == "true" {
		it.Trashed = true
	}
	return it
}
