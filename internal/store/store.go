// Package store defines the contract the engine needs from the remote
// hierarchical store, the errors it reports, and an in-memory store.
package store

import (
	"context"
	"io"

	"github.com/studio1767/s3shift/internal/item"
)

// RootID identifies the top folder of a store.
const RootID item.ID = "root"

// Lister is the read side of a store.
type Lister interface {
	// ListChildren returns the direct children of a folder.
	ListChildren(ctx context.Context, folder item.ID) ([]item.Item, error)

	// GetItem resolves an identifier; it fails with *ErrNotFound.
	GetItem(ctx context.Context, id item.ID) (item.Item, error)
}

// Store is the full remote store client.
type Store interface {
	Lister

	CreateFolder(ctx context.Context, name string, parent item.ID) (item.Item, error)

	// MoveItem reparents an item; it fails with *ErrTransport or *ErrTimeout.
	MoveItem(ctx context.Context, id item.ID, newParent item.ID) (item.Item, error)

	// DeleteItem removes an item; it fails with *ErrTransport.
	DeleteItem(ctx context.Context, id item.ID) error

	// Grant opens access to an item.
	Grant(ctx context.Context, id item.ID) error
}

// FileStore is a store that content can be written into.
type FileStore interface {
	Lister

	CreateFolder(ctx context.Context, name string, parent item.ID) (item.Item, error)

	// PutFile uploads size bytes from body as a new file under parent.
	PutFile(ctx context.Context, name string, parent item.ID, body io.Reader, size int64, checksum string) (item.Item, error)
}

// GetFolder resolves id and checks that it is a folder.
func GetFolder(ctx context.Context, lister Lister, id item.ID) (item.Item, error) {
	it, err := lister.GetItem(ctx, id)
	if err != nil {
		return item.Item{}, err
	}
	if !it.IsFolder() {
		return item.Item{}, &ErrTypeMismatch{
			ID:   id,
			Want: item.KindFolder,
			Got:  it.Kind,
		}
	}
	return it, nil
}

// FindChild returns the first direct child of folder called name.
func FindChild(ctx context.Context, lister Lister, folder item.ID, name string, kind item.Kind) (item.Item, bool, error) {
	children, err := lister.ListChildren(ctx, folder)
	if err != nil {
		return item.Item{}, false, err
	}
	for _, child := range children {
		if child.Name == name && child.Kind == kind && !child.Trashed {
			return child, true, nil
		}
	}
	return item.Item{}, false, nil
}
