package cluster

import (
	"context"
	"sync"

	"github.com/studio1767/s3shift/internal/item"
	"github.com/studio1767/s3shift/internal/store"
)

// Sizer resolves the on-disk size of an item: a file's own size, or the
// recursive sum of every file below a folder. Folder sizes are cached by
// identifier for the life of the Sizer and are assumed not to change.
type Sizer struct {
	lister store.Lister

	mu    sync.Mutex
	cache map[item.ID]int64
}

func NewSizer(lister store.Lister) *Sizer {
	return &Sizer{
		lister: lister,
		cache:  make(map[item.ID]int64),
	}
}

func (sz *Sizer) Size(ctx context.Context, it item.Item) (int64, error) {
	if it.IsFile() {
		return it.Size, nil
	}

	sz.mu.Lock()
	size, ok := sz.cache[it.ID]
	sz.mu.Unlock()
	if ok {
		return size, nil
	}

	children, err := sz.lister.ListChildren(ctx, it.ID)
	if err != nil {
		return 0, err
	}

	var total int64
	for _, child := range children {
		size, err := sz.Size(ctx, child)
		if err != nil {
			return 0, err
		}
		total += size
	}

	sz.mu.Lock()
	sz.cache[it.ID] = total
	sz.mu.Unlock()

	return total, nil
}

// Cached reports the cached size of a folder, if any.
func (sz *Sizer) Cached(id item.ID) (int64, bool) {
	sz.mu.Lock()
	defer sz.mu.Unlock()
	size, ok := sz.cache[id]
	return size, ok
}
