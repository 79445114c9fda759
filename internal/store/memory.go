package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/studio1767/s3shift/internal/item"
)

var errInjected = errors.New("injected failure")

// Memory is a Store held entirely in memory for tests. It can be told to
// fail specific calls.
type Memory struct {
	mu       sync.Mutex
	items    map[item.ID]item.Item
	children map[item.ID][]item.ID
	next     int

	failMove   map[item.ID]bool
	failDelete map[item.ID]bool
	failGrant  map[item.ID]int
	timeouts   map[item.ID]bool
	granted    map[item.ID]int
	listCalls  map[item.ID]int
}

// NewMemory returns a store holding just the root folder.
func NewMemory() *Memory {
	m := &Memory{
		items:      make(map[item.ID]item.Item),
		children:   make(map[item.ID][]item.ID),
		failMove:   make(map[item.ID]bool),
		failDelete: make(map[item.ID]bool),
		failGrant:  make(map[item.ID]int),
		timeouts:   make(map[item.ID]bool),
		granted:    make(map[item.ID]int),
		listCalls:  make(map[item.ID]int),
	}
	m.items[RootID] = item.NewFolder(RootID, "/")
	return m
}

func (m *Memory) newID() item.ID {
	m.next++
	return fmt.Sprintf("m%04d", m.next)
}

func (m *Memory) add(it item.Item) item.Item {
	m.items[it.ID] = it
	parent := it.Parent()
	m.children[parent] = append(m.children[parent], it.ID)
	return it
}

// AddFile creates a file under parent and returns it.
func (m *Memory) AddFile(parent item.ID, name string, size int64, checksum string) item.Item {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.add(item.NewFile(m.newID(), name, size, checksum, parent))
}

// AddFolder creates a folder under parent and returns it.
func (m *Memory) AddFolder(parent item.ID, name string) item.Item {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.add(item.NewFolder(m.newID(), name, parent))
}

// SetTrashed flags an item as trashed.
func (m *Memory) SetTrashed(id item.ID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	it := m.items[id]
	it.Trashed = true
	m.items[id] = it
}

// FailMove makes every MoveItem of id fail with a transport error.
func (m *Memory) FailMove(id item.ID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failMove[id] = true
}

// TimeoutMove makes every MoveItem of id fail with a timeout.
func (m *Memory) TimeoutMove(id item.ID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.timeouts[id] = true
}

// FailDelete makes every DeleteItem of id fail with a transport error.
func (m *Memory) FailDelete(id item.ID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failDelete[id] = true
}

// FailGrant makes the next n grants of id fail. Retryable failures are
// reported when retryable is set.
func (m *Memory) FailGrant(id item.ID, n int, retryable bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if retryable {
		m.failGrant[id] = n
	} else {
		m.failGrant[id] = -n
	}
}

// Granted returns how many times id was successfully granted.
func (m *Memory) Granted(id item.ID) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.granted[id]
}

// ListCalls returns how many times the children of folder were listed.
func (m *Memory) ListCalls(folder item.ID) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listCalls[folder]
}

// Exists reports whether id is still in the store.
func (m *Memory) Exists(id item.ID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.items[id]
	return ok
}

func (m *Memory) ListChildren(ctx context.Context, folder item.ID) ([]item.Item, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.listCalls[folder]++
	if _, ok := m.items[folder]; !ok {
		return nil, &ErrNotFound{ID: folder}
	}
	var items []item.Item
	for _, id := range m.children[folder] {
		items = append(items, m.items[id])
	}
	return items, nil
}

func (m *Memory) GetItem(ctx context.Context, id item.ID) (item.Item, error) {
	if err := ctx.Err(); err != nil {
		return item.Item{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	it, ok := m.items[id]
	if !ok {
		return item.Item{}, &ErrNotFound{ID: id}
	}
	return it, nil
}

func (m *Memory) CreateFolder(ctx context.Context, name string, parent item.ID) (item.Item, error) {
	if err := ctx.Err(); err != nil {
		return item.Item{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if p, ok := m.items[parent]; !ok || !p.IsFolder() {
		return item.Item{}, &ErrNotFound{ID: parent}
	}
	return m.add(item.NewFolder(m.newID(), name, parent)), nil
}

// PutFile stores a file under parent. The content is read and dropped.
func (m *Memory) PutFile(ctx context.Context, name string, parent item.ID, body io.Reader, size int64, checksum string) (item.Item, error) {
	if err := ctx.Err(); err != nil {
		return item.Item{}, err
	}
	n, err := io.Copy(io.Discard, body)
	if err != nil {
		return item.Item{}, &ErrTransport{Op: "put", ID: name, Err: err}
	}
	if n != size {
		return item.Item{}, &ErrTransport{Op: "put", ID: name, Err: fmt.Errorf("read %d bytes, expected %d", n, size)}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if p, ok := m.items[parent]; !ok || !p.IsFolder() {
		return item.Item{}, &ErrNotFound{ID: parent}
	}
	return m.add(item.NewFile(m.newID(), name, size, checksum, parent)), nil
}

func (m *Memory) MoveItem(ctx context.Context, id item.ID, newParent item.ID) (item.Item, error) {
	if err := ctx.Err(); err != nil {
		return item.Item{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.timeouts[id] {
		return item.Item{}, &ErrTimeout{Op: "move", ID: id}
	}
	if m.failMove[id] {
		return item.Item{}, &ErrTransport{Op: "move", ID: id, Err: errInjected}
	}
	it, ok := m.items[id]
	if !ok {
		return item.Item{}, &ErrTransport{Op: "move", ID: id, Err: &ErrNotFound{ID: id}}
	}
	if _, ok := m.items[newParent]; !ok {
		return item.Item{}, &ErrTransport{Op: "move", ID: id, Err: &ErrNotFound{ID: newParent}}
	}

	m.unlink(it)
	it.Parents = []item.ID{newParent}
	return m.add(it), nil
}

func (m *Memory) DeleteItem(ctx context.Context, id item.ID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failDelete[id] {
		return &ErrTransport{Op: "delete", ID: id, Err: errInjected}
	}
	it, ok := m.items[id]
	if !ok {
		return &ErrTransport{Op: "delete", ID: id, Err: &ErrNotFound{ID: id}}
	}
	m.unlink(it)
	m.removeSubtree(id)
	return nil
}

func (m *Memory) Grant(ctx context.Context, id item.ID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.items[id]; !ok {
		return &ErrNotFound{ID: id}
	}
	if n := m.failGrant[id]; n != 0 {
		retryable := n > 0
		if retryable {
			m.failGrant[id] = n - 1
		} else {
			m.failGrant[id] = n + 1
		}
		return &ErrTransport{Op: "grant", ID: id, Retryable: retryable, Err: errInjected}
	}
	m.granted[id]++
	return nil
}

func (m *Memory) unlink(it item.Item) {
	parent := it.Parent()
	siblings := m.children[parent]
	for idx, sibling := range siblings {
		if sibling == it.ID {
			m.children[parent] = append(siblings[:idx:idx], siblings[idx+1:]...)
			return
		}
	}
}

func (m *Memory) removeSubtree(id item.ID) {
	for _, child := range m.children[id] {
		m.removeSubtree(child)
	}
	delete(m.children, id)
	delete(m.items, id)
}
