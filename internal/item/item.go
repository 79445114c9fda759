package item

import (
	"fmt"
	"strings"

	humanize "github.com/dustin/go-humanize"
)

// ID identifies an item across the whole store.
type ID = string

// Kind says whether an item is a file or a folder.
type Kind int

const (
	KindFile Kind = iota
	KindFolder
)

func (k Kind) String() string {
	switch k {
	case KindFile:
		return "File"
	case KindFolder:
		return "Folder"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Item is a file or a folder in the remote store. Folders carry no size
// or checksum of their own; their size is always derived from their
// descendants. Two items are the same item if and only if their IDs match.
type Item struct {
	ID       ID
	Name     string
	Kind     Kind
	Size     int64
	Checksum string
	Parents  []ID
	Trashed  bool
}

func NewFile(id ID, name string, size int64, checksum string, parents ...ID) Item {
	return Item{
		ID:       id,
		Name:     name,
		Kind:     KindFile,
		Size:     size,
		Checksum: checksum,
		Parents:  parents,
	}
}

func NewFolder(id ID, name string, parents ...ID) Item {
	return Item{
		ID:      id,
		Name:    name,
		Kind:    KindFolder,
		Parents: parents,
	}
}

func (it Item) IsFile() bool {
	return it.Kind == KindFile
}

func (it Item) IsFolder() bool {
	return it.Kind == KindFolder
}

// Parent returns the first parent, or "" for a root.
func (it Item) Parent() ID {
	if len(it.Parents) == 0 {
		return ""
	}
	return it.Parents[0]
}

// Same reports whether a and b are the same store item.
func Same(a, b Item) bool {
	return a.ID == b.ID
}

// String is the one-line form written to the review logs.
func (it Item) String() string {
	parents := strings.Join(it.Parents, ",")
	if it.IsFolder() {
		return fmt.Sprintf("Folder(id=%s, name=%q, parents=[%s])", it.ID, it.Name, parents)
	}
	return fmt.Sprintf("File(id=%s, name=%q, size=%d, checksum=%s, parents=[%s])",
		it.ID, it.Name, it.Size, it.Checksum, parents)
}

// Set is a set of items keyed by ID.
type Set map[ID]Item

func (s Set) Add(it Item) {
	s[it.ID] = it
}

func (s Set) Has(it Item) bool {
	_, ok := s[it.ID]
	return ok
}

// FormatSize renders a byte count in binary units, e.g. "1.5 GiB".
func FormatSize(bytes int64) string {
	if bytes < 0 {
		return "-" + humanize.IBytes(uint64(-bytes))
	}
	return humanize.IBytes(uint64(bytes))
}

// ParseSize accepts sizes like "3 TB", "500GiB" or "1024".
func ParseSize(s string) (int64, error) {
	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, err
	}
	return int64(n), nil
}
