package ops

import "github.com/studio1767/s3shift/internal/item"

// EntryStatus records what the pipeline has learned about an entry so
// far. Scanners emit StatusNew; later operators refine it.
type EntryStatus int

const (
	StatusNew EntryStatus = iota
	StatusExists
	StatusCopied
	StatusNotCopied
)

// OpAction represents any action that has been performed on an entry.
type OpAction int

const (
	NoAction OpAction = iota
	Uploaded
	Failed
)

// EntryInfo is passed between operators. Local scans fill RelPath, Size
// and Checksum; remote scans fill Item as well.
type EntryInfo struct {
	Status        EntryStatus
	RelPath       string
	Size          int64
	Checksum      string
	Item          item.Item
	Match         item.Item
	Action        OpAction
	ActionMessage string
}
