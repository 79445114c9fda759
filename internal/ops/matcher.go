package ops

import (
	"context"

	"github.com/studio1767/s3shift/internal/item"
	"github.com/studio1767/s3shift/internal/tree"
)

// NewMatcher looks for a copy of every entry anywhere in the destination
// tree. A copy has the same name and size, and the same checksum when
// both sides carry one. Entries leave as StatusCopied or StatusNotCopied.
func NewMatcher(ctx context.Context, in <-chan *EntryInfo, destination *tree.Tree) <-chan *EntryInfo {
	index := make(map[string][]item.Item)
	for _, node := range destination.Files() {
		if node.Item.Trashed {
			continue
		}
		index[node.Item.Name] = append(index[node.Item.Name], node.Item)
	}

	out := make(chan *EntryInfo, 10)
	m := matcher{
		ctx:   ctx,
		in:    in,
		out:   out,
		index: index,
	}
	go m.run()

	return out
}

type matcher struct {
	ctx   context.Context
	in    <-chan *EntryInfo
	out   chan<- *EntryInfo
	index map[string][]item.Item
}

func (m *matcher) run() {
	defer close(m.out)

	for {
		select {
		case <-m.ctx.Done():
			return
		case info, ok := <-m.in:
			if !ok {
				return
			}
			m.process(info)
			select {
			case <-m.ctx.Done():
				return
			case m.out <- info:
			}
		}
	}
}

func (m *matcher) process(info *EntryInfo) {
	if info.Action == Failed {
		return
	}

	info.Status = StatusNotCopied
	for _, candidate := range m.index[info.Item.Name] {
		if candidate.Size != info.Size {
			continue
		}
		if info.Checksum != "" && candidate.Checksum != "" && info.Checksum != candidate.Checksum {
			continue
		}
		info.Status = StatusCopied
		info.Match = candidate
		return
	}
}
