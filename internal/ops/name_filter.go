package ops

import (
	"context"
	"path"
)

// NewNameFilter drops entries by the base name of their path. Patterns
// use path.Match syntax. With include set, only matching entries pass;
// otherwise matching entries are dropped. Failed entries always pass.
func NewNameFilter(ctx context.Context, in <-chan *EntryInfo, patterns []string, include bool) <-chan *EntryInfo {
	out := make(chan *EntryInfo, 10)
	filter := nameFilter{
		ctx:      ctx,
		in:       in,
		out:      out,
		patterns: patterns,
		include:  include,
	}
	go filter.run()

	return out
}

type nameFilter struct {
	ctx      context.Context
	in       <-chan *EntryInfo
	out      chan<- *EntryInfo
	patterns []string
	include  bool
}

func (filter *nameFilter) run() {
	defer close(filter.out)

	for {
		select {
		case <-filter.ctx.Done():
			return
		case info, ok := <-filter.in:
			if !ok {
				return
			}
			if filter.keep(info) {
				select {
				case <-filter.ctx.Done():
					return
				case filter.out <- info:
				}
			}
		}
	}
}

func (filter *nameFilter) keep(info *EntryInfo) bool {
	if info.Action == Failed || len(filter.patterns) == 0 {
		return true
	}

	name := path.Base(info.RelPath)
	matched := false
	for _, pattern := range filter.patterns {
		if ok, _ := path.Match(pattern, name); ok {
			matched = true
			break
		}
	}
	return matched == filter.include
}
