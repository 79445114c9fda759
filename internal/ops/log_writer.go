package ops

import (
	"context"
	"io"
)

// NewLogWriter writes each reviewed entry's item, one per line, to copied
// or notCopied depending on its status. Entries with any other status
// pass through untouched.
func NewLogWriter(ctx context.Context, in <-chan *EntryInfo, copied, notCopied io.Writer) <-chan *EntryInfo {
	out := make(chan *EntryInfo, 10)
	lw := logWriter{
		ctx:       ctx,
		in:        in,
		out:       out,
		copied:    copied,
		notCopied: notCopied,
	}
	go lw.run()

	return out
}

type logWriter struct {
	ctx       context.Context
	in        <-chan *EntryInfo
	out       chan<- *EntryInfo
	copied    io.Writer
	notCopied io.Writer
}

func (lw *logWriter) run() {
	defer close(lw.out)

	for {
		select {
		case <-lw.ctx.Done():
			return
		case info, ok := <-lw.in:
			if !ok {
				return
			}
			lw.process(info)
			select {
			case <-lw.ctx.Done():
				return
			case lw.out <- info:
			}
		}
	}
}

func (lw *logWriter) process(info *EntryInfo) {
	var w io.Writer
	switch info.Status {
	case StatusCopied:
		w = lw.copied
	case StatusNotCopied:
		w = lw.notCopied
	default:
		return
	}

	if _, err := io.WriteString(w, info.Item.String()+"\n"); err != nil {
		info.Action = Failed
		info.ActionMessage = "failed writing entry to review log"
	}
}
