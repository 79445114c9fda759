package ops

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// NewHashGenerator fills in the sha256 checksum of each local file. The
// checksum is what prune and review compare against at the destination.
func NewHashGenerator(ctx context.Context, in <-chan *EntryInfo, root string) <-chan *EntryInfo {
	out := make(chan *EntryInfo, 10)
	hg := hashGenerator{
		ctx:  ctx,
		in:   in,
		out:  out,
		root: root,
	}
	go hg.run()

	return out
}

type hashGenerator struct {
	ctx  context.Context
	in   <-chan *EntryInfo
	out  chan<- *EntryInfo
	root string
}

func (hg *hashGenerator) run() {
	defer close(hg.out)

	for {
		select {
		case <-hg.ctx.Done():
			return
		case info, ok := <-hg.in:
			if !ok {
				return
			}
			hg.process(info)
			select {
			case <-hg.ctx.Done():
				return
			case hg.out <- info:
			}
		}
	}
}

func (hg *hashGenerator) process(info *EntryInfo) {
	if info.Action == Failed || info.Checksum != "" {
		return
	}

	fpath := filepath.Join(hg.root, info.RelPath)
	in, err := os.Open(fpath)
	if err != nil {
		info.Action = Failed
		info.ActionMessage = fmt.Sprintf("failed to open %s", fpath)
		return
	}
	defer in.Close()

	h := sha256.New()
	if _, err := io.Copy(h, in); err != nil {
		info.Action = Failed
		info.ActionMessage = fmt.Sprintf("failed to generate hash for %s", fpath)
		return
	}
	info.Checksum = hex.EncodeToString(h.Sum(nil))
}
