package ops

import (
	"context"
	"os"
	"path/filepath"
	"strings"
)

// ScanOptions controls which local directories are walked.
type ScanOptions struct {
	// SkipDirs are directory names skipped at every level.
	SkipDirs []string
	// SkipMarkers are file names that, when present, exclude their
	// directory and everything below it.
	SkipMarkers []string
}

// NewFsScanner walks the local directory source and emits every regular
// file in lexical order, with paths relative to source.
func NewFsScanner(ctx context.Context, source string, opts ScanOptions) <-chan *EntryInfo {

	// make sure we have a trailing slash... assumed in the main loop
	if !strings.HasSuffix(source, "/") {
		source += "/"
	}

	skipDirs := make(map[string]bool)
	for _, dir := range opts.SkipDirs {
		skipDirs[dir] = true
	}

	out := make(chan *EntryInfo, 10)
	fs := fsScanner{
		ctx:      ctx,
		out:      out,
		source:   source,
		skipDirs: skipDirs,
		markers:  opts.SkipMarkers,
	}
	go func() {
		defer close(fs.out)
		fs.run(fs.source)
	}()

	return out
}

type fsScanner struct {
	ctx      context.Context
	out      chan<- *EntryInfo
	source   string
	skipDirs map[string]bool
	markers  []string
}

func (fs *fsScanner) run(dir string) bool {
	for _, marker := range fs.markers {
		if _, err := os.Stat(filepath.Join(dir, marker)); err == nil {
			return true
		}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		fs.send(&EntryInfo{
			RelPath:       strings.TrimPrefix(dir, fs.source),
			Action:        Failed,
			ActionMessage: err.Error(),
		})
		return true
	}

	for _, entry := range entries {
		fpath := filepath.Join(dir, entry.Name())

		switch {
		case entry.Type().IsRegular():
			info, err := entry.Info()
			if err != nil {
				continue
			}
			ok := fs.send(&EntryInfo{
				Status:  StatusNew,
				RelPath: strings.TrimPrefix(fpath, fs.source),
				Size:    info.Size(),
				Action:  NoAction,
			})
			if !ok {
				return false
			}

		case entry.Type().IsDir():
			if fs.skipDirs[entry.Name()] {
				continue
			}
			if !fs.run(fpath) {
				return false
			}
		}
	}
	return true
}

func (fs *fsScanner) send(info *EntryInfo) bool {
	select {
	case <-fs.ctx.Done():
		return false
	case fs.out <- info:
		return true
	}
}
