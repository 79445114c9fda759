package ops

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/studio1767/s3shift/internal/item"
	"github.com/studio1767/s3shift/internal/store"
)

// NewUploader writes each local file into the store below parent,
// recreating its directory path as folders. A file already present with
// the same name, size and checksum is left alone and marked StatusExists.
func NewUploader(ctx context.Context, in <-chan *EntryInfo, st store.FileStore, root string, parent item.ID) <-chan *EntryInfo {
	out := make(chan *EntryInfo, 10)
	ul := uploader{
		ctx:     ctx,
		in:      in,
		out:     out,
		st:      st,
		root:    root,
		folders: map[string]item.ID{"": parent},
	}
	go ul.run()

	return out
}

type uploader struct {
	ctx     context.Context
	in      <-chan *EntryInfo
	out     chan<- *EntryInfo
	st      store.FileStore
	root    string
	folders map[string]item.ID
}

func (ul *uploader) run() {
	defer close(ul.out)

	for {
		select {
		case <-ul.ctx.Done():
			return
		case info, ok := <-ul.in:
			if !ok {
				return
			}
			ul.process(info)
			select {
			case <-ul.ctx.Done():
				return
			case ul.out <- info:
			}
		}
	}
}

func (ul *uploader) process(info *EntryInfo) {
	if info.Action == Failed {
		return
	}

	dir, name := path.Split(filepath.ToSlash(info.RelPath))
	folder, err := ul.folder(strings.TrimSuffix(dir, "/"))
	if err != nil {
		info.Action = Failed
		info.ActionMessage = fmt.Sprintf("failed to create folder for %s: %s", info.RelPath, err)
		return
	}

	existing, err := ul.st.ListChildren(ul.ctx, folder)
	if err != nil {
		info.Action = Failed
		info.ActionMessage = fmt.Sprintf("failed to list folder for %s: %s", info.RelPath, err)
		return
	}
	for _, it := range existing {
		if it.IsFile() && it.Name == name && it.Size == info.Size && it.Checksum == info.Checksum {
			info.Status = StatusExists
			info.Item = it
			return
		}
	}

	fpath := filepath.Join(ul.root, info.RelPath)
	file, err := os.Open(fpath)
	if err != nil {
		info.Action = Failed
		info.ActionMessage = fmt.Sprintf("failed to open %s", fpath)
		return
	}
	defer file.Close()

	it, err := ul.st.PutFile(ul.ctx, name, folder, file, info.Size, info.Checksum)
	if err != nil {
		info.Action = Failed
		info.ActionMessage = fmt.Sprintf("failed to upload %s: %s", info.RelPath, err)
		return
	}
	info.Action = Uploaded
	info.Item = it
}

// folder returns the store folder for a relative directory, creating it
// and any missing parents.
func (ul *uploader) folder(dir string) (item.ID, error) {
	if id, ok := ul.folders[dir]; ok {
		return id, nil
	}

	parentDir, name := path.Split(dir)
	parent, err := ul.folder(strings.TrimSuffix(parentDir, "/"))
	if err != nil {
		return "", err
	}

	it, found, err := store.FindChild(ul.ctx, ul.st, parent, name, item.KindFolder)
	if err != nil {
		return "", err
	}
	if !found {
		it, err = ul.st.CreateFolder(ul.ctx, name, parent)
		if err != nil {
			return "", err
		}
	}

	ul.folders[dir] = it.ID
	return it.ID, nil
}
