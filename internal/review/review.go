// Package review checks, after a bulk copy, which source files have a
// copy at the destination.
package review

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/studio1767/s3shift/internal/item"
	"github.com/studio1767/s3shift/internal/logging"
	"github.com/studio1767/s3shift/internal/ops"
	"github.com/studio1767/s3shift/internal/store"
	"github.com/studio1767/s3shift/internal/tree"
)

const (
	CopiedLog    = "copied.log"
	NotCopiedLog = "not_copied.log"
)

// CopyStats summarises a review.
type CopyStats struct {
	AllCopied    bool
	Copied       int
	NotCopied    int
	Failed       int
	Bytes        int64
	MissingBytes int64

	// Paths of the logs written; empty when there was nothing to log.
	CopiedLog    string
	NotCopiedLog string
}

func (s CopyStats) String() string {
	return fmt.Sprintf("all copied: %t, copied: %d (%s), not copied: %d (%s)",
		s.AllCopied, s.Copied, item.FormatSize(s.Bytes), s.NotCopied, item.FormatSize(s.MissingBytes))
}

// Run compares every file below source with the files below destination
// and writes the copied and not copied logs into outDir.
func Run(ctx context.Context, lister store.Lister, source, destination item.ID, outDir string, progress logging.Progress) (CopyStats, error) {
	if progress == nil {
		progress = logging.Discard()
	}

	src, err := tree.Build(ctx, lister, source, tree.BuildOptions{})
	if err != nil {
		return CopyStats{}, fmt.Errorf("building source tree: %w", err)
	}
	dst, err := tree.Build(ctx, lister, destination, tree.BuildOptions{})
	if err != nil {
		return CopyStats{}, fmt.Errorf("building destination tree: %w", err)
	}

	files := len(src.Files())
	task := progress.Start("reviewing", int64(files))
	defer task.Complete()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var copied, notCopied bytes.Buffer
	ch := ops.NewTreeScanner(ctx, src)
	ch = ops.NewMatcher(ctx, ch, dst)
	ch = ops.NewLogWriter(ctx, ch, &copied, &notCopied)

	var stats CopyStats
	for info := range ch {
		task.Advance(1)
		if info.Action == ops.Failed {
			stats.Failed++
			progress.Warn("review failed", zap.String("path", info.RelPath), zap.String("reason", info.ActionMessage))
			continue
		}
		switch info.Status {
		case ops.StatusCopied:
			stats.Copied++
			stats.Bytes += info.Size
		case ops.StatusNotCopied:
			stats.NotCopied++
			stats.MissingBytes += info.Size
		}
	}
	if err := ctx.Err(); err != nil {
		return stats, err
	}
	stats.AllCopied = stats.Copied == files

	if copied.Len() > 0 {
		stats.CopiedLog = filepath.Join(outDir, CopiedLog)
		if err := os.WriteFile(stats.CopiedLog, copied.Bytes(), 0644); err != nil {
			return stats, fmt.Errorf("writing review log: %w", err)
		}
	}
	if notCopied.Len() > 0 {
		stats.NotCopiedLog = filepath.Join(outDir, NotCopiedLog)
		if err := os.WriteFile(stats.NotCopiedLog, notCopied.Bytes(), 0644); err != nil {
			return stats, fmt.Errorf("writing review log: %w", err)
		}
	}

	logging.Info("review complete",
		zap.Bool("all_copied", stats.AllCopied),
		zap.Int("copied", stats.Copied),
		zap.Int("not_copied", stats.NotCopied),
		zap.String("copied_size", item.FormatSize(stats.Bytes)),
	)
	return stats, nil
}
