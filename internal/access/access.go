// Package access opens up a folder and everything below it.
package access

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/studio1767/s3shift/internal/item"
	"github.com/studio1767/s3shift/internal/logging"
	"github.com/studio1767/s3shift/internal/store"
	"github.com/studio1767/s3shift/internal/tree"
)

const DefaultMaxRetries = 5

type Options struct {
	// MaxRetries bounds the retries of one grant after a retryable error.
	MaxRetries int
	// Backoff is the pause before each retry.
	Backoff time.Duration
}

type Result struct {
	Granted int
	Failed  int
}

// GrantRecursive grants access on folder and every item below it. A
// failed grant is logged and the walk carries on.
func GrantRecursive(ctx context.Context, st store.Store, folder item.ID, opts Options, progress logging.Progress) (Result, error) {
	if opts.MaxRetries == 0 {
		opts.MaxRetries = DefaultMaxRetries
	}
	if progress == nil {
		progress = logging.Discard()
	}

	t, err := tree.Build(ctx, st, folder, tree.BuildOptions{})
	if err != nil {
		return Result{}, err
	}

	task := progress.Start("granting", int64(t.Len()))
	defer task.Complete()

	var result Result
	err = t.Walk(func(node *tree.Node) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := grant(ctx, st, node.ID(), opts); err != nil {
			result.Failed++
			progress.Warn("grant failed", zap.String("item", node.Item.String()), zap.Error(err))
		} else {
			result.Granted++
		}
		task.Advance(1)
		return nil
	})
	return result, err
}

func grant(ctx context.Context, st store.Store, id item.ID, opts Options) error {
	err := st.Grant(ctx, id)
	for retry := 0; err != nil && store.IsRetryable(err) && retry < opts.MaxRetries; retry++ {
		logging.Debug("retrying grant", zap.String("id", id), zap.Int("retry", retry+1), zap.Error(err))
		if opts.Backoff > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(opts.Backoff):
			}
		}
		err = st.Grant(ctx, id)
	}
	return err
}
