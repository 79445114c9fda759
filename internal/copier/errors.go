package copier

import (
	"fmt"
	"time"
)

type ErrInvalidArgument struct {
	msg string
}

func (e *ErrInvalidArgument) Error() string {
	return e.msg
}

// ErrTimedOut means the stats endpoint stayed unreachable past the copy
// timeout. The copier was killed.
type ErrTimedOut struct {
	timeout time.Duration
	bytes   int64
}

func (e *ErrTimedOut) Error() string {
	return fmt.Sprintf("copy timed out after %s with %d bytes observed", e.timeout, e.bytes)
}

// ErrStalled means the copier reported the same byte count for too many
// polls in a row. The copier was killed.
type ErrStalled struct {
	polls int
	bytes int64
}

func (e *ErrStalled) Error() string {
	return fmt.Sprintf("copy stalled: no progress for %d polls at %d bytes", e.polls, e.bytes)
}
