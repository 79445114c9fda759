package store

import (
	"errors"
	"fmt"

	"github.com/studio1767/s3shift/internal/item"
)

type ErrNotFound struct {
	ID item.ID
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("item not found: %s", e.ID)
}

type ErrTypeMismatch struct {
	ID   item.ID
	Want item.Kind
	Got  item.Kind
}

func (e *ErrTypeMismatch) Error() string {
	return fmt.Sprintf("item %s is a %s, expected a %s", e.ID, e.Got, e.Want)
}

// ErrTransport is a failed remote call. Retryable marks the internal and
// permission-class failures that are worth trying again.
type ErrTransport struct {
	Op        string
	ID        item.ID
	Retryable bool
	Err       error
}

func (e *ErrTransport) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.ID, e.Err)
}

func (e *ErrTransport) Unwrap() error {
	return e.Err
}

type ErrTimeout struct {
	Op string
	ID item.ID
}

func (e *ErrTimeout) Error() string {
	return fmt.Sprintf("%s %s: timed out", e.Op, e.ID)
}

// IsNotFound reports whether err is, or wraps, an *ErrNotFound.
func IsNotFound(err error) bool {
	var notfound *ErrNotFound
	return errors.As(err, &notfound)
}

// IsRetryable reports whether err is a transport error flagged as retryable.
func IsRetryable(err error) bool {
	var transport *ErrTransport
	if errors.As(err, &transport) {
		return transport.Retryable
	}
	return false
}
