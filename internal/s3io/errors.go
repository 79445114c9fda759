package s3io

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/studio1767/s3shift/internal/item"
	"github.com/studio1767/s3shift/internal/store"
)

type ErrPermissionsTooOpen struct {
	msg string
}

func (e *ErrPermissionsTooOpen) Error() string {
	return e.msg
}

type ErrNoRecipients struct{}

func (e *ErrNoRecipients) Error() string {
	return "unable to encrypt: no recipients in bucket at 'repo/recipients.txt'"
}

type ErrNoSecretsFound struct {
	file string
}

func (e *ErrNoSecretsFound) Error() string {
	return fmt.Sprintf("no secrets found in '%s'", e.file)
}

type ErrPassphraseNotFound struct {
	operation string
}

func (e *ErrPassphraseNotFound) Error() string {
	return fmt.Sprintf("unable to %s: passphrase not found", e.operation)
}

type ErrIdentitiesNotFound struct{}

func (e *ErrIdentitiesNotFound) Error() string {
	return "unable to decrypt: no identities available"
}

type ErrNoSuchObject struct {
	key string
}

func (e *ErrNoSuchObject) Error() string {
	return fmt.Sprintf("no such object in bucket: %s", e.key)
}

type ErrNoMatch struct {
	msg string
}

func (e *ErrNoMatch) Error() string {
	return e.msg
}

type ErrNotDownloadable struct {
	key          string
	storageClass string
}

func (e *ErrNotDownloadable) Error() string {
	return fmt.Sprintf("object %s is not downloadable: storage class is %s", e.key, e.storageClass)
}

type ErrBadKey struct {
	key string
}

func (e *ErrBadKey) Error() string {
	return fmt.Sprintf("not a node key: %s", e.key)
}

// error codes S3 and compatible servers use for conditions that go away
// on their own
var retryableCodes = map[string]bool{
	"InternalError":      true,
	"ServiceUnavailable": true,
	"SlowDown":           true,
	"RequestTimeout":     true,
}

func isNotFound(err error) bool {
	var nosuchkey *types.NoSuchKey
	if errors.As(err, &nosuchkey) {
		return true
	}
	var notfound *types.NotFound
	if errors.As(err, &notfound) {
		return true
	}
	var responseError *awshttp.ResponseError
	return errors.As(err, &responseError) && responseError.HTTPStatusCode() == http.StatusNotFound
}

func isRetryable(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) && retryableCodes[apiErr.ErrorCode()] {
		return true
	}
	var responseError *awshttp.ResponseError
	return errors.As(err, &responseError) && responseError.HTTPStatusCode() >= http.StatusInternalServerError
}

// storeError converts an S3 failure of op on id into the store's error
// taxonomy.
func storeError(op string, id item.ID, err error) error {
	if err == nil {
		return nil
	}
	var notfound *store.ErrNotFound
	if errors.As(err, &notfound) {
		return &store.ErrTransport{Op: op, ID: id, Err: err}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &store.ErrTimeout{Op: op, ID: id}
	}
	if isNotFound(err) {
		return &store.ErrTransport{Op: op, ID: id, Err: &store.ErrNotFound{ID: id}}
	}
	return &store.ErrTransport{Op: op, ID: id, Retryable: isRetryable(err), Err: err}
}
