package s3io

import (
	"compress/gzip"
	"context"
	"io"
	"time"

	"filippo.io/age"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/studio1767/s3shift/internal/metrics"
)

// object metadata recording how an upload was transformed
const (
	metaCompress = "s3shift-compress"
	metaEncrypt  = "s3shift-encrypt"
	metaScryptID = "s3shift-scrypt-id"
	metaVersion  = "001"
)

func (cl *client) Upload(ctx context.Context, key string, source io.Reader) (int64, error) {
	return cl.upload(ctx, key, source, false, nil, "")
}

func (cl *client) UploadCompressed(ctx context.Context, key string, source io.Reader) (int64, error) {
	return cl.upload(ctx, key, source, true, nil, "")
}

func (cl *client) UploadEncrypted(ctx context.Context, key string, source io.Reader, compress bool) (int64, error) {
	if len(cl.recipients) == 0 {
		return 0, &ErrNoRecipients{}
	}
	return cl.upload(ctx, key, source, compress, cl.recipients, "")
}

func (cl *client) UploadPassphrase(ctx context.Context, key string, source io.Reader, compress bool) (int64, error) {
	if len(cl.passkeys) == 0 {
		return 0, &ErrPassphraseNotFound{
			operation: "upload",
		}
	}

	passkey := cl.passkeys[len(cl.passkeys)-1]
	recipient, err := age.NewScryptRecipient(cl.passphrases[passkey])
	if err != nil {
		return 0, err
	}

	return cl.upload(ctx, key, source, compress, []age.Recipient{recipient}, passkey)
}

// through returns a reader producing source passed through the writer
// that wrap builds. The work happens in a goroutine feeding a pipe.
func through(source io.Reader, wrap func(w io.Writer) (io.WriteCloser, error)) *io.PipeReader {
	reader, writer := io.Pipe()

	go func() {
		wc, err := wrap(writer)
		if err != nil {
			writer.CloseWithError(err)
			return
		}

		_, err = io.Copy(wc, source)
		if cerr := wc.Close(); err == nil {
			err = cerr
		}
		writer.CloseWithError(err)
	}()

	return reader
}

func (cl *client) upload(ctx context.Context, key string, source io.Reader, compress bool, recipients []age.Recipient, passkey string) (int64, error) {

	mdata := make(map[string]string)

	if compress {
		mdata[metaCompress] = "gzip"
		mdata[metaCompress+"-version"] = metaVersion

		reader := through(source, func(w io.Writer) (io.WriteCloser, error) {
			return gzip.NewWriter(w), nil
		})
		defer reader.Close()
		source = reader
	}

	if len(recipients) > 0 {
		if passkey != "" {
			mdata[metaScryptID] = passkey
		} else {
			mdata[metaEncrypt] = "age"
		}
		mdata[metaEncrypt+"-version"] = metaVersion

		reader := through(source, func(w io.Writer) (io.WriteCloser, error) {
			return age.Encrypt(w, recipients...)
		})
		defer reader.Close()
		source = reader
	}

	// count how many bytes actually get uploaded after compression
	//   and encryption
	counter := NewReadCounter(source)

	// the length is unknown after transforming so use the uploader
	start := time.Now()
	uploader := manager.NewUploader(cl.client)
	_, err := uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:   cl.bucket,
		Key:      aws.String(key),
		Body:     counter,
		Metadata: mdata,
	})
	metrics.RecordS3Operation("upload", time.Since(start), err == nil)

	return counter.Bytes(), err
}
