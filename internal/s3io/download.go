package s3io

import (
	"compress/gzip"
	"context"
	"io"
	"strings"
	"time"

	"filippo.io/age"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/studio1767/s3shift/internal/metrics"
)

var downloadable = map[string]bool{
	"":                                           true,
	string(types.StorageClassStandard):           true,
	string(types.StorageClassReducedRedundancy):  true,
	string(types.StorageClassStandardIa):         true,
	string(types.StorageClassOnezoneIa):          true,
	string(types.StorageClassIntelligentTiering): true,
}

func (cl *client) checkDownloadable(ctx context.Context, key string) error {
	hoo, err := cl.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: cl.bucket,
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return &ErrNoSuchObject{
				key: key,
			}
		}
		return err
	}

	sclass := string(hoo.StorageClass)
	if downloadable[sclass] {
		return nil
	}

	return &ErrNotDownloadable{
		key:          key,
		storageClass: sclass,
	}
}

// metadata looks a key up ignoring case; servers differ in what they
// return.
func metadata(meta map[string]string, key string) (string, bool) {
	for k, v := range meta {
		if strings.EqualFold(k, key) {
			return v, true
		}
	}
	return "", false
}

func (cl *client) Download(ctx context.Context, key string, sink io.Writer) (int64, error) {

	if err := cl.checkDownloadable(ctx, key); err != nil {
		return 0, err
	}

	start := time.Now()
	resp, err := cl.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: cl.bucket,
		Key:    aws.String(key),
	})
	metrics.RecordS3Operation("download", time.Since(start), err == nil)
	if err != nil {
		if isNotFound(err) {
			return 0, &ErrNoSuchObject{
				key: key,
			}
		}
		return 0, err
	}
	defer resp.Body.Close()

	var reader io.Reader = resp.Body

	_, compressed := metadata(resp.Metadata, metaCompress)
	_, encrypted := metadata(resp.Metadata, metaEncrypt)
	passkey, _ := metadata(resp.Metadata, metaScryptID)

	// decrypt first
	if encrypted {
		if len(cl.identities) == 0 {
			return 0, &ErrIdentitiesNotFound{}
		}

		dreader, err := age.Decrypt(reader, cl.identities...)
		if err != nil {
			return 0, err
		}
		reader = dreader
	}

	if passkey != "" {
		passphrase, ok := cl.passphrases[passkey]
		if !ok {
			return 0, &ErrPassphraseNotFound{
				operation: "download",
			}
		}

		identity, err := age.NewScryptIdentity(passphrase)
		if err != nil {
			return 0, err
		}
		dreader, err := age.Decrypt(reader, identity)
		if err != nil {
			return 0, err
		}
		reader = dreader
	}

	// then decompress
	if compressed {
		gzreader, err := gzip.NewReader(reader)
		if err != nil {
			return 0, err
		}
		defer gzreader.Close()

		reader = gzreader
	}

	return io.Copy(sink, reader)
}
