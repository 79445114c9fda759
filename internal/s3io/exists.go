package s3io

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/studio1767/s3shift/internal/metrics"
)

func (cl *client) Exists(ctx context.Context, key string) (bool, error) {
	start := time.Now()
	_, err := cl.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: cl.bucket,
		Key:    aws.String(key),
	})
	metrics.RecordS3Operation("head_object", time.Since(start), err == nil || isNotFound(err))

	if err == nil {
		return true, nil
	}
	if isNotFound(err) {
		return false, nil
	}
	return false, err
}
