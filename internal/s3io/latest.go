package s3io

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// LatestMatching returns the key and size of the lexically last object
// under prefix. Versioned keys are zero padded so this is the newest.
func (cl *client) LatestMatching(ctx context.Context, prefix string) (string, int64, error) {

	paginator := s3.NewListObjectsV2Paginator(cl.client, &s3.ListObjectsV2Input{
		Bucket: cl.bucket,
		Prefix: aws.String(prefix),
	})

	var key string
	var size int64
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return "", 0, err
		}
		if num := len(page.Contents); num > 0 {
			object := page.Contents[num-1]
			key = aws.ToString(object.Key)
			size = aws.ToInt64(object.Size)
		}
	}

	if key == "" {
		return "", 0, &ErrNoMatch{
			msg: fmt.Sprintf("No objects found with prefix: %s", prefix),
		}
	}
	return key, size, nil
}
