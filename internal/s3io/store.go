package s3io

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/studio1767/s3shift/internal/item"
	"github.com/studio1767/s3shift/internal/logging"
	"github.com/studio1767/s3shift/internal/metrics"
	"github.com/studio1767/s3shift/internal/store"
)

const (
	DefaultGrantACL  = string(types.ObjectCannedACLBucketOwnerFullControl)
	DefaultOpTimeout = 2 * time.Minute

	// CopyObject refuses sources above 5 GiB; bigger nodes are copied
	// in parts of copyPartSize.
	maxCopySize  = 5 << 30
	copyPartSize = 512 << 20

	headWorkers = 8
)

// Store is a hierarchical store kept in an S3 bucket. It implements
// store.Store and store.FileStore.
type Store struct {
	client  *s3.Client
	bucket  *string
	acl     types.ObjectCannedACL
	timeout time.Duration
	logger  *zap.Logger
}

var (
	_ store.Store     = (*Store)(nil)
	_ store.FileStore = (*Store)(nil)
)

func newStore(client *s3.Client, bucket, acl string, timeout time.Duration) *Store {
	if acl == "" {
		acl = DefaultGrantACL
	}
	if timeout == 0 {
		timeout = DefaultOpTimeout
	}
	return &Store{
		client:  client,
		bucket:  aws.String(bucket),
		acl:     types.ObjectCannedACL(acl),
		timeout: timeout,
		logger:  logging.Named("s3store"),
	}
}

func observe(op string, start time.Time, err error) {
	metrics.RecordS3Operation(op, time.Since(start), err == nil)
}

func (s *Store) head(ctx context.Context, key string) (*s3.HeadObjectOutput, error) {
	start := time.Now()
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: s.bucket,
		Key:    aws.String(key),
	})
	observe("head_object", start, err)
	return out, err
}

func (s *Store) put(ctx context.Context, key string, meta map[string]string) error {
	start := time.Now()
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        s.bucket,
		Key:           aws.String(key),
		Metadata:      meta,
		ContentLength: aws.Int64(0),
	})
	observe("put_object", start, err)
	return err
}

func (s *Store) delete(ctx context.Context, key string) error {
	start := time.Now()
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: s.bucket,
		Key:    aws.String(key),
	})
	observe("delete_object", start, err)
	return err
}

// locate returns the node key of id.
func (s *Store) locate(ctx context.Context, id item.ID) (string, error) {
	out, err := s.head(ctx, indexKey(id))
	if err != nil {
		if isNotFound(err) {
			return "", &store.ErrNotFound{ID: id}
		}
		return "", err
	}
	key, ok := metadata(out.Metadata, metaNode)
	if !ok {
		return "", &store.ErrNotFound{ID: id}
	}
	return key, nil
}

func (s *Store) itemAt(ctx context.Context, key string) (item.Item, error) {
	n, err := parseNodeKey(key)
	if err != nil {
		return item.Item{}, err
	}
	out, err := s.head(ctx, key)
	if err != nil {
		if isNotFound(err) {
			return item.Item{}, &store.ErrNotFound{ID: n.id}
		}
		return item.Item{}, err
	}
	return n.toItem(aws.ToInt64(out.ContentLength), out.Metadata), nil
}

func (s *Store) GetItem(ctx context.Context, id item.ID) (item.Item, error) {
	if id == store.RootID {
		return item.NewFolder(store.RootID, "/"), nil
	}
	key, err := s.locate(ctx, id)
	if err != nil {
		return item.Item{}, err
	}
	return s.itemAt(ctx, key)
}

// ListChildren lists the node keys under the folder and heads each one
// for its metadata, a few at a time.
func (s *Store) ListChildren(ctx context.Context, folder item.ID) ([]item.Item, error) {
	var keys []string

	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: s.bucket,
		Prefix: aws.String(childrenPrefix(folder)),
	})
	for paginator.HasMorePages() {
		start := time.Now()
		page, err := paginator.NextPage(ctx)
		observe("list_objects", start, err)
		if err != nil {
			return nil, err
		}
		for _, object := range page.Contents {
			keys = append(keys, aws.ToString(object.Key))
		}
	}

	// an empty listing is either an empty folder or no folder at all
	if len(keys) == 0 {
		if _, err := store.GetFolder(ctx, s, folder); err != nil {
			return nil, err
		}
		return nil, nil
	}

	items := make([]item.Item, len(keys))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(headWorkers)
	for idx, key := range keys {
		g.Go(func() error {
			it, err := s.itemAt(gctx, key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", key, err)
			}
			items[idx] = it
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) link(ctx context.Context, parent item.ID, it item.Item) (item.Item, error) {
	key := nodeKey(parent, it.ID, it.Kind, it.Name)
	if err := s.put(ctx, indexKey(it.ID), map[string]string{metaNode: key}); err != nil {
		return item.Item{}, err
	}
	return it, nil
}

func (s *Store) CreateFolder(ctx context.Context, name string, parent item.ID) (item.Item, error) {
	if _, err := store.GetFolder(ctx, s, parent); err != nil {
		return item.Item{}, err
	}

	it := item.NewFolder(uuid.NewString(), name, parent)
	if err := s.put(ctx, nodeKey(parent, it.ID, it.Kind, name), nil); err != nil {
		return item.Item{}, err
	}
	s.logger.Debug("folder created", zap.String("id", it.ID), zap.String("name", name), zap.String("parent", parent))
	return s.link(ctx, parent, it)
}

func (s *Store) PutFile(ctx context.Context, name string, parent item.ID, body io.Reader, size int64, checksum string) (item.Item, error) {
	if _, err := store.GetFolder(ctx, s, parent); err != nil {
		return item.Item{}, err
	}

	it := item.NewFile(uuid.NewString(), name, size, checksum, parent)
	meta := map[string]string{}
	if checksum != "" {
		meta[metaChecksum] = checksum
	}

	counter := NewReadCounter(body)
	start := time.Now()
	uploader := manager.NewUploader(s.client)
	_, err := uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:   s.bucket,
		Key:      aws.String(nodeKey(parent, it.ID, it.Kind, name)),
		Body:     counter,
		Metadata: meta,
	})
	observe("upload", start, err)
	if err != nil {
		return item.Item{}, storeError("put", name, err)
	}
	if counter.Bytes() != size {
		return item.Item{}, &store.ErrTransport{Op: "put", ID: name, Err: fmt.Errorf("uploaded %d bytes, expected %d", counter.Bytes(), size)}
	}
	return s.link(ctx, parent, it)
}

// MoveItem copies the node object under the new parent, repoints the
// index and deletes the old node. Descendants of a folder stay where
// they are since they are keyed by the folder's identifier.
func (s *Store) MoveItem(ctx context.Context, id item.ID, newParent item.ID) (item.Item, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	it, err := s.move(ctx, id, newParent)
	if err != nil {
		return item.Item{}, storeError("move", id, err)
	}
	return it, nil
}

func (s *Store) move(ctx context.Context, id item.ID, newParent item.ID) (item.Item, error) {
	if _, err := store.GetFolder(ctx, s, newParent); err != nil {
		return item.Item{}, err
	}
	oldKey, err := s.locate(ctx, id)
	if err != nil {
		return item.Item{}, err
	}
	it, err := s.itemAt(ctx, oldKey)
	if err != nil {
		return item.Item{}, err
	}

	newKey := nodeKey(newParent, it.ID, it.Kind, it.Name)
	if err := s.copyNode(ctx, oldKey, newKey, it.Size); err != nil {
		return item.Item{}, err
	}
	if err := s.put(ctx, indexKey(id), map[string]string{metaNode: newKey}); err != nil {
		return item.Item{}, err
	}
	if err := s.delete(ctx, oldKey); err != nil {
		// the index already points at the new node
		s.logger.Warn("stale node left behind", zap.String("key", oldKey), zap.Error(err))
	}

	it.Parents = []item.ID{newParent}
	return it, nil
}

func copySource(bucket, key string) string {
	return (&url.URL{Path: bucket + "/" + key}).EscapedPath()
}

func (s *Store) copyNode(ctx context.Context, src, dst string, size int64) error {
	if size <= maxCopySize {
		start := time.Now()
		_, err := s.client.CopyObject(ctx, &s3.CopyObjectInput{
			Bucket:            s.bucket,
			Key:               aws.String(dst),
			CopySource:        aws.String(copySource(*s.bucket, src)),
			MetadataDirective: types.MetadataDirectiveCopy,
		})
		observe("copy_object", start, err)
		return err
	}
	return s.copyParts(ctx, src, dst, size)
}

func (s *Store) copyParts(ctx context.Context, src, dst string, size int64) error {
	hoo, err := s.head(ctx, src)
	if err != nil {
		return err
	}

	start := time.Now()
	upload, err := s.client.CreateMultipartUpload(ctx, &s3.CreateMultipartUploadInput{
		Bucket:   s.bucket,
		Key:      aws.String(dst),
		Metadata: hoo.Metadata,
	})
	observe("create_multipart_upload", start, err)
	if err != nil {
		return err
	}

	abort := func(cause error) error {
		_, err := s.client.AbortMultipartUpload(context.WithoutCancel(ctx), &s3.AbortMultipartUploadInput{
			Bucket:   s.bucket,
			Key:      aws.String(dst),
			UploadId: upload.UploadId,
		})
		if err != nil {
			s.logger.Warn("abort multipart copy", zap.String("key", dst), zap.Error(err))
		}
		return cause
	}

	var parts []types.CompletedPart
	for offset, number := int64(0), int32(1); offset < size; offset, number = offset+copyPartSize, number+1 {
		last := min(offset+copyPartSize, size) - 1

		start := time.Now()
		part, err := s.client.UploadPartCopy(ctx, &s3.UploadPartCopyInput{
			Bucket:          s.bucket,
			Key:             aws.String(dst),
			CopySource:      aws.String(copySource(*s.bucket, src)),
			CopySourceRange: aws.String(fmt.Sprintf("bytes=%d-%d", offset, last)),
			PartNumber:      aws.Int32(number),
			UploadId:        upload.UploadId,
		})
		observe("upload_part_copy", start, err)
		if err != nil {
			return abort(err)
		}
		parts = append(parts, types.CompletedPart{
			ETag:       part.CopyPartResult.ETag,
			PartNumber: aws.Int32(number),
		})
	}

	start = time.Now()
	_, err = s.client.CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
		Bucket:          s.bucket,
		Key:             aws.String(dst),
		UploadId:        upload.UploadId,
		MultipartUpload: &types.CompletedMultipartUpload{Parts: parts},
	})
	observe("complete_multipart_upload", start, err)
	if err != nil {
		return abort(err)
	}
	return nil
}

// DeleteItem removes an item; a folder goes with everything below it.
func (s *Store) DeleteItem(ctx context.Context, id item.ID) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	return storeError("delete", id, s.remove(ctx, id))
}

func (s *Store) remove(ctx context.Context, id item.ID) error {
	if id == store.RootID {
		return fmt.Errorf("refusing to delete the root folder")
	}
	key, err := s.locate(ctx, id)
	if err != nil {
		return err
	}
	n, err := parseNodeKey(key)
	if err != nil {
		return err
	}

	if n.kind == item.KindFolder {
		children, err := s.ListChildren(ctx, id)
		if err != nil {
			return err
		}
		for _, child := range children {
			if err := s.remove(ctx, child.ID); err != nil {
				return err
			}
		}
	}

	if err := s.delete(ctx, key); err != nil {
		return err
	}
	return s.delete(ctx, indexKey(id))
}

// Grant applies the store's canned ACL to the item's node object.
func (s *Store) Grant(ctx context.Context, id item.ID) error {
	if id == store.RootID {
		return nil
	}
	key, err := s.locate(ctx, id)
	if err != nil {
		return err
	}

	start := time.Now()
	_, err = s.client.PutObjectAcl(ctx, &s3.PutObjectAclInput{
		Bucket: s.bucket,
		Key:    aws.String(key),
		ACL:    s.acl,
	})
	observe("put_object_acl", start, err)
	return storeError("grant", id, err)
}
