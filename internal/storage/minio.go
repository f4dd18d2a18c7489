package storage

import (
	"context"
	"errors"
	"io"
	"strings"

	"github.com/calmspace/apiserver/config"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioClient stores objects in one S3-compatible bucket.
type MinioClient struct {
	client *minio.Client
	bucket string
}

// NewMinioClient constructs a MinIO client from config.
func NewMinioClient(cfg config.MinioConfig) (*MinioClient, error) {
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return nil, errors.New("minio endpoint is required")
	}
	if strings.TrimSpace(cfg.AccessKey) == "" || strings.TrimSpace(cfg.SecretKey) == "" {
		return nil, errors.New("minio access key and secret key are required")
	}
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, errors.New("minio bucket is required")
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, err
	}

	return &MinioClient{client: client, bucket: cfg.Bucket}, nil
}

// EnsureBucket creates the configured bucket when it does not exist.
func (m *MinioClient) EnsureBucket(ctx context.Context) error {
	exists, err := m.client.BucketExists(ctx, m.bucket)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	return m.client.MakeBucket(ctx, m.bucket, minio.MakeBucketOptions{})
}

func (m *MinioClient) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	_, err := m.client.PutObject(ctx, m.bucket, key, r, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	return err
}

func (m *MinioClient) Delete(ctx context.Context, key string) error {
	return m.client.RemoveObject(ctx, m.bucket, key, minio.RemoveObjectOptions{})
}

func (m *MinioClient) DeletePrefix(ctx context.Context, prefix string) (int, error) {
	listed := m.client.ListObjects(ctx, m.bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true})

	type listResult struct {
		queued int
		err    error
	}
	toDelete := make(chan minio.ObjectInfo)
	listDone := make(chan listResult, 1)
	go func() {
		queued, err := forwardListing(ctx, listed, toDelete)
		listDone <- listResult{queued: queued, err: err}
	}()

	failed := 0
	var firstErr error
	for rerr := range m.client.RemoveObjects(ctx, m.bucket, toDelete, minio.RemoveObjectsOptions{}) {
		failed++
		if firstErr == nil {
			firstErr = rerr.Err
		}
	}
	res := <-listDone
	if res.err != nil && firstErr == nil {
		firstErr = res.err
	}
	return res.queued - failed, firstErr
}

// forwardListing copies listed objects into out until the listing ends, an
// entry carries an error, or ctx is done. It closes out and returns the number
// of objects handed over.
func forwardListing(ctx context.Context, listed <-chan minio.ObjectInfo, out chan<- minio.ObjectInfo) (int, error) {
	defer close(out)
	queued := 0
	for obj := range listed {
		if obj.Err != nil {
			return queued, obj.Err
		}
		select {
		case out <- obj:
			queued++
		case <-ctx.Done():
			return queued, ctx.Err()
		}
	}
	return queued, nil
}

func (m *MinioClient) Bucket() string {
	return m.bucket
}
