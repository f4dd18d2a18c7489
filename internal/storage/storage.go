// Package storage uploads account exports to object storage (MinIO or Google
// Cloud Storage).
package storage

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/calmspace/apiserver/config"
)

const (
	BackendNone  = "none"
	BackendMinio = "minio"
	BackendGCS   = "gcs"
)

// ObjectStorage defines common object operations across backends.
type ObjectStorage interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Delete(ctx context.Context, key string) error
	// DeletePrefix removes every object whose key starts with prefix and
	// returns how many were removed.
	DeletePrefix(ctx context.Context, prefix string) (int, error)
	Bucket() string
}

// Open connects to the backend named by cfg.Backend and makes sure its bucket
// exists. It returns nil, nil when object storage is disabled.
func Open(ctx context.Context, cfg config.StorageConfig) (ObjectStorage, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "", BackendNone:
		return nil, nil
	case BackendMinio:
		client, err := NewMinioClient(cfg.Minio)
		if err != nil {
			return nil, err
		}
		if err := client.EnsureBucket(ctx); err != nil {
			return nil, fmt.Errorf("ensure minio bucket: %w", err)
		}
		return client, nil
	case BackendGCS:
		client, err := NewGCSClient(ctx, cfg.GCS)
		if err != nil {
			return nil, err
		}
		if err := client.EnsureBucket(ctx); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("ensure gcs bucket: %w", err)
		}
		return client, nil
	default:
		return nil, fmt.Errorf("unsupported storage backend %q", cfg.Backend)
	}
}
