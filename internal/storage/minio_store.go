/**
 * MinIO Cache Store for the Poster Worker
 *
 * Keeps processed posters as objects in an S3-compatible bucket.
 */

package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/adverant/nexus/poster-worker/internal/errors"
)

// MinioConfig holds S3-compatible object storage settings
type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Prefix    string // Object name prefix, e.g. "processed_images"
	UseSSL    bool
}

// MinioStore keeps entries as objects named <prefix>/<key>.jpg. S3 PUTs are
// atomic, so a reader never sees a partial object.
type MinioStore struct {
	client *minio.Client
	bucket string
	prefix string
}

// NewMinioStore connects to the endpoint and verifies the bucket exists.
func NewMinioStore(ctx context.Context, cfg *MinioConfig) (*MinioStore, error) {
	if cfg == nil || cfg.Endpoint == "" {
		return nil, fmt.Errorf("minio endpoint is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("minio bucket is required")
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	// Verify bucket exists
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket: %w", err)
	}
	if !exists {
		return nil, fmt.Errorf("bucket %s does not exist", cfg.Bucket)
	}

	return &MinioStore{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix}, nil
}

// ObjectName returns the object an entry for key is stored under.
func (s *MinioStore) ObjectName(key string) string {
	return path.Join(s.prefix, key+"."+EntryExtension)
}

func isNoSuchKey(err error) bool {
	code := minio.ToErrorResponse(err).Code
	return code == "NoSuchKey" || code == "NotFound"
}

// Exists reports whether the object is present.
func (s *MinioStore) Exists(ctx context.Context, key string) (bool, error) {
	if err := ValidateKey(key); err != nil {
		return false, err
	}
	_, err := s.client.StatObject(ctx, s.bucket, s.ObjectName(key), minio.StatObjectOptions{})
	if err == nil {
		return true, nil
	}
	if isNoSuchKey(err) {
		return false, nil
	}
	return false, errors.NewCacheIOError(key, "stat", err)
}

// Read downloads the object.
func (s *MinioStore) Read(ctx context.Context, key string) ([]byte, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}
	obj, err := s.client.GetObject(ctx, s.bucket, s.ObjectName(key), minio.GetObjectOptions{})
	if err != nil {
		if isNoSuchKey(err) {
			return nil, errors.NewNotFoundError(key)
		}
		return nil, errors.NewCacheIOError(key, "read", err)
	}
	defer obj.Close()

	// GetObject is lazy; a missing object surfaces on the first read.
	data, err := io.ReadAll(obj)
	if err != nil {
		if isNoSuchKey(err) {
			return nil, errors.NewNotFoundError(key)
		}
		return nil, errors.NewCacheIOError(key, "read", err)
	}
	return data, nil
}

// Write uploads data unless the object already exists.
func (s *MinioStore) Write(ctx context.Context, key string, data []byte) error {
	exists, err := s.Exists(ctx, key)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	_, err = s.client.PutObject(ctx, s.bucket, s.ObjectName(key), bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: EntryContentType,
	})
	if err != nil {
		return errors.NewCacheIOError(key, "write", err)
	}
	return nil
}
