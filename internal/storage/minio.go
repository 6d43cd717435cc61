package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ErrNotConfigured is returned when no MinIO endpoint is set.
var ErrNotConfigured = errors.New("minio config missing")

// MinIOStorage is a thin wrapper around the minio client holding the
// catalog datasets.
type MinIOStorage struct {
	client *minio.Client
	bucket string
}

// NewMinIOStorage creates a new MinIO storage client and ensures the bucket exists.
func NewMinIOStorage(ctx context.Context, cfg *MinIOConfig) (*MinIOStorage, error) {
	if !cfg.Enabled() {
		return nil, ErrNotConfigured
	}
	mc, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("minio new: %w", err)
	}
	s := &MinIOStorage{client: mc, bucket: cfg.Bucket}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := mc.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
		// already exists is fine
		exist, xerr := mc.BucketExists(ctx, s.bucket)
		if xerr != nil || !exist {
			return nil, fmt.Errorf("minio bucket ensure: %w", err)
		}
	}
	return s, nil
}

// UploadFile uploads data from reader to the configured bucket using the provided key.
func (s *MinIOStorage) UploadFile(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error {
	if _, err := s.client.PutObject(ctx, s.bucket, key, reader, size, minio.PutObjectOptions{ContentType: contentType}); err != nil {
		return fmt.Errorf("minio put %s/%s: %w", s.bucket, key, err)
	}
	return nil
}

// DownloadFile returns a ReadCloser for the stored object.
func (s *MinIOStorage) DownloadFile(ctx context.Context, key string) (io.ReadCloser, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("minio get %s/%s: %w", s.bucket, key, err)
	}
	// GetObject is lazy; stat to surface a missing object here
	if _, err := obj.Stat(); err != nil {
		obj.Close()
		return nil, fmt.Errorf("minio stat %s/%s: %w", s.bucket, key, err)
	}
	return obj, nil
}

// GetPresignedURL returns a presigned GET URL valid for the given duration.
func (s *MinIOStorage) GetPresignedURL(ctx context.Context, key string, expires time.Duration) (string, error) {
	presigned, err := s.client.PresignedGetObject(ctx, s.bucket, key, expires, make(url.Values))
	if err != nil {
		return "", err
	}
	return presigned.String(), nil
}
