package file

import (
	"bytes"
	"context"
	"fmt"
	"path"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/wb-go/wbf/retry"

	"github.com/aliskhannn/pixelkit/internal/config"
)

// S3Storage delivers results to an S3-compatible bucket using MinIO.
// Objects are stored under a per-run prefix.
type S3Storage struct {
	client     *minio.Client
	bucketName string
	prefix     string
	strategy   retry.Strategy
}

// NewS3Storage creates a new S3Storage connected to the configured MinIO server.
// If the bucket does not exist, it will be created automatically.
func NewS3Storage(ctx context.Context, cfg config.S3, prefix string, strategy retry.Strategy) (*S3Storage, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.BucketName)
	if err != nil {
		return nil, fmt.Errorf("failed to check if bucket exists: %w", err)
	}

	if !exists {
		if err := client.MakeBucket(ctx, cfg.BucketName, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("failed to create bucket: %w", err)
		}
	}

	return &S3Storage{
		client:     client,
		bucketName: cfg.BucketName,
		prefix:     prefix,
		strategy:   strategy,
	}, nil
}

// Save uploads data as name and returns the object path within the bucket.
// Failed uploads are retried according to the configured strategy.
func (s *S3Storage) Save(ctx context.Context, name, contentType string, data []byte) (string, error) {
	objectName := path.Join(s.prefix, path.Base(name))

	err := retry.Do(func() error {
		_, err := s.client.PutObject(ctx, s.bucketName, objectName, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
			ContentType: contentType,
		})
		return err
	}, s.strategy)
	if err != nil {
		return "", fmt.Errorf("failed to save file: %w", err)
	}

	return s.bucketName + "/" + objectName, nil
}
