package objectstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// S3Config configures an S3-compatible endpoint (AWS S3, MinIO).
type S3Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Region    string
	UseSSL    bool
}

// S3Store is a Store backed by minio-go.
type S3Store struct {
	client *minio.Client
}

// NewS3Store creates a client for the configured endpoint.
func NewS3Store(cfg S3Config) (*S3Store, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("NewS3Store: endpoint cannot be empty")
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("minio.New: %w", err)
	}
	slog.Info("S3 object store initialized.", "endpoint", cfg.Endpoint)
	return &S3Store{client: client}, nil
}

func (s *S3Store) Get(ctx context.Context, bucket, key string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, mapS3Error(err, bucket, key)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, mapS3Error(err, bucket, key)
	}
	return data, nil
}

func (s *S3Store) Copy(ctx context.Context, bucket, sourceKey, destKey string) error {
	_, err := s.client.CopyObject(ctx,
		minio.CopyDestOptions{Bucket: bucket, Object: destKey},
		minio.CopySrcOptions{Bucket: bucket, Object: sourceKey},
	)
	if err != nil {
		return mapS3Error(err, bucket, sourceKey)
	}
	return nil
}

func (s *S3Store) Put(ctx context.Context, bucket, key string, data []byte, contentType string, ifAbsent bool) error {
	if ifAbsent {
		_, err := s.client.StatObject(ctx, bucket, key, minio.StatObjectOptions{})
		if err == nil {
			slog.Info("Object already exists. Skipping write.", "bucket", bucket, "key", key)
			return nil
		}
		if !isNoSuchKey(err) {
			return fmt.Errorf("failed to stat s3://%s/%s: %w", bucket, key, err)
		}
	}

	_, err := s.client.PutObject(ctx, bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("failed to write s3://%s/%s: %w", bucket, key, err)
	}
	return nil
}

func isNoSuchKey(err error) bool {
	code := minio.ToErrorResponse(err).Code
	return code == "NoSuchKey" || code == "NoSuchBucket"
}

func mapS3Error(err error, bucket, key string) error {
	if isNoSuchKey(err) {
		return fmt.Errorf("s3://%s/%s: %w", bucket, key, ErrNotFound)
	}
	return fmt.Errorf("s3://%s/%s: %w", bucket, key, err)
}
