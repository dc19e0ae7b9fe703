package gcp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"cloud.google.com/go/storage"
	"github.com/Lllllllleong/formextractionflow/internal/objectstore"
	"google.golang.org/api/googleapi"
)

// GCSStore is an objectstore.Store backed by Cloud Storage.
type GCSStore struct {
	client *storage.Client
}

// NewGCSStore wraps an existing storage client.
func NewGCSStore(client *storage.Client) *GCSStore {
	return &GCSStore{client: client}
}

func (s *GCSStore) Get(ctx context.Context, bucket, key string) ([]byte, error) {
	reader, err := s.client.Bucket(bucket).Object(key).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, fmt.Errorf("gs://%s/%s: %w", bucket, key, objectstore.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to open gs://%s/%s: %w", bucket, key, err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read gs://%s/%s: %w", bucket, key, err)
	}
	return data, nil
}

func (s *GCSStore) Copy(ctx context.Context, bucket, sourceKey, destKey string) error {
	bkt := s.client.Bucket(bucket)
	if _, err := bkt.Object(destKey).CopierFrom(bkt.Object(sourceKey)).Run(ctx); err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return fmt.Errorf("gs://%s/%s: %w", bucket, sourceKey, objectstore.ErrNotFound)
		}
		return fmt.Errorf("failed to copy gs://%s/%s to %s: %w", bucket, sourceKey, destKey, err)
	}
	return nil
}

func (s *GCSStore) Put(ctx context.Context, bucket, key string, data []byte, contentType string, ifAbsent bool) error {
	if ifAbsent {
		return SaveToGCSAtomically(ctx, s.client.Bucket(bucket), key, data, contentType)
	}
	writer := s.client.Bucket(bucket).Object(key).NewWriter(ctx)
	writer.ContentType = contentType
	if _, err := io.Copy(writer, bytes.NewReader(data)); err != nil {
		_ = writer.Close()
		return fmt.Errorf("failed to write to GCS: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to finalize GCS write: %w", err)
	}
	return nil
}

// SaveToGCSAtomically writes content to a GCS object only if it doesn't already exist.
func SaveToGCSAtomically(ctx context.Context, bucket *storage.BucketHandle, objectName string, content []byte, contentType string) error {
	writer := bucket.Object(objectName).If(storage.Conditions{DoesNotExist: true}).NewWriter(ctx)
	writer.ContentType = contentType

	if _, err := io.Copy(writer, bytes.NewReader(content)); err != nil {
		_ = writer.Close()
		if isPreconditionFailed(err) {
			slog.Info("Object already exists. Skipping write.", "object", objectName)
			return nil
		}
		return fmt.Errorf("failed to write to GCS: %w", err)
	}

	if err := writer.Close(); err != nil {
		// The precondition is usually only evaluated when the upload is finalized.
		if isPreconditionFailed(err) {
			slog.Info("Object already exists. Skipping write.", "object", objectName)
			return nil
		}
		return fmt.Errorf("failed to finalize GCS write: %w", err)
	}
	return nil
}

func isPreconditionFailed(err error) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == 412
}
