// Package objectstore defines the object-storage contract used by the
// extraction workflow and an S3-compatible implementation of it.
package objectstore

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get and Copy when the source object does not exist.
var ErrNotFound = errors.New("object not found")

// Store reads, copies and writes whole objects.
type Store interface {
	Get(ctx context.Context, bucket, key string) ([]byte, error)
	// Copy duplicates sourceKey to destKey inside bucket. The source is left in place.
	Copy(ctx context.Context, bucket, sourceKey, destKey string) error
	// Put writes data to key. With ifAbsent set an existing object is left untouched
	// and Put returns nil.
	Put(ctx context.Context, bucket, key string, data []byte, contentType string, ifAbsent bool) error
}
