// Package objstore defines the object-store collaborator used by every stage
// and provides a filesystem implementation for local runs and an S3
// implementation for the managed backend.
package objstore

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// ErrNotFound is returned by Get when the object does not exist.
var ErrNotFound = errors.New("object not found")

// ObjectInfo describes one listed object.
type ObjectInfo struct {
	Key  string
	Name string // last path segment of Key
	Size int64
}

// SizeMB returns the object size in MiB rounded to two decimals.
func (o ObjectInfo) SizeMB() float64 {
	mb := float64(o.Size) / (1024 * 1024)
	return float64(int64(mb*100+0.5)) / 100
}

// Location addresses an object.
type Location struct {
	Bucket string
	Key    string
}

// String renders the location as a bucket-qualified URI path.
func (l Location) String() string {
	return fmt.Sprintf("%s/%s", l.Bucket, l.Key)
}

// Store is the narrow object-store contract the pipeline depends on.
type Store interface {
	// Get opens the object for streaming reads. The caller closes it.
	Get(ctx context.Context, bucket, key string) (io.ReadCloser, error)

	// Put writes body to the object, replacing any existing content.
	Put(ctx context.Context, bucket, key string, body io.Reader) error

	// List returns the objects whose keys start with prefix.
	List(ctx context.Context, bucket, prefix string) ([]ObjectInfo, error)

	// Copy duplicates src to dst.
	Copy(ctx context.Context, src, dst Location) error

	// Delete removes the object. Deleting a missing object is not an error.
	Delete(ctx context.Context, bucket, key string) error
}
