package storage

import (
	"context"
	"io"
)

// Object is a single upload.
type Object struct {
	Key         string
	Body        io.Reader
	Size        int64
	ContentType string
	// Metadata is stored as user metadata (x-amz-meta-*) on the object.
	Metadata map[string]string
}

// ObjectStorage is the subset of object store operations the archive needs.
type ObjectStorage interface {
	Put(ctx context.Context, obj Object) error

	// Exists reports whether key is present. A missing key is not an error.
	Exists(ctx context.Context, key string) (bool, error)

	// EnsureBucket creates the bucket when the backend allows it.
	EnsureBucket(ctx context.Context) error
}
