// Package storage abstracts where evidence blobs live. Keys are flat,
// opaque names generated by the upload service.
package storage

import (
	"context"
	"errors"
	"io"
	"time"
)

var ErrObjectNotFound = errors.New("object not found")

type ObjectStorage interface {
	Put(ctx context.Context, key string, r io.Reader, meta ObjectMetadata) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)
}

type ObjectMetadata struct {
	ContentType   string
	ContentLength int64
}

type ObjectInfo struct {
	Key          string
	Size         int64
	LastModified time.Time
}
