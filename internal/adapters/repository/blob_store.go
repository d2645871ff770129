package repository

import (
	"context"
	"errors"
)

// ErrBlobNotFound is returned by a BlobStore when the key has never been written
var ErrBlobNotFound = errors.New("blob not found")

// BlobStore is a minimal key-value store for opaque payloads.
// The diary is persisted as a single blob under one key.
type BlobStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, blob []byte) error
	Delete(ctx context.Context, key string) error
	Ping(ctx context.Context) error
	Close() error
}
