package storage

import (
	"context"
	"errors"
)

// BlobStore is a key-value byte store holding serialized carts.
type BlobStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, data []byte) error
	Delete(ctx context.Context, key string) error
	Ping(ctx context.Context) error
}

var (
	ErrBlobNotFound  = errors.New("blob not found")
	ErrQuotaExceeded = errors.New("storage quota exceeded")
)
