package storage

import (
	"context"
	"io"
)

// Storage keeps attachment objects and reports where each one lives.
type Storage interface {
	Upload(ctx context.Context, key string, data io.Reader, contentType string) (string, error)
	Delete(ctx context.Context, key string) error
	// KeyOf maps a location returned by Upload back to its key.
	KeyOf(location string) (string, bool)
}
