// Package storage persists export files.
package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Read for a path that does not exist.
var ErrNotFound = errors.New("file not found")

// Backend stores export files under slash-separated relative paths.
type Backend interface {
	// Write replaces the object at path with data. Readers never observe a
	// partially written object.
	Write(ctx context.Context, path string, data []byte) error

	// Read returns the object at path, or ErrNotFound.
	Read(ctx context.Context, path string) ([]byte, error)

	// List returns the paths of every object under prefix, sorted.
	List(ctx context.Context, prefix string) ([]string, error)

	// Exists reports whether an object is stored at path.
	Exists(ctx context.Context, path string) (bool, error)

	// Close releases any resources held by the backend.
	Close() error

	// Type returns the storage type identifier ("local")
	Type() string
}
