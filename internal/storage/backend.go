package storage

import (
	"context"
	"errors"
	"io"
)

// ErrNotFound is returned by Get and GetInfo when nothing is stored at the key.
var ErrNotFound = errors.New("key not found")

// Backend is where pdfdesk keeps blob bytes between the operation that
// produced them and the download that consumes them.
type Backend interface {
	// Put stores data at the given key
	Put(ctx context.Context, key string, data io.Reader) error

	// Get retrieves data from the given key
	Get(ctx context.Context, key string) (io.ReadCloser, error)

	// Delete removes the object at the given key
	Delete(ctx context.Context, key string) error

	// List returns all keys with the given prefix
	List(ctx context.Context, prefix string) ([]string, error)

	// Exists checks if an object exists at the given key
	Exists(ctx context.Context, key string) (bool, error)

	// GetInfo returns metadata for a single object
	GetInfo(ctx context.Context, key string) (*Info, error)
}

// Info provides metadata about stored objects
type Info struct {
	Key          string
	Size         int64
	LastModified string
}
