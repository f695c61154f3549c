// Package objectstore persists file bytes under content-addressed keys.
// The catalog stores keys; this package stores bytes. Keys are sha256
// digests with a two-character fan-out prefix, so identical uploads
// deduplicate naturally and writes are idempotent.
package objectstore

import (
	"context"
	"errors"
	"io"
)

// ErrNotFound indicates no blob exists for the requested key.
var ErrNotFound = errors.New("object not found")

// Store reads and writes blobs by key.
type Store interface {
	// Put streams the reader's contents into storage and returns the
	// content-addressed key along with the byte count.
	Put(ctx context.Context, r io.Reader) (key string, size int64, err error)

	// Get opens the blob for reading. The caller closes it.
	Get(ctx context.Context, key string) (io.ReadCloser, error)

	// Stat returns the blob's size without opening it.
	Stat(ctx context.Context, key string) (int64, error)

	// Delete removes the blob. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}
