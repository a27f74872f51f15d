// Package blobstore abstracts where collection snapshots live: in memory,
// on the local filesystem, or in an S3-compatible object store (see the
// minio subpackage).
package blobstore

import (
	"context"
	"io"
	"os"
)

// ErrNotFound is returned when a blob does not exist.
//
// Implementations return an error satisfying errors.Is(err, ErrNotFound).
// The default maps to os.ErrNotExist.
var ErrNotFound = os.ErrNotExist

// Store is a flat namespace of immutable, atomically written blobs.
type Store interface {
	// Put writes a blob atomically, replacing any existing blob of the
	// same name.
	Put(ctx context.Context, name string, r io.Reader) error

	// Get opens a blob for reading. Returns ErrNotFound if absent.
	Get(ctx context.Context, name string) (io.ReadCloser, error)

	// Delete removes a blob. Deleting an absent blob is a no-op.
	Delete(ctx context.Context, name string) error

	// List returns all blob names with the given prefix, sorted.
	List(ctx context.Context, prefix string) ([]string, error)
}
