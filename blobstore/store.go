package blobstore

import (
	"context"
	"os"
	"strings"
)

// ErrNotFound is returned when a blob does not exist.
//
// Implementations should return an error that satisfies `errors.Is(err, ErrNotFound)`.
// The default maps to `os.ErrNotExist`.
var ErrNotFound = os.ErrNotExist

// ErrExists is returned by PutIfAbsent when the name is taken.
var ErrExists = os.ErrExist

// BlobStore stores small named blobs.
type BlobStore interface {
	// Get returns the content of a blob.
	Get(ctx context.Context, name string) ([]byte, error)
	// Put writes a blob atomically, replacing any previous content.
	Put(ctx context.Context, name string, data []byte) error
	// Delete removes a blob. Deleting a missing blob is not an error.
	Delete(ctx context.Context, name string) error
	// List returns the sorted names of all blobs starting with prefix.
	List(ctx context.Context, prefix string) ([]string, error)
}

// ConditionalStore is a BlobStore with an atomic create-only write. Exactly
// one of several concurrent PutIfAbsent calls for the same name succeeds; the
// others fail with ErrExists.
type ConditionalStore interface {
	BlobStore
	PutIfAbsent(ctx context.Context, name string, data []byte) error
}

func hasPrefix(name, prefix string) bool {
	return prefix == "" || strings.HasPrefix(name, prefix)
}
