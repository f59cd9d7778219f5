// Package artifact stores the latest captured planning image per cache key
// on durable storage.
//
// Only the most recent artifact for a key is kept: a write replaces the
// previous bytes atomically so readers see either the old or the new image,
// never a partial one.
package artifact

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Read when no artifact exists for a key.
var ErrNotFound = errors.New("artifact not found")

// Backend is the interface for artifact storage backends.
// The default implementation is FilesystemBackend.
type Backend interface {
	// Write stores data as the artifact for key, replacing any previous one.
	Write(ctx context.Context, key string, data []byte) error

	// Read returns the artifact bytes for key or ErrNotFound.
	Read(ctx context.Context, key string) ([]byte, error)

	// Exists reports whether an artifact is stored for key.
	Exists(ctx context.Context, key string) (bool, error)

	// Location returns a human-readable address of the artifact for key.
	Location(key string) string
}
