// Package objstore provides an abstraction over storage backends for source
// audio and rendered transform artifacts.
package objstore

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when key does not exist. Stat reports a
// missing key as exists == false with a nil error instead.
var ErrNotFound = errors.New("objstore: not found")

// Store is the capability interface every storage backend implements: the
// get/put/delete/stat contract. Keys are logical paths under a configured
// prefix; a backend must never reveal paths outside its configured root.
type Store interface {
	// Get fetches the full contents addressed by key. Returns ErrNotFound if
	// absent.
	Get(ctx context.Context, key string) ([]byte, error)
	// Put stores data under key, atomically: a reader either sees the whole
	// object or nothing. Put is idempotent.
	Put(ctx context.Context, key string, data []byte) error
	// Delete removes key. A non-existent key is not an error.
	Delete(ctx context.Context, key string) error
	// Stat reports whether key exists and, if so, its size.
	Stat(ctx context.Context, key string) (size int64, exists bool, err error)
	// FullPath returns the normalised logical path a key resolves to, for
	// debug/trace logging only.
	FullPath(key string) string
}
