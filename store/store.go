// Package store defines the storage abstraction used by memocache.
//
// A Store is a byte-for-byte transparent key-value store with per-entry TTLs:
// Get must return exactly the []byte previously passed to Set for the same
// key. Implementations must not prepend metadata, transcode, or otherwise
// mutate values, and must be safe for concurrent use.
//
// Eviction policy belongs to the store, not to the cache layer above it.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotSupported is returned by stores that cannot implement an operation
// (e.g. counters on stores without atomic increments).
var ErrNotSupported = errors.New("store: operation not supported")

// Store is the uniform backend contract. A ttl of 0 means the entry never
// expires; negative ttl is invalid and may be treated as 0.
type Store interface {
	// Get returns (value, true, nil) on hit; (nil, false, nil) on miss.
	// IO/remote errors return (nil, false, err).
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores value under key. Returns ok=false when the store rejected
	// the write (e.g. under memory pressure).
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)

	// Add stores value only when key is absent. Returns ok=false when the
	// key already exists.
	Add(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)

	// Delete removes key. Returns ok=false when the key did not exist.
	Delete(ctx context.Context, key string) (bool, error)

	// GetMany returns values aligned with keys; a nil slot is a miss.
	GetMany(ctx context.Context, keys ...string) ([][]byte, error)

	// SetMany stores every pair with one shared TTL.
	SetMany(ctx context.Context, items map[string][]byte, ttl time.Duration) (bool, error)

	// DeleteMany removes keys and reports the ones actually deleted.
	// When continueOnError is false, it stops at the first failed delete.
	DeleteMany(ctx context.Context, continueOnError bool, keys ...string) ([]string, error)

	// Has reports key existence without fetching the value.
	Has(ctx context.Context, key string) (bool, error)

	// Clear drops all entries this store owns.
	Clear(ctx context.Context) (bool, error)

	// Incr/Decr atomically adjust an integer value, creating it when absent.
	Incr(ctx context.Context, key string, delta int64) (int64, error)
	Decr(ctx context.Context, key string, delta int64) (int64, error)

	// Close releases resources.
	Close(ctx context.Context) error
}
