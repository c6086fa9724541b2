package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned for lookups of unknown or expired keys.
var ErrNotFound = errors.New("storage: key not found")

// KV is the key-value surface backing session records and lobby state. The
// in-memory store serves single-node deployments and tests; the Redis store
// lets multiple server processes share sessions.
type KV interface {
	// Get returns the value stored under key or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)
	// Set stores value under key with the given TTL. A zero TTL means no
	// expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
	// Close releases backend resources.
	Close() error
}
