package cache

import (
	"context"
	"time"
)

// DefaultTTL is applied when a caller passes a zero or negative ttl.
const DefaultTTL = time.Hour

// Reader defines the read-only operations for a cache.
type Reader interface {
	// Get copies the stored value into dest, which must be a non-nil pointer.
	// It reports false when the key is absent, expired, or holds a value
	// that cannot be stored into dest.
	Get(ctx context.Context, key string, dest any) (bool, error)
}

// Writer defines the write operations for a cache.
type Writer interface {
	Insert(ctx context.Context, key string, value any, ttl time.Duration) error
	// Add writes only when key is absent and reports whether it did.
	Add(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Remove(ctx context.Context, key string) (bool, error)
	// RemoveBatch reports true when at least one key was removed. A failure
	// on one key does not stop removal of the others.
	RemoveBatch(ctx context.Context, keys []string) (bool, error)
	// Clean empties the whole keyspace owned by the backend.
	Clean(ctx context.Context) error
}

// ReadWriter is the part of the contract GetOrPopulate needs.
type ReadWriter interface {
	Reader
	Writer
}

// Backend is the uniform contract every storage strategy implements.
type Backend interface {
	ReadWriter
	Variant() Variant
	Ping(ctx context.Context) error
	Close() error
}

// EffectiveTTL returns ttl, or DefaultTTL when ttl is not positive.
func EffectiveTTL(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return DefaultTTL
	}
	return ttl
}
