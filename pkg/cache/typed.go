package cache

import (
	"context"
	"time"
)

// PopulateFunc loads a value after a cache miss.
type PopulateFunc[T any] func(ctx context.Context) (T, error)

// Get reads key from r as a T. A missing key and a value of another type
// both return the zero T and false.
func Get[T any](ctx context.Context, r Reader, key string) (T, bool, error) {
	var value T
	found, err := r.Get(ctx, key, &value)
	if err != nil || !found {
		var zero T
		return zero, false, err
	}
	return value, true, nil
}

// GetOrPopulate returns the cached value for key, or calls populate on a
// miss and stores a non-empty result for ttl. An empty result is returned
// as the zero T and nothing is stored.
//
// Concurrent misses on the same key each call populate; there is no
// deduplication, and populate runs outside any backend lock.
func GetOrPopulate[T any](ctx context.Context, rw ReadWriter, key string, populate PopulateFunc[T], ttl time.Duration) (T, error) {
	var zero T

	value, found, err := Get[T](ctx, rw, key)
	if err != nil {
		return zero, err
	}
	if found {
		return value, nil
	}
	if populate == nil {
		return zero, nil
	}
	if err := ctx.Err(); err != nil {
		return zero, err
	}

	loaded, err := populate(ctx)
	if err != nil {
		return zero, err
	}
	if isEmpty(loaded) {
		return zero, nil
	}
	if err := rw.Insert(ctx, key, loaded, EffectiveTTL(ttl)); err != nil {
		return zero, err
	}
	return loaded, nil
}
