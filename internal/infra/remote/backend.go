package remote

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/spounge-ai/easycache/internal/infra/config"
	"github.com/spounge-ai/easycache/pkg/cache"
	"github.com/spounge-ai/easycache/pkg/patterns/batch"
	"github.com/spounge-ai/easycache/pkg/patterns/circuitbreaker"
)

// Prefix namespaces every key this backend sends over the wire.
const Prefix = "cache.redis."

// Backend is a cache.Backend over a Redis-protocol store. Get uses the read
// pool; every mutation uses the write pool.
type Backend struct {
	read   *pool
	write  *pool
	logger *slog.Logger

	closeOnce sync.Once
	closed    atomic.Bool
}

var _ cache.Backend = (*Backend)(nil)

// New builds both pools and pings every endpoint. The backend is not
// returned when any endpoint is unreachable.
func New(ctx context.Context, cfg config.PoolConfig, logger *slog.Logger) (*Backend, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if len(cfg.ReadEndpoints) == 0 || len(cfg.WriteEndpoints) == 0 {
		return nil, fmt.Errorf("remote cache needs at least one read and one write endpoint")
	}

	var breaker *circuitbreaker.Breaker
	if cfg.CircuitBreaker.Enabled {
		breaker = circuitbreaker.New(cfg.CircuitBreaker.MaxFailures, cfg.CircuitBreaker.ResetTimeout,
			circuitbreaker.WithStateChange(func(from, to circuitbreaker.State) {
				logger.Warn("remote cache circuit breaker changed state", "from", from.String(), "to", to.String())
			}),
			circuitbreaker.WithFailurePredicate(storeFailure),
		)
	}

	b := &Backend{
		read:   newPool("read", cfg.ReadEndpoints, cfg.MaxReadPoolSize, cfg, breaker),
		write:  newPool("write", cfg.WriteEndpoints, cfg.MaxWritePoolSize, cfg, breaker),
		logger: logger,
	}

	if err := b.Ping(ctx); err != nil {
		_ = b.Close()
		return nil, err
	}

	logger.Info("remote cache connected",
		"read_endpoints", cfg.ReadEndpoints,
		"write_endpoints", cfg.WriteEndpoints,
		"max_read_pool_size", cfg.MaxReadPoolSize,
		"max_write_pool_size", cfg.MaxWritePoolSize,
	)
	return b, nil
}

func (b *Backend) Variant() cache.Variant { return cache.Remote }

// Ping checks every endpoint of both pools.
func (b *Backend) Ping(ctx context.Context) error {
	if b.closed.Load() {
		return cache.ErrClosed
	}
	ping := func(ctx context.Context, conn *redis.Conn) error {
		return conn.Ping(ctx).Err()
	}
	return errors.Join(b.read.each(ctx, ping), b.write.each(ctx, ping))
}

func (b *Backend) Insert(ctx context.Context, key string, value any, ttl time.Duration) error {
	raw, err := b.prepare(value)
	if err != nil {
		return err
	}

	nsKey := Prefix + key
	return b.write.with(ctx, b.write.index(nsKey), func(ctx context.Context, conn *redis.Conn) error {
		return conn.Set(ctx, nsKey, raw, cache.EffectiveTTL(ttl)).Err()
	})
}

// Add uses the store's conditional write so concurrent clients in any
// process see at most one success.
func (b *Backend) Add(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	raw, err := b.prepare(value)
	if err != nil {
		return false, err
	}

	nsKey := Prefix + key
	var added bool
	err = b.write.with(ctx, b.write.index(nsKey), func(ctx context.Context, conn *redis.Conn) error {
		var err error
		added, err = conn.SetNX(ctx, nsKey, raw, cache.EffectiveTTL(ttl)).Result()
		return err
	})
	if err != nil {
		return false, err
	}
	return added, nil
}

// Get decodes the stored value into dest. A value that does not decode
// into dest's type reads as a miss.
func (b *Backend) Get(ctx context.Context, key string, dest any) (bool, error) {
	target, err := cache.CheckDestination(dest)
	if err != nil {
		return false, err
	}
	if b.closed.Load() {
		return false, cache.ErrClosed
	}

	nsKey := Prefix + key
	var raw []byte
	err = b.read.with(ctx, b.read.index(nsKey), func(ctx context.Context, conn *redis.Conn) error {
		var err error
		raw, err = conn.Get(ctx, nsKey).Bytes()
		if errors.Is(err, redis.Nil) {
			raw = nil
			return nil
		}
		return err
	})
	if err != nil {
		return false, err
	}
	if raw == nil {
		return false, nil
	}

	if err := decodeInto(raw, target); err != nil {
		b.logger.DebugContext(ctx, "remote cache value does not match destination type",
			"key", key, "type", target.Type().String(), "error", err)
		return false, nil
	}
	return true, nil
}

func (b *Backend) Remove(ctx context.Context, key string) (bool, error) {
	if b.closed.Load() {
		return false, cache.ErrClosed
	}

	nsKey := Prefix + key
	var removed int64
	err := b.write.with(ctx, b.write.index(nsKey), func(ctx context.Context, conn *redis.Conn) error {
		var err error
		removed, err = conn.Del(ctx, nsKey).Result()
		return err
	})
	if err != nil {
		return false, err
	}
	return removed > 0, nil
}

type removal struct {
	idx  int
	keys []string
}

// RemoveBatch issues one DEL per write endpoint. A failing endpoint does
// not stop the others; its error is joined into the result.
func (b *Backend) RemoveBatch(ctx context.Context, keys []string) (bool, error) {
	if b.closed.Load() {
		return false, cache.ErrClosed
	}
	if len(keys) == 0 {
		return false, nil
	}

	groups := make(map[int][]string)
	for _, key := range keys {
		nsKey := Prefix + key
		idx := b.write.index(nsKey)
		groups[idx] = append(groups[idx], nsKey)
	}
	requests := make([]removal, 0, len(groups))
	for idx, nsKeys := range groups {
		requests = append(requests, removal{idx: idx, keys: nsKeys})
	}

	processor := batch.Processor[removal, int64]{
		MaxConcurrency: len(b.write.clients),
		Process: func(ctx context.Context, req removal) (int64, error) {
			var removed int64
			err := b.write.with(ctx, req.idx, func(ctx context.Context, conn *redis.Conn) error {
				var err error
				removed, err = conn.Del(ctx, req.keys...).Result()
				return err
			})
			return removed, err
		},
	}

	var (
		total int64
		errs  []error
	)
	for _, item := range processor.ProcessBatch(ctx, requests) {
		if item.Error != nil {
			errs = append(errs, item.Error)
			continue
		}
		total += item.Result
	}
	return total > 0, errors.Join(errs...)
}

// Clean flushes every database on every write endpoint, including keys
// written by other consumers of the same store.
func (b *Backend) Clean(ctx context.Context) error {
	if b.closed.Load() {
		return cache.ErrClosed
	}
	return b.write.each(ctx, func(ctx context.Context, conn *redis.Conn) error {
		return conn.FlushAll(ctx).Err()
	})
}

// Close closes every client in both pools. It is safe to call more than once.
func (b *Backend) Close() error {
	var err error
	b.closeOnce.Do(func() {
		b.closed.Store(true)
		err = errors.Join(b.read.close(), b.write.close())
	})
	return err
}

func (b *Backend) prepare(value any) ([]byte, error) {
	if b.closed.Load() {
		return nil, cache.ErrClosed
	}
	if err := cache.CheckValue(value); err != nil {
		return nil, err
	}
	return encode(value)
}
