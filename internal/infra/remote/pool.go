package remote

import (
	"context"
	"errors"
	"fmt"

	"github.com/cespare/xxhash/v2"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/semaphore"

	"github.com/spounge-ai/easycache/internal/infra/config"
	"github.com/spounge-ai/easycache/pkg/cache"
	"github.com/spounge-ai/easycache/pkg/execution"
	"github.com/spounge-ai/easycache/pkg/patterns/circuitbreaker"
)

// pool is one logical connection pool (read or write) spread over one
// client per endpoint. The semaphore bounds concurrent checkouts across all
// endpoints to the configured pool size.
type pool struct {
	name    string
	size    int
	clients []*redis.Client
	slots   *semaphore.Weighted
	cfg     config.PoolConfig
	breaker *circuitbreaker.Breaker
}

func newPool(name string, endpoints []string, size int, cfg config.PoolConfig, breaker *circuitbreaker.Breaker) *pool {
	clients := make([]*redis.Client, 0, len(endpoints))
	for _, addr := range endpoints {
		clients = append(clients, redis.NewClient(&redis.Options{
			Addr:         addr,
			Password:     cfg.Password,
			DB:           cfg.DB,
			PoolSize:     size,
			PoolTimeout:  cfg.PoolTimeout,
			DialTimeout:  cfg.DialTimeout,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		}))
	}

	return &pool{
		name:    name,
		size:    size,
		clients: clients,
		slots:   semaphore.NewWeighted(int64(size)),
		cfg:     cfg,
		breaker: breaker,
	}
}

// index maps a namespaced key onto an endpoint so the same key always lands
// on the same position in both pools.
func (p *pool) index(nsKey string) int {
	return int(xxhash.Sum64String(nsKey) % uint64(len(p.clients)))
}

// checkout reserves a pool slot, waiting at most PoolTimeout.
func (p *pool) checkout(ctx context.Context) (release func(), err error) {
	_, err = execution.WithTimeout(ctx, p.cfg.PoolTimeout, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, p.slots.Acquire(ctx, 1)
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("%s pool checkout: %w", p.name, ctxErr)
		}
		return nil, fmt.Errorf("%w: %s pool has %d connections in use", cache.ErrPoolExhausted, p.name, p.size)
	}
	return func() { p.slots.Release(1) }, nil
}

// with runs fn on a dedicated connection taken from the client at idx. The
// slot and the connection are released on every exit path. fn must return
// nil for a logical miss so that misses never count against the breaker.
func (p *pool) with(ctx context.Context, idx int, fn func(ctx context.Context, conn *redis.Conn) error) error {
	release, err := p.checkout(ctx)
	if err != nil {
		return err
	}
	defer release()

	client := p.clients[idx]
	conn := client.Conn()
	defer conn.Close()

	run := func(ctx context.Context) error {
		err := fn(ctx, conn)
		if err != nil && ctx.Err() != nil {
			return fmt.Errorf("%w: %w", ctx.Err(), err)
		}
		return err
	}
	if p.breaker != nil {
		err = p.breaker.Execute(ctx, run)
	} else {
		err = run(ctx)
	}
	if err == nil {
		return nil
	}

	if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, circuitbreaker.ErrOpen) {
		return fmt.Errorf("%s %s: %w", p.name, client.Options().Addr, ctxErr)
	}
	return fmt.Errorf("%w: %s %s: %w", cache.ErrUnavailable, p.name, client.Options().Addr, err)
}

// storeFailure reports whether err counts against the circuit breaker.
// Errors caused by the caller's own cancellation or deadline do not.
func storeFailure(err error) bool {
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

// each runs fn against every endpoint and joins the failures.
func (p *pool) each(ctx context.Context, fn func(ctx context.Context, conn *redis.Conn) error) error {
	var errs []error
	for idx := range p.clients {
		if err := p.with(ctx, idx, fn); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (p *pool) close() error {
	var errs []error
	for _, client := range p.clients {
		if err := client.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s %s: %w", p.name, client.Options().Addr, err))
		}
	}
	return errors.Join(errs...)
}
