// Package cacheservice provides the process-facing cache handle. A Service
// selects its backend from configuration on first use, exactly once, and
// delegates every operation to that single instance until Shutdown.
package cacheservice

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/spounge-ai/easycache/internal/errors"
	infra_config "github.com/spounge-ai/easycache/internal/infra/config"
	"github.com/spounge-ai/easycache/internal/wiring"
	"github.com/spounge-ai/easycache/pkg/cache"
	"github.com/spounge-ai/easycache/pkg/patterns/lifecycle"
)

// Factory builds the backend for a resolved configuration.
type Factory func(ctx context.Context, cfg *infra_config.Config, logger *slog.Logger) (cache.Backend, error)

// Service is a lazily resolved cache.Backend. The zero value is not usable;
// create one with New and share it between consumers.
type Service struct {
	id         string
	cfg        *infra_config.Config
	configPath string
	logger     *slog.Logger
	classifier *apperrors.ErrorClassifier
	factory    Factory

	once     sync.Once
	backend  cache.Backend
	err      error
	resolved atomic.Bool

	mu     sync.RWMutex
	closed bool
}

var (
	_ cache.Backend             = (*Service)(nil)
	_ lifecycle.ManagedResource = (*Service)(nil)
)

// Option configures a Service.
type Option func(*Service)

// WithConfig uses cfg instead of loading configuration from disk.
func WithConfig(cfg *infra_config.Config) Option {
	return func(s *Service) {
		s.cfg = cfg
	}
}

// WithConfigPath loads configuration from path on first use.
func WithConfigPath(path string) Option {
	return func(s *Service) {
		s.configPath = path
	}
}

// WithLogger sets the logger failures are reported to.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithFactory replaces the backend constructor.
func WithFactory(factory Factory) Option {
	return func(s *Service) {
		s.factory = factory
	}
}

// New creates an unresolved Service. No configuration is read and no
// connection is made until the first operation or Start.
func New(opts ...Option) *Service {
	s := &Service{
		id:      uuid.NewString(),
		logger:  slog.Default(),
		factory: wiring.ProvideBackend,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.logger = s.logger.With("cache_service", s.id)
	s.classifier = apperrors.NewErrorClassifier(s.logger)
	return s
}

// ID identifies this Service in log records.
func (s *Service) ID() string { return s.id }

// Variant returns the resolved variant, or Local while unresolved.
func (s *Service) Variant() cache.Variant {
	if !s.resolved.Load() {
		return cache.Local
	}
	return s.backend.Variant()
}

// resolve constructs the backend on the first call. Concurrent first
// callers block until the single construction finishes. A construction
// error is kept and returned to every later caller.
func (s *Service) resolve(ctx context.Context) (cache.Backend, error) {
	if s.isClosed() {
		return nil, cache.ErrClosed
	}

	s.once.Do(func() {
		s.backend, s.err = s.construct(context.WithoutCancel(ctx))
		if s.err == nil {
			s.resolved.Store(true)
		}
	})

	if s.isClosed() {
		return nil, cache.ErrClosed
	}
	return s.backend, s.err
}

func (s *Service) construct(ctx context.Context) (cache.Backend, error) {
	cfg := s.cfg
	if cfg == nil {
		loaded, err := infra_config.Load(s.configPath)
		if err != nil {
			return nil, s.classifier.Report(ctx, fmt.Errorf("%w: %w", cache.ErrConstruction, err), "resolve")
		}
		cfg = loaded
	}

	backend, err := s.factory(ctx, cfg, s.logger)
	if err != nil {
		return nil, s.classifier.Report(ctx, fmt.Errorf("%w: %w", cache.ErrConstruction, err), "resolve",
			"variant", cfg.Cache.ResolveVariant().String())
	}

	s.logger.InfoContext(ctx, "cache backend resolved", "variant", backend.Variant().String())
	return backend, nil
}

func (s *Service) isClosed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

func (s *Service) Insert(ctx context.Context, key string, value any, ttl time.Duration) error {
	b, err := s.resolve(ctx)
	if err != nil {
		return err
	}
	return s.classifier.Report(ctx, b.Insert(ctx, key, value, ttl), "insert", "key", key)
}

func (s *Service) Add(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	b, err := s.resolve(ctx)
	if err != nil {
		return false, err
	}
	added, err := b.Add(ctx, key, value, ttl)
	return added, s.classifier.Report(ctx, err, "add", "key", key)
}

func (s *Service) Get(ctx context.Context, key string, dest any) (bool, error) {
	b, err := s.resolve(ctx)
	if err != nil {
		return false, err
	}
	found, err := b.Get(ctx, key, dest)
	return found, s.classifier.Report(ctx, err, "get", "key", key)
}

func (s *Service) Remove(ctx context.Context, key string) (bool, error) {
	b, err := s.resolve(ctx)
	if err != nil {
		return false, err
	}
	removed, err := b.Remove(ctx, key)
	return removed, s.classifier.Report(ctx, err, "remove", "key", key)
}

func (s *Service) RemoveBatch(ctx context.Context, keys []string) (bool, error) {
	b, err := s.resolve(ctx)
	if err != nil {
		return false, err
	}
	removed, err := b.RemoveBatch(ctx, keys)
	return removed, s.classifier.Report(ctx, err, "remove_batch", "keys", len(keys))
}

func (s *Service) Clean(ctx context.Context) error {
	b, err := s.resolve(ctx)
	if err != nil {
		return err
	}
	return s.classifier.Report(ctx, b.Clean(ctx), "clean")
}

func (s *Service) Ping(ctx context.Context) error {
	b, err := s.resolve(ctx)
	if err != nil {
		return err
	}
	return b.Ping(ctx)
}

// Close is Shutdown with a background context.
func (s *Service) Close() error {
	return s.Shutdown(context.Background())
}

// Shutdown closes the backend and releases its connections. A Service that
// was never resolved is closed without constructing anything. Every
// operation after Shutdown returns cache.ErrClosed.
func (s *Service) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	// Waits for an in-flight construction, or prevents a later one.
	s.once.Do(func() { s.err = cache.ErrClosed })

	if s.backend == nil {
		return nil
	}
	if err := s.backend.Close(); err != nil {
		return s.classifier.Report(ctx, fmt.Errorf("failed to close cache backend: %w", err), "shutdown")
	}
	s.logger.InfoContext(ctx, "cache backend closed", "variant", s.backend.Variant().String())
	return nil
}

// Start resolves the backend eagerly so configuration and connectivity
// problems surface at startup.
func (s *Service) Start(ctx context.Context) error {
	_, err := s.resolve(ctx)
	return err
}

func (s *Service) Stop(ctx context.Context) error {
	return s.Shutdown(ctx)
}

func (s *Service) Health(ctx context.Context) lifecycle.HealthStatus {
	if err := s.Ping(ctx); err != nil {
		return lifecycle.HealthStatus{Ready: false, Message: err.Error()}
	}
	return lifecycle.HealthStatus{Ready: true, Message: s.Variant().String()}
}
