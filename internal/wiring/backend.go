package wiring

import (
	"context"
	"fmt"
	"log/slog"

	infra_config "github.com/spounge-ai/easycache/internal/infra/config"
	"github.com/spounge-ai/easycache/internal/infra/remote"
	"github.com/spounge-ai/easycache/pkg/cache"
)

// ProvideBackend constructs the backend selected by cfg. It never swaps a
// failing Remote backend for Local.
func ProvideBackend(ctx context.Context, cfg *infra_config.Config, logger *slog.Logger) (cache.Backend, error) {
	if cfg == nil {
		cfg = infra_config.Default()
	}
	if logger == nil {
		logger = slog.Default()
	}

	variant := cfg.Cache.ResolveVariant()
	switch variant {
	case cache.Remote:
		return provideRemoteBackend(ctx, cfg, logger)
	default:
		return provideLocalBackend(cfg), nil
	}
}

func provideLocalBackend(cfg *infra_config.Config) cache.Backend {
	return cache.NewLocal(cache.WithCleanupInterval(cfg.Cache.Local.CleanupInterval))
}

func provideRemoteBackend(ctx context.Context, cfg *infra_config.Config, logger *slog.Logger) (cache.Backend, error) {
	params := cfg.Cache.ResolveRemoteParams()

	dialCtx, cancel := context.WithTimeout(ctx, params.DialTimeout+params.PoolTimeout)
	defer cancel()

	backend, err := remote.New(dialCtx, params, logger.With("variant", cache.Remote.String()))
	if err != nil {
		return nil, fmt.Errorf("failed to create remote cache backend: %w", err)
	}
	return backend, nil
}
