package config

import (
	"time"

	"github.com/spounge-ai/easycache/pkg/cache"
	customvalidator "github.com/spounge-ai/easycache/pkg/validator"
)

const (
	DefaultEndpoint            = "127.0.0.1:6379"
	DefaultPoolSize            = 60
	DefaultPoolTimeout         = 5 * time.Second
	DefaultDialTimeout         = 5 * time.Second
	DefaultIOTimeout           = 3 * time.Second
	DefaultCleanupInterval     = time.Minute
	DefaultBreakerMaxFailures  = 5
	DefaultBreakerResetTimeout = 30 * time.Second
)

// CacheConfig is the backend-selection record. Each named child carries an
// enabled flag; Backend, when set, selects a variant by name instead.
type CacheConfig struct {
	Backend   string          `mapstructure:"backend"`
	Local     LocalConfig     `mapstructure:"local"`
	Remote    RemoteConfig    `mapstructure:"remote"`
	Memcached MemcachedConfig `mapstructure:"memcached"`
}

// LocalConfig holds the in-process backend settings.
type LocalConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval" validate:"gte=0"`
}

// RemoteConfig holds the networked store settings.
type RemoteConfig struct {
	Enabled          bool                 `mapstructure:"enabled"`
	WriteServerList  string               `mapstructure:"write_server_list"   validate:"omitempty,endpoints"`
	ReadServerList   string               `mapstructure:"read_server_list"    validate:"omitempty,endpoints"`
	MaxWritePoolSize int                  `mapstructure:"max_write_pool_size" validate:"gte=0"`
	MaxReadPoolSize  int                  `mapstructure:"max_read_pool_size"  validate:"gte=0"`
	PoolTimeout      time.Duration        `mapstructure:"pool_timeout"        validate:"gte=0"`
	DialTimeout      time.Duration        `mapstructure:"dial_timeout"        validate:"gte=0"`
	ReadTimeout      time.Duration        `mapstructure:"read_timeout"`
	WriteTimeout     time.Duration        `mapstructure:"write_timeout"`
	Password         string               `mapstructure:"password"`
	DB               int                  `mapstructure:"db"                  validate:"gte=0"`
	CircuitBreaker   CircuitBreakerConfig `mapstructure:"circuit_breaker"`
}

// MemcachedConfig is reserved; the variant has no implementation.
type MemcachedConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// CircuitBreakerConfig holds settings for the remote circuit breaker.
type CircuitBreakerConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	MaxFailures  int           `mapstructure:"max_failures"  validate:"gte=0"`
	ResetTimeout time.Duration `mapstructure:"reset_timeout" validate:"gte=0"`
}

// PoolConfig is the resolved connection plan for the remote backend.
type PoolConfig struct {
	WriteEndpoints   []string
	ReadEndpoints    []string
	MaxWritePoolSize int
	MaxReadPoolSize  int
	PoolTimeout      time.Duration
	DialTimeout      time.Duration
	ReadTimeout      time.Duration
	WriteTimeout     time.Duration
	Password         string
	DB               int
	CircuitBreaker   CircuitBreakerConfig
}

// ResolveVariant picks the backend variant. It never fails: an unknown
// name, no enabled record, or the unimplemented Memcached all yield Local.
func (c CacheConfig) ResolveVariant() cache.Variant {
	variant := cache.Local
	switch {
	case c.Backend != "":
		variant, _ = cache.ParseVariant(c.Backend)
	case c.Local.Enabled:
		variant = cache.Local
	case c.Remote.Enabled:
		variant = cache.Remote
	case c.Memcached.Enabled:
		variant = cache.Memcached
	}

	if variant == cache.Memcached {
		return cache.Local
	}
	return variant
}

// ResolveRemoteParams returns the remote pool plan, substituting defaults
// for every missing or non-positive field.
func (c CacheConfig) ResolveRemoteParams() PoolConfig {
	r := c.Remote
	return PoolConfig{
		WriteEndpoints:   endpointsOrDefault(r.WriteServerList),
		ReadEndpoints:    endpointsOrDefault(r.ReadServerList),
		MaxWritePoolSize: positiveOr(r.MaxWritePoolSize, DefaultPoolSize),
		MaxReadPoolSize:  positiveOr(r.MaxReadPoolSize, DefaultPoolSize),
		PoolTimeout:      durationOr(r.PoolTimeout, DefaultPoolTimeout),
		DialTimeout:      durationOr(r.DialTimeout, DefaultDialTimeout),
		ReadTimeout:      durationOr(r.ReadTimeout, DefaultIOTimeout),
		WriteTimeout:     durationOr(r.WriteTimeout, DefaultIOTimeout),
		Password:         r.Password,
		DB:               r.DB,
		CircuitBreaker: CircuitBreakerConfig{
			Enabled:      r.CircuitBreaker.Enabled,
			MaxFailures:  positiveOr(r.CircuitBreaker.MaxFailures, DefaultBreakerMaxFailures),
			ResetTimeout: durationOr(r.CircuitBreaker.ResetTimeout, DefaultBreakerResetTimeout),
		},
	}
}

func endpointsOrDefault(list string) []string {
	if endpoints := customvalidator.SplitEndpoints(list); len(endpoints) > 0 {
		return endpoints
	}
	return []string{DefaultEndpoint}
}

func positiveOr(n, fallback int) int {
	if n > 0 {
		return n
	}
	return fallback
}

func durationOr(d, fallback time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return fallback
}
