package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
	customvalidator "github.com/spounge-ai/easycache/pkg/validator"
)

// EnvPrefix prefixes every environment override, e.g. EASYCACHE_CACHE_BACKEND.
const EnvPrefix = "EASYCACHE"

type Config struct {
	Cache CacheConfig `mapstructure:"cache"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Cache: CacheConfig{
			Local: LocalConfig{CleanupInterval: DefaultCleanupInterval},
			Remote: RemoteConfig{
				WriteServerList:  DefaultEndpoint,
				ReadServerList:   DefaultEndpoint,
				MaxWritePoolSize: DefaultPoolSize,
				MaxReadPoolSize:  DefaultPoolSize,
				PoolTimeout:      DefaultPoolTimeout,
				DialTimeout:      DefaultDialTimeout,
				ReadTimeout:      DefaultIOTimeout,
				WriteTimeout:     DefaultIOTimeout,
				CircuitBreaker: CircuitBreakerConfig{
					MaxFailures:  DefaultBreakerMaxFailures,
					ResetTimeout: DefaultBreakerResetTimeout,
				},
			},
		},
	}
}

// Load reads the configuration from path, or from cache.yaml in ./configs
// or the working directory when path is empty. A missing file is not an
// error: every field falls back to its default and the Local backend is
// selected.
func Load(path string) (*Config, error) {
	vip := newViper()
	if path != "" {
		vip.SetConfigFile(path)
	} else {
		vip.SetConfigName("cache")
		vip.AddConfigPath("./configs")
		vip.AddConfigPath(".")
	}
	return load(vip)
}

func newViper() *viper.Viper {
	vip := viper.New()
	vip.SetConfigType("yaml")
	vip.SetEnvPrefix(EnvPrefix)
	vip.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	vip.AutomaticEnv()
	setDefaults(vip)
	return vip
}

func setDefaults(vip *viper.Viper) {
	vip.SetDefault("cache.backend", "")
	vip.SetDefault("cache.local.enabled", false)
	vip.SetDefault("cache.local.cleanup_interval", DefaultCleanupInterval)
	vip.SetDefault("cache.remote.enabled", false)
	vip.SetDefault("cache.remote.write_server_list", DefaultEndpoint)
	vip.SetDefault("cache.remote.read_server_list", DefaultEndpoint)
	vip.SetDefault("cache.remote.max_write_pool_size", DefaultPoolSize)
	vip.SetDefault("cache.remote.max_read_pool_size", DefaultPoolSize)
	vip.SetDefault("cache.remote.pool_timeout", DefaultPoolTimeout)
	vip.SetDefault("cache.remote.dial_timeout", DefaultDialTimeout)
	vip.SetDefault("cache.remote.read_timeout", DefaultIOTimeout)
	vip.SetDefault("cache.remote.write_timeout", DefaultIOTimeout)
	vip.SetDefault("cache.remote.password", "")
	vip.SetDefault("cache.remote.db", 0)
	vip.SetDefault("cache.remote.circuit_breaker.enabled", false)
	vip.SetDefault("cache.remote.circuit_breaker.max_failures", DefaultBreakerMaxFailures)
	vip.SetDefault("cache.remote.circuit_breaker.reset_timeout", DefaultBreakerResetTimeout)
	vip.SetDefault("cache.memcached.enabled", false)
}

func load(vip *viper.Viper) (*Config, error) {
	if err := vip.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		// An explicit path that does not exist surfaces as a path error,
		// which still means "no configuration".
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := vip.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	validate := validator.New()
	if err := customvalidator.RegisterCustomValidators(validate); err != nil {
		return nil, fmt.Errorf("failed to register custom validators: %w", err)
	}

	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}
