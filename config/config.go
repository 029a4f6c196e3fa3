// Package config loads dataquery settings from a YAML file, a .env file and
// the environment.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"

	"github.com/huykn/dataquery/cache"
	"github.com/huykn/dataquery/storage"
)

// Local cache kinds.
const (
	LocalCacheLRU = "lru"
	LocalCacheLFU = "lfu"
)

// Config is the complete configuration of a dataquery process.
type Config struct {
	PodID    string `yaml:"pod_id" env:"DATAQUERY_POD_ID" env-default:"default-pod"`
	Debug    bool   `yaml:"debug" env:"DATAQUERY_DEBUG" env-default:"false"`
	LogLevel string `yaml:"log_level" env:"DATAQUERY_LOG_LEVEL" env-default:"info"`

	Cache CacheConfig `yaml:"cache"`
	Redis RedisConfig `yaml:"redis"`
}

// CacheConfig configures the query cache coordinator.
type CacheConfig struct {
	StaleTime     time.Duration `yaml:"stale_time" env:"DATAQUERY_STALE_TIME" env-default:"1m"`
	GCTime        time.Duration `yaml:"gc_time" env:"DATAQUERY_GC_TIME" env-default:"5m"`
	Timeout       time.Duration `yaml:"timeout" env:"DATAQUERY_TIMEOUT" env-default:"30s"`
	RetryCount    int           `yaml:"retry_count" env:"DATAQUERY_RETRY_COUNT" env-default:"3"`
	RetryDelay    time.Duration `yaml:"retry_delay" env:"DATAQUERY_RETRY_DELAY" env-default:"1s"`
	MaxRetryDelay time.Duration `yaml:"max_retry_delay" env:"DATAQUERY_MAX_RETRY_DELAY" env-default:"30s"`

	// LocalCache is "lru" or "lfu".
	LocalCache string `yaml:"local_cache" env:"DATAQUERY_LOCAL_CACHE" env-default:"lru"`
	MaxSize    int    `yaml:"max_size" env:"DATAQUERY_LOCAL_CACHE_SIZE" env-default:"10000"`
}

// RedisConfig configures persistence and cross-process invalidation. Both
// are off while Addr is empty.
type RedisConfig struct {
	Addr       string        `yaml:"addr" env:"DATAQUERY_REDIS_ADDR"`
	Password   string        `yaml:"password" env:"DATAQUERY_REDIS_PASSWORD"`
	DB         int           `yaml:"db" env:"DATAQUERY_REDIS_DB" env-default:"0"`
	KeyPrefix  string        `yaml:"key_prefix" env:"DATAQUERY_REDIS_PREFIX" env-default:"dataquery:"`
	Channel    string        `yaml:"channel" env:"DATAQUERY_REDIS_CHANNEL" env-default:"dataquery:invalidate"`
	Format     string        `yaml:"format" env:"DATAQUERY_REDIS_FORMAT" env-default:"json"`
	PersistTTL time.Duration `yaml:"persist_ttl" env:"DATAQUERY_PERSIST_TTL" env-default:"24h"`
}

// Enabled reports whether Redis is configured.
func (r RedisConfig) Enabled() bool {
	return r.Addr != ""
}

// Load reads path when it is set, then the environment. Variables from a
// .env file in the working directory are loaded first when the file exists.
func Load(path string) (*Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if path != "" {
		if err := cleanenv.ReadConfig(path, cfg); err != nil {
			return nil, fmt.Errorf("config error: %w", err)
		}
	} else if err := cleanenv.ReadEnv(cfg); err != nil {
		return nil, fmt.Errorf("config error: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadEnvFiles loads variables from the given .env files without
// overriding variables that are already set.
func LoadEnvFiles(files ...string) error {
	return godotenv.Load(files...)
}

func loadDotEnv(file string) error {
	if _, err := os.Stat(file); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(file); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	return nil
}

// Validate checks the values that cannot be expressed by defaults.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Cache.LocalCache) {
	case LocalCacheLRU, LocalCacheLFU:
	default:
		return fmt.Errorf("config error: unknown local cache %q", c.Cache.LocalCache)
	}
	if c.Cache.MaxSize <= 0 {
		return errors.New("config error: local cache size must be positive")
	}
	if _, err := storage.GetSerializer(c.Redis.Format); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	return nil
}

// CacheOptions returns coordinator options for this configuration. Store and
// Synchronizer are left for the caller to wire.
func (c *Config) CacheOptions() cache.Options {
	opts := cache.DefaultOptions()
	opts.PodID = c.PodID
	opts.DebugMode = c.Debug
	opts.StaleTime = c.Cache.StaleTime
	opts.GCTime = c.Cache.GCTime
	opts.Timeout = c.Cache.Timeout
	opts.RetryCount = c.Cache.RetryCount
	opts.RetryDelay = c.Cache.RetryDelay
	opts.MaxRetryDelay = c.Cache.MaxRetryDelay
	opts.PersistTTL = c.Redis.PersistTTL
	opts.LocalCacheConfig.MaxSize = c.Cache.MaxSize

	if strings.ToLower(c.Cache.LocalCache) == LocalCacheLFU {
		lfu := cache.DefaultLocalCacheConfig()
		lfu.MaxCost = int64(c.Cache.MaxSize)
		lfu.NumCounters = 10 * int64(c.Cache.MaxSize)
		opts.LocalCacheConfig = lfu
		opts.LocalCacheFactory = cache.NewLFUCacheFactory(lfu)
	} else {
		opts.LocalCacheFactory = cache.NewLRUCacheFactory(c.Cache.MaxSize)
	}

	if s, err := storage.GetSerializer(c.Redis.Format); err == nil {
		opts.Marshaller = s
	}
	return opts
}

// StorageConfig returns the Redis store settings.
func (c *Config) StorageConfig() storage.RedisConfig {
	return storage.RedisConfig{
		Addr:      c.Redis.Addr,
		Password:  c.Redis.Password,
		DB:        c.Redis.DB,
		KeyPrefix: c.Redis.KeyPrefix,
	}
}

// Logger returns a structured logger writing to w at LogLevel.
func (c *Config) Logger(w io.Writer) cache.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	if c.Debug {
		level = slog.LevelDebug
	}
	return cache.NewSlogLogger(w, level)
}
