package dataquery

import (
	"time"

	"github.com/huykn/dataquery/cache"
	"github.com/huykn/dataquery/config"
	"github.com/huykn/dataquery/hooks"
	"github.com/huykn/dataquery/notify"
	"github.com/huykn/dataquery/provider"
	"github.com/huykn/dataquery/registry"
	"github.com/huykn/dataquery/storage"
	cachesync "github.com/huykn/dataquery/sync"
	"github.com/huykn/dataquery/transfer"
)

// Config configures a dataquery client.
type Config struct {
	// PodID is the unique identifier for this pod/instance.
	// Used to ignore our own invalidations coming back over pub/sub.
	PodID string

	// Providers are the data providers by name. The one named "default"
	// serves resources that do not pick another.
	Providers provider.Set

	// Resources are registered at startup.
	Resources []registry.Resource

	// Sink receives notifications. If nil, notifications are logged.
	Sink notify.Sink

	// StaleTime is how long fetched data is served without revalidation.
	StaleTime time.Duration

	// GCTime is how long unobserved data is retained.
	GCTime time.Duration

	// Timeout bounds one fetch attempt.
	Timeout time.Duration

	// RetryCount bounds retries of transient failures.
	RetryCount int

	// RetryDelay is the first backoff interval.
	RetryDelay time.Duration

	// MaxRetryDelay caps the backoff interval.
	MaxRetryDelay time.Duration

	// LocalCacheConfig configures the retention cache.
	LocalCacheConfig LocalCacheConfig

	// LocalCacheFactory is the factory for the retention cache.
	// If nil, defaults to the LRU factory.
	LocalCacheFactory LocalCacheFactory

	// RedisAddr is the Redis server address (e.g., "localhost:6379").
	// Persistence and cross-process invalidation are disabled when empty.
	RedisAddr string

	// RedisPassword is the optional Redis password.
	RedisPassword string

	// RedisDB is the Redis database number.
	RedisDB int

	// KeyPrefix namespaces persisted entries in Redis.
	KeyPrefix string

	// InvalidationChannel is the Redis pub/sub channel for cache invalidation.
	InvalidationChannel string

	// SerializationFormat selects how entries are persisted ("json" or "json+gzip").
	SerializationFormat string

	// PersistTTL bounds how long persisted entries live.
	PersistTTL time.Duration

	// Marshaller overrides SerializationFormat.
	Marshaller Marshaller

	// Logger is the logger for debug logging.
	// If nil, defaults to no-op logger.
	Logger Logger

	// DebugMode enables debug logging.
	DebugMode bool

	// OnError is called when an error occurs in background operations.
	OnError func(error)
}

// DefaultConfig returns default client configuration.
func DefaultConfig() Config {
	return Config{
		PodID:               "default-pod",
		StaleTime:           time.Minute,
		GCTime:              5 * time.Minute,
		Timeout:             30 * time.Second,
		RetryCount:          3,
		RetryDelay:          time.Second,
		MaxRetryDelay:       30 * time.Second,
		LocalCacheConfig:    DefaultLocalCacheConfig(),
		KeyPrefix:           "dataquery:",
		InvalidationChannel: cachesync.DefaultChannel,
		SerializationFormat: storage.FormatJSON,
		PersistTTL:          24 * time.Hour,
	}
}

// Client bundles the coordinator, the hooks bound to it and a transfer
// engine.
type Client struct {
	*hooks.Client

	// Transfer runs bulk imports and exports.
	Transfer *transfer.Engine

	coordinator *cache.Coordinator
}

// New creates a client. With RedisAddr set it connects to Redis for
// persistence and cross-process invalidation.
func New(cfg Config) (*Client, error) {
	if len(cfg.Providers) == 0 {
		return nil, ErrNoProviders
	}

	reg, err := registry.New(cfg.Resources...)
	if err != nil {
		return nil, err
	}

	if cfg.Logger == nil {
		cfg.Logger = cache.NewNoOpLogger()
	}
	if cfg.Sink == nil {
		cfg.Sink = notify.NewLoggerSink(cfg.Logger)
	}

	opts := cache.Options{
		PodID:             cfg.PodID,
		StaleTime:         cfg.StaleTime,
		GCTime:            cfg.GCTime,
		Timeout:           cfg.Timeout,
		RetryCount:        cfg.RetryCount,
		RetryDelay:        cfg.RetryDelay,
		MaxRetryDelay:     cfg.MaxRetryDelay,
		LocalCacheConfig:  cfg.LocalCacheConfig,
		LocalCacheFactory: cfg.LocalCacheFactory,
		PersistTTL:        cfg.PersistTTL,
		Marshaller:        cfg.Marshaller,
		Logger:            cfg.Logger,
		DebugMode:         cfg.DebugMode,
		OnError:           cfg.OnError,
	}

	if opts.Marshaller == nil {
		s, err := storage.GetSerializer(cfg.SerializationFormat)
		if err != nil {
			return nil, err
		}
		opts.Marshaller = s
	}

	if cfg.RedisAddr != "" {
		store, err := storage.NewRedisStore(storage.RedisConfig{
			Addr:        cfg.RedisAddr,
			Password:    cfg.RedisPassword,
			DB:          cfg.RedisDB,
			KeyPrefix:   cfg.KeyPrefix,
			DialTimeout: cfg.Timeout,
		})
		if err != nil {
			return nil, err
		}
		opts.Store = store
		opts.Synchronizer = cachesync.NewPubSubSynchronizer(store.GetClient(), cfg.InvalidationChannel, cfg.PodID, cfg.Logger)
	}

	coordinator, err := cache.New(opts)
	if err != nil {
		if opts.Store != nil {
			opts.Store.Close()
		}
		return nil, err
	}

	client, err := hooks.NewClient(hooks.Config{
		Coordinator: coordinator,
		Providers:   cfg.Providers,
		Registry:    reg,
		Sink:        cfg.Sink,
		Logger:      cfg.Logger,
	})
	if err != nil {
		coordinator.Close()
		return nil, err
	}

	return &Client{
		Client:      client,
		Transfer:    transfer.NewEngine(client),
		coordinator: coordinator,
	}, nil
}

// FromConfig creates a client from loaded configuration. A nil logger
// discards logs.
func FromConfig(c *config.Config, logger Logger, providers provider.Set, resources ...registry.Resource) (*Client, error) {
	opts := c.CacheOptions()

	cfg := DefaultConfig()
	cfg.PodID = opts.PodID
	cfg.Providers = providers
	cfg.Resources = resources
	cfg.StaleTime = opts.StaleTime
	cfg.GCTime = opts.GCTime
	cfg.Timeout = opts.Timeout
	cfg.RetryCount = opts.RetryCount
	cfg.RetryDelay = opts.RetryDelay
	cfg.MaxRetryDelay = opts.MaxRetryDelay
	cfg.LocalCacheConfig = opts.LocalCacheConfig
	cfg.LocalCacheFactory = opts.LocalCacheFactory
	cfg.PersistTTL = opts.PersistTTL
	cfg.Marshaller = opts.Marshaller
	cfg.DebugMode = opts.DebugMode
	cfg.Logger = logger

	cfg.RedisAddr = c.Redis.Addr
	cfg.RedisPassword = c.Redis.Password
	cfg.RedisDB = c.Redis.DB
	cfg.KeyPrefix = c.Redis.KeyPrefix
	cfg.InvalidationChannel = c.Redis.Channel
	cfg.SerializationFormat = c.Redis.Format
	return New(cfg)
}

// Stats returns coordinator statistics.
func (c *Client) Stats() Stats {
	return c.coordinator.Stats()
}

// Close stops the coordinator and releases Redis connections.
func (c *Client) Close() error {
	return c.coordinator.Close()
}

// Stats is an alias for cache.Stats.
type Stats = cache.Stats
