package cache

import (
	"time"
)

// LocalCacheConfig configures the local retention cache.
type LocalCacheConfig struct {
	// NumCounters is the number of counters for the cache (Ristretto only).
	// Recommended: 10 * MaxItems
	NumCounters int64

	// MaxCost is the maximum cost of items in the cache (Ristretto only).
	MaxCost int64

	// BufferItems is the number of items to buffer before eviction (Ristretto only).
	// Recommended: 64
	BufferItems int64

	// IgnoreInternalCost ignores the internal cost of items (Ristretto only).
	IgnoreInternalCost bool

	// MaxSize is the maximum number of retained entries (LRU only).
	MaxSize int
}

// Options configures a Coordinator instance.
type Options struct {
	// PodID identifies this process in synchronization events.
	PodID string

	// StaleTime is how long data stays fresh after it was fetched.
	// Zero makes every read revalidate.
	StaleTime time.Duration

	// GCTime is how long an entry without subscribers is retained.
	GCTime time.Duration

	// Timeout is the budget of a single fetch attempt.
	Timeout time.Duration

	// RetryCount bounds retries of transport and timeout failures.
	RetryCount int

	// RetryDelay is the first backoff interval; it grows exponentially.
	RetryDelay time.Duration

	// MaxRetryDelay caps the backoff interval.
	MaxRetryDelay time.Duration

	// LocalCacheConfig configures the local retention cache.
	LocalCacheConfig LocalCacheConfig

	// LocalCacheFactory is the factory for the retention cache.
	// If nil, defaults to the LRU factory.
	LocalCacheFactory LocalCacheFactory

	// Store persists successful entries. Optional.
	Store Store

	// PersistTTL bounds how long persisted entries live in the Store.
	PersistTTL time.Duration

	// Synchronizer broadcasts invalidations to other processes. Optional.
	Synchronizer Synchronizer

	// Marshaller is the marshaller for persisted entries.
	// If nil, defaults to JSON marshaller.
	Marshaller Marshaller

	// Logger is the logger for debug logging.
	// If nil, defaults to no-op logger.
	Logger Logger

	// DebugMode enables debug logging.
	DebugMode bool

	// OnError is called when an error occurs in background operations.
	OnError func(error)

	// Now returns the current time. If nil, defaults to time.Now.
	Now func() time.Time
}

// DefaultOptions returns default coordinator options.
func DefaultOptions() Options {
	return Options{
		PodID:            "default-pod",
		StaleTime:        time.Minute,
		GCTime:           5 * time.Minute,
		Timeout:          30 * time.Second,
		RetryCount:       3,
		RetryDelay:       time.Second,
		MaxRetryDelay:    30 * time.Second,
		PersistTTL:       24 * time.Hour,
		LocalCacheConfig: DefaultLocalCacheConfig(),
		DebugMode:        false,
	}
}

// DefaultLocalCacheConfig returns default local cache configuration.
func DefaultLocalCacheConfig() LocalCacheConfig {
	return LocalCacheConfig{
		NumCounters:        1e5,
		MaxCost:            1e4,
		BufferItems:        64,
		IgnoreInternalCost: true,
		MaxSize:            10000,
	}
}

// Validate validates the options.
func (o *Options) Validate() error {
	if o.PodID == "" {
		return ErrInvalidConfig
	}
	if o.StaleTime < 0 || o.GCTime <= 0 || o.Timeout <= 0 {
		return ErrInvalidConfig
	}
	if o.RetryCount < 0 {
		return ErrInvalidConfig
	}
	if o.RetryCount > 0 && o.RetryDelay <= 0 {
		return ErrInvalidConfig
	}
	if o.MaxRetryDelay > 0 && o.MaxRetryDelay < o.RetryDelay {
		return ErrInvalidConfig
	}
	if o.LocalCacheFactory == nil && o.LocalCacheConfig.MaxSize <= 0 {
		return ErrInvalidConfig
	}
	return nil
}

// ErrInvalidConfig is returned when options are invalid.
var ErrInvalidConfig = NewError("invalid cache configuration")

// ErrCacheClosed is returned when operations are performed on a closed coordinator.
var ErrCacheClosed = NewError("cache is closed")

// NewError creates a new error with the given message.
func NewError(msg string) error {
	return &cacheError{msg: msg}
}

type cacheError struct {
	msg string
}

func (e *cacheError) Error() string {
	return e.msg
}
