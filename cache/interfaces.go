package cache

import (
	"context"
	"time"

	"github.com/huykn/dataquery/types"
)

// Logger defines the interface for logging in the query cache.
type Logger interface {
	// Debug logs a debug message.
	Debug(msg string, args ...any)

	// Info logs an info message.
	Info(msg string, args ...any)

	// Warn logs a warning message.
	Warn(msg string, args ...any)

	// Error logs an error message.
	Error(msg string, args ...any)
}

// Marshaller defines the interface for serializing persisted entries.
type Marshaller interface {
	// Marshal serializes a value to bytes.
	Marshal(v any) ([]byte, error)

	// Unmarshal deserializes a value from bytes.
	Unmarshal(data []byte, v any) error
}

// EvictFunc is called when a local cache drops a value because of capacity
// or expiry. Implementations may also call it for explicit deletes.
type EvictFunc func(key string, value any)

// LocalCache holds entries that no longer have subscribers until their
// retention window elapses.
type LocalCache interface {
	// Get retrieves a value from the local cache.
	Get(key string) (any, bool)

	// Set stores a value in the local cache for the retention window.
	Set(key string, value any, cost int64) bool

	// Delete removes a value from the local cache.
	Delete(key string)

	// Clear removes all values from the local cache.
	Clear()

	// Close closes the local cache.
	Close()

	// Metrics returns cache metrics.
	Metrics() LocalCacheMetrics
}

// LocalCacheMetrics represents local cache metrics.
type LocalCacheMetrics struct {
	Hits      int64
	Misses    int64
	Evictions int64
	Size      int64
}

// LocalCacheFactory defines the interface for creating local cache implementations.
type LocalCacheFactory interface {
	// Create creates a local cache that expires values after ttl.
	Create(ttl time.Duration, onEvict EvictFunc) (LocalCache, error)
}

// Store defines the interface for persisting successful entries (e.g., Redis).
type Store interface {
	// Get retrieves a value from the store.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value in the store. A zero ttl keeps it until deleted.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a value from the store.
	Delete(ctx context.Context, key string) error

	// Clear removes all values written by this store.
	Clear(ctx context.Context) error

	// Close closes the store connection.
	Close() error
}

// Synchronizer broadcasts invalidations to other processes.
type Synchronizer interface {
	// Subscribe starts listening for invalidation events.
	Subscribe(ctx context.Context) error

	// Publish publishes an invalidation event.
	Publish(ctx context.Context, event types.InvalidationEvent) error

	// OnInvalidate registers a callback for invalidation events.
	OnInvalidate(callback func(event types.InvalidationEvent))

	// Close closes the synchronizer.
	Close() error
}

// InvalidationEvent is an alias for types.InvalidationEvent.
type InvalidationEvent = types.InvalidationEvent

// Action constants for cache synchronization.
const (
	ActionInvalidate = types.Invalidate
	ActionRemove     = types.Remove
	ActionClear      = types.Clear
)

// Stats represents coordinator statistics.
type Stats struct {
	// Hits counts observations answered by fresh data.
	Hits int64
	// StaleHits counts observations answered by stale data while revalidating.
	StaleHits int64
	// Misses counts observations that had to wait for a fetch.
	Misses int64
	// Joins counts observations attached to a fetch already in flight.
	Joins int64
	// Fetches counts requests issued to a fetch function.
	Fetches int64
	// Retries counts repeated attempts after a retryable failure.
	Retries int64
	// Discarded counts responses dropped as out of order or unobserved.
	Discarded int64
	// Invalidations counts entries marked stale.
	Invalidations int64
	// Evictions counts retained entries dropped by the local cache.
	Evictions int64

	ActiveEntries   int64
	RetainedEntries int64
}
