package dataquery

import (
	"github.com/huykn/dataquery/cache"
	"github.com/huykn/dataquery/notify"
	"github.com/huykn/dataquery/provider"
	"github.com/huykn/dataquery/registry"
	"github.com/huykn/dataquery/types"
)

// DataProvider is an alias for provider.DataProvider.
type DataProvider = provider.DataProvider

// Resource is an alias for registry.Resource.
type Resource = registry.Resource

// Record is an alias for types.Record.
type Record = types.Record

// Sink is an alias for notify.Sink.
type Sink = notify.Sink

// Logger is an alias for cache.Logger.
type Logger = cache.Logger

// Marshaller is an alias for cache.Marshaller.
type Marshaller = cache.Marshaller

// LocalCache is an alias for cache.LocalCache.
type LocalCache = cache.LocalCache

// LocalCacheFactory is an alias for cache.LocalCacheFactory.
type LocalCacheFactory = cache.LocalCacheFactory

// LocalCacheConfig is an alias for cache.LocalCacheConfig.
type LocalCacheConfig = cache.LocalCacheConfig

// InvalidationEvent is an alias for cache.InvalidationEvent.
type InvalidationEvent = cache.InvalidationEvent

// DefaultLocalCacheConfig returns default local cache configuration.
func DefaultLocalCacheConfig() LocalCacheConfig {
	return cache.DefaultLocalCacheConfig()
}
