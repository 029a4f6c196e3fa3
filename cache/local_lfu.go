package cache

import (
	"sync/atomic"
	"time"

	lfu "github.com/dgraph-io/ristretto"
)

// LFUCacheFactory creates Ristretto cache instances.
type LFUCacheFactory struct {
	config LocalCacheConfig
}

// NewLFUCacheFactory creates a new Ristretto cache factory.
func NewLFUCacheFactory(config LocalCacheConfig) LocalCacheFactory {
	return &LFUCacheFactory{config: config}
}

// Create creates a new Ristretto cache instance.
func (rcf *LFUCacheFactory) Create(ttl time.Duration, onEvict EvictFunc) (LocalCache, error) {
	return NewLFUCache(rcf.config, ttl, onEvict)
}

// lfuItem keeps the string key next to the value; ristretto only hands the
// hashed key to its eviction callback.
type lfuItem struct {
	key   string
	value any
}

// NewLFUCache creates a new Ristretto-based local cache.
func NewLFUCache(config LocalCacheConfig, ttl time.Duration, onEvict EvictFunc) (*LFUCache, error) {
	rc := &LFUCache{ttl: ttl}

	dropped := func(item *lfu.Item) {
		atomic.AddInt64(&rc.evictions, 1)
		if it, ok := item.Value.(lfuItem); ok && onEvict != nil {
			onEvict(it.key, it.value)
		}
	}

	cache, err := lfu.NewCache(&lfu.Config{
		NumCounters:        config.NumCounters,
		MaxCost:            config.MaxCost,
		BufferItems:        config.BufferItems,
		IgnoreInternalCost: config.IgnoreInternalCost,
		OnEvict:            dropped,
		OnReject:           dropped,
	})
	if err != nil {
		return nil, err
	}

	rc.cache = cache
	return rc, nil
}

// LFUCache is a local LFU cache implementation using ristretto.
type LFUCache struct {
	cache     *lfu.Cache
	ttl       time.Duration
	hits      int64
	misses    int64
	evictions int64
}

// Get retrieves a value from the local cache.
func (rc *LFUCache) Get(key string) (any, bool) {
	value, found := rc.cache.Get(key)
	if found {
		atomic.AddInt64(&rc.hits, 1)
		return value.(lfuItem).value, true
	}
	atomic.AddInt64(&rc.misses, 1)
	return nil, false
}

// Set stores a value in the local cache. Ristretto may reject the value
// under its admission policy, in which case Set returns false.
func (rc *LFUCache) Set(key string, value any, cost int64) bool {
	ok := rc.cache.SetWithTTL(key, lfuItem{key: key, value: value}, cost, rc.ttl)
	rc.cache.Wait()
	return ok
}

// Delete removes a value from the local cache.
func (rc *LFUCache) Delete(key string) {
	rc.cache.Del(key)
	rc.cache.Wait()
}

// Clear removes all values from the local cache.
func (rc *LFUCache) Clear() {
	rc.cache.Clear()
}

// Close closes the local cache.
func (rc *LFUCache) Close() {
	rc.cache.Close()
}

// Metrics returns cache metrics.
func (rc *LFUCache) Metrics() LocalCacheMetrics {
	return LocalCacheMetrics{
		Hits:      atomic.LoadInt64(&rc.hits),
		Misses:    atomic.LoadInt64(&rc.misses),
		Evictions: atomic.LoadInt64(&rc.evictions),
		Size:      int64(rc.cache.MaxCost()),
	}
}
