package cache

import (
	"errors"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// LRUCacheFactory creates LRU cache instances.
type LRUCacheFactory struct {
	maxSize int
}

// NewLRUCacheFactory creates a new LRU cache factory.
func NewLRUCacheFactory(maxSize int) LocalCacheFactory {
	return &LRUCacheFactory{maxSize: maxSize}
}

// Create creates a new LRU cache instance.
func (lcf *LRUCacheFactory) Create(ttl time.Duration, onEvict EvictFunc) (LocalCache, error) {
	return NewLRUCache(lcf.maxSize, ttl, onEvict)
}

// LRUCache is a local LRU cache with per-entry expiry, using golang-lru.
type LRUCache struct {
	cache     *expirable.LRU[string, any]
	hits      int64
	misses    int64
	evictions int64
	maxSize   int64
}

// NewLRUCache creates a new LRU-based local cache.
func NewLRUCache(maxSize int, ttl time.Duration, onEvict EvictFunc) (*LRUCache, error) {
	if maxSize <= 0 {
		return nil, errors.New("lru cache size must be positive")
	}

	lc := &LRUCache{maxSize: int64(maxSize)}
	// The callback also fires for Delete and Clear.
	lc.cache = expirable.NewLRU[string, any](maxSize, func(key string, value any) {
		atomic.AddInt64(&lc.evictions, 1)
		if onEvict != nil {
			onEvict(key, value)
		}
	}, ttl)

	return lc, nil
}

// Get retrieves a value from the local cache.
func (lc *LRUCache) Get(key string) (any, bool) {
	value, found := lc.cache.Get(key)
	if found {
		atomic.AddInt64(&lc.hits, 1)
	} else {
		atomic.AddInt64(&lc.misses, 1)
	}
	return value, found
}

// Set stores a value in the local cache.
func (lc *LRUCache) Set(key string, value any, cost int64) bool {
	lc.cache.Add(key, value)
	return true
}

// Delete removes a value from the local cache.
func (lc *LRUCache) Delete(key string) {
	lc.cache.Remove(key)
}

// Clear removes all values from the local cache.
func (lc *LRUCache) Clear() {
	lc.cache.Purge()
}

// Close closes the local cache.
func (lc *LRUCache) Close() {
	lc.Clear()
}

// Len returns the number of retained values.
func (lc *LRUCache) Len() int {
	return lc.cache.Len()
}

// Metrics returns cache metrics.
func (lc *LRUCache) Metrics() LocalCacheMetrics {
	return LocalCacheMetrics{
		Hits:      atomic.LoadInt64(&lc.hits),
		Misses:    atomic.LoadInt64(&lc.misses),
		Evictions: atomic.LoadInt64(&lc.evictions),
		Size:      lc.maxSize,
	}
}
