package cache

import (
	"testing"
	"time"
)

func TestLFUCacheNew(t *testing.T) {
	config := DefaultLocalCacheConfig()
	cache, err := NewLFUCache(config, time.Minute, nil)
	if err != nil {
		t.Fatalf("Failed to create cache: %v", err)
	}
	defer cache.Close()

	if cache.ttl != time.Minute {
		t.Fatalf("Expected ttl 1m, got %v", cache.ttl)
	}
}

func TestLFUCacheInvalidConfig(t *testing.T) {
	_, err := NewLFUCache(LocalCacheConfig{}, time.Minute, nil)
	if err == nil {
		t.Fatal("Expected error for zero NumCounters")
	}
}

func TestLFUCacheSetGet(t *testing.T) {
	config := DefaultLocalCacheConfig()
	cache, err := NewLFUCache(config, time.Minute, nil)
	if err != nil {
		t.Fatalf("Failed to create cache: %v", err)
	}
	defer cache.Close()

	if !cache.Set("key1", "value1", 1) {
		t.Fatal("Set should succeed")
	}

	value, found := cache.Get("key1")
	if !found {
		t.Fatal("Value should be found")
	}
	if value != "value1" {
		t.Fatalf("Expected 'value1', got %v", value)
	}
}

func TestLFUCacheDelete(t *testing.T) {
	config := DefaultLocalCacheConfig()
	cache, err := NewLFUCache(config, time.Minute, nil)
	if err != nil {
		t.Fatalf("Failed to create cache: %v", err)
	}
	defer cache.Close()

	cache.Set("key1", "value1", 1)
	cache.Delete("key1")

	if _, found := cache.Get("key1"); found {
		t.Fatal("Value should not be found after deletion")
	}
}

func TestLFUCacheClear(t *testing.T) {
	config := DefaultLocalCacheConfig()
	cache, err := NewLFUCache(config, time.Minute, nil)
	if err != nil {
		t.Fatalf("Failed to create cache: %v", err)
	}
	defer cache.Close()

	cache.Set("key1", "value1", 1)
	cache.Set("key2", "value2", 1)
	cache.Clear()

	_, found1 := cache.Get("key1")
	_, found2 := cache.Get("key2")
	if found1 || found2 {
		t.Fatal("Cache should be empty after clear")
	}
}

func TestLFUCacheExpiry(t *testing.T) {
	config := DefaultLocalCacheConfig()
	cache, err := NewLFUCache(config, 20*time.Millisecond, nil)
	if err != nil {
		t.Fatalf("Failed to create cache: %v", err)
	}
	defer cache.Close()

	cache.Set("key1", "value1", 1)
	time.Sleep(50 * time.Millisecond)

	if _, found := cache.Get("key1"); found {
		t.Fatal("Value should have expired")
	}
}

func TestLFUCacheMetrics(t *testing.T) {
	config := DefaultLocalCacheConfig()
	cache, err := NewLFUCache(config, time.Minute, nil)
	if err != nil {
		t.Fatalf("Failed to create cache: %v", err)
	}
	defer cache.Close()

	cache.Set("key1", "value1", 1)
	cache.Get("key1") // Hit
	cache.Get("key2") // Miss

	metrics := cache.Metrics()
	if metrics.Hits != 1 {
		t.Fatalf("Expected 1 hit, got %d", metrics.Hits)
	}
	if metrics.Misses != 1 {
		t.Fatalf("Expected 1 miss, got %d", metrics.Misses)
	}
}

func TestLFUCacheFactoryCreate(t *testing.T) {
	factory := NewLFUCacheFactory(DefaultLocalCacheConfig())
	cache, err := factory.Create(time.Minute, nil)
	if err != nil {
		t.Fatalf("Failed to create cache from factory: %v", err)
	}
	defer cache.Close()

	cache.Set("test", "value", 1)
	if value, found := cache.Get("test"); !found || value != "value" {
		t.Fatalf("Expected 'value', got %v (found=%v)", value, found)
	}
}
