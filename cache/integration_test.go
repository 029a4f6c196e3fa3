//go:build integration
// +build integration

package cache_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/huykn/dataquery/cache"
	"github.com/huykn/dataquery/storage"
	cachesync "github.com/huykn/dataquery/sync"
	"github.com/huykn/dataquery/types"
)

func newRedisCoordinator(t *testing.T, podID string) *cache.Coordinator {
	t.Helper()

	store, err := storage.NewRedisStore(storage.RedisConfig{
		Addr:      "localhost:6379",
		KeyPrefix: "dataquery-integration:",
	})
	if err != nil {
		t.Fatalf("Failed to connect to Redis: %v", err)
	}

	opts := cache.DefaultOptions()
	opts.PodID = podID
	opts.RetryDelay = 10 * time.Millisecond
	opts.Store = store
	opts.Synchronizer = cachesync.NewPubSubSynchronizer(store.GetClient(), "dataquery-integration", podID, nil)

	c, err := cache.New(opts)
	if err != nil {
		t.Fatalf("Failed to create coordinator: %v", err)
	}
	t.Cleanup(func() {
		store.Clear(context.Background())
		c.Close()
	})
	return c
}

func decodeTitles(data []byte) (any, error) {
	var titles []string
	err := json.Unmarshal(data, &titles)
	return titles, err
}

// TestIntegrationInvalidationAcrossPods tests invalidation across processes.
func TestIntegrationInvalidationAcrossPods(t *testing.T) {
	c1 := newRedisCoordinator(t, "pod-1")
	c2 := newRedisCoordinator(t, "pod-2")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	key := cache.DataKey("default", "posts", types.OperationList, types.ListParams{})
	version := 0
	sub, err := c2.Observe(key, cache.QueryOptions{
		Fetch: func(ctx context.Context) (any, error) {
			version++
			return version, nil
		},
	})
	if err != nil {
		t.Fatalf("Observe failed: %v", err)
	}
	defer sub.Close()

	if _, err := sub.Wait(ctx); err != nil {
		t.Fatalf("Wait failed: %v", err)
	}

	if err := c1.Invalidate(ctx, cache.ResourcePrefix("default", "posts")); err != nil {
		t.Fatalf("Invalidate failed: %v", err)
	}

	snap, err := sub.Await(ctx, func(s cache.Snapshot) bool { return s.Data == 2 && !s.IsFetching })
	if err != nil {
		t.Fatalf("Pod 2 was not invalidated: %+v: %v", snap, err)
	}
}

// TestIntegrationHydration tests serving persisted data after a restart.
func TestIntegrationHydration(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	key := cache.DataKey("default", "posts", types.OperationList, types.ListParams{})

	c1 := newRedisCoordinator(t, "pod-1")
	_, err := c1.Fetch(ctx, key, cache.QueryOptions{
		Fetch:  func(ctx context.Context) (any, error) { return []string{"persisted"}, nil },
		Decode: decodeTitles,
	})
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	// Close waits for the entry to be persisted.
	c1.Close()

	c2 := newRedisCoordinator(t, "pod-2")
	release := make(chan struct{})
	defer close(release)

	sub, err := c2.Observe(key, cache.QueryOptions{
		Fetch: func(ctx context.Context) (any, error) {
			<-release
			return []string{"network"}, nil
		},
		Decode: decodeTitles,
	})
	if err != nil {
		t.Fatalf("Observe failed: %v", err)
	}
	defer sub.Close()

	snap, err := sub.Await(ctx, func(s cache.Snapshot) bool { return s.HasData })
	if err != nil {
		t.Fatalf("Expected hydrated data: %v", err)
	}
	titles := snap.Data.([]string)
	if len(titles) != 1 || titles[0] != "persisted" || !snap.IsStale {
		t.Fatalf("Expected stale persisted data, got %+v", snap)
	}
}
