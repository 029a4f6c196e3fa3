// Package storage persists successful query results so a restarted process
// can serve them as stale data before its first fetch completes.
package storage

import (
	"context"
	"errors"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// DefaultKeyPrefix namespaces persisted entries.
const DefaultKeyPrefix = "dataquery:"

const clearBatchSize = 500

// RedisConfig configures a RedisStore.
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string

	// DialTimeout bounds the connection check done by NewRedisStore.
	DialTimeout time.Duration
}

// RedisStore implements cache.Store using Redis.
type RedisStore struct {
	client *redis.Client
	prefix string
	owned  bool
}

// NewRedisStore connects to Redis and creates a store.
func NewRedisStore(cfg RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	timeout := cfg.DialTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	// Test connection
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, pkgerrors.Wrapf(err, "connect to redis at %s", cfg.Addr)
	}

	store := NewRedisStoreFromClient(client, cfg.KeyPrefix)
	store.owned = true
	return store, nil
}

// NewRedisStoreFromClient creates a store on an existing client. The client
// is not closed by Close.
func NewRedisStoreFromClient(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &RedisStore{client: client, prefix: prefix}
}

// Get retrieves a value from Redis.
func (rs *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := rs.client.Get(ctx, rs.prefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, pkgerrors.Wrapf(err, "redis get %s", key)
	}
	return val, nil
}

// Set stores a value in Redis. A zero ttl keeps the value until deleted.
func (rs *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := rs.client.Set(ctx, rs.prefix+key, value, ttl).Err(); err != nil {
		return pkgerrors.Wrapf(err, "redis set %s", key)
	}
	return nil
}

// Delete removes a value from Redis.
func (rs *RedisStore) Delete(ctx context.Context, key string) error {
	if err := rs.client.Del(ctx, rs.prefix+key).Err(); err != nil {
		return pkgerrors.Wrapf(err, "redis del %s", key)
	}
	return nil
}

// Clear removes every key under the store prefix. Other data in the
// database is left alone.
func (rs *RedisStore) Clear(ctx context.Context) error {
	iter := rs.client.Scan(ctx, 0, rs.prefix+"*", clearBatchSize).Iterator()

	batch := make([]string, 0, clearBatchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := rs.client.Unlink(ctx, batch...).Err(); err != nil {
			return pkgerrors.Wrap(err, "redis unlink")
		}
		batch = batch[:0]
		return nil
	}

	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == clearBatchSize {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	if err := iter.Err(); err != nil {
		return pkgerrors.Wrap(err, "redis scan")
	}
	return flush()
}

// Close closes the Redis connection when the store created it.
func (rs *RedisStore) Close() error {
	if !rs.owned {
		return nil
	}
	return rs.client.Close()
}

// GetClient returns the underlying Redis client.
func (rs *RedisStore) GetClient() *redis.Client {
	return rs.client
}

// Prefix returns the key prefix of the store.
func (rs *RedisStore) Prefix() string {
	return rs.prefix
}

// ErrNotFound is returned when a key is not found.
var ErrNotFound = errors.New("key not found in redis")
