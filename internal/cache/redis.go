package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/DharaniManchala/credit-card-fraud-detector/internal/domain"
)

const redisKeyPrefix = "fraudscore:"

// RedisCache implements domain.Cache using Redis.
// Used as the Pro tier cache and as L2 in two-phase caching.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache connects to Redis and verifies the connection.
func NewRedisCache(addr, password string, db int) (*RedisCache, error) {
	if addr == "" {
		addr = "localhost:6379"
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisCache{client: client}, nil
}

// Get retrieves a value. Returns nil, nil when the key is absent.
func (c *RedisCache) Get(ctx context.Context, namespace string, key string) ([]byte, error) {
	if err := requireNamespace(namespace); err != nil {
		return nil, err
	}

	val, err := c.client.Get(ctx, c.makeKey(namespace, key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return val, nil
}

// Set stores a value. A non-positive ttl never expires.
func (c *RedisCache) Set(ctx context.Context, namespace string, key string, value []byte, ttl time.Duration) error {
	if err := requireNamespace(namespace); err != nil {
		return err
	}
	if ttl < 0 {
		ttl = 0
	}
	return c.client.Set(ctx, c.makeKey(namespace, key), value, ttl).Err()
}

// Delete removes a value from Redis.
func (c *RedisCache) Delete(ctx context.Context, namespace string, key string) error {
	if err := requireNamespace(namespace); err != nil {
		return err
	}
	return c.client.Del(ctx, c.makeKey(namespace, key)).Err()
}

// GetBatchResult retrieves a cached batch result.
func (c *RedisCache) GetBatchResult(ctx context.Context, namespace string, key string) (*domain.BatchResult, error) {
	return getBatchResult(ctx, c, namespace, key)
}

// SetBatchResult caches a batch result.
func (c *RedisCache) SetBatchResult(ctx context.Context, namespace string, key string, result *domain.BatchResult, ttl time.Duration) error {
	return setBatchResult(ctx, c, namespace, key, result, ttl)
}

// Ping checks Redis connectivity.
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (c *RedisCache) Close() error {
	return c.client.Close()
}

func (c *RedisCache) makeKey(namespace, key string) string {
	return redisKeyPrefix + namespace + ":" + key
}
