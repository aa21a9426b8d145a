package domain

import (
	"context"
	"time"
)

// Cache defines the interface for caching scoring results.
// Supports two-phase caching: local LRU (Community) + Redis (Pro).
// Keys live in a namespace, normally the bundle ID, so a model reload
// never serves results computed by a previous model.
type Cache interface {
	// Get retrieves a value from cache.
	// Returns nil, nil if key not found.
	Get(ctx context.Context, namespace string, key string) ([]byte, error)

	// Set stores a value in cache with expiration.
	Set(ctx context.Context, namespace string, key string, value []byte, ttl time.Duration) error

	// Delete removes a value from cache.
	Delete(ctx context.Context, namespace string, key string) error

	// GetBatchResult retrieves a cached batch result.
	GetBatchResult(ctx context.Context, namespace string, key string) (*BatchResult, error)

	// SetBatchResult caches a batch result.
	SetBatchResult(ctx context.Context, namespace string, key string, result *BatchResult, ttl time.Duration) error

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// CacheConfig holds configuration for cache initialization.
type CacheConfig struct {
	// Type is the cache type: "memory", "redis" or "none"
	Type string `json:"type" koanf:"type"`

	// Local LRU cache settings (Community tier)
	LocalMaxSize int           `json:"localMaxSize" koanf:"local_max_size"`
	LocalTTL     time.Duration `json:"localTtl" koanf:"local_ttl"`

	// Redis settings (Pro tier)
	RedisAddr     string `json:"redisAddr" koanf:"redis_addr"`
	RedisPassword string `json:"-" koanf:"redis_password"`
	RedisDB       int    `json:"redisDb" koanf:"redis_db"`

	// Two-phase settings
	EnableTwoPhase bool `json:"enableTwoPhase" koanf:"enable_two_phase"` // If true, check local first, then Redis

	// ResultTTL is how long batch results stay cached.
	ResultTTL time.Duration `json:"resultTtl" koanf:"result_ttl"`
}
