// Package cache stores scored batch results so an identical upload against
// the same bundle and threshold is answered without re-scoring.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/DharaniManchala/credit-card-fraud-detector/internal/domain"
)

// New creates a cache based on configuration.
// "memory" returns an LRU cache, "redis" returns Redis (wrapped in a
// TwoPhaseCache when EnableTwoPhase is set) and "none" disables caching.
func New(cfg domain.CacheConfig) (domain.Cache, error) {
	switch cfg.Type {
	case "memory":
		return NewLRUCache(cfg.LocalMaxSize), nil

	case "redis":
		if cfg.EnableTwoPhase {
			return NewTwoPhaseCache(cfg)
		}
		return NewRedisCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)

	case "none", "":
		return nopCache{}, nil

	default:
		return nil, fmt.Errorf("unsupported cache type: %s", cfg.Type)
	}
}

// ResultKey identifies a batch by the digest of its upload and the
// threshold it was scored with. The bundle ID is the namespace.
func ResultKey(upload []byte, threshold float64) string {
	sum := sha256.Sum256(upload)
	return "batch:" + hex.EncodeToString(sum[:]) + ":" + strconv.FormatFloat(threshold, 'f', -1, 64)
}

func requireNamespace(namespace string) error {
	if namespace == "" {
		return fmt.Errorf("%w: cache namespace is required", domain.ErrInvalidInput)
	}
	return nil
}

// rawCache is the byte level subset every implementation provides.
type rawCache interface {
	Get(ctx context.Context, namespace string, key string) ([]byte, error)
	Set(ctx context.Context, namespace string, key string, value []byte, ttl time.Duration) error
}

func getBatchResult(ctx context.Context, c rawCache, namespace, key string) (*domain.BatchResult, error) {
	data, err := c.Get(ctx, namespace, key)
	if err != nil || data == nil {
		return nil, err
	}

	var result domain.BatchResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to decode cached result: %w", err)
	}
	return &result, nil
}

func setBatchResult(ctx context.Context, c rawCache, namespace, key string, result *domain.BatchResult, ttl time.Duration) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}
	return c.Set(ctx, namespace, key, data, ttl)
}

// TwoPhaseCache checks a local LRU before Redis.
// L1: local LRU for fast reads
// L2: Redis, shared by every replica
type TwoPhaseCache struct {
	local  *LRUCache
	remote *RedisCache
	l1TTL  time.Duration
}

// NewTwoPhaseCache creates a two-phase cache with LRU + Redis.
func NewTwoPhaseCache(cfg domain.CacheConfig) (*TwoPhaseCache, error) {
	remote, err := NewRedisCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		return nil, fmt.Errorf("failed to create redis cache: %w", err)
	}

	l1TTL := cfg.LocalTTL
	if l1TTL == 0 {
		l1TTL = 5 * time.Minute
	}

	return &TwoPhaseCache{
		local:  NewLRUCache(cfg.LocalMaxSize),
		remote: remote,
		l1TTL:  l1TTL,
	}, nil
}

// Get retrieves from L1 first, then L2. Populates L1 on L2 hit.
func (c *TwoPhaseCache) Get(ctx context.Context, namespace string, key string) ([]byte, error) {
	val, err := c.local.Get(ctx, namespace, key)
	if err != nil {
		return nil, err
	}
	if val != nil {
		return val, nil
	}

	val, err = c.remote.Get(ctx, namespace, key)
	if err != nil {
		return nil, err
	}
	if val != nil {
		_ = c.local.Set(ctx, namespace, key, val, c.l1TTL)
	}

	return val, nil
}

// Set writes to both L1 and L2. L1 keeps the shorter of the two TTLs.
func (c *TwoPhaseCache) Set(ctx context.Context, namespace string, key string, value []byte, ttl time.Duration) error {
	l1TTL := c.l1TTL
	if ttl > 0 && ttl < l1TTL {
		l1TTL = ttl
	}
	if err := c.local.Set(ctx, namespace, key, value, l1TTL); err != nil {
		return err
	}
	return c.remote.Set(ctx, namespace, key, value, ttl)
}

// Delete removes from both L1 and L2.
func (c *TwoPhaseCache) Delete(ctx context.Context, namespace string, key string) error {
	if err := c.local.Delete(ctx, namespace, key); err != nil {
		return err
	}
	return c.remote.Delete(ctx, namespace, key)
}

// GetBatchResult retrieves a cached batch result.
func (c *TwoPhaseCache) GetBatchResult(ctx context.Context, namespace string, key string) (*domain.BatchResult, error) {
	return getBatchResult(ctx, c, namespace, key)
}

// SetBatchResult caches a batch result in both tiers.
func (c *TwoPhaseCache) SetBatchResult(ctx context.Context, namespace string, key string, result *domain.BatchResult, ttl time.Duration) error {
	return setBatchResult(ctx, c, namespace, key, result, ttl)
}

// Ping checks both L1 and L2 health.
func (c *TwoPhaseCache) Ping(ctx context.Context) error {
	if err := c.local.Ping(ctx); err != nil {
		return fmt.Errorf("L1 ping failed: %w", err)
	}
	if err := c.remote.Ping(ctx); err != nil {
		return fmt.Errorf("L2 ping failed: %w", err)
	}
	return nil
}

// Close closes both L1 and L2.
func (c *TwoPhaseCache) Close() error {
	_ = c.local.Close()
	return c.remote.Close()
}

// Stats returns L1 cache statistics.
func (c *TwoPhaseCache) Stats() Stats {
	return c.local.Stats()
}

// nopCache never stores anything.
type nopCache struct{}

func (nopCache) Get(context.Context, string, string) ([]byte, error) { return nil, nil }

func (nopCache) Set(context.Context, string, string, []byte, time.Duration) error { return nil }

func (nopCache) Delete(context.Context, string, string) error { return nil }

func (nopCache) GetBatchResult(context.Context, string, string) (*domain.BatchResult, error) {
	return nil, nil
}

func (nopCache) SetBatchResult(context.Context, string, string, *domain.BatchResult, time.Duration) error {
	return nil
}

func (nopCache) Ping(context.Context) error { return nil }

func (nopCache) Close() error { return nil }
