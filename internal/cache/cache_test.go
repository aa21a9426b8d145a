package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/DharaniManchala/credit-card-fraud-detector/internal/domain"
)

func sampleResult() *domain.BatchResult {
	suggested := 0.95
	return &domain.BatchResult{
		BatchID:   "batch-1",
		BundleID:  "bundle-a",
		Threshold: 0.5,
		Records: []domain.ScoredRecord{
			{FraudProbability: 0.9, Prediction: domain.PredictionFraud},
			{FraudProbability: 0.1, Prediction: domain.PredictionLegit},
		},
		Total:              2,
		FraudCount:         1,
		SuggestedThreshold: &suggested,
	}
}

func TestLRUCache(t *testing.T) {
	cache := NewLRUCache(100)
	ctx := context.Background()
	ns := "bundle-a"

	t.Run("SetAndGet", func(t *testing.T) {
		if err := cache.Set(ctx, ns, "key1", []byte("value1"), time.Minute); err != nil {
			t.Fatalf("Set failed: %v", err)
		}

		val, err := cache.Get(ctx, ns, "key1")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if string(val) != "value1" {
			t.Errorf("expected 'value1', got '%s'", string(val))
		}
	})

	t.Run("GetMiss", func(t *testing.T) {
		val, err := cache.Get(ctx, ns, "nonexistent")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if val != nil {
			t.Errorf("expected nil for cache miss, got: %v", val)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		_ = cache.Set(ctx, ns, "key2", []byte("value2"), time.Minute)

		if err := cache.Delete(ctx, ns, "key2"); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
		if val, _ := cache.Get(ctx, ns, "key2"); val != nil {
			t.Error("expected nil after delete")
		}
	})

	t.Run("TTLExpiration", func(t *testing.T) {
		now := time.Now()
		c := NewLRUCache(10)
		c.now = func() time.Time { return now }

		_ = c.Set(ctx, ns, "expiring", []byte("temp"), time.Second)
		if val, _ := c.Get(ctx, ns, "expiring"); val == nil {
			t.Fatal("expected value before expiry")
		}

		now = now.Add(2 * time.Second)
		if val, _ := c.Get(ctx, ns, "expiring"); val != nil {
			t.Error("expected nil after expiry")
		}
	})

	t.Run("NoTTL", func(t *testing.T) {
		now := time.Now()
		c := NewLRUCache(10)
		c.now = func() time.Time { return now }

		_ = c.Set(ctx, ns, "forever", []byte("v"), 0)
		now = now.Add(24 * time.Hour)
		if val, _ := c.Get(ctx, ns, "forever"); val == nil {
			t.Error("entry without ttl should not expire")
		}
	})

	t.Run("LRUEviction", func(t *testing.T) {
		small := NewLRUCache(3)

		_ = small.Set(ctx, ns, "a", []byte("1"), time.Minute)
		_ = small.Set(ctx, ns, "b", []byte("2"), time.Minute)
		_ = small.Set(ctx, ns, "c", []byte("3"), time.Minute)

		// Touch "a" so "b" becomes the oldest.
		_, _ = small.Get(ctx, ns, "a")
		_ = small.Set(ctx, ns, "d", []byte("4"), time.Minute)

		if val, _ := small.Get(ctx, ns, "b"); val != nil {
			t.Error("expected 'b' to be evicted")
		}
		if val, _ := small.Get(ctx, ns, "a"); val == nil {
			t.Error("expected 'a' to survive")
		}
		if got := small.Stats().Size; got != 3 {
			t.Errorf("expected size 3, got %d", got)
		}
	})

	t.Run("NamespaceIsolation", func(t *testing.T) {
		_ = cache.Set(ctx, "bundle-a", "shared", []byte("a"), time.Minute)

		val, _ := cache.Get(ctx, "bundle-b", "shared")
		if val != nil {
			t.Error("value leaked across namespaces")
		}
	})

	t.Run("RequiresNamespace", func(t *testing.T) {
		if _, err := cache.Get(ctx, "", "key"); !errors.Is(err, domain.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got: %v", err)
		}
		if err := cache.Set(ctx, "", "key", nil, time.Minute); !errors.Is(err, domain.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got: %v", err)
		}
	})

	t.Run("BatchResult", func(t *testing.T) {
		want := sampleResult()
		if err := cache.SetBatchResult(ctx, ns, "batch", want, time.Minute); err != nil {
			t.Fatalf("SetBatchResult failed: %v", err)
		}

		got, err := cache.GetBatchResult(ctx, ns, "batch")
		if err != nil {
			t.Fatalf("GetBatchResult failed: %v", err)
		}
		if got == nil || got.FraudCount != 1 || len(got.Records) != 2 {
			t.Fatalf("unexpected result: %+v", got)
		}
		if got.SuggestedThreshold == nil || *got.SuggestedThreshold != 0.95 {
			t.Errorf("suggested threshold not preserved: %v", got.SuggestedThreshold)
		}

		miss, err := cache.GetBatchResult(ctx, ns, "other")
		if err != nil || miss != nil {
			t.Errorf("expected nil, nil on miss, got %v, %v", miss, err)
		}
	})

	t.Run("Stats", func(t *testing.T) {
		c := NewLRUCache(5)
		_ = c.Set(ctx, ns, "k", []byte("v"), time.Minute)
		_, _ = c.Get(ctx, ns, "k")
		_, _ = c.Get(ctx, ns, "missing")

		stats := c.Stats()
		if stats.Hits != 1 || stats.Misses != 1 || stats.Capacity != 5 {
			t.Errorf("unexpected stats: %+v", stats)
		}
	})

	t.Run("Close", func(t *testing.T) {
		c := NewLRUCache(5)
		_ = c.Set(ctx, ns, "k", []byte("v"), time.Minute)
		if err := c.Close(); err != nil {
			t.Fatalf("Close failed: %v", err)
		}
		if c.Stats().Size != 0 {
			t.Error("expected empty cache after Close")
		}
	})
}

func TestRedisCache(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	cache, err := NewRedisCache(mr.Addr(), "", 0)
	if err != nil {
		t.Fatalf("NewRedisCache failed: %v", err)
	}
	defer cache.Close()

	t.Run("SetAndGet", func(t *testing.T) {
		if err := cache.Set(ctx, "bundle-a", "k", []byte("v"), time.Minute); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
		val, err := cache.Get(ctx, "bundle-a", "k")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if string(val) != "v" {
			t.Errorf("expected 'v', got %q", val)
		}
		if !mr.Exists("fraudscore:bundle-a:k") {
			t.Error("expected prefixed key in redis")
		}
	})

	t.Run("Miss", func(t *testing.T) {
		val, err := cache.Get(ctx, "bundle-a", "missing")
		if err != nil || val != nil {
			t.Errorf("expected nil, nil on miss, got %v, %v", val, err)
		}
	})

	t.Run("Expiration", func(t *testing.T) {
		_ = cache.Set(ctx, "bundle-a", "short", []byte("v"), time.Second)
		mr.FastForward(2 * time.Second)

		val, err := cache.Get(ctx, "bundle-a", "short")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if val != nil {
			t.Error("expected key to expire")
		}
	})

	t.Run("Delete", func(t *testing.T) {
		_ = cache.Set(ctx, "bundle-a", "gone", []byte("v"), time.Minute)
		if err := cache.Delete(ctx, "bundle-a", "gone"); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
		if mr.Exists("fraudscore:bundle-a:gone") {
			t.Error("expected key to be deleted")
		}
	})

	t.Run("BatchResult", func(t *testing.T) {
		if err := cache.SetBatchResult(ctx, "bundle-a", "batch", sampleResult(), time.Minute); err != nil {
			t.Fatalf("SetBatchResult failed: %v", err)
		}
		got, err := cache.GetBatchResult(ctx, "bundle-a", "batch")
		if err != nil {
			t.Fatalf("GetBatchResult failed: %v", err)
		}
		if got == nil || got.BatchID != "batch-1" || got.Total != 2 {
			t.Errorf("unexpected result: %+v", got)
		}
	})

	t.Run("Ping", func(t *testing.T) {
		if err := cache.Ping(ctx); err != nil {
			t.Errorf("Ping failed: %v", err)
		}
	})
}

func TestTwoPhaseCache(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	cache, err := NewTwoPhaseCache(domain.CacheConfig{
		RedisAddr:    mr.Addr(),
		LocalMaxSize: 10,
		LocalTTL:     time.Minute,
	})
	if err != nil {
		t.Fatalf("NewTwoPhaseCache failed: %v", err)
	}
	defer cache.Close()

	if err := cache.Set(ctx, "bundle-a", "k", []byte("v"), time.Hour); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if !mr.Exists("fraudscore:bundle-a:k") {
		t.Fatal("expected write-through to redis")
	}

	t.Run("PopulatesL1FromL2", func(t *testing.T) {
		// Written by another replica.
		mr.Set("fraudscore:bundle-a:remote", "r")

		val, err := cache.Get(ctx, "bundle-a", "remote")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if string(val) != "r" {
			t.Fatalf("expected 'r', got %q", val)
		}

		mr.Del("fraudscore:bundle-a:remote")
		val, _ = cache.Get(ctx, "bundle-a", "remote")
		if string(val) != "r" {
			t.Error("expected L1 hit after L2 delete")
		}
	})

	t.Run("Delete", func(t *testing.T) {
		if err := cache.Delete(ctx, "bundle-a", "k"); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
		if val, _ := cache.Get(ctx, "bundle-a", "k"); val != nil {
			t.Error("expected miss after delete")
		}
	})

	t.Run("Ping", func(t *testing.T) {
		if err := cache.Ping(ctx); err != nil {
			t.Errorf("Ping failed: %v", err)
		}
	})
}

func TestResultKey(t *testing.T) {
	body := []byte("Time,V1\n0,1\n")

	if ResultKey(body, 0.5) != ResultKey(body, 0.5) {
		t.Error("key should be stable")
	}
	if ResultKey(body, 0.5) == ResultKey(body, 0.3) {
		t.Error("threshold should change the key")
	}
	if ResultKey(body, 0.5) == ResultKey([]byte("Time,V1\n0,2\n"), 0.5) {
		t.Error("upload should change the key")
	}
}

func TestNewCache(t *testing.T) {
	t.Run("MemoryType", func(t *testing.T) {
		c, err := New(domain.CacheConfig{Type: "memory", LocalMaxSize: 10})
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		defer c.Close()

		if _, ok := c.(*LRUCache); !ok {
			t.Errorf("expected *LRUCache, got %T", c)
		}
	})

	t.Run("RedisType", func(t *testing.T) {
		mr := miniredis.RunT(t)

		c, err := New(domain.CacheConfig{Type: "redis", RedisAddr: mr.Addr()})
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		defer c.Close()

		if _, ok := c.(*RedisCache); !ok {
			t.Errorf("expected *RedisCache, got %T", c)
		}
	})

	t.Run("NoneType", func(t *testing.T) {
		c, err := New(domain.CacheConfig{Type: "none"})
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		_ = c.Set(context.Background(), "ns", "k", []byte("v"), time.Minute)
		if val, _ := c.Get(context.Background(), "ns", "k"); val != nil {
			t.Error("disabled cache should never hit")
		}
	})

	t.Run("UnsupportedType", func(t *testing.T) {
		if _, err := New(domain.CacheConfig{Type: "memcached"}); err == nil {
			t.Error("expected error for unsupported cache type")
		}
	})
}
