package cache

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"marketplace-gateway/internal/util"
)

// TTL tiers. Facades pick a tier by data volatility instead of inventing ad
// hoc durations, which keeps invalidation reasoning tractable.
const (
	TTLShort    = 5 * time.Minute
	TTLMedium   = 30 * time.Minute
	TTLLong     = time.Hour
	TTLVeryLong = 24 * time.Hour
)

// Store is the key-value contract the cache service runs on. Implemented by
// client.RedisClient; tests use an in-memory fake.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	IncrWithTTLIfFirst(ctx context.Context, key string, ttl time.Duration) (int64, error)
	TTL(ctx context.Context, key string) (time.Duration, error)
	ScanKeys(ctx context.Context, pattern string) ([]string, error)
}

// Service is the generic caching layer. The cache is never the system of
// record: Get degrades any store error to a miss, Set/Delete/DeletePattern
// degrade to no-ops. Only Increment and GetOrLoad's producer surface errors.
type Service struct {
	store Store
}

func NewService(store Store) *Service {
	return &Service{store: store}
}

// Get returns the cached value for key. A store error is logged and reported
// as a miss; callers cannot tell "never cached" from "store unreachable".
func (s *Service) Get(ctx context.Context, key string) (string, bool) {
	value, found, err := s.store.Get(ctx, key)
	if err != nil {
		util.Error("cache get failed, treating as miss",
			zap.String("key", key),
			zap.Error(err))
		return "", false
	}
	return value, found
}

// Set stores value under key with the given TTL. Best-effort.
func (s *Service) Set(ctx context.Context, key, value string, ttl time.Duration) bool {
	if err := s.store.Set(ctx, key, value, ttl); err != nil {
		util.Error("cache set failed",
			zap.String("key", key),
			zap.Duration("ttl", ttl),
			zap.Error(err))
		return false
	}
	return true
}

// Delete removes the given keys. Best-effort.
func (s *Service) Delete(ctx context.Context, keys ...string) bool {
	if len(keys) == 0 {
		return true
	}
	if err := s.store.Del(ctx, keys...); err != nil {
		util.Error("cache delete failed",
			zap.Int("key_count", len(keys)),
			zap.Error(err))
		return false
	}
	return true
}

// DeletePattern removes every key matching the glob pattern and returns how
// many were deleted. Cost is proportional to the matching keys, so callers
// must keep patterns narrow. Best-effort.
func (s *Service) DeletePattern(ctx context.Context, pattern string) int {
	keys, err := s.store.ScanKeys(ctx, pattern)
	if err != nil {
		util.Error("cache pattern scan failed",
			zap.String("pattern", pattern),
			zap.Error(err))
		return 0
	}
	if len(keys) == 0 {
		return 0
	}
	if err := s.store.Del(ctx, keys...); err != nil {
		util.Error("cache pattern delete failed",
			zap.String("pattern", pattern),
			zap.Int("key_count", len(keys)),
			zap.Error(err))
		return 0
	}
	util.Debug("cache pattern delete",
		zap.String("pattern", pattern),
		zap.Int("deleted", len(keys)))
	return len(keys)
}

// Increment atomically increments the counter at key, attaching ttlIfFirst
// only when this call creates it. Unlike the read/write operations the error
// propagates: the caller owns the fail policy.
func (s *Service) Increment(ctx context.Context, key string, ttlIfFirst time.Duration) (int64, error) {
	return s.store.IncrWithTTLIfFirst(ctx, key, ttlIfFirst)
}

// TTLRemaining returns the remaining lifetime of key, or zero when unknown.
func (s *Service) TTLRemaining(ctx context.Context, key string) time.Duration {
	ttl, err := s.store.TTL(ctx, key)
	if err != nil || ttl < 0 {
		return 0
	}
	return ttl
}

// GetOrLoad returns the cached value for key, invoking producer on miss and
// storing its result. A producer failure is a real error and propagates; a
// cache failure on either side degrades silently. Not stampede-safe:
// concurrent misses each run the producer and the last write wins, which is
// acceptable for idempotent reads of durable data.
func (s *Service) GetOrLoad(ctx context.Context, key string, ttl time.Duration, producer func(ctx context.Context) (string, error)) (string, error) {
	if value, found := s.Get(ctx, key); found {
		return value, nil
	}

	value, err := producer(ctx)
	if err != nil {
		return "", err
	}

	s.Set(ctx, key, value, ttl)
	return value, nil
}

// GetJSON unmarshals the cached value at key into out.
func (s *Service) GetJSON(ctx context.Context, key string, out interface{}) bool {
	raw, found := s.Get(ctx, key)
	if !found {
		return false
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		util.Warn("cache entry is not valid JSON, treating as miss",
			zap.String("key", key),
			zap.Error(err))
		return false
	}
	return true
}

// SetJSON marshals value and stores it under key.
func (s *Service) SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) bool {
	raw, err := json.Marshal(value)
	if err != nil {
		util.Error("cache value marshal failed",
			zap.String("key", key),
			zap.Error(err))
		return false
	}
	return s.Set(ctx, key, string(raw), ttl)
}
