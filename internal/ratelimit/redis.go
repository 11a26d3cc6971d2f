package ratelimit

import (
	"context"
	"time"

	"go.uber.org/zap"

	"marketplace-gateway/internal/cache"
	"marketplace-gateway/internal/util"
)

// RedisLimiter is the store-backed fixed-window strategy. The store's atomic
// increment is the sole concurrency-safety mechanism, so it is correct
// across instances and is the source of truth in multi-instance
// deployments.
type RedisLimiter struct {
	counters *cache.RateLimitCache
}

func NewRedisLimiter(counters *cache.RateLimitCache) *RedisLimiter {
	return &RedisLimiter{counters: counters}
}

func (l *RedisLimiter) Policy() FailPolicy {
	return FailOpen
}

// Check counts one request against identifier. When the store is
// unreachable the limiter fails open: the request is allowed with
// remaining = limit-1 and the error is logged.
func (l *RedisLimiter) Check(ctx context.Context, identifier string, limit int, window time.Duration) Decision {
	count, resetAt, err := l.counters.Hit(ctx, identifier, window)
	if err != nil {
		util.Error("rate limit store unreachable, failing open",
			zap.String("identifier", identifier),
			zap.Error(err))
		return Decision{Allowed: true, Remaining: limit - 1, ResetAt: time.Now().Add(window)}
	}
	if resetAt.IsZero() {
		// The window's remaining life could not be read. Reporting "now" is
		// conservative: clients may retry early, but the reset is never
		// pushed past the true window end.
		resetAt = time.Now()
	}

	if count > int64(limit) {
		return Decision{Allowed: false, Remaining: 0, ResetAt: resetAt}
	}

	remaining := limit - int(count)
	if remaining < 0 {
		remaining = 0
	}
	return Decision{Allowed: true, Remaining: remaining, ResetAt: resetAt}
}
