package cache

import (
	"context"
	"time"

	"go.uber.org/zap"

	"marketplace-gateway/internal/util"
)

// RateLimitCache adapts the generic increment operation to the store-backed
// rate limiter. The counter's TTL is attached on first hit only, so the
// reset time is fixed at window creation.
type RateLimitCache struct {
	service *Service
}

func NewRateLimitCache(service *Service) *RateLimitCache {
	return &RateLimitCache{service: service}
}

// Hit counts one request against identifier and returns the post-increment
// count with the window's reset time. Errors propagate; the limiter decides
// the fail policy. A zero reset time means the lookup of the window's
// remaining life failed; the true reset is never later than reported.
func (c *RateLimitCache) Hit(ctx context.Context, identifier string, window time.Duration) (int64, time.Time, error) {
	key := RateLimitKey(identifier)

	count, err := c.service.Increment(ctx, key, window)
	if err != nil {
		return 0, time.Time{}, err
	}

	if count == 1 {
		// This hit created the window, so it resets a full window from now.
		return count, time.Now().Add(window), nil
	}

	remaining := c.service.TTLRemaining(ctx, key)
	if remaining <= 0 {
		// TTL lookup failed or raced the window boundary. Reporting a full
		// window here would extend the reset past the true window end, so
		// report no reset instead.
		util.Warn("rate limit reset time unavailable",
			zap.String("identifier", identifier))
		return count, time.Time{}, nil
	}
	return count, time.Now().Add(remaining), nil
}

// Reset clears the counter for identifier. Used by tests and admin tooling.
func (c *RateLimitCache) Reset(ctx context.Context, identifier string) bool {
	return c.service.Delete(ctx, RateLimitKey(identifier))
}
