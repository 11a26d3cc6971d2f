package cache

import (
	"context"
	"time"
)

// PeriodRealtime marks live aggregates, which churn constantly and get the
// short tier. Every historical period gets the very-long tier.
const PeriodRealtime = "realtime"

// AnalyticsCache holds aggregate views keyed by (metric, period).
type AnalyticsCache struct {
	service *Service
}

func NewAnalyticsCache(service *Service) *AnalyticsCache {
	return &AnalyticsCache{service: service}
}

func (c *AnalyticsCache) Get(ctx context.Context, metric, period string) (string, bool) {
	return c.service.Get(ctx, AnalyticsKey(metric, period))
}

func (c *AnalyticsCache) Set(ctx context.Context, metric, period, value string) bool {
	return c.service.Set(ctx, AnalyticsKey(metric, period), value, TTLForPeriod(period))
}

// GetOrLoad reads through to the analytics source on miss.
func (c *AnalyticsCache) GetOrLoad(ctx context.Context, metric, period string, producer func(ctx context.Context) (string, error)) (string, error) {
	return c.service.GetOrLoad(ctx, AnalyticsKey(metric, period), TTLForPeriod(period), producer)
}

// TTLForPeriod maps an analytics period onto a TTL tier.
func TTLForPeriod(period string) time.Duration {
	if period == PeriodRealtime {
		return TTLShort
	}
	return TTLVeryLong
}
