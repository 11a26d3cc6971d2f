package cache

import (
	"context"
	"time"
)

// SessionCache stores session payloads. The TTL is supplied per call so the
// cache entry dies exactly when the session itself expires, instead of a
// fixed tier.
type SessionCache struct {
	service *Service
}

func NewSessionCache(service *Service) *SessionCache {
	return &SessionCache{service: service}
}

func (c *SessionCache) Get(ctx context.Context, sessionID string) (map[string]interface{}, bool) {
	var data map[string]interface{}
	if !c.service.GetJSON(ctx, SessionKey(sessionID), &data) {
		return nil, false
	}
	return data, true
}

func (c *SessionCache) Set(ctx context.Context, sessionID string, data map[string]interface{}, ttl time.Duration) bool {
	return c.service.SetJSON(ctx, SessionKey(sessionID), data, ttl)
}

func (c *SessionCache) Invalidate(ctx context.Context, sessionID string) bool {
	return c.service.Delete(ctx, SessionKey(sessionID))
}
