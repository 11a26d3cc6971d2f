package cache

import (
	"context"

	"marketplace-gateway/internal/model"
)

// UserCache holds single-user views at the long tier. User writes are rare;
// no other cached view is derived from a user row, so invalidation has no
// fan-out.
type UserCache struct {
	service *Service
}

func NewUserCache(service *Service) *UserCache {
	return &UserCache{service: service}
}

func (c *UserCache) Get(ctx context.Context, userID string) (*model.User, bool) {
	var user model.User
	if !c.service.GetJSON(ctx, UserKey(userID), &user) {
		return nil, false
	}
	return &user, true
}

func (c *UserCache) Set(ctx context.Context, user *model.User) bool {
	return c.service.SetJSON(ctx, UserKey(user.UserID), user, TTLLong)
}

func (c *UserCache) Invalidate(ctx context.Context, userID string) bool {
	return c.service.Delete(ctx, UserKey(userID))
}
