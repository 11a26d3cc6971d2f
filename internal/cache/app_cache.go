package cache

import (
	"context"

	"go.uber.org/zap"

	"marketplace-gateway/internal/model"
	"marketplace-gateway/internal/util"
)

// AppCache holds single apps at the long tier and listing pages at the
// medium tier. Listing pages and search results are both derived from app
// attributes, so invalidating one app clears all of them.
type AppCache struct {
	service *Service
}

func NewAppCache(service *Service) *AppCache {
	return &AppCache{service: service}
}

func (c *AppCache) Get(ctx context.Context, appID string) (*model.App, bool) {
	var app model.App
	if !c.service.GetJSON(ctx, AppKey(appID), &app) {
		return nil, false
	}
	return &app, true
}

func (c *AppCache) Set(ctx context.Context, app *model.App) bool {
	return c.service.SetJSON(ctx, AppKey(app.AppID), app, TTLLong)
}

func (c *AppCache) GetList(ctx context.Context, category string, page int) ([]model.App, bool) {
	var apps []model.App
	if !c.service.GetJSON(ctx, AppListKey(category, page), &apps) {
		return nil, false
	}
	return apps, true
}

func (c *AppCache) SetList(ctx context.Context, category string, page int, apps []model.App) bool {
	return c.service.SetJSON(ctx, AppListKey(category, page), apps, TTLMedium)
}

// InvalidateApp clears the app itself plus every cached listing page and
// every cached search result. Deliberately over-invalidates unrelated lists
// rather than tracking which lists contain which apps.
func (c *AppCache) InvalidateApp(ctx context.Context, appID string) {
	c.service.Delete(ctx, AppKey(appID))
	lists := c.service.DeletePattern(ctx, AppListPattern())
	searches := c.service.DeletePattern(ctx, SearchPattern())

	util.Debug("app cache invalidated",
		zap.String("app_id", appID),
		zap.Int("list_pages_cleared", lists),
		zap.Int("search_entries_cleared", searches))
}
