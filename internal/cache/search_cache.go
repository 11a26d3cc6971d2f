package cache

import (
	"context"

	"marketplace-gateway/internal/model"
)

// SearchCache holds search result pages keyed by normalized query at the
// medium tier. Whenever underlying listing data changes broadly, everything
// here is blanket-invalidated.
type SearchCache struct {
	service *Service
}

func NewSearchCache(service *Service) *SearchCache {
	return &SearchCache{service: service}
}

func (c *SearchCache) Get(ctx context.Context, query string) (*model.SearchResult, bool) {
	var result model.SearchResult
	if !c.service.GetJSON(ctx, SearchKey(query), &result) {
		return nil, false
	}
	return &result, true
}

func (c *SearchCache) Set(ctx context.Context, query string, result *model.SearchResult) bool {
	return c.service.SetJSON(ctx, SearchKey(query), result, TTLMedium)
}

// InvalidateAll clears every cached search result.
func (c *SearchCache) InvalidateAll(ctx context.Context) int {
	return c.service.DeletePattern(ctx, SearchPattern())
}
