package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"marketplace-gateway/internal/cache"
	"marketplace-gateway/internal/client"
	"marketplace-gateway/internal/model"
	"marketplace-gateway/internal/repository/scylla"
	"marketplace-gateway/internal/repository/search"
	"marketplace-gateway/internal/util"
)

// GatewayHandler serves the thin marketplace routes that exercise the cache
// facades as read-through accelerators in front of the durable stores.
type GatewayHandler struct {
	apps       *scylla.AppRepository
	keys       *scylla.APIKeyRepository
	search     *search.Repository
	clickhouse *client.ClickHouseClient

	appCache       *cache.AppCache
	searchCache    *cache.SearchCache
	userCache      *cache.UserCache
	analyticsCache *cache.AnalyticsCache

	logger *zap.Logger
}

func NewGatewayHandler(
	apps *scylla.AppRepository,
	keys *scylla.APIKeyRepository,
	searchRepo *search.Repository,
	clickhouse *client.ClickHouseClient,
	appCache *cache.AppCache,
	searchCache *cache.SearchCache,
	userCache *cache.UserCache,
	analyticsCache *cache.AnalyticsCache,
	logger *zap.Logger,
) *GatewayHandler {
	return &GatewayHandler{
		apps:           apps,
		keys:           keys,
		search:         searchRepo,
		clickhouse:     clickhouse,
		appCache:       appCache,
		searchCache:    searchCache,
		userCache:      userCache,
		analyticsCache: analyticsCache,
		logger:         logger,
	}
}

// GetApp returns one listing, cache first.
func (h *GatewayHandler) GetApp(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	appID := chi.URLParam(r, "appID")

	if app, found := h.appCache.Get(ctx, appID); found {
		writeData(w, r, http.StatusOK, app)
		return
	}

	app, err := h.apps.GetAppByID(ctx, appID)
	if err != nil {
		if err == scylla.ErrAppNotFound {
			writeError(w, http.StatusNotFound, "app not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to load app")
		return
	}

	h.appCache.Set(ctx, app)
	writeData(w, r, http.StatusOK, app)
}

// ListApps returns one page of a category listing, cache first.
func (h *GatewayHandler) ListApps(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	category := r.URL.Query().Get("category")
	if category == "" {
		category = "all"
	}
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}

	if apps, found := h.appCache.GetList(ctx, category, page); found {
		writeData(w, r, http.StatusOK, apps)
		return
	}

	// The store reads from the head of the partition, so fetch up to the
	// requested page's end and keep only that page's slice.
	rows, err := h.apps.ListAppsByCategory(ctx, category, page*appPageSize)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list apps")
		return
	}
	apps := pageOf(rows, page)

	h.appCache.SetList(ctx, category, page, apps)
	writeData(w, r, http.StatusOK, apps)
}

const appPageSize = 50

// pageOf returns the 1-based page's slice of rows. A page past the end of
// rows comes back empty, and a partial final page keeps whatever remains.
func pageOf(rows []model.App, page int) []model.App {
	start := (page - 1) * appPageSize
	if start >= len(rows) {
		return []model.App{}
	}
	end := start + appPageSize
	if end > len(rows) {
		end = len(rows)
	}
	return rows[start:end]
}

// SearchApps serves app search through the search cache; misses hit
// Elasticsearch.
func (h *GatewayHandler) SearchApps(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	query := cache.NormalizeQuery(r.URL.Query().Get("q"))
	if query == "" {
		writeError(w, http.StatusBadRequest, "missing query parameter q")
		return
	}

	if result, found := h.searchCache.Get(ctx, query); found {
		writeData(w, r, http.StatusOK, result)
		return
	}

	result, err := h.search.Search(ctx, query, 20)
	if err != nil {
		// A search backend failure is a real error, not a cache miss.
		util.Error("search failed", zap.String("query", query), zap.Error(err))
		writeError(w, http.StatusBadGateway, "search unavailable")
		return
	}

	h.searchCache.Set(ctx, query, result)
	writeData(w, r, http.StatusOK, result)
}

// InvalidateApp clears the app plus every derived listing and search view.
func (h *GatewayHandler) InvalidateApp(w http.ResponseWriter, r *http.Request) {
	appID := chi.URLParam(r, "appID")
	h.appCache.InvalidateApp(r.Context(), appID)

	writeJSON(w, http.StatusOK, Response{
		Success: true,
		Message: fmt.Sprintf("cache invalidated for app %s", appID),
	})
}

// Me returns the calling user's profile, cache first.
func (h *GatewayHandler) Me(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	result := AuthResultFrom(ctx)
	if result == nil || result.Identity == nil {
		writeError(w, http.StatusUnauthorized, invalidKeyMessage)
		return
	}

	if user, found := h.userCache.Get(ctx, result.Identity.UserID); found {
		writeData(w, r, http.StatusOK, user)
		return
	}

	user, err := h.keys.GetUserByID(ctx, result.Identity.UserID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load user")
		return
	}

	h.userCache.Set(ctx, user)
	writeData(w, r, http.StatusOK, user)
}

// GetAnalytics serves an aggregate metric through the analytics cache;
// misses run the ClickHouse aggregation.
func (h *GatewayHandler) GetAnalytics(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	metric := chi.URLParam(r, "metric")
	period := r.URL.Query().Get("period")
	if period == "" {
		period = cache.PeriodRealtime
	}

	value, err := h.analyticsCache.GetOrLoad(ctx, metric, period, func(ctx context.Context) (string, error) {
		return h.aggregateMetric(ctx, metric, period)
	})
	if err != nil {
		util.Error("analytics aggregation failed",
			zap.String("metric", metric),
			zap.String("period", period),
			zap.Error(err))
		writeError(w, http.StatusBadGateway, "analytics unavailable")
		return
	}

	var decoded interface{}
	if err := json.Unmarshal([]byte(value), &decoded); err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeData(w, r, http.StatusOK, decoded)
}

func (h *GatewayHandler) aggregateMetric(ctx context.Context, metric, period string) (string, error) {
	since := time.Now().UTC()
	switch period {
	case cache.PeriodRealtime:
		since = since.Add(-5 * time.Minute)
	case "daily":
		since = since.Add(-24 * time.Hour)
	case "weekly":
		since = since.Add(-7 * 24 * time.Hour)
	default:
		since = since.Add(-30 * 24 * time.Hour)
	}

	rows, err := h.clickhouse.QueryRows(ctx,
		`SELECT count() FROM audit_log WHERE path LIKE ? AND created_at >= ?`,
		"/api/v1/"+metric+"%", since)
	if err != nil {
		return "", fmt.Errorf("failed to aggregate %s: %w", metric, err)
	}
	defer rows.Close()

	var count uint64
	if rows.Next() {
		if err := rows.Scan(&count); err != nil {
			return "", fmt.Errorf("failed to scan %s aggregate: %w", metric, err)
		}
	}

	payload, err := json.Marshal(map[string]interface{}{
		"metric": metric,
		"period": period,
		"value":  count,
		"since":  since,
	})
	if err != nil {
		return "", err
	}
	return string(payload), nil
}
