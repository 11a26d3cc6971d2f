package scylla

import (
	"context"
	"fmt"

	"github.com/gocql/gocql"
	"go.uber.org/zap"

	"marketplace-gateway/internal/model"
	"marketplace-gateway/internal/util"
)

// AppRepository reads marketplace listings from the durable store. The cache
// facades front these reads; writes belong to the marketplace services, not
// the gateway.
type AppRepository struct {
	client *ScyllaClient
}

func NewAppRepository(client *ScyllaClient) *AppRepository {
	return &AppRepository{client: client}
}

var ErrAppNotFound = gocql.ErrNotFound

func (r *AppRepository) GetAppByID(ctx context.Context, appID string) (*model.App, error) {
	app := &model.App{}

	query := r.client.Query(getAppByIDStmt, appID).WithContext(ctx)
	err := r.client.ScanWithRetry(query,
		&app.AppID, &app.SellerID, &app.Name, &app.Description, &app.Category,
		&app.PriceCents, &app.Rating, &app.IsPublished, &app.CreatedAt, &app.UpdatedAt)
	if err != nil {
		if err == gocql.ErrNotFound {
			return nil, ErrAppNotFound
		}
		util.Error("failed to get app",
			zap.String("app_id", appID),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get app: %w", err)
	}

	return app, nil
}

// ListAppsByCategory returns up to limit published apps in category.
func (r *AppRepository) ListAppsByCategory(ctx context.Context, category string, limit int) ([]model.App, error) {
	iter := r.client.Query(listAppsStmt, category, limit).WithContext(ctx).Iter()

	var apps []model.App
	var app model.App
	for iter.Scan(
		&app.AppID, &app.SellerID, &app.Name, &app.Description, &app.Category,
		&app.PriceCents, &app.Rating, &app.IsPublished, &app.CreatedAt, &app.UpdatedAt) {
		if app.IsPublished {
			apps = append(apps, app)
		}
	}
	if err := iter.Close(); err != nil {
		util.Error("failed to list apps",
			zap.String("category", category),
			zap.Error(err))
		return nil, fmt.Errorf("failed to list apps: %w", err)
	}

	return apps, nil
}
