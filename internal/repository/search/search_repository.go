package search

import (
	"context"
	"encoding/json"
	"fmt"

	"marketplace-gateway/internal/client"
	"marketplace-gateway/internal/model"
)

// Repository runs marketplace app searches against Elasticsearch. It is the
// producer behind the search cache's read-through path.
type Repository struct {
	es *client.ESClient
}

func NewRepository(es *client.ESClient) *Repository {
	return &Repository{es: es}
}

type esResponse struct {
	Took int64 `json:"took"`
	Hits struct {
		Total struct {
			Value int64 `json:"value"`
		} `json:"total"`
		Hits []struct {
			ID     string          `json:"_id"`
			Source json.RawMessage `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

// Search returns up to size published apps matching query.
func (r *Repository) Search(ctx context.Context, query string, size int) (*model.SearchResult, error) {
	if size <= 0 || size > 100 {
		size = 20
	}

	body := map[string]interface{}{
		"size": size,
		"query": map[string]interface{}{
			"bool": map[string]interface{}{
				"must": map[string]interface{}{
					"multi_match": map[string]interface{}{
						"query":  query,
						"fields": []string{"name^3", "description", "category"},
					},
				},
				"filter": map[string]interface{}{
					"term": map[string]interface{}{"is_published": true},
				},
			},
		},
	}

	var resp esResponse
	if err := r.es.Search(ctx, body, &resp); err != nil {
		return nil, fmt.Errorf("app search failed: %w", err)
	}

	result := &model.SearchResult{
		Query: query,
		Total: resp.Hits.Total.Value,
		Took:  resp.Took,
	}
	for _, hit := range resp.Hits.Hits {
		var app model.App
		if err := json.Unmarshal(hit.Source, &app); err != nil {
			continue
		}
		if app.AppID == "" {
			app.AppID = hit.ID
		}
		result.Apps = append(result.Apps, app)
		result.IDs = append(result.IDs, hit.ID)
	}

	return result, nil
}
