package scylla

import (
	"context"
	"fmt"
	"time"

	"github.com/gocql/gocql"
	"go.uber.org/zap"

	"marketplace-gateway/internal/model"
	"marketplace-gateway/internal/util"
)

// APIKeyRepository is the durable credential store. It implements
// auth.KeyStore over the api_keys and users_by_id tables.
type APIKeyRepository struct {
	client *ScyllaClient
}

func NewAPIKeyRepository(client *ScyllaClient) *APIKeyRepository {
	return &APIKeyRepository{client: client}
}

// Lookup fetches an active key by secret hash joined with its owning user.
// Missing, inactive, or orphaned keys all come back as (nil, nil, nil); the
// caller keeps those cases indistinguishable.
func (r *APIKeyRepository) Lookup(ctx context.Context, keyHash string) (*model.APIKey, *model.User, error) {
	key := &model.APIKey{}
	var expiresAt time.Time

	query := r.client.Query(getKeyByHashStmt, keyHash).WithContext(ctx)
	err := r.client.ScanWithRetry(query,
		&key.KeyID, &key.UserID, &key.KeyHash, &key.Name, &key.Permissions,
		&key.RateLimit, &key.IsActive, &expiresAt, &key.LastUsedAt, &key.CreatedAt)
	if err != nil {
		if err == gocql.ErrNotFound {
			return nil, nil, nil
		}
		util.Error("failed to look up api key", zap.Error(err))
		return nil, nil, fmt.Errorf("failed to look up api key: %w", err)
	}

	if !key.IsActive {
		return nil, nil, nil
	}
	if !expiresAt.IsZero() {
		key.ExpiresAt = &expiresAt
	}

	user, err := r.getUser(ctx, key.UserID)
	if err != nil {
		return nil, nil, err
	}
	if user == nil || !user.IsActive {
		return nil, nil, nil
	}

	return key, user, nil
}

// RecordUsage bumps the key's usage counter and last-used timestamp.
func (r *APIKeyRepository) RecordUsage(ctx context.Context, keyHash string) error {
	if err := r.client.Query(bumpKeyUsageStmt, keyHash).WithContext(ctx).Exec(); err != nil {
		return fmt.Errorf("failed to bump key usage: %w", err)
	}
	if err := r.client.Query(touchKeyLastUsedStmt, time.Now().UTC(), keyHash).WithContext(ctx).Exec(); err != nil {
		return fmt.Errorf("failed to touch key last_used_at: %w", err)
	}
	return nil
}

func (r *APIKeyRepository) getUser(ctx context.Context, userID string) (*model.User, error) {
	user := &model.User{}

	query := r.client.Query(getUserByIDStmt, userID).WithContext(ctx)
	err := r.client.ScanWithRetry(query,
		&user.UserID, &user.Email, &user.Name, &user.Role,
		&user.IsActive, &user.CreatedAt)
	if err != nil {
		if err == gocql.ErrNotFound {
			return nil, nil
		}
		util.Error("failed to get user for api key",
			zap.String("user_id", userID),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	return user, nil
}

// GetUserByID exposes the user lookup for the read-through user cache.
func (r *APIKeyRepository) GetUserByID(ctx context.Context, userID string) (*model.User, error) {
	user, err := r.getUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, fmt.Errorf("user not found: %s", userID)
	}
	return user, nil
}
