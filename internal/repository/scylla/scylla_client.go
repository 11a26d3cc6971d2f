package scylla

import (
	"context"
	"fmt"
	"time"

	"github.com/gocql/gocql"
	"go.uber.org/zap"

	"marketplace-gateway/internal/config"
	"marketplace-gateway/internal/util"
)

// Statement text for the repositories. Queries are built fresh per call:
// gocql.Query.Bind mutates the query in place, so a shared query instance
// would race under concurrent requests. gocql prepares and caches statements
// by text server-side, so per-call queries lose nothing.
const (
	getKeyByHashStmt = `
        SELECT key_id, user_id, key_hash, name, permissions, rate_limit,
            is_active, expires_at, last_used_at, created_at
        FROM api_keys WHERE key_hash = ?`

	// usage_count lives in a counter table so concurrent bumps never lose
	// increments
	bumpKeyUsageStmt = `
        UPDATE api_key_usage SET usage_count = usage_count + 1
        WHERE key_hash = ?`

	touchKeyLastUsedStmt = `
        UPDATE api_keys SET last_used_at = ? WHERE key_hash = ?`

	getUserByIDStmt = `
        SELECT user_id, email, name, role, is_active, created_at
        FROM users_by_id WHERE user_id = ?`

	getAppByIDStmt = `
        SELECT app_id, seller_id, name, description, category, price_cents,
            rating, is_published, created_at, updated_at
        FROM apps WHERE app_id = ?`

	listAppsStmt = `
        SELECT app_id, seller_id, name, description, category, price_cents,
            rating, is_published, created_at, updated_at
        FROM apps_by_category WHERE category = ? LIMIT ?`
)

type ScyllaClient struct {
	Session *gocql.Session
	config  *config.ScyllaConfig
}

func NewScyllaClient(cfg *config.Config, logger *zap.Logger) (*ScyllaClient, error) {
	scyllaConfig := cfg.Scylla

	cluster := gocql.NewCluster(scyllaConfig.Nodes...)
	cluster.Keyspace = scyllaConfig.Keyspace
	cluster.Consistency = gocql.LocalQuorum
	cluster.Timeout = 10 * time.Second
	cluster.ConnectTimeout = 10 * time.Second
	cluster.NumConns = 4
	cluster.SocketKeepalive = 30 * time.Second
	cluster.RetryPolicy = &gocql.ExponentialBackoffRetryPolicy{
		Min:        time.Second,
		Max:        10 * time.Second,
		NumRetries: 3,
	}

	if scyllaConfig.Username != "" && scyllaConfig.Password != "" {
		cluster.Authenticator = gocql.PasswordAuthenticator{
			Username: scyllaConfig.Username,
			Password: scyllaConfig.Password,
		}
	}

	session, err := cluster.CreateSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create scylla session: %w", err)
	}

	client := &ScyllaClient{
		Session: session,
		config:  &scyllaConfig,
	}

	util.Info("ScyllaDB client initialized",
		zap.Strings("nodes", scyllaConfig.Nodes),
		zap.String("keyspace", scyllaConfig.Keyspace))

	return client, nil
}

func (s *ScyllaClient) Close() {
	if s.Session != nil {
		s.Session.Close()
		util.Info("ScyllaDB client closed")
	}
}

func (s *ScyllaClient) Query(stmt string, values ...interface{}) *gocql.Query {
	return s.Session.Query(stmt, values...)
}

func (s *ScyllaClient) HealthCheck() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var clusterName string
	err := s.Session.Query(`SELECT cluster_name FROM system.local`).WithContext(ctx).Scan(&clusterName)
	if err != nil {
		return fmt.Errorf("scylla health check failed: %w", err)
	}

	util.Debug("ScyllaDB health check passed", zap.String("cluster_name", clusterName))
	return nil
}

// ScanWithRetry retries transient read failures with a linear backoff.
func (s *ScyllaClient) ScanWithRetry(query *gocql.Query, dest ...interface{}) error {
	var lastErr error
	for i := 0; i < 3; i++ {
		if err := query.Scan(dest...); err != nil {
			lastErr = err
			if err == gocql.ErrNotFound {
				return err
			}
			if i < 2 {
				time.Sleep(time.Duration(i+1) * 100 * time.Millisecond)
				continue
			}
		} else {
			return nil
		}
	}
	return lastErr
}
