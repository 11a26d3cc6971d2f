package factory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"marketplace-gateway/internal/audit"
	"marketplace-gateway/internal/auth"
	"marketplace-gateway/internal/cache"
	"marketplace-gateway/internal/client"
	"marketplace-gateway/internal/config"
	"marketplace-gateway/internal/handler"
	"marketplace-gateway/internal/ratelimit"
	"marketplace-gateway/internal/repository/scylla"
	"marketplace-gateway/internal/repository/search"
	"marketplace-gateway/internal/tls"
	"marketplace-gateway/internal/util"
)

// Factory manages the lifecycle of all application dependencies
type Factory struct {
	config     *config.Config
	tlsManager *tls.TLSManager

	// Clients
	redisClient      *client.RedisClient
	scyllaClient     *scylla.ScyllaClient
	kafkaProducer    *client.KafkaProducer
	esClient         *client.ESClient
	clickhouseClient *client.ClickHouseClient

	// Caching
	cacheService   *cache.Service
	userCache      *cache.UserCache
	appCache       *cache.AppCache
	searchCache    *cache.SearchCache
	sessionCache   *cache.SessionCache
	analyticsCache *cache.AnalyticsCache
	rlCache        *cache.RateLimitCache

	// Repositories
	apiKeyRepository *scylla.APIKeyRepository
	appRepository    *scylla.AppRepository
	searchRepository *search.Repository

	// Gateway components
	authenticator *auth.Authenticator
	limiter       ratelimit.Limiter
	auditLogger   *audit.Logger

	closeOnce sync.Once
	closed    chan struct{}
}

// NewFactory creates and initializes all application dependencies
func NewFactory() (*Factory, error) {
	cfg := config.LoadConfig()

	util.Init(cfg.Environment, cfg.Logging.Level, cfg.Logging.Format)

	factory := &Factory{
		config: cfg,
		closed: make(chan struct{}),
	}

	if cfg.Server.EnableTLS {
		tlsConfig := &tls.TLSConfig{
			EnableTLS:   cfg.Server.EnableTLS,
			AutoCert:    cfg.Server.AutoCert,
			Domain:      cfg.Server.Domain,
			CertFile:    cfg.Server.CertFile,
			KeyFile:     cfg.Server.KeyFile,
			AutoCertDir: cfg.Server.AutoCertDir,
			Email:       cfg.Server.Email,
			Environment: cfg.Environment,
		}
		factory.tlsManager = tls.NewTLSManager(tlsConfig)
	}

	if err := factory.initializeClients(); err != nil {
		return nil, fmt.Errorf("failed to initialize clients: %w", err)
	}

	util.Info("Factory initialized successfully",
		util.String("environment", cfg.Environment),
		util.Bool("tls_enabled", cfg.Server.EnableTLS),
		util.String("rate_limit_strategy", cfg.RateLimit.Strategy),
	)

	return factory, nil
}

// initializeClients initializes all external service clients with health checks
func (f *Factory) initializeClients() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var initErrors []error

	// Redis
	if rc, err := client.NewRedisClient(f.config, util.Get()); err != nil {
		initErrors = append(initErrors, fmt.Errorf("redis: %w", err))
	} else {
		f.redisClient = rc
		if err := f.redisClient.HealthCheck(ctx); err != nil {
			initErrors = append(initErrors, fmt.Errorf("redis health check: %w", err))
		} else {
			util.Info("Redis client initialized and healthy")
		}
	}

	// ScyllaDB
	if sc, err := scylla.NewScyllaClient(f.config, util.Get()); err != nil {
		initErrors = append(initErrors, fmt.Errorf("scylla: %w", err))
	} else {
		f.scyllaClient = sc
		if err := f.scyllaClient.HealthCheck(); err != nil {
			initErrors = append(initErrors, fmt.Errorf("scylla health check: %w", err))
		} else {
			util.Info("ScyllaDB client initialized and healthy")
		}
	}

	// Kafka is optional: audit rows still land in ClickHouse without it.
	if f.config.Kafka.Enabled {
		if producer, err := client.NewKafkaProducer(f.config, util.Get()); err != nil {
			util.Warn("Kafka producer initialization failed - proceeding without Kafka", util.ErrorField(err))
		} else {
			f.kafkaProducer = producer
			util.Info("Kafka producer initialized")
		}
	}

	// Elasticsearch
	if es, err := client.NewElasticsearchClient(f.config, util.Get()); err != nil {
		initErrors = append(initErrors, fmt.Errorf("elasticsearch: %w", err))
	} else {
		f.esClient = es
		if err := f.esClient.HealthCheck(); err != nil {
			initErrors = append(initErrors, fmt.Errorf("elasticsearch health check: %w", err))
		} else {
			util.Info("Elasticsearch client initialized and healthy")
		}
	}

	// ClickHouse
	if ch, err := client.NewClickHouseClient(f.config, util.Get()); err != nil {
		initErrors = append(initErrors, fmt.Errorf("clickhouse: %w", err))
	} else {
		f.clickhouseClient = ch
		if err := f.clickhouseClient.HealthCheck(ctx); err != nil {
			initErrors = append(initErrors, fmt.Errorf("clickhouse health check: %w", err))
		} else {
			util.Info("ClickHouse client initialized and healthy")
		}
	}

	if len(initErrors) > 0 {
		if f.config.IsProduction() {
			return fmt.Errorf("critical service initialization failed: %v", initErrors)
		}
		for _, err := range initErrors {
			util.Warn("Service initialization warning", util.ErrorField(err))
		}
	}

	return nil
}

// ==============================
// Caching
// ==============================

func (f *Factory) CacheService() *cache.Service {
	if f.cacheService == nil {
		f.cacheService = cache.NewService(f.redisClient)
	}
	return f.cacheService
}

func (f *Factory) UserCache() *cache.UserCache {
	if f.userCache == nil {
		f.userCache = cache.NewUserCache(f.CacheService())
	}
	return f.userCache
}

func (f *Factory) AppCache() *cache.AppCache {
	if f.appCache == nil {
		f.appCache = cache.NewAppCache(f.CacheService())
	}
	return f.appCache
}

func (f *Factory) SearchCache() *cache.SearchCache {
	if f.searchCache == nil {
		f.searchCache = cache.NewSearchCache(f.CacheService())
	}
	return f.searchCache
}

func (f *Factory) SessionCache() *cache.SessionCache {
	if f.sessionCache == nil {
		f.sessionCache = cache.NewSessionCache(f.CacheService())
	}
	return f.sessionCache
}

func (f *Factory) AnalyticsCache() *cache.AnalyticsCache {
	if f.analyticsCache == nil {
		f.analyticsCache = cache.NewAnalyticsCache(f.CacheService())
	}
	return f.analyticsCache
}

func (f *Factory) RateLimitCache() *cache.RateLimitCache {
	if f.rlCache == nil {
		f.rlCache = cache.NewRateLimitCache(f.CacheService())
	}
	return f.rlCache
}

// ==============================
// Repositories
// ==============================

func (f *Factory) APIKeyRepository() *scylla.APIKeyRepository {
	if f.apiKeyRepository == nil {
		f.apiKeyRepository = scylla.NewAPIKeyRepository(f.scyllaClient)
	}
	return f.apiKeyRepository
}

func (f *Factory) AppRepository() *scylla.AppRepository {
	if f.appRepository == nil {
		f.appRepository = scylla.NewAppRepository(f.scyllaClient)
	}
	return f.appRepository
}

func (f *Factory) SearchRepository() *search.Repository {
	if f.searchRepository == nil {
		f.searchRepository = search.NewRepository(f.esClient)
	}
	return f.searchRepository
}

// ==============================
// Gateway Components
// ==============================

func (f *Factory) Authenticator() *auth.Authenticator {
	if f.authenticator == nil {
		f.authenticator = auth.NewAuthenticator(f.APIKeyRepository())
	}
	return f.authenticator
}

// Limiter returns the configured rate limiting strategy. Redis is the
// default so counters are shared across gateway instances; the in-memory
// limiter is for single-instance and local setups.
func (f *Factory) Limiter() ratelimit.Limiter {
	if f.limiter == nil {
		switch f.config.RateLimit.Strategy {
		case "memory":
			f.limiter = ratelimit.NewMemoryLimiter()
			util.Info("Using in-memory rate limiter")
		default:
			f.limiter = ratelimit.NewRedisLimiter(f.RateLimitCache())
			util.Info("Using Redis rate limiter")
		}
	}
	return f.limiter
}

func (f *Factory) AuditLogger() *audit.Logger {
	if f.auditLogger == nil {
		f.auditLogger = audit.NewLogger(f.clickhouseClient, f.kafkaProducer)
	}
	return f.auditLogger
}

func (f *Factory) GatewayHandler() *handler.GatewayHandler {
	return handler.NewGatewayHandler(
		f.AppRepository(),
		f.APIKeyRepository(),
		f.SearchRepository(),
		f.clickhouseClient,
		f.AppCache(),
		f.SearchCache(),
		f.UserCache(),
		f.AnalyticsCache(),
		util.Get(),
	)
}

func (f *Factory) Middleware() *handler.Middleware {
	return &handler.Middleware{
		Authenticator: f.Authenticator(),
		Limiter:       f.Limiter(),
		Audit:         f.AuditLogger(),
	}
}

func (f *Factory) Config() *config.Config {
	return f.config
}

func (f *Factory) TLSManager() *tls.TLSManager {
	return f.tlsManager
}

// ==============================
// Health Checks
// ==============================

func (f *Factory) HealthCheck(ctx context.Context) map[string]error {
	var mu sync.Mutex
	healthErrors := make(map[string]error)
	record := func(name string, err error) {
		mu.Lock()
		healthErrors[name] = err
		mu.Unlock()
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if f.redisClient == nil {
			record("redis", fmt.Errorf("redis client not initialized"))
		} else if err := f.redisClient.HealthCheck(ctx); err != nil {
			record("redis", err)
		}
		return nil
	})

	g.Go(func() error {
		if f.scyllaClient == nil {
			record("scylla", fmt.Errorf("scylla client not initialized"))
		} else if err := f.scyllaClient.HealthCheck(); err != nil {
			record("scylla", err)
		}
		return nil
	})

	g.Go(func() error {
		if f.esClient == nil {
			record("elasticsearch", fmt.Errorf("elasticsearch client not initialized"))
		} else if err := f.esClient.HealthCheck(); err != nil {
			record("elasticsearch", err)
		}
		return nil
	})

	g.Go(func() error {
		if f.clickhouseClient == nil {
			record("clickhouse", fmt.Errorf("clickhouse client not initialized"))
		} else if err := f.clickhouseClient.HealthCheck(ctx); err != nil {
			record("clickhouse", err)
		}
		return nil
	})

	g.Go(func() error {
		if f.kafkaProducer != nil {
			if err := f.kafkaProducer.HealthCheck(ctx); err != nil {
				record("kafka", err)
			}
		}
		return nil
	})

	g.Wait()

	return healthErrors
}

// IsHealthy reports whether all required backends are reachable. Kafka is
// excluded because the gateway degrades gracefully without it.
func (f *Factory) IsHealthy(ctx context.Context) bool {
	healthErrors := f.HealthCheck(ctx)
	delete(healthErrors, "kafka")
	return len(healthErrors) == 0
}

func (f *Factory) Close() error {
	f.closeOnce.Do(func() {
		close(f.closed)
		util.Info("Shutting down factory...")

		if f.auditLogger != nil {
			f.auditLogger.Close()
			util.Info("Audit logger drained and closed")
		}

		if f.clickhouseClient != nil {
			if err := f.clickhouseClient.Close(); err != nil {
				util.Error("Failed to close ClickHouse client", util.ErrorField(err))
			} else {
				util.Info("ClickHouse client closed")
			}
		}

		if f.esClient != nil {
			f.esClient.Close()
			util.Info("Elasticsearch client closed")
		}

		if f.kafkaProducer != nil {
			if err := f.kafkaProducer.Close(); err != nil {
				util.Error("Failed to close Kafka producer", util.ErrorField(err))
			} else {
				util.Info("Kafka producer closed")
			}
		}

		if f.scyllaClient != nil {
			f.scyllaClient.Close()
			util.Info("ScyllaDB client closed")
		}

		if f.redisClient != nil {
			if err := f.redisClient.Close(); err != nil {
				util.Error("Failed to close Redis client", util.ErrorField(err))
			} else {
				util.Info("Redis client closed")
			}
		}

		util.Info("Factory shutdown complete")
		util.Sync()
	})

	return nil
}
