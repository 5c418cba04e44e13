package bootstrap

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/credgate/credgate/internal/cache"
	"github.com/credgate/credgate/internal/config"
	"github.com/credgate/credgate/internal/metrics"
	"github.com/credgate/credgate/internal/provider"
	"github.com/credgate/credgate/internal/services"
	"github.com/credgate/credgate/internal/store"
	"github.com/credgate/credgate/internal/vault"
)

// Application holds all initialized components
type Application struct {
	Config *config.Config

	// Core infrastructure
	DB                   *store.Store
	Vault                vault.Client
	Providers            *provider.Registry
	MetricsRecorder      metrics.Recorder
	MetricsCache         cache.Cache[int64]
	RateLimitRedisClient *redis.Client

	// Services
	AuditService   *services.AuditService
	AgentService   *services.AgentService
	GrantService   *services.GrantService
	FlowService    *services.FlowService
	BrokerService  *services.BrokerService
	RefreshService *services.RefreshService

	// HTTP
	HandlerSet handlerSet
	Router     *gin.Engine
	Server     *http.Server
}

// Run initializes and starts the application
func Run(cfg *config.Config) error {
	app := &Application{
		Config: cfg,
	}

	// Phase 1: Validate configuration
	validateAllConfiguration(cfg)

	// Phase 2: Initialize infrastructure
	if err := app.initializeInfrastructure(context.Background()); err != nil {
		return err
	}

	// Phase 3: Initialize business layer
	app.initializeBusinessLayer()

	// Phase 4: Initialize HTTP layer
	app.initializeHTTPLayer()

	// Phase 5: Start server and background jobs with graceful shutdown
	app.startWithGracefulShutdown()

	return nil
}

// initializeInfrastructure sets up database, vault, metrics, and Redis
func (app *Application) initializeInfrastructure(ctx context.Context) error {
	var err error

	// Database
	app.DB, err = initializeDatabase(app.Config)
	if err != nil {
		return err
	}

	// Secret vault
	app.Vault, err = initializeVault(app.Config, app.DB)
	if err != nil {
		return err
	}

	// Provider registry
	app.Providers = initializeProviders(app.Config)

	// Metrics
	app.MetricsRecorder = initializeMetrics(app.Config)
	app.MetricsCache, err = initializeMetricsCache(ctx, app.Config)
	if err != nil {
		return err
	}

	// Redis (for rate limiting)
	app.RateLimitRedisClient, err = initializeRateLimitRedisClient(ctx, app.Config)
	if err != nil {
		return err
	}

	return nil
}

// initializeBusinessLayer sets up services
func (app *Application) initializeBusinessLayer() {
	// Audit service first; every other service reports into it.
	app.AuditService = services.NewAuditService(
		app.DB,
		app.MetricsRecorder,
		app.Config.EnableAuditLogging,
		app.Config.AuditLogBufferSize,
	)

	app.GrantService = services.NewGrantService(app.DB, app.AuditService, app.MetricsRecorder)
	app.AgentService = services.NewAgentService(
		app.DB,
		app.GrantService,
		app.AuditService,
		app.MetricsRecorder,
	)
	app.FlowService = services.NewFlowService(
		app.DB,
		app.Vault,
		app.Providers,
		app.AuditService,
		app.MetricsRecorder,
		app.Config.FlowStateTTL,
		app.Config.OAuthTimeout,
	)
	app.BrokerService = services.NewBrokerService(
		app.DB,
		app.Vault,
		app.GrantService,
		app.AuditService,
		app.MetricsRecorder,
		app.Config.BrokerRequestTimeout,
	)
	app.RefreshService = services.NewRefreshService(
		app.DB,
		app.Vault,
		app.Providers,
		app.AuditService,
		app.MetricsRecorder,
		services.RefreshConfig{
			Interval:    app.Config.RefreshInterval,
			Window:      app.Config.RefreshWindow,
			Workers:     app.Config.RefreshWorkers,
			MaxFailures: app.Config.RefreshMaxFailures,
			ClaimLease:  app.Config.RefreshClaimLease,
			BatchLimit:  app.Config.RefreshBatchLimit,
		},
	)
}

// initializeHTTPLayer sets up handlers, router, and server
func (app *Application) initializeHTTPLayer() {
	app.HandlerSet = initializeHandlers(app)
	app.Router = setupRouter(app)
	app.Server = createHTTPServer(app.Config, app.Router)
}
