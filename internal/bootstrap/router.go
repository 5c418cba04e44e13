package bootstrap

import (
	"context"
	"log"
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/credgate/credgate/internal/config"
	"github.com/credgate/credgate/internal/metrics"
	"github.com/credgate/credgate/internal/middleware"
	"github.com/credgate/credgate/internal/store"
	"github.com/credgate/credgate/internal/util"
	"github.com/credgate/credgate/internal/vault"
)

// setupRouter configures the Gin router with all routes and middleware
func setupRouter(app *Application) *gin.Engine {
	cfg := app.Config

	setupGinMode(cfg)
	r := gin.New()

	// Setup middleware
	r.Use(metrics.HTTPMetricsMiddleware(app.MetricsRecorder))
	r.Use(gin.Logger(), gin.Recovery())
	r.Use(util.IPMiddleware())

	// Setup session middleware
	setupSessionMiddleware(r, cfg)

	// Health check endpoint
	r.GET("/healthz", createHealthCheckHandler(app.DB, app.Vault))

	// Setup metrics endpoint
	setupMetricsEndpoint(r, cfg)

	// Setup rate limiting
	rateLimiters := setupRateLimiting(cfg, app.MetricsRecorder, app.AuditService, app.RateLimitRedisClient)

	// Setup all routes
	setupAllRoutes(r, cfg, app.HandlerSet, rateLimiters, app)

	logServerStartup(cfg)
	return r
}

// setupSessionMiddleware configures session handling middleware
func setupSessionMiddleware(r *gin.Engine, cfg *config.Config) {
	sessionStore := cookie.NewStore([]byte(cfg.SessionSecret))
	sessionStore.Options(sessions.Options{
		Path:     "/",
		MaxAge:   cfg.SessionMaxAge,
		HttpOnly: true,
		Secure:   cfg.IsProduction,
		SameSite: http.SameSiteLaxMode,
	})
	r.Use(sessions.Sessions("credgate_session", sessionStore))
}

// setupMetricsEndpoint configures the Prometheus metrics endpoint
func setupMetricsEndpoint(r *gin.Engine, cfg *config.Config) {
	switch {
	case !cfg.MetricsEnabled:
		log.Printf("Prometheus metrics disabled")
	case cfg.MetricsToken != "":
		log.Printf("Prometheus metrics enabled at /metrics with Bearer token authentication")
		r.GET(
			"/metrics",
			middleware.MetricsAuthMiddleware(cfg.MetricsToken),
			gin.WrapH(promhttp.Handler()),
		)
	default:
		log.Printf("Prometheus metrics enabled at /metrics (no authentication)")
		r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}
}

// setupAllRoutes configures all application routes
func setupAllRoutes(
	r *gin.Engine,
	cfg *config.Config,
	h handlerSet,
	rateLimiters rateLimitMiddlewares,
	app *Application,
) {
	// Provider callback (public; the state token authenticates the flow)
	r.GET("/oauth/callback", rateLimiters.flow, h.connection.Callback)

	// Management API (user-authenticated)
	api := r.Group("/api")
	api.Use(middleware.RequireUser(cfg.JWTSecret))
	{
		api.GET("/providers", h.connection.ListProviders)

		api.POST("/connections/oauth/:provider", rateLimiters.flow, h.connection.StartFlow)
		api.POST("/connections/api-key", h.connection.StoreAPIKey)
		api.GET("/connections", h.connection.ListConnections)
		api.GET("/connections/:id", h.connection.GetConnection)
		api.DELETE("/connections/:id", h.connection.Disconnect)
		api.GET("/connections/:id/grants", h.grant.ListGrantsForCredential)

		api.POST("/grants", h.grant.CreateGrant)
		api.DELETE("/grants/:id", h.grant.RevokeGrant)

		api.POST("/agents", h.agent.CreateAgent)
		api.GET("/agents", h.agent.ListAgents)
		api.DELETE("/agents/:id", h.agent.DeleteAgent)
		api.GET("/agents/:id/grants", h.grant.ListGrantsForAgent)

		api.GET("/audit-logs", h.audit.ListAuditLogs)
	}

	// Broker API (agent-authenticated)
	broker := r.Group("/broker")
	broker.Use(middleware.RequireAgent(app.AgentService))
	{
		broker.POST("/secrets", rateLimiters.broker, h.broker.RequestSecret)
		broker.GET("/grants", h.broker.ListGrants)
	}
}

// createHealthCheckHandler creates the health check endpoint handler
func createHealthCheckHandler(db *store.Store, v vault.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		status := gin.H{
			"status":   "healthy",
			"database": "connected",
			"vault":    "reachable",
		}
		healthy := true

		if err := db.Health(); err != nil {
			status["database"] = "disconnected"
			healthy = false
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), healthCheckTimeout)
		defer cancel()
		if err := v.Health(ctx); err != nil {
			status["vault"] = "unreachable"
			healthy = false
		}

		if !healthy {
			status["status"] = "unhealthy"
			c.JSON(http.StatusServiceUnavailable, status)
			return
		}
		c.JSON(http.StatusOK, status)
	}
}

// setupGinMode sets Gin mode based on environment configuration
func setupGinMode(cfg *config.Config) {
	if cfg.IsProduction {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}
}

// logServerStartup logs server startup information
func logServerStartup(cfg *config.Config) {
	log.Printf("Credential broker starting on %s", cfg.ServerAddr)
	log.Printf("OAuth callback URL: %s", cfg.RedirectURL())
}
