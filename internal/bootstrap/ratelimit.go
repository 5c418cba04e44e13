package bootstrap

import (
	"log"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/credgate/credgate/internal/config"
	"github.com/credgate/credgate/internal/metrics"
	"github.com/credgate/credgate/internal/middleware"
	"github.com/credgate/credgate/internal/services"
)

// rateLimitMiddlewares holds rate limiting middlewares for the two
// abuse-prone endpoint groups
type rateLimitMiddlewares struct {
	broker gin.HandlerFunc
	flow   gin.HandlerFunc
}

// setupRateLimiting configures rate limiting middlewares based on configuration
func setupRateLimiting(
	cfg *config.Config,
	recorder metrics.Recorder,
	auditService *services.AuditService,
	redisClient *redis.Client,
) rateLimitMiddlewares {
	// Return no-op middlewares when rate limiting is disabled
	noOpMiddleware := func(c *gin.Context) { c.Next() }
	if !cfg.EnableRateLimit {
		return rateLimitMiddlewares{
			broker: noOpMiddleware,
			flow:   noOpMiddleware,
		}
	}

	log.Printf("Rate limiting enabled (store: %s)", cfg.RateLimitStore)
	storeType := middleware.RateLimitStoreType(cfg.RateLimitStore)

	createLimiter := func(requestsPerMinute int, surface string) gin.HandlerFunc {
		limiter, err := middleware.NewRateLimiter(middleware.RateLimitConfig{
			Surface:           surface,
			RequestsPerMinute: requestsPerMinute,
			StoreType:         storeType,
			RedisClient:       redisClient,
			CleanupInterval:   cfg.RateLimitCleanupInterval,
			Recorder:          recorder,
			AuditService:      auditService,
		})
		if err != nil {
			log.Fatalf("Failed to create rate limiter for %s: %v", surface, err)
		}
		return limiter
	}

	return rateLimitMiddlewares{
		broker: createLimiter(cfg.BrokerRateLimit, "broker"),
		flow:   createLimiter(cfg.FlowRateLimit, "flow"),
	}
}
