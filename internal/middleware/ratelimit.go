package middleware

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"
	mgin "github.com/ulule/limiter/v3/drivers/middleware/gin"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	limiterRedis "github.com/ulule/limiter/v3/drivers/store/redis"

	"github.com/credgate/credgate/internal/metrics"
	"github.com/credgate/credgate/internal/models"
	"github.com/credgate/credgate/internal/services"
)

// RateLimitStoreType defines the type of rate limit store
type RateLimitStoreType string

const (
	// RateLimitStoreMemory uses in-memory storage (single instance only)
	RateLimitStoreMemory RateLimitStoreType = "memory"
	// RateLimitStoreRedis uses Redis storage (distributed, multi-pod support)
	RateLimitStoreRedis RateLimitStoreType = "redis"
)

// RateLimitConfig holds the configuration for rate limiting with store support
type RateLimitConfig struct {
	// Surface names the limited endpoint group ("broker", "flow") for
	// metrics and audit entries
	Surface string

	// Rate limit settings
	RequestsPerMinute int
	CleanupInterval   time.Duration // only for memory store

	// Store settings
	StoreType RateLimitStoreType // "memory" or "redis"

	// RedisClient is the shared go-redis client, required when
	// StoreType is "redis". ulule/limiter's redis driver is built on
	// go-redis types, so rueidis cannot be reused here.
	RedisClient *redis.Client

	// Observability hooks
	Recorder     metrics.Recorder
	AuditService *services.AuditService
}

// NewRateLimiter creates a rate limiting middleware with a configurable
// store backend. Limit-reached events are counted and audited.
func NewRateLimiter(config RateLimitConfig) (gin.HandlerFunc, error) {
	rate := limiter.Rate{
		Period: 1 * time.Minute,
		Limit:  int64(config.RequestsPerMinute),
	}

	var store limiter.Store
	var err error

	switch config.StoreType {
	case RateLimitStoreRedis:
		if config.RedisClient == nil {
			return nil, errors.New("redis rate limit store requires a redis client")
		}
		store, err = limiterRedis.NewStoreWithOptions(config.RedisClient, limiter.StoreOptions{
			Prefix:          "ratelimit:" + config.Surface,
			CleanUpInterval: config.CleanupInterval,
		})
		if err != nil {
			return nil, err
		}

	case RateLimitStoreMemory:
		fallthrough
	default:
		store = memory.NewStore()
	}

	instance := limiter.New(store, rate)

	recorder := config.Recorder
	if recorder == nil {
		recorder = metrics.NewNoopMetrics()
	}
	audit := config.AuditService

	middleware := mgin.NewMiddleware(instance, mgin.WithLimitReachedHandler(func(c *gin.Context) {
		recorder.RecordRateLimitExceeded(config.Surface)
		if audit != nil {
			audit.Log(c, services.AuditLogEntry{
				EventType:   models.EventRateLimitExceeded,
				Severity:    models.SeverityWarning,
				Action:      "rate_limit_exceeded",
				Success:     false,
				Reason:      config.Surface,
				RequestPath: c.Request.URL.Path,
			})
		}

		c.JSON(http.StatusTooManyRequests, gin.H{
			"error":             "rate_limit_exceeded",
			"error_description": "Too many requests. Please try again later.",
		})
		c.Abort()
	}))

	return middleware, nil
}
