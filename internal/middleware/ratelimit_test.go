package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimiterMemoryStore(t *testing.T) {
	gin.SetMode(gin.TestMode)

	limit, err := NewRateLimiter(RateLimitConfig{
		Surface:           "broker",
		RequestsPerMinute: 2,
		StoreType:         RateLimitStoreMemory,
	})
	require.NoError(t, err)

	r := gin.New()
	r.GET("/secrets", limit, func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	do := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/secrets", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	assert.Equal(t, http.StatusOK, do().Code)
	assert.Equal(t, http.StatusOK, do().Code)

	over := do()
	assert.Equal(t, http.StatusTooManyRequests, over.Code)
	assert.Contains(t, over.Body.String(), "rate_limit_exceeded")
}

func TestRateLimiterRedisRequiresClient(t *testing.T) {
	_, err := NewRateLimiter(RateLimitConfig{
		Surface:           "flow",
		RequestsPerMinute: 10,
		StoreType:         RateLimitStoreRedis,
	})
	assert.Error(t, err)
}
