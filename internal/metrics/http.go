package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

const (
	resultSuccess = "success"
	resultError   = "error"
)

// HTTPMetricsMiddleware creates a Gin middleware that records HTTP metrics
func HTTPMetricsMiddleware(m Recorder) gin.HandlerFunc {
	// If NoopMetrics, return a lightweight middleware that does nothing
	if _, ok := m.(*NoopMetrics); ok {
		return func(c *gin.Context) {
			c.Next()
		}
	}

	// Type assert to concrete Metrics for Prometheus access
	metrics, ok := m.(*Metrics)
	if !ok {
		// Fallback if unknown implementation
		return func(c *gin.Context) {
			c.Next()
		}
	}

	return func(c *gin.Context) {
		// Skip metrics endpoint to avoid self-recording
		if c.Request.URL.Path == "/metrics" {
			c.Next()
			return
		}

		start := time.Now()

		// Increment in-flight counter
		metrics.HTTPRequestsInFlight.Inc()
		defer metrics.HTTPRequestsInFlight.Dec()

		// Process request
		c.Next()

		// Record metrics after request completes
		duration := time.Since(start).Seconds()
		method := c.Request.Method
		path := normalizePath(c.FullPath()) // Use route pattern, not actual path
		status := strconv.Itoa(c.Writer.Status())

		// Record request count
		metrics.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()

		// Record request duration
		metrics.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration)
	}
}

// normalizePath converts the actual request path to route pattern
// Returns the route pattern (e.g., "/credentials/:id") or "unknown" if no match
func normalizePath(fullPath string) string {
	if fullPath == "" {
		return "unknown"
	}
	return fullPath
}

// RecordFlowStarted records an OAuth flow initiation
func (m *Metrics) RecordFlowStarted(provider string, success bool) {
	result := resultSuccess
	if !success {
		result = resultError
	}
	m.FlowsStartedTotal.WithLabelValues(provider, result).Inc()
}

// RecordFlowCompleted records an OAuth callback completion
func (m *Metrics) RecordFlowCompleted(provider, result string, duration time.Duration) {
	// result: success, denied, error
	m.FlowsCompletedTotal.WithLabelValues(provider, result).Inc()
	if result == resultSuccess {
		m.FlowDuration.WithLabelValues(provider).Observe(duration.Seconds())
	}
}

// RecordBrokerRequest records an agent secret request
func (m *Metrics) RecordBrokerRequest(provider, result string, duration time.Duration) {
	// result: success, denied, error
	m.BrokerRequestsTotal.WithLabelValues(provider, result).Inc()
	m.BrokerRequestDuration.WithLabelValues(provider).Observe(duration.Seconds())
}

// RecordTokenRefresh records a background refresh attempt
func (m *Metrics) RecordTokenRefresh(provider string, success bool, duration time.Duration) {
	result := resultSuccess
	if !success {
		result = resultError
	}
	m.TokenRefreshTotal.WithLabelValues(provider, result).Inc()
	m.TokenRefreshDuration.WithLabelValues(provider).Observe(duration.Seconds())
}

// RecordVaultOperation records a vault round-trip
func (m *Metrics) RecordVaultOperation(operation string, success bool, duration time.Duration) {
	result := resultSuccess
	if !success {
		result = resultError
	}
	m.VaultOperationsTotal.WithLabelValues(operation, result).Inc()
	m.VaultOperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordGrantCreated records a permission grant creation
func (m *Metrics) RecordGrantCreated(level string) {
	m.GrantsCreatedTotal.WithLabelValues(level).Inc()
	m.GrantsActive.Inc()
}

// RecordGrantRevoked records a permission grant revocation
func (m *Metrics) RecordGrantRevoked(reason string) {
	m.GrantsRevokedTotal.WithLabelValues(reason).Inc()
	m.GrantsActive.Dec()
}

// RecordRateLimitExceeded records a rate-limited request
func (m *Metrics) RecordRateLimitExceeded(surface string) {
	m.RateLimitExceededTotal.WithLabelValues(surface).Inc()
}

// RecordAuditEventsDropped records audit events lost to a full buffer
func (m *Metrics) RecordAuditEventsDropped(count int) {
	m.AuditEventsDroppedTotal.Add(float64(count))
}

// SetCredentialsCount sets the current count of credentials by status (for periodic updates)
func (m *Metrics) SetCredentialsCount(status string, count int64) {
	m.CredentialsByStatus.WithLabelValues(status).Set(float64(count))
}

// SetActiveGrantsCount sets the current count of active grants (for periodic updates)
func (m *Metrics) SetActiveGrantsCount(count int64) {
	m.GrantsActive.Set(float64(count))
}

// RecordDatabaseQueryError records a database query error during metric collection
func (m *Metrics) RecordDatabaseQueryError(operation string) {
	m.DatabaseQueryErrorsTotal.WithLabelValues(operation).Inc()
}
