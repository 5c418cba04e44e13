package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Ensure Metrics implements Recorder interface at compile time
var _ Recorder = (*Metrics)(nil)

// Metrics holds all Prometheus metrics for the application
type Metrics struct {
	// OAuth Flow Metrics
	FlowsStartedTotal   *prometheus.CounterVec
	FlowsCompletedTotal *prometheus.CounterVec
	FlowDuration        *prometheus.HistogramVec

	// Broker Metrics
	BrokerRequestsTotal   *prometheus.CounterVec
	BrokerRequestDuration *prometheus.HistogramVec

	// Token Refresh Metrics
	TokenRefreshTotal    *prometheus.CounterVec
	TokenRefreshDuration *prometheus.HistogramVec

	// Vault Metrics
	VaultOperationsTotal   *prometheus.CounterVec
	VaultOperationDuration *prometheus.HistogramVec

	// Grant Metrics
	GrantsCreatedTotal *prometheus.CounterVec
	GrantsRevokedTotal *prometheus.CounterVec
	GrantsActive       prometheus.Gauge

	// Credential Metrics
	CredentialsByStatus *prometheus.GaugeVec

	// Rate Limiting Metrics
	RateLimitExceededTotal *prometheus.CounterVec

	// Audit Pipeline Metrics
	AuditEventsDroppedTotal prometheus.Counter

	// HTTP Request Metrics
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	// Database Query Metrics
	DatabaseQueryErrorsTotal *prometheus.CounterVec
}

var (
	defaultMetrics *Metrics
	once           sync.Once
)

// Init initializes metrics based on enabled flag
// If enabled=true, returns Prometheus-based Metrics
// If enabled=false, returns NoopMetrics (zero overhead)
// Uses sync.Once to ensure Prometheus metrics are only registered once
func Init(enabled bool) Recorder {
	if !enabled {
		return NewNoopMetrics()
	}

	once.Do(func() {
		defaultMetrics = initMetrics()
	})
	return defaultMetrics
}

// initMetrics creates and registers all Prometheus metrics
func initMetrics() *Metrics {
	m := &Metrics{
		// OAuth Flow Metrics
		FlowsStartedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "credgate_oauth_flows_started_total",
				Help: "Total number of OAuth authorization flows started",
			},
			[]string{"provider", "result"}, // result: success, error
		),
		FlowsCompletedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "credgate_oauth_flows_completed_total",
				Help: "Total number of OAuth callback completions",
			},
			[]string{"provider", "result"}, // result: success, denied, error
		),
		FlowDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "credgate_oauth_flow_exchange_duration_seconds",
				Help:    "Time taken to exchange an authorization code for tokens",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"provider"},
		),

		// Broker Metrics
		BrokerRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "credgate_broker_requests_total",
				Help: "Total number of agent secret requests",
			},
			[]string{"provider", "result"}, // result: success, denied, error
		),
		BrokerRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "credgate_broker_request_duration_seconds",
				Help: "End-to-end latency of agent secret requests",
				Buckets: []float64{
					0.005,
					0.010,
					0.025,
					0.050,
					0.100,
					0.250,
					0.500,
					1.0,
					2.5,
					5.0,
				},
			},
			[]string{"provider"},
		),

		// Token Refresh Metrics
		TokenRefreshTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "credgate_token_refresh_total",
				Help: "Total number of background token refresh attempts",
			},
			[]string{"provider", "result"}, // result: success, error
		),
		TokenRefreshDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "credgate_token_refresh_duration_seconds",
				Help:    "Time taken to refresh a credential against its provider",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"provider"},
		),

		// Vault Metrics
		VaultOperationsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "credgate_vault_operations_total",
				Help: "Total number of vault operations",
			},
			[]string{"operation", "result"}, // operation: store, decrypt, revoke
		),
		VaultOperationDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "credgate_vault_operation_duration_seconds",
				Help:    "Vault round-trip latency",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),

		// Grant Metrics
		GrantsCreatedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "credgate_grants_created_total",
				Help: "Total number of permission grants created",
			},
			[]string{"level"}, // read_only, read_write
		),
		GrantsRevokedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "credgate_grants_revoked_total",
				Help: "Total number of permission grants revoked",
			},
			[]string{"reason"}, // user_request, credential_deleted, agent_deleted
		),
		GrantsActive: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "credgate_grants_active",
				Help: "Current number of active permission grants",
			},
		),

		// Credential Metrics
		CredentialsByStatus: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "credgate_credentials",
				Help: "Current number of credentials by status",
			},
			[]string{"status"}, // active, expired, revoked, error
		),

		// Rate Limiting Metrics
		RateLimitExceededTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "credgate_rate_limit_exceeded_total",
				Help: "Total number of rate-limited requests",
			},
			[]string{"surface"}, // broker, flow
		),

		// Audit Pipeline Metrics
		AuditEventsDroppedTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "credgate_audit_events_dropped_total",
				Help: "Total number of audit events dropped due to a full buffer",
			},
		),

		// HTTP Request Metrics
		HTTPRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "http_request_duration_seconds",
				Help: "HTTP request latency in seconds",
				Buckets: []float64{
					0.001,
					0.005,
					0.010,
					0.025,
					0.050,
					0.100,
					0.250,
					0.500,
					1.0,
					2.5,
					5.0,
					10.0,
				},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Current number of HTTP requests being served",
			},
		),

		// Database Query Metrics
		DatabaseQueryErrorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "database_query_errors_total",
				Help: "Total number of database query errors during metric collection",
			},
			[]string{"operation"}, // count_credentials, count_grants
		),
	}

	return m
}
