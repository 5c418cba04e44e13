package metrics

import "time"

// Recorder abstracts metric recording so services don't depend on
// Prometheus directly. Init returns either the Prometheus-backed
// implementation or a noop one.
type Recorder interface {
	// OAuth flow lifecycle
	RecordFlowStarted(provider string, success bool)
	RecordFlowCompleted(provider, result string, duration time.Duration)

	// Broker requests (agent-facing secret retrieval)
	RecordBrokerRequest(provider, result string, duration time.Duration)

	// Background token refresh
	RecordTokenRefresh(provider string, success bool, duration time.Duration)

	// Vault round-trips
	RecordVaultOperation(operation string, success bool, duration time.Duration)

	// Permission grants
	RecordGrantCreated(level string)
	RecordGrantRevoked(reason string)

	// Rate limiting
	RecordRateLimitExceeded(surface string)

	// Audit pipeline
	RecordAuditEventsDropped(count int)

	// Gauge setters (periodic updates from the database)
	SetCredentialsCount(status string, count int64)
	SetActiveGrantsCount(count int64)

	// Database errors during metric collection
	RecordDatabaseQueryError(operation string)
}
