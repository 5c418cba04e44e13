package metrics

import "time"

// NoopMetrics is a no-operation implementation of Recorder
// All methods are empty and do nothing, providing zero overhead when metrics are disabled
type NoopMetrics struct{}

// Ensure NoopMetrics implements Recorder interface at compile time
var _ Recorder = (*NoopMetrics)(nil)

// NewNoopMetrics creates a new no-operation metrics recorder
func NewNoopMetrics() Recorder {
	return &NoopMetrics{}
}

// OAuth flow - noop implementations
func (n *NoopMetrics) RecordFlowStarted(provider string, success bool)                       {}
func (n *NoopMetrics) RecordFlowCompleted(provider, result string, duration time.Duration)   {}

// Broker - noop implementations
func (n *NoopMetrics) RecordBrokerRequest(provider, result string, duration time.Duration) {}

// Token refresh - noop implementations
func (n *NoopMetrics) RecordTokenRefresh(provider string, success bool, duration time.Duration) {}

// Vault - noop implementations
func (n *NoopMetrics) RecordVaultOperation(operation string, success bool, duration time.Duration) {
}

// Grants - noop implementations
func (n *NoopMetrics) RecordGrantCreated(level string)  {}
func (n *NoopMetrics) RecordGrantRevoked(reason string) {}

// Rate limiting - noop implementations
func (n *NoopMetrics) RecordRateLimitExceeded(surface string) {}

// Audit pipeline - noop implementations
func (n *NoopMetrics) RecordAuditEventsDropped(count int) {}

// Gauge setters - noop implementations
func (n *NoopMetrics) SetCredentialsCount(status string, count int64) {}
func (n *NoopMetrics) SetActiveGrantsCount(count int64)               {}

// Database operations - noop implementations
func (n *NoopMetrics) RecordDatabaseQueryError(operation string) {}
