package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// EventType represents the type of audit event
type EventType string

const (
	// Connection lifecycle events
	EventFlowStarted            EventType = "FLOW_STARTED"
	EventCredentialConnected    EventType = "CREDENTIAL_CONNECTED"
	EventCredentialDisconnected EventType = "CREDENTIAL_DISCONNECTED"
	EventFlowExchangeDenied     EventType = "FLOW_EXCHANGE_DENIED"

	// Grant events
	EventGrantCreated EventType = "GRANT_CREATED"
	EventGrantRevoked EventType = "GRANT_REVOKED"

	// Broker events
	EventDecryptSuccess EventType = "DECRYPT_SUCCESS"
	EventDecryptDenied  EventType = "DECRYPT_DENIED"
	EventDecryptFailure EventType = "DECRYPT_FAILURE"

	// Refresh events
	EventRefreshSuccess EventType = "REFRESH_SUCCESS"
	EventRefreshFailure EventType = "REFRESH_FAILURE"

	// Agent lifecycle events
	EventAgentCreated EventType = "AGENT_CREATED"
	EventAgentDeleted EventType = "AGENT_DELETED"

	// Security events
	EventRateLimitExceeded EventType = "RATE_LIMIT_EXCEEDED"
	EventAuditLogViewed    EventType = "AUDIT_LOG_VIEWED"
)

// EventSeverity represents the severity level of an audit event
type EventSeverity string

const (
	SeverityInfo     EventSeverity = "INFO"
	SeverityWarning  EventSeverity = "WARNING"
	SeverityError    EventSeverity = "ERROR"
	SeverityCritical EventSeverity = "CRITICAL"
)

// ResourceType represents the type of resource being operated on
type ResourceType string

const (
	ResourceCredential ResourceType = "CREDENTIAL"
	ResourceGrant      ResourceType = "GRANT"
	ResourceAgent      ResourceType = "AGENT"
	ResourceFlow       ResourceType = "FLOW"
	ResourceAuditLog   ResourceType = "AUDIT_LOG"
)

// AuditDetails stores additional event-specific information as JSON
type AuditDetails map[string]any

// Value implements the driver.Valuer interface for database storage
func (a AuditDetails) Value() (driver.Value, error) {
	if a == nil {
		return nil, nil //nolint:nilnil // nil driver.Value represents SQL NULL
	}
	return json.Marshal(a)
}

// Scan implements the sql.Scanner interface for database retrieval
func (a *AuditDetails) Scan(value any) error {
	if value == nil {
		*a = nil
		return nil
	}

	bytes, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("failed to unmarshal AuditDetails value: %v", value)
	}

	result := make(AuditDetails)
	if err := json.Unmarshal(bytes, &result); err != nil {
		return err
	}

	*a = result
	return nil
}

// AuditLog is an immutable record of a security-relevant action.
// The store exposes no update or delete path for these rows apart from
// retention-based cleanup of aged entries.
type AuditLog struct {
	ID string `gorm:"primaryKey;type:varchar(36)" json:"id"`

	// Event information
	EventType EventType     `gorm:"type:varchar(50);index;not null" json:"event_type"`
	EventTime time.Time     `gorm:"index;not null"                  json:"event_time"`
	Severity  EventSeverity `gorm:"type:varchar(20);not null"       json:"severity"`

	// Actor information. ActorUserID is "system" for background actions.
	ActorUserID string `gorm:"type:varchar(36);index" json:"actor_user_id"`
	ActorIP     string `gorm:"type:varchar(45)"       json:"actor_ip"` // Support IPv6

	// Subject information
	AgentID      string `gorm:"type:varchar(36);index" json:"agent_id,omitempty"`
	CredentialID string `gorm:"type:varchar(36);index" json:"credential_id,omitempty"`

	ResourceType ResourceType `gorm:"type:varchar(50);index" json:"resource_type"`
	ResourceID   string       `gorm:"type:varchar(36);index" json:"resource_id"`

	// Operation details
	Action  string       `gorm:"type:varchar(255);not null" json:"action"`
	Scope   string       `gorm:"type:varchar(255)"          json:"scope,omitempty"`
	Details AuditDetails `gorm:"type:json"                  json:"details"`
	Success bool         `gorm:"index;not null"             json:"success"`

	// Reason is set for denials and failures
	Reason string `gorm:"type:text" json:"reason,omitempty"`

	// Request metadata
	UserAgent   string `gorm:"type:varchar(500)" json:"user_agent,omitempty"`
	RequestPath string `gorm:"type:varchar(500)" json:"request_path,omitempty"`

	// Timestamps (no UpdatedAt - immutable logs)
	CreatedAt time.Time `gorm:"index;not null" json:"created_at"`
}

// TableName specifies the table name for GORM
func (AuditLog) TableName() string {
	return "audit_logs"
}
