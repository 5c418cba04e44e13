package models

import (
	"strings"
	"time"
)

// CredentialStatus represents the lifecycle state of a connection
type CredentialStatus string

const (
	CredentialActive  CredentialStatus = "active"
	CredentialExpired CredentialStatus = "expired"
	CredentialRevoked CredentialStatus = "revoked"
	CredentialError   CredentialStatus = "error"
)

// ProviderAPIKey is the provider name used for bare API-key connections
// that have no OAuth flow behind them.
const ProviderAPIKey = "api_key"

// Credential is one external-service connection owned by exactly one user.
// Secret material is never stored here; every secret-bearing field holds an
// opaque vault handle.
type Credential struct {
	ID     string `gorm:"primaryKey;type:varchar(36)"       json:"id"`
	UserID string `gorm:"type:varchar(36);not null;index"   json:"user_id"`

	// Provider is an OAuth provider name ("gmail", "github", "slack", ...)
	// or ProviderAPIKey for generic key-based connections.
	Provider string `gorm:"type:varchar(50);not null;index" json:"provider"`

	// Vault handles. RefreshTokenHandle is empty for API keys and for
	// providers that did not issue a refresh token.
	AccessTokenHandle  string `gorm:"type:varchar(255);not null" json:"-"`
	RefreshTokenHandle string `gorm:"type:varchar(255)"          json:"-"`

	// Scopes actually granted by the provider, space-separated.
	Scopes string `gorm:"type:text;not null" json:"scopes"`

	// ExpiresAt is nil for non-expiring credentials (API keys).
	ExpiresAt *time.Time       `json:"expires_at,omitempty"`
	Status    CredentialStatus `gorm:"type:varchar(20);not null;default:'active';index" json:"status"`

	LastValidatedAt *time.Time `json:"last_validated_at,omitempty"`

	// Refresh bookkeeping. RefreshClaimedAt is a short lease taken by the
	// refresh service so two cycles never rotate the same token.
	RefreshFailures  int        `gorm:"not null;default:0" json:"-"`
	RefreshClaimedAt *time.Time `gorm:"index"              json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Credential) TableName() string {
	return "credentials"
}

// IsActive returns true if the credential status is 'active'
func (c *Credential) IsActive() bool {
	return c.Status == CredentialActive
}

// HasRefreshToken returns true if a refresh-token vault handle is present
func (c *Credential) HasRefreshToken() bool {
	return c.RefreshTokenHandle != ""
}

// ExpiresWithin reports whether the credential has an expiry inside the
// given window. Credentials without expiry never qualify.
func (c *Credential) ExpiresWithin(window time.Duration) bool {
	if c.ExpiresAt == nil {
		return false
	}
	return time.Until(*c.ExpiresAt) < window
}

// ScopeList splits the space-separated scope string
func (c *Credential) ScopeList() []string {
	return strings.Fields(c.Scopes)
}

// HasScope reports whether the provider granted the given scope
func (c *Credential) HasScope(scope string) bool {
	for _, s := range c.ScopeList() {
		if s == scope {
			return true
		}
	}
	return false
}
