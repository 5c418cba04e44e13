package models

import (
	"strings"
	"time"
)

// OAuthFlowState is the transient record correlating an in-progress
// authorization request to its PKCE verifier. The state token itself is
// stored SHA-256 hashed; the plaintext only ever travels in the
// authorization URL and the provider callback.
type OAuthFlowState struct {
	ID        int64  `gorm:"primaryKey;autoIncrement"`
	StateHash string `gorm:"type:varchar(64);uniqueIndex;not null"`

	// CodeVerifier is needed verbatim for the token exchange. It is
	// worthless without the single-use authorization code, so it is kept
	// server-side in plain form for the lifetime of the flow.
	CodeVerifier string `gorm:"type:varchar(128);not null"`

	Provider string `gorm:"type:varchar(50);not null"`
	UserID   string `gorm:"type:varchar(36);not null;index"`

	// AgentID is set when the user pre-selected an agent to grant access
	// to once the connection completes. Empty otherwise.
	AgentID string `gorm:"type:varchar(36)"`

	// RequestedScopes is what we asked the provider for; the provider may
	// grant a subset.
	RequestedScopes string `gorm:"type:text;not null"`

	ExpiresAt time.Time  `gorm:"not null;index"`
	UsedAt    *time.Time `gorm:"index"`

	CreatedAt time.Time
}

func (OAuthFlowState) TableName() string {
	return "oauth_flow_states"
}

// IsUsed reports whether the state token was already exchanged
func (f *OAuthFlowState) IsUsed() bool {
	return f.UsedAt != nil
}

// IsExpired reports whether the flow passed its TTL
func (f *OAuthFlowState) IsExpired() bool {
	return time.Now().After(f.ExpiresAt)
}

// ScopeList splits the space-separated requested scopes
func (f *OAuthFlowState) ScopeList() []string {
	return strings.Fields(f.RequestedScopes)
}
