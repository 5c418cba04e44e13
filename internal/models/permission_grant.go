package models

import (
	"strings"
	"time"
)

// PermissionLevel bounds what an agent may do with a credential
type PermissionLevel string

const (
	PermissionReadOnly  PermissionLevel = "read_only"
	PermissionReadWrite PermissionLevel = "read_write"
)

// PermissionGrant authorizes one agent to use one credential for a bounded
// scope set, independent of the underlying credential's own lifecycle.
type PermissionGrant struct {
	ID           string `gorm:"primaryKey;type:varchar(36)"     json:"id"`
	AgentID      string `gorm:"type:varchar(36);not null;index:idx_grant_agent_credential,priority:1" json:"agent_id"`
	CredentialID string `gorm:"type:varchar(36);not null;index:idx_grant_agent_credential,priority:2;index" json:"credential_id"`

	// GrantedByUserID is the owner of the credential at grant time.
	GrantedByUserID string `gorm:"type:varchar(36);not null" json:"granted_by_user_id"`

	PermissionLevel PermissionLevel `gorm:"type:varchar(20);not null" json:"permission_level"`

	// Scopes is the allowed subset of the credential's granted scopes,
	// space-separated.
	Scopes string `gorm:"type:text;not null" json:"scopes"`

	GrantedAt time.Time  `gorm:"not null"           json:"granted_at"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	Active    bool       `gorm:"not null;default:true;index" json:"active"`

	UsageCount int64      `gorm:"not null;default:0" json:"usage_count"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (PermissionGrant) TableName() string {
	return "permission_grants"
}

// IsExpired reports whether the grant has an expiry in the past
func (g *PermissionGrant) IsExpired() bool {
	return g.ExpiresAt != nil && time.Now().After(*g.ExpiresAt)
}

// IsUsable reports whether the grant itself permits use right now.
// The parent credential's status is checked separately by the registry.
func (g *PermissionGrant) IsUsable() bool {
	return g.Active && !g.IsExpired()
}

// ScopeList splits the space-separated allowed-scope string
func (g *PermissionGrant) ScopeList() []string {
	return strings.Fields(g.Scopes)
}

// AllowsScope reports whether the grant's allowed scopes include scope
func (g *PermissionGrant) AllowsScope(scope string) bool {
	for _, s := range g.ScopeList() {
		if s == scope {
			return true
		}
	}
	return false
}
