package models

import "time"

// Agent is an autonomous worker that may be granted access to a user's
// credentials. Agents authenticate to the broker with an API token of the
// form "<agent id>.<secret>"; only the PBKDF2 hash of the secret is stored.
type Agent struct {
	ID     string `gorm:"primaryKey;type:varchar(36)"     json:"id"`
	UserID string `gorm:"type:varchar(36);not null;index" json:"user_id"`
	Name   string `gorm:"type:varchar(100);not null"      json:"name"`

	TokenSalt string `gorm:"type:varchar(32);not null" json:"-"`
	TokenHash string `gorm:"type:varchar(128);not null" json:"-"`

	Active bool `gorm:"not null;default:true" json:"active"`

	LastSeenAt *time.Time `json:"last_seen_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

func (Agent) TableName() string {
	return "agents"
}
