package store

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/credgate/credgate/internal/models"
)

// CreateAgent persists a new agent
func (s *Store) CreateAgent(agent *models.Agent) error {
	return s.db.Create(agent).Error
}

// GetAgent retrieves an agent by ID
func (s *Store) GetAgent(id string) (*models.Agent, error) {
	var agent models.Agent
	if err := s.db.Where("id = ?", id).First(&agent).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return &agent, nil
}

// ListAgentsByUser returns all agents owned by a user
func (s *Store) ListAgentsByUser(userID string) ([]models.Agent, error) {
	var agents []models.Agent
	err := s.db.Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&agents).Error
	return agents, err
}

// TouchAgentSeen records agent activity
func (s *Store) TouchAgentSeen(id string, at time.Time) error {
	return s.db.Model(&models.Agent{}).
		Where("id = ?", id).
		Update("last_seen_at", at).Error
}

// DeleteAgent removes the agent and deactivates its grants in the same
// transaction, honoring the cascading-revoke invariant.
func (s *Store) DeleteAgent(id string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.PermissionGrant{}).
			Where("agent_id = ? AND active = ?", id, true).
			Update("active", false).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", id).Delete(&models.Agent{}).Error
	})
}
