package store

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/credgate/credgate/internal/models"
)

// CreatePermissionGrant persists a new grant
func (s *Store) CreatePermissionGrant(grant *models.PermissionGrant) error {
	return s.db.Create(grant).Error
}

// GetPermissionGrant retrieves a grant by ID
func (s *Store) GetPermissionGrant(id string) (*models.PermissionGrant, error) {
	var grant models.PermissionGrant
	if err := s.db.Where("id = ?", id).First(&grant).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return &grant, nil
}

// GetActiveGrant returns the active grant for an (agent, credential) pair.
// Expiry is checked by the caller so denial reasons stay precise.
func (s *Store) GetActiveGrant(agentID, credentialID string) (*models.PermissionGrant, error) {
	var grant models.PermissionGrant
	err := s.db.Where(
		"agent_id = ? AND credential_id = ? AND active = ?",
		agentID, credentialID, true,
	).Order("granted_at DESC").First(&grant).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return &grant, nil
}

// ListGrantsByCredential returns all grants for a credential
func (s *Store) ListGrantsByCredential(credentialID string) ([]models.PermissionGrant, error) {
	var grants []models.PermissionGrant
	err := s.db.Where("credential_id = ?", credentialID).
		Order("granted_at DESC").
		Find(&grants).Error
	return grants, err
}

// ListGrantsByAgent returns all grants held by an agent
func (s *Store) ListGrantsByAgent(agentID string) ([]models.PermissionGrant, error) {
	var grants []models.PermissionGrant
	err := s.db.Where("agent_id = ?", agentID).
		Order("granted_at DESC").
		Find(&grants).Error
	return grants, err
}

// DeactivateGrant sets active=false. Idempotent: deactivating an already
// inactive grant is a no-op, not an error.
func (s *Store) DeactivateGrant(id string) error {
	return s.db.Model(&models.PermissionGrant{}).
		Where("id = ?", id).
		Update("active", false).Error
}

// DeactivateGrantsByAgent revokes every grant held by an agent, used when
// the agent is deleted.
func (s *Store) DeactivateGrantsByAgent(agentID string) (int64, error) {
	res := s.db.Model(&models.PermissionGrant{}).
		Where("agent_id = ? AND active = ?", agentID, true).
		Update("active", false)
	return res.RowsAffected, res.Error
}

// RecordGrantUsage bumps the usage counter and last-used timestamp with a
// single atomic update.
func (s *Store) RecordGrantUsage(id string, at time.Time) error {
	return s.db.Model(&models.PermissionGrant{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"usage_count":  gorm.Expr("usage_count + 1"),
			"last_used_at": at,
		}).Error
}

// CountActiveGrants returns the number of active grants, for the metrics
// gauge job.
func (s *Store) CountActiveGrants() (int64, error) {
	var count int64
	err := s.db.Model(&models.PermissionGrant{}).
		Where("active = ?", true).
		Count(&count).Error
	return count, err
}
