package store

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/credgate/credgate/internal/models"
)

// CreateFlowState persists a new OAuth flow state row
func (s *Store) CreateFlowState(fs *models.OAuthFlowState) error {
	return s.db.Create(fs).Error
}

// GetFlowStateByHash looks up a flow state by the SHA-256 hash of the
// state token.
func (s *Store) GetFlowStateByHash(stateHash string) (*models.OAuthFlowState, error) {
	var fs models.OAuthFlowState
	if err := s.db.Where("state_hash = ?", stateHash).First(&fs).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return &fs, nil
}

// ConsumeFlowState marks the state used with an atomic conditional update
// (WHERE used_at IS NULL). Only one concurrent callback wins; the loser
// receives ErrStateAlreadyUsed, which enforces single use under replay.
func (s *Store) ConsumeFlowState(id int64) error {
	res := s.db.Model(&models.OAuthFlowState{}).
		Where("id = ? AND used_at IS NULL", id).
		Update("used_at", time.Now())
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrStateAlreadyUsed
	}
	return nil
}

// DeleteExpiredFlowStates garbage-collects flows past their TTL
func (s *Store) DeleteExpiredFlowStates() (int64, error) {
	res := s.db.Where("expires_at < ?", time.Now()).
		Delete(&models.OAuthFlowState{})
	return res.RowsAffected, res.Error
}
