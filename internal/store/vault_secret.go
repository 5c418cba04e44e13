package store

import (
	"errors"

	"gorm.io/gorm"

	"github.com/credgate/credgate/internal/models"
)

// Local-vault ciphertext persistence. Only the vault package reads or
// writes these rows; the ciphertext is opaque to everything else.

func (s *Store) CreateVaultSecret(secret *models.VaultSecret) error {
	return s.db.Create(secret).Error
}

func (s *Store) GetVaultSecret(handle string) (*models.VaultSecret, error) {
	var secret models.VaultSecret
	if err := s.db.Where("handle = ?", handle).First(&secret).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return &secret, nil
}

// DeleteVaultSecret is idempotent: deleting an unknown handle is not an error.
func (s *Store) DeleteVaultSecret(handle string) error {
	return s.db.Where("handle = ?", handle).Delete(&models.VaultSecret{}).Error
}
