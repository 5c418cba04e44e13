package store

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/credgate/credgate/internal/models"
)

// CreateCredential persists a new credential record
func (s *Store) CreateCredential(cred *models.Credential) error {
	return s.db.Create(cred).Error
}

// GetCredential retrieves a credential by ID
func (s *Store) GetCredential(id string) (*models.Credential, error) {
	var cred models.Credential
	if err := s.db.Where("id = ?", id).First(&cred).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return &cred, nil
}

// GetCredentialByUserAndProvider finds an existing connection so a repeated
// OAuth flow updates it instead of creating a duplicate.
func (s *Store) GetCredentialByUserAndProvider(
	userID, provider string,
) (*models.Credential, error) {
	var cred models.Credential
	err := s.db.Where(
		"user_id = ? AND provider = ?",
		userID, provider,
	).First(&cred).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return &cred, nil
}

// ListCredentialsByUser returns all connections for a user
func (s *Store) ListCredentialsByUser(userID string) ([]models.Credential, error) {
	var creds []models.Credential
	err := s.db.Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&creds).Error
	return creds, err
}

// UpdateCredential saves the full credential record
func (s *Store) UpdateCredential(cred *models.Credential) error {
	return s.db.Save(cred).Error
}

// UpdateCredentialStatus sets only the status column
func (s *Store) UpdateCredentialStatus(id string, status models.CredentialStatus) error {
	return s.db.Model(&models.Credential{}).
		Where("id = ?", id).
		Update("status", status).Error
}

// UpdateCredentialScopes sets only the granted-scopes column, used when a
// re-auth changes what the provider granted.
func (s *Store) UpdateCredentialScopes(id, scopes string) error {
	return s.db.Model(&models.Credential{}).
		Where("id = ?", id).
		Update("scopes", scopes).Error
}

// MarkExpiredCredentials moves active credentials whose expiry has passed
// and that have no refresh token into expired status. Credentials with a
// refresh token stay active for the refresh service to rotate; the grant
// registry independently denies access while the expiry is in the past.
func (s *Store) MarkExpiredCredentials(now time.Time) (int64, error) {
	res := s.db.Model(&models.Credential{}).
		Where("status = ?", models.CredentialActive).
		Where("expires_at IS NOT NULL AND expires_at < ?", now).
		Where("refresh_token_handle = ''").
		Update("status", models.CredentialExpired)
	return res.RowsAffected, res.Error
}

// TouchCredentialValidated records a successful decrypt or refresh
func (s *Store) TouchCredentialValidated(id string, at time.Time) error {
	return s.db.Model(&models.Credential{}).
		Where("id = ?", id).
		Update("last_validated_at", at).Error
}

// ListCredentialsNearingExpiry returns active OAuth credentials whose expiry
// falls inside the refresh window and that carry a refresh token. Credentials
// with a live refresh lease are excluded.
func (s *Store) ListCredentialsNearingExpiry(
	window time.Duration,
	leaseCutoff time.Time,
	limit int,
) ([]models.Credential, error) {
	var creds []models.Credential
	deadline := time.Now().Add(window)
	err := s.db.
		Where("status = ?", models.CredentialActive).
		Where("expires_at IS NOT NULL AND expires_at < ?", deadline).
		Where("refresh_token_handle <> ''").
		Where("refresh_claimed_at IS NULL OR refresh_claimed_at < ?", leaseCutoff).
		Order("expires_at ASC").
		Limit(limit).
		Find(&creds).Error
	return creds, err
}

// ClaimCredentialForRefresh takes the per-credential refresh lease with an
// atomic conditional update. Exactly one concurrent caller wins; losers get
// ErrCredentialClaimed. leaseCutoff is now minus the lease duration: an
// older claim is treated as abandoned and may be taken over.
func (s *Store) ClaimCredentialForRefresh(id string, leaseCutoff time.Time) error {
	res := s.db.Model(&models.Credential{}).
		Where("id = ? AND status = ?", id, models.CredentialActive).
		Where("refresh_claimed_at IS NULL OR refresh_claimed_at < ?", leaseCutoff).
		Update("refresh_claimed_at", time.Now())
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrCredentialClaimed
	}
	return nil
}

// ReleaseRefreshClaim drops the refresh lease
func (s *Store) ReleaseRefreshClaim(id string) error {
	return s.db.Model(&models.Credential{}).
		Where("id = ?", id).
		Update("refresh_claimed_at", nil).Error
}

// RotateCredentialHandles swaps in the freshly stored vault handles and the
// new expiry in one transaction, resetting the failure counter and the
// refresh lease. The caller revokes the old handles only after this commits.
func (s *Store) RotateCredentialHandles(
	id, accessHandle, refreshHandle string,
	expiresAt *time.Time,
) error {
	now := time.Now()
	return s.db.Transaction(func(tx *gorm.DB) error {
		return tx.Model(&models.Credential{}).
			Where("id = ?", id).
			Updates(map[string]any{
				"access_token_handle":  accessHandle,
				"refresh_token_handle": refreshHandle,
				"expires_at":           expiresAt,
				"refresh_failures":     0,
				"refresh_claimed_at":   nil,
				"last_validated_at":    now,
			}).Error
	})
}

// BumpRefreshFailures increments the consecutive-failure counter and returns
// the new count so the caller can decide whether to force error status.
func (s *Store) BumpRefreshFailures(id string) (int, error) {
	err := s.db.Model(&models.Credential{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"refresh_failures":   gorm.Expr("refresh_failures + 1"),
			"refresh_claimed_at": nil,
		}).Error
	if err != nil {
		return 0, err
	}
	cred, err := s.GetCredential(id)
	if err != nil {
		return 0, err
	}
	return cred.RefreshFailures, nil
}

// DeleteCredential removes the connection and deactivates every dependent
// grant in the same transaction, honoring the cascading-revoke invariant.
func (s *Store) DeleteCredential(id string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.PermissionGrant{}).
			Where("credential_id = ? AND active = ?", id, true).
			Update("active", false).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", id).Delete(&models.Credential{}).Error
	})
}

// CountCredentialsByStatus returns the number of credentials in a status,
// used by the metrics gauge job.
func (s *Store) CountCredentialsByStatus(status models.CredentialStatus) (int64, error) {
	var count int64
	err := s.db.Model(&models.Credential{}).
		Where("status = ?", status).
		Count(&count).Error
	return count, err
}
