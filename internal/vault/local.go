package vault

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/credgate/credgate/internal/models"
	"github.com/credgate/credgate/internal/store"
	"github.com/credgate/credgate/internal/util"
)

const localHandlePrefix = "local:"

// LocalVault encrypts secrets with AES-256-GCM and keeps only ciphertext
// in the database. Meant for single-node deployments and tests where no
// external secret service is available; the contract is identical to the
// HTTP client's.
type LocalVault struct {
	aead  cipher.AEAD
	store *store.Store
}

// NewLocalVault creates a local vault from a 64-char hex-encoded 32-byte key
func NewLocalVault(hexKey string, s *store.Store) (*LocalVault, error) {
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("invalid vault key: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("vault key must be 32 bytes, got %d", len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	return &LocalVault{aead: aead, store: s}, nil
}

// Store encrypts plaintext and persists the ciphertext, returning a handle
func (v *LocalVault) Store(ctx context.Context, plaintext []byte) (string, error) {
	nonce, err := util.CryptoRandomBytes(int64(v.aead.NonceSize()))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrVaultUnavailable, err)
	}

	handle := localHandlePrefix + uuid.New().String()

	// Nonce is prepended to the ciphertext; the handle is the AAD so a
	// ciphertext row cannot be served for a different handle.
	ciphertext := v.aead.Seal(nonce, nonce, plaintext, []byte(handle))

	err = v.store.CreateVaultSecret(&models.VaultSecret{
		Handle:     handle,
		Ciphertext: ciphertext,
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrVaultUnavailable, err)
	}
	return handle, nil
}

// Decrypt returns the plaintext for a handle
func (v *LocalVault) Decrypt(ctx context.Context, handle string) ([]byte, error) {
	secret, err := v.store.GetVaultSecret(handle)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return nil, ErrHandleNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrVaultUnavailable, err)
	}

	nonceSize := v.aead.NonceSize()
	if len(secret.Ciphertext) < nonceSize {
		return nil, ErrHandleNotFound
	}

	nonce := secret.Ciphertext[:nonceSize]
	plaintext, err := v.aead.Open(nil, nonce, secret.Ciphertext[nonceSize:], []byte(handle))
	if err != nil {
		// Tampered or mismatched ciphertext is an integrity failure, not
		// a transient one.
		return nil, ErrHandleNotFound
	}
	return plaintext, nil
}

// Revoke deletes the ciphertext; idempotent
func (v *LocalVault) Revoke(ctx context.Context, handle string) error {
	if err := v.store.DeleteVaultSecret(handle); err != nil {
		return fmt.Errorf("%w: %v", ErrVaultUnavailable, err)
	}
	return nil
}

// Health checks the backing database connection
func (v *LocalVault) Health(ctx context.Context) error {
	if err := v.store.Health(); err != nil {
		return fmt.Errorf("%w: %v", ErrVaultUnavailable, err)
	}
	return nil
}
