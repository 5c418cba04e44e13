package models

import "time"

// VaultSecret backs the local AES-GCM vault. Ciphertext includes the GCM
// nonce prefix; the plaintext never touches this table.
type VaultSecret struct {
	Handle     string `gorm:"primaryKey;type:varchar(64)"`
	Ciphertext []byte `gorm:"type:blob;not null"`
	CreatedAt  time.Time
}

func (VaultSecret) TableName() string {
	return "vault_secrets"
}
