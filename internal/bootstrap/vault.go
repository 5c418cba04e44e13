package bootstrap

import (
	"fmt"
	"log"

	"github.com/credgate/credgate/internal/config"
	"github.com/credgate/credgate/internal/store"
	"github.com/credgate/credgate/internal/vault"
)

// initializeVault selects the vault backend. "http" delegates encryption to
// an external secret service; "local" encrypts with AES-256-GCM into the
// database.
func initializeVault(cfg *config.Config, db *store.Store) (vault.Client, error) {
	switch cfg.VaultMode {
	case config.VaultModeHTTP:
		log.Printf("Vault: http (%s)", cfg.VaultURL)
		return vault.NewHTTPClient(vault.HTTPConfig{
			BaseURL:    cfg.VaultURL,
			AuthToken:  cfg.VaultToken,
			Timeout:    cfg.VaultTimeout,
			MaxRetries: cfg.VaultMaxRetries,
		}), nil

	case config.VaultModeLocal:
		v, err := vault.NewLocalVault(cfg.VaultLocalKey, db)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize local vault: %w", err)
		}
		log.Println("Vault: local (AES-256-GCM)")
		return v, nil

	default:
		return nil, fmt.Errorf("invalid VAULT_MODE: %s", cfg.VaultMode)
	}
}
