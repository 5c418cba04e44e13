package bootstrap

import (
	"log"

	"github.com/credgate/credgate/internal/config"
)

// validateAllConfiguration validates all configuration settings
func validateAllConfiguration(cfg *config.Config) {
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	if err := validateProviderConfig(cfg); err != nil {
		log.Fatalf("Invalid provider configuration: %v", err)
	}
}

// validateProviderConfig checks that every enabled OAuth provider carries
// client credentials.
func validateProviderConfig(cfg *config.Config) error {
	check := func(name, clientID, clientSecret string, enabled bool) error {
		if !enabled {
			return nil
		}
		if clientID == "" || clientSecret == "" {
			return &missingProviderCredentials{provider: name}
		}
		return nil
	}

	if err := check("gmail", cfg.GmailClientID, cfg.GmailClientSecret, cfg.GmailEnabled); err != nil {
		return err
	}
	if err := check("github", cfg.GitHubClientID, cfg.GitHubClientSecret, cfg.GitHubEnabled); err != nil {
		return err
	}
	return check("slack", cfg.SlackClientID, cfg.SlackClientSecret, cfg.SlackEnabled)
}

type missingProviderCredentials struct {
	provider string
}

func (e *missingProviderCredentials) Error() string {
	return "provider " + e.provider + " is enabled but missing client credentials"
}
