package bootstrap

import (
	"log"

	"github.com/credgate/credgate/internal/config"
	"github.com/credgate/credgate/internal/provider"
)

// initializeProviders builds the provider registry from configuration
func initializeProviders(cfg *config.Config) *provider.Registry {
	registry := provider.NewRegistry()
	redirectURL := cfg.RedirectURL()

	if cfg.GmailEnabled {
		registry.RegisterOAuth(provider.NewGmailDescriptor(
			cfg.GmailClientID, cfg.GmailClientSecret, redirectURL, cfg.GmailScopes,
		))
	}
	if cfg.GitHubEnabled {
		registry.RegisterOAuth(provider.NewGitHubDescriptor(
			cfg.GitHubClientID, cfg.GitHubClientSecret, redirectURL, cfg.GitHubScopes,
		))
	}
	if cfg.SlackEnabled {
		registry.RegisterOAuth(provider.NewSlackDescriptor(
			cfg.SlackClientID, cfg.SlackClientSecret, redirectURL, cfg.SlackScopes,
		))
	}

	for _, name := range cfg.APIKeyProviders {
		registry.RegisterAPIKey(&provider.APIKeyDescriptor{Name: name})
	}

	log.Printf("Providers: oauth=%v api_key=%v", registry.OAuthNames(), registry.APIKeyNames())
	return registry
}
