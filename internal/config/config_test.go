package config

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validTestConfig() *Config {
	return &Config{
		SessionSecret:  "session-secret",
		JWTSecret:      "jwt-secret",
		DatabaseDriver: "sqlite",
		DatabaseDSN:    ":memory:",
		VaultMode:      VaultModeLocal,
		VaultLocalKey:  strings.Repeat("ab", 32),
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, ":8080", cfg.ServerAddr)
	assert.Equal(t, "http://localhost:8080", cfg.BaseURL)
	assert.Equal(t, "sqlite", cfg.DatabaseDriver)
	assert.Equal(t, "credgate.db", cfg.DatabaseDSN)
	assert.Equal(t, VaultModeLocal, cfg.VaultMode)
	assert.Equal(t, 10*time.Minute, cfg.FlowStateTTL)
	assert.Equal(t, 5*time.Minute, cfg.RefreshWindow)
	assert.Equal(t, 4, cfg.RefreshWorkers)
	assert.True(t, cfg.EnableAuditLogging)
	assert.True(t, cfg.MetricsEnabled)
	assert.True(t, cfg.EnableRateLimit)
	assert.Equal(t, "memory", cfg.RateLimitStore)
	assert.Equal(t, []string{"api_key"}, cfg.APIKeyProviders)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("SERVER_ADDR", ":9000")
	t.Setenv("DATABASE_DRIVER", "postgres")
	t.Setenv("DATABASE_DSN", "postgres://localhost/credgate")
	t.Setenv("REFRESH_WINDOW", "2m")
	t.Setenv("REFRESH_WORKERS", "8")
	t.Setenv("ENABLE_RATE_LIMIT", "false")
	t.Setenv("GITHUB_SCOPES", "repo, read:user")

	cfg := Load()

	assert.Equal(t, ":9000", cfg.ServerAddr)
	assert.Equal(t, "postgres", cfg.DatabaseDriver)
	assert.Equal(t, "postgres://localhost/credgate", cfg.DatabaseDSN)
	assert.Equal(t, 2*time.Minute, cfg.RefreshWindow)
	assert.Equal(t, 8, cfg.RefreshWorkers)
	assert.False(t, cfg.EnableRateLimit)
	assert.Equal(t, []string{"repo", "read:user"}, cfg.GitHubScopes)
}

func TestRedirectURL(t *testing.T) {
	cfg := &Config{BaseURL: "https://broker.example.com"}
	assert.Equal(t, "https://broker.example.com/oauth/callback", cfg.RedirectURL())

	cfg.BaseURL = "https://broker.example.com/"
	assert.Equal(t, "https://broker.example.com/oauth/callback", cfg.RedirectURL())
}

func TestValidate(t *testing.T) {
	require.NoError(t, validTestConfig().Validate())

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "missing session secret",
			mutate:  func(c *Config) { c.SessionSecret = "" },
			wantErr: "SESSION_SECRET",
		},
		{
			name:    "missing jwt secret",
			mutate:  func(c *Config) { c.JWTSecret = "" },
			wantErr: "JWT_SECRET",
		},
		{
			name:    "invalid driver",
			mutate:  func(c *Config) { c.DatabaseDriver = "mysql" },
			wantErr: "invalid DATABASE_DRIVER",
		},
		{
			name:    "missing dsn",
			mutate:  func(c *Config) { c.DatabaseDSN = "" },
			wantErr: "DATABASE_DSN",
		},
		{
			name: "http vault without url",
			mutate: func(c *Config) {
				c.VaultMode = VaultModeHTTP
				c.VaultURL = ""
			},
			wantErr: "VAULT_URL",
		},
		{
			name:    "short local vault key",
			mutate:  func(c *Config) { c.VaultLocalKey = "abcd" },
			wantErr: "VAULT_LOCAL_KEY",
		},
		{
			name:    "invalid vault mode",
			mutate:  func(c *Config) { c.VaultMode = "s3" },
			wantErr: "invalid VAULT_MODE",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validTestConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidateHTTPVault(t *testing.T) {
	cfg := validTestConfig()
	cfg.VaultMode = VaultModeHTTP
	cfg.VaultURL = "https://vault.internal:8200"
	cfg.VaultLocalKey = ""
	require.NoError(t, cfg.Validate())
}
