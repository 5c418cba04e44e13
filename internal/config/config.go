package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Vault mode constants
const (
	VaultModeHTTP  = "http"
	VaultModeLocal = "local"
)

type Config struct {
	// Server settings
	ServerAddr   string
	BaseURL      string
	IsProduction bool

	// Management-surface auth
	JWTSecret     string
	SessionSecret string
	SessionMaxAge int // seconds

	// Database
	DatabaseDriver string // "sqlite" or "postgres"
	DatabaseDSN    string

	// Vault
	VaultMode       string // "http" or "local"
	VaultURL        string
	VaultToken      string
	VaultLocalKey   string // 64-char hex, local mode only
	VaultTimeout    time.Duration
	VaultMaxRetries int

	// OAuth flow settings
	FlowStateTTL time.Duration
	OAuthTimeout time.Duration

	// Broker settings
	BrokerRequestTimeout time.Duration

	// Token refresh service
	RefreshInterval    time.Duration
	RefreshWindow      time.Duration
	RefreshWorkers     int
	RefreshMaxFailures int
	RefreshClaimLease  time.Duration
	RefreshBatchLimit  int

	// Audit
	EnableAuditLogging bool
	AuditLogBufferSize int
	AuditLogRetention  time.Duration

	// Metrics
	MetricsEnabled             bool
	MetricsToken               string
	MetricsGaugeUpdateEnabled  bool
	MetricsGaugeUpdateInterval time.Duration
	MetricsCacheBackend        string // "memory" or "redis"

	// Rate limiting
	EnableRateLimit          bool
	RateLimitStore           string // "memory" or "redis"
	BrokerRateLimit          int    // requests per minute
	FlowRateLimit            int
	RateLimitCleanupInterval time.Duration

	// Redis (rate limiting and metrics cache)
	RedisAddr        string
	RedisPassword    string
	RedisDB          int
	RedisConnTimeout time.Duration

	// OAuth providers
	GmailEnabled      bool
	GmailClientID     string
	GmailClientSecret string
	GmailScopes       []string

	GitHubEnabled      bool
	GitHubClientID     string
	GitHubClientSecret string
	GitHubScopes       []string

	SlackEnabled      bool
	SlackClientID     string
	SlackClientSecret string
	SlackScopes       []string

	// API-key providers (comma-separated provider names)
	APIKeyProviders []string
}

func Load() *Config {
	// Load .env file if exists (ignore error if not found)
	_ = godotenv.Load()

	driver := getEnv("DATABASE_DRIVER", "sqlite")
	var dsn string
	if driver == "sqlite" {
		dsn = getEnv("DATABASE_DSN", "credgate.db")
	} else {
		dsn = getEnv("DATABASE_DSN", "")
	}

	return &Config{
		ServerAddr:   getEnv("SERVER_ADDR", ":8080"),
		BaseURL:      getEnv("BASE_URL", "http://localhost:8080"),
		IsProduction: getEnvBool("PRODUCTION", false),

		JWTSecret:     getEnv("JWT_SECRET", ""),
		SessionSecret: getEnv("SESSION_SECRET", ""),
		SessionMaxAge: getEnvInt("SESSION_MAX_AGE", 86400),

		DatabaseDriver: driver,
		DatabaseDSN:    dsn,

		VaultMode:       getEnv("VAULT_MODE", VaultModeLocal),
		VaultURL:        getEnv("VAULT_URL", ""),
		VaultToken:      getEnv("VAULT_TOKEN", ""),
		VaultLocalKey:   getEnv("VAULT_LOCAL_KEY", ""),
		VaultTimeout:    getEnvDuration("VAULT_TIMEOUT", 10*time.Second),
		VaultMaxRetries: getEnvInt("VAULT_MAX_RETRIES", 3),

		FlowStateTTL: getEnvDuration("FLOW_STATE_TTL", 10*time.Minute),
		OAuthTimeout: getEnvDuration("OAUTH_TIMEOUT", 15*time.Second),

		BrokerRequestTimeout: getEnvDuration("BROKER_REQUEST_TIMEOUT", 5*time.Second),

		RefreshInterval:    getEnvDuration("REFRESH_INTERVAL", 1*time.Minute),
		RefreshWindow:      getEnvDuration("REFRESH_WINDOW", 5*time.Minute),
		RefreshWorkers:     getEnvInt("REFRESH_WORKERS", 4),
		RefreshMaxFailures: getEnvInt("REFRESH_MAX_FAILURES", 5),
		RefreshClaimLease:  getEnvDuration("REFRESH_CLAIM_LEASE", 2*time.Minute),
		RefreshBatchLimit:  getEnvInt("REFRESH_BATCH_LIMIT", 100),

		EnableAuditLogging: getEnvBool("ENABLE_AUDIT_LOGGING", true),
		AuditLogBufferSize: getEnvInt("AUDIT_LOG_BUFFER_SIZE", 1000),
		AuditLogRetention:  getEnvDuration("AUDIT_LOG_RETENTION", 90*24*time.Hour),

		MetricsEnabled:             getEnvBool("METRICS_ENABLED", true),
		MetricsToken:               getEnv("METRICS_TOKEN", ""),
		MetricsGaugeUpdateEnabled:  getEnvBool("METRICS_GAUGE_UPDATE_ENABLED", true),
		MetricsGaugeUpdateInterval: getEnvDuration("METRICS_GAUGE_UPDATE_INTERVAL", 30*time.Second),
		MetricsCacheBackend:        getEnv("METRICS_CACHE_BACKEND", "memory"),

		EnableRateLimit:          getEnvBool("ENABLE_RATE_LIMIT", true),
		RateLimitStore:           getEnv("RATE_LIMIT_STORE", "memory"),
		BrokerRateLimit:          getEnvInt("BROKER_RATE_LIMIT", 120),
		FlowRateLimit:            getEnvInt("FLOW_RATE_LIMIT", 30),
		RateLimitCleanupInterval: getEnvDuration("RATE_LIMIT_CLEANUP_INTERVAL", 5*time.Minute),

		RedisAddr:        getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:    getEnv("REDIS_PASSWORD", ""),
		RedisDB:          getEnvInt("REDIS_DB", 0),
		RedisConnTimeout: getEnvDuration("REDIS_CONN_TIMEOUT", 5*time.Second),

		GmailEnabled:      getEnvBool("GMAIL_OAUTH_ENABLED", false),
		GmailClientID:     getEnv("GMAIL_CLIENT_ID", ""),
		GmailClientSecret: getEnv("GMAIL_CLIENT_SECRET", ""),
		GmailScopes:       getEnvSlice("GMAIL_SCOPES", nil),

		GitHubEnabled:      getEnvBool("GITHUB_OAUTH_ENABLED", false),
		GitHubClientID:     getEnv("GITHUB_CLIENT_ID", ""),
		GitHubClientSecret: getEnv("GITHUB_CLIENT_SECRET", ""),
		GitHubScopes:       getEnvSlice("GITHUB_SCOPES", nil),

		SlackEnabled:      getEnvBool("SLACK_OAUTH_ENABLED", false),
		SlackClientID:     getEnv("SLACK_CLIENT_ID", ""),
		SlackClientSecret: getEnv("SLACK_CLIENT_SECRET", ""),
		SlackScopes:       getEnvSlice("SLACK_SCOPES", nil),

		APIKeyProviders: getEnvSlice("API_KEY_PROVIDERS", []string{"api_key"}),
	}
}

// RedirectURL returns the provider callback URL served by this instance
func (c *Config) RedirectURL() string {
	return strings.TrimSuffix(c.BaseURL, "/") + "/oauth/callback"
}

// Validate checks settings that would otherwise fail at first use
func (c *Config) Validate() error {
	if c.SessionSecret == "" {
		return fmt.Errorf("SESSION_SECRET is required")
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}

	switch c.DatabaseDriver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("invalid DATABASE_DRIVER: %s (must be: sqlite, postgres)", c.DatabaseDriver)
	}
	if c.DatabaseDSN == "" {
		return fmt.Errorf("DATABASE_DSN is required for driver %s", c.DatabaseDriver)
	}

	switch c.VaultMode {
	case VaultModeHTTP:
		if c.VaultURL == "" {
			return fmt.Errorf("VAULT_URL is required when VAULT_MODE=http")
		}
	case VaultModeLocal:
		if len(c.VaultLocalKey) != 64 {
			return fmt.Errorf("VAULT_LOCAL_KEY must be 64 hex characters (32 bytes)")
		}
	default:
		return fmt.Errorf("invalid VAULT_MODE: %s (must be: http, local)", c.VaultMode)
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1"
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var i int
		if _, err := fmt.Sscanf(value, "%d", &i); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		var parts []string
		for _, part := range strings.Split(value, ",") {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				parts = append(parts, trimmed)
			}
		}
		if len(parts) > 0 {
			return parts
		}
	}
	return defaultValue
}
