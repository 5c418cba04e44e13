package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/credgate/credgate/internal/models"
	"github.com/credgate/credgate/internal/provider"
)

func newTestRefreshService(
	t *testing.T,
	tokenHandler http.HandlerFunc,
	cfg RefreshConfig,
) (*RefreshService, *testDeps) {
	t.Helper()
	deps := newTestDeps(t)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /token", tokenHandler)
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	registry := provider.NewRegistry()
	registry.RegisterOAuth(&provider.OAuthDescriptor{
		Name:         "github",
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		Endpoint: oauth2.Endpoint{
			AuthURL:   server.URL + "/authorize",
			TokenURL:  server.URL + "/token",
			AuthStyle: oauth2.AuthStyleInParams,
		},
		DefaultScopes: []string{"repo"},
		RedirectURL:   "http://localhost:8080/oauth/callback",
	})

	if cfg.Interval == 0 {
		cfg.Interval = time.Minute
	}
	if cfg.Window == 0 {
		cfg.Window = 10 * time.Minute
	}
	if cfg.MaxFailures == 0 {
		cfg.MaxFailures = 3
	}
	if cfg.ClaimLease == 0 {
		cfg.ClaimLease = 5 * time.Minute
	}
	return NewRefreshService(deps.store, deps.vault, registry, deps.audit, nil, cfg), deps
}

// seedExpiringCredential creates an active credential expiring soon with
// both token handles present in the fake vault.
func seedExpiringCredential(t *testing.T, deps *testDeps) (*models.Credential, string, string) {
	t.Helper()
	ctx := context.Background()

	accessHandle, err := deps.vault.Store(ctx, []byte("old-access"))
	require.NoError(t, err)
	refreshHandle, err := deps.vault.Store(ctx, []byte("old-refresh"))
	require.NoError(t, err)

	expiresAt := time.Now().Add(2 * time.Minute)
	cred := &models.Credential{
		ID:                 "cred-refresh",
		UserID:             "user-1",
		Provider:           "github",
		AccessTokenHandle:  accessHandle,
		RefreshTokenHandle: refreshHandle,
		Scopes:             "repo",
		ExpiresAt:          &expiresAt,
		Status:             models.CredentialActive,
	}
	require.NoError(t, deps.store.CreateCredential(cred))
	return cred, accessHandle, refreshHandle
}

func TestRunOnceRotatesExpiringCredential(t *testing.T) {
	var gotRefreshToken string
	refresh, deps := newTestRefreshService(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		gotRefreshToken = r.PostForm.Get("refresh_token")
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "new-access",
			"refresh_token": "new-refresh",
			"token_type":    "Bearer",
			"expires_in":    3600,
		})
	}, RefreshConfig{})

	cred, oldAccess, oldRefresh := seedExpiringCredential(t, deps)

	require.NoError(t, refresh.RunOnce(context.Background()))

	// The provider saw the decrypted refresh token
	assert.Equal(t, "old-refresh", gotRefreshToken)

	after, err := deps.store.GetCredential(cred.ID)
	require.NoError(t, err)
	assert.NotEqual(t, oldAccess, after.AccessTokenHandle)
	assert.NotEqual(t, oldRefresh, after.RefreshTokenHandle)
	assert.Equal(t, models.CredentialActive, after.Status)
	assert.Nil(t, after.RefreshClaimedAt)
	assert.True(t, after.ExpiresAt.After(time.Now().Add(30*time.Minute)))

	// New secrets are in the vault, superseded ones are revoked
	plaintext, err := deps.vault.Decrypt(context.Background(), after.AccessTokenHandle)
	require.NoError(t, err)
	assert.Equal(t, "new-access", string(plaintext))
	assert.False(t, deps.vault.has(oldAccess))
	assert.False(t, deps.vault.has(oldRefresh))
}

func TestRunOnceKeepsRefreshHandleWhenNotRotated(t *testing.T) {
	refresh, deps := newTestRefreshService(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"access_token": "new-access",
			"token_type":   "Bearer",
			"expires_in":   3600,
		})
	}, RefreshConfig{})

	cred, _, oldRefresh := seedExpiringCredential(t, deps)

	require.NoError(t, refresh.RunOnce(context.Background()))

	after, err := deps.store.GetCredential(cred.ID)
	require.NoError(t, err)
	assert.Equal(t, oldRefresh, after.RefreshTokenHandle)
	assert.True(t, deps.vault.has(oldRefresh))
}

func TestRunOnceSweepsUnrefreshableExpiredCredentials(t *testing.T) {
	refresh, deps := newTestRefreshService(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("a credential without a refresh token must not be refreshed")
	}, RefreshConfig{})

	ctx := context.Background()
	accessHandle, err := deps.vault.Store(ctx, []byte("stale-api-key"))
	require.NoError(t, err)

	past := time.Now().Add(-time.Hour)
	require.NoError(t, deps.store.CreateCredential(&models.Credential{
		ID:                "cred-stale",
		UserID:            "user-1",
		Provider:          "github",
		AccessTokenHandle: accessHandle,
		Scopes:            "repo",
		ExpiresAt:         &past,
		Status:            models.CredentialActive,
	}))

	require.NoError(t, refresh.RunOnce(ctx))

	after, err := deps.store.GetCredential("cred-stale")
	require.NoError(t, err)
	assert.Equal(t, models.CredentialExpired, after.Status)
}

func TestRunOnceDanglingRefreshHandleIsTerminal(t *testing.T) {
	refresh, deps := newTestRefreshService(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("the provider must not be called without a refresh token")
	}, RefreshConfig{MaxFailures: 5})

	ctx := context.Background()
	accessHandle, err := deps.vault.Store(ctx, []byte("old-access"))
	require.NoError(t, err)

	// The refresh handle points at nothing in the vault
	expiresAt := time.Now().Add(2 * time.Minute)
	require.NoError(t, deps.store.CreateCredential(&models.Credential{
		ID:                 "cred-dangling",
		UserID:             "user-1",
		Provider:           "github",
		AccessTokenHandle:  accessHandle,
		RefreshTokenHandle: "fake:gone",
		Scopes:             "repo",
		ExpiresAt:          &expiresAt,
		Status:             models.CredentialActive,
	}))

	require.NoError(t, refresh.RunOnce(ctx))

	// Retrying cannot recover a lost refresh token, so the credential goes
	// straight to error without exhausting the failure budget.
	after, err := deps.store.GetCredential("cred-dangling")
	require.NoError(t, err)
	assert.Equal(t, models.CredentialError, after.Status)
	assert.Equal(t, 1, after.RefreshFailures)
}

func TestRunOnceSkipsCredentialsOutsideWindow(t *testing.T) {
	refresh, deps := newTestRefreshService(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no refresh should have been attempted")
	}, RefreshConfig{Window: time.Minute})

	ctx := context.Background()
	accessHandle, err := deps.vault.Store(ctx, []byte("access"))
	require.NoError(t, err)
	refreshHandle, err := deps.vault.Store(ctx, []byte("refresh"))
	require.NoError(t, err)

	expiresAt := time.Now().Add(24 * time.Hour)
	require.NoError(t, deps.store.CreateCredential(&models.Credential{
		ID:                 "cred-far",
		UserID:             "user-1",
		Provider:           "github",
		AccessTokenHandle:  accessHandle,
		RefreshTokenHandle: refreshHandle,
		Scopes:             "repo",
		ExpiresAt:          &expiresAt,
		Status:             models.CredentialActive,
	}))

	require.NoError(t, refresh.RunOnce(ctx))
}

func TestRunOnceInvalidGrantIsTerminal(t *testing.T) {
	refresh, deps := newTestRefreshService(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{"error": "invalid_grant"})
	}, RefreshConfig{MaxFailures: 5})

	cred, _, _ := seedExpiringCredential(t, deps)

	require.NoError(t, refresh.RunOnce(context.Background()))

	// The refresh token is dead, so the credential goes straight to error
	after, err := deps.store.GetCredential(cred.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CredentialError, after.Status)
	assert.Equal(t, 1, after.RefreshFailures)
}

func TestRunOnceTransientFailureCountsUp(t *testing.T) {
	refresh, deps := newTestRefreshService(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}, RefreshConfig{MaxFailures: 3})

	cred, _, _ := seedExpiringCredential(t, deps)

	require.NoError(t, refresh.RunOnce(context.Background()))

	// Below the failure ceiling the credential stays usable
	after, err := deps.store.GetCredential(cred.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CredentialActive, after.Status)
	assert.Equal(t, 1, after.RefreshFailures)
}

func TestRunOnceMaxFailuresMarksError(t *testing.T) {
	refresh, deps := newTestRefreshService(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}, RefreshConfig{MaxFailures: 1})

	cred, _, _ := seedExpiringCredential(t, deps)

	require.NoError(t, refresh.RunOnce(context.Background()))

	after, err := deps.store.GetCredential(cred.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CredentialError, after.Status)
}

func TestRunOnceRespectsExistingClaim(t *testing.T) {
	refresh, deps := newTestRefreshService(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("claimed credential must not be refreshed")
	}, RefreshConfig{ClaimLease: 5 * time.Minute})

	cred, _, _ := seedExpiringCredential(t, deps)

	// Another cycle holds a live lease on the credential
	require.NoError(t, deps.store.ClaimCredentialForRefresh(cred.ID, time.Now().Add(-5*time.Minute)))

	require.NoError(t, refresh.RunOnce(context.Background()))
}
