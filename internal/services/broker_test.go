package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/credgate/credgate/internal/models"
)

func newTestBrokerService(t *testing.T) (*BrokerService, *testDeps) {
	t.Helper()
	deps := newTestDeps(t)
	grants := NewGrantService(deps.store, deps.audit, nil)
	broker := NewBrokerService(deps.store, deps.vault, grants, deps.audit, nil, 5*time.Second)
	return broker, deps
}

func TestRequestSecret(t *testing.T) {
	broker, deps := newTestBrokerService(t)
	ctx := context.Background()

	handle, err := deps.vault.Store(ctx, []byte("provider-access-token"))
	require.NoError(t, err)
	agent := seedAgent(t, deps.store, "user-1")
	cred := seedCredential(t, deps.store, "user-1", handle, "repo read:user")
	grant := seedGrant(t, deps.store, agent.ID, cred.ID, "user-1", "repo")

	resp, err := broker.RequestSecret(ctx, agent, cred.ID, "repo")
	require.NoError(t, err)
	assert.Equal(t, "provider-access-token", resp.Secret)
	assert.Equal(t, "github", resp.Provider)
	assert.Equal(t, models.PermissionReadOnly, resp.PermissionLevel)
	assert.Equal(t, []string{"repo"}, resp.Scopes)

	// The access is durable in the audit log
	assert.Equal(t, int64(1), countAuditRows(t, deps.store, models.EventDecryptSuccess))

	// Usage bookkeeping happened
	stored, err := deps.store.GetPermissionGrant(grant.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stored.UsageCount)
	assert.NotNil(t, stored.LastUsedAt)

	credAfter, err := deps.store.GetCredential(cred.ID)
	require.NoError(t, err)
	assert.NotNil(t, credAfter.LastValidatedAt)
}

func TestRequestSecretDenials(t *testing.T) {
	broker, deps := newTestBrokerService(t)
	ctx := context.Background()

	handle, err := deps.vault.Store(ctx, []byte("secret"))
	require.NoError(t, err)
	agent := seedAgent(t, deps.store, "user-1")
	cred := seedCredential(t, deps.store, "user-1", handle, "repo")
	seedGrant(t, deps.store, agent.ID, cred.ID, "user-1", "repo")

	t.Run("no grant", func(t *testing.T) {
		stranger := seedAgent(t, deps.store, "user-1")
		_, err := broker.RequestSecret(ctx, stranger, cred.ID, "repo")
		assert.ErrorIs(t, err, ErrNotAuthorized)
	})

	t.Run("missing credential is indistinguishable from no grant", func(t *testing.T) {
		_, err := broker.RequestSecret(ctx, agent, "missing", "repo")
		assert.ErrorIs(t, err, ErrNotAuthorized)
	})

	t.Run("scope exceeds grant", func(t *testing.T) {
		_, err := broker.RequestSecret(ctx, agent, cred.ID, "delete_repo")
		assert.ErrorIs(t, err, ErrScopeNotGranted)
	})

	t.Run("credential revoked", func(t *testing.T) {
		require.NoError(t, deps.store.UpdateCredentialStatus(cred.ID, models.CredentialRevoked))
		_, err := broker.RequestSecret(ctx, agent, cred.ID, "repo")
		assert.ErrorIs(t, err, ErrCredentialRevoked)
	})

	t.Run("credential needs reauth", func(t *testing.T) {
		require.NoError(t, deps.store.UpdateCredentialStatus(cred.ID, models.CredentialError))
		_, err := broker.RequestSecret(ctx, agent, cred.ID, "repo")
		assert.ErrorIs(t, err, ErrCredentialNeedsReauth)
	})

	// Every denial above was audited durably
	denied := countAuditRows(t, deps.store, models.EventDecryptDenied)
	assert.Equal(t, int64(5), denied)

	// No secret left the broker, so no success entries exist
	assert.Equal(t, int64(0), countAuditRows(t, deps.store, models.EventDecryptSuccess))
}

func TestRequestSecretFailsClosedOnVaultError(t *testing.T) {
	broker, deps := newTestBrokerService(t)
	ctx := context.Background()

	handle, err := deps.vault.Store(ctx, []byte("secret"))
	require.NoError(t, err)
	agent := seedAgent(t, deps.store, "user-1")
	cred := seedCredential(t, deps.store, "user-1", handle, "repo")
	seedGrant(t, deps.store, agent.ID, cred.ID, "user-1", "repo")

	deps.vault.decryptErr = assert.AnError
	_, err = broker.RequestSecret(ctx, agent, cred.ID, "repo")
	assert.ErrorIs(t, err, ErrVaultUnavailable)

	// The failure is durable before the response
	assert.Equal(t, int64(1), countAuditRows(t, deps.store, models.EventDecryptFailure))
}

func TestRequestSecretMissingHandle(t *testing.T) {
	broker, deps := newTestBrokerService(t)
	ctx := context.Background()

	agent := seedAgent(t, deps.store, "user-1")
	cred := seedCredential(t, deps.store, "user-1", "fake:never-stored", "repo")
	seedGrant(t, deps.store, agent.ID, cred.ID, "user-1", "repo")

	// A dangling handle means the credential must be reconnected
	_, err := broker.RequestSecret(ctx, agent, cred.ID, "repo")
	assert.ErrorIs(t, err, ErrCredentialNeedsReauth)
	assert.Equal(t, int64(1), countAuditRows(t, deps.store, models.EventDecryptFailure))

	// The credential is downgraded so later requests are denied outright
	// instead of hitting the vault again.
	stored, err := deps.store.GetCredential(cred.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CredentialError, stored.Status)

	_, err = broker.RequestSecret(ctx, agent, cred.ID, "repo")
	assert.ErrorIs(t, err, ErrCredentialNeedsReauth)
	assert.Equal(t, int64(1), countAuditRows(t, deps.store, models.EventDecryptDenied))
}

func TestRequestSecretExpiredCredential(t *testing.T) {
	broker, deps := newTestBrokerService(t)
	ctx := context.Background()

	handle, err := deps.vault.Store(ctx, []byte("stale-token"))
	require.NoError(t, err)
	agent := seedAgent(t, deps.store, "user-1")
	cred := seedCredential(t, deps.store, "user-1", handle, "repo")
	seedGrant(t, deps.store, agent.ID, cred.ID, "user-1", "repo")

	// Status is still active but the token expiry has passed
	past := time.Now().Add(-2 * time.Hour)
	require.NoError(t, deps.store.DB().Model(&models.Credential{}).
		Where("id = ?", cred.ID).
		Update("expires_at", past).Error)

	resp, err := broker.RequestSecret(ctx, agent, cred.ID, "repo")
	assert.Nil(t, resp)
	assert.ErrorIs(t, err, ErrCredentialNeedsReauth)

	// Denied before the vault, and durably audited
	assert.Equal(t, int64(1), countAuditRows(t, deps.store, models.EventDecryptDenied))
	assert.Equal(t, int64(0), countAuditRows(t, deps.store, models.EventDecryptSuccess))
}

func TestDenialError(t *testing.T) {
	assert.ErrorIs(t, denialError(DenyScopeNotGranted), ErrScopeNotGranted)
	assert.ErrorIs(t, denialError(DenyCredentialRevoked), ErrCredentialRevoked)
	assert.ErrorIs(t, denialError(DenyCredentialInvalid), ErrCredentialNeedsReauth)
	assert.ErrorIs(t, denialError(DenyCredentialExpired), ErrCredentialNeedsReauth)
	assert.ErrorIs(t, denialError(DenyNoGrant), ErrNotAuthorized)
	assert.ErrorIs(t, denialError(DenyGrantExpired), ErrNotAuthorized)
	assert.ErrorIs(t, denialError(DenyGrantInactive), ErrNotAuthorized)
}
