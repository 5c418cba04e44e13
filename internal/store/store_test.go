package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/credgate/credgate/internal/models"
)

// TestStoreWithSQLite tests store operations with SQLite
func TestStoreWithSQLite(t *testing.T) {
	s, err := New("sqlite", ":memory:")
	require.NoError(t, err)
	testStoreOperations(t, s)
}

// TestStoreWithPostgres tests store operations with PostgreSQL
func TestStoreWithPostgres(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping PostgreSQL integration test in short mode")
	}

	defer func() {
		if r := recover(); r != nil {
			t.Skipf("Skipping PostgreSQL test: Docker not available (panic: %v)", r)
		}
	}()

	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		t.Skipf("Skipping PostgreSQL test: Docker not available (%v)", err)
		return
	}
	t.Cleanup(func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	dsn, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	s, err := New("postgres", dsn)
	require.NoError(t, err)
	testStoreOperations(t, s)
}

func createTestCredential(t *testing.T, s *Store, userID string) *models.Credential {
	t.Helper()
	cred := &models.Credential{
		ID:                 uuid.New().String(),
		UserID:             userID,
		Provider:           "github",
		AccessTokenHandle:  "handle-access-" + uuid.New().String(),
		RefreshTokenHandle: "handle-refresh-" + uuid.New().String(),
		Scopes:             "repo read:user",
		Status:             models.CredentialActive,
	}
	require.NoError(t, s.CreateCredential(cred))
	return cred
}

func createTestAgent(t *testing.T, s *Store, userID string) *models.Agent {
	t.Helper()
	agent := &models.Agent{
		ID:        uuid.New().String(),
		UserID:    userID,
		Name:      "test-agent",
		TokenSalt: "salt",
		TokenHash: "hash",
		Active:    true,
	}
	require.NoError(t, s.CreateAgent(agent))
	return agent
}

func createTestGrant(t *testing.T, s *Store, agentID, credentialID, userID string) *models.PermissionGrant {
	t.Helper()
	grant := &models.PermissionGrant{
		ID:              uuid.New().String(),
		AgentID:         agentID,
		CredentialID:    credentialID,
		GrantedByUserID: userID,
		PermissionLevel: models.PermissionReadOnly,
		Scopes:          "repo",
		GrantedAt:       time.Now(),
		Active:          true,
	}
	require.NoError(t, s.CreatePermissionGrant(grant))
	return grant
}

func testStoreOperations(t *testing.T, s *Store) {
	t.Run("Health", func(t *testing.T) {
		assert.NoError(t, s.Health())
	})

	t.Run("CredentialCRUD", func(t *testing.T) {
		userID := uuid.New().String()
		cred := createTestCredential(t, s, userID)

		got, err := s.GetCredential(cred.ID)
		require.NoError(t, err)
		assert.Equal(t, cred.AccessTokenHandle, got.AccessTokenHandle)
		assert.Equal(t, models.CredentialActive, got.Status)

		got, err = s.GetCredentialByUserAndProvider(userID, "github")
		require.NoError(t, err)
		assert.Equal(t, cred.ID, got.ID)

		require.NoError(t, s.UpdateCredentialScopes(cred.ID, "repo"))
		got, err = s.GetCredential(cred.ID)
		require.NoError(t, err)
		assert.Equal(t, "repo", got.Scopes)

		_, err = s.GetCredential("missing")
		assert.ErrorIs(t, err, ErrRecordNotFound)

		creds, err := s.ListCredentialsByUser(userID)
		require.NoError(t, err)
		assert.Len(t, creds, 1)

		require.NoError(t, s.UpdateCredentialStatus(cred.ID, models.CredentialExpired))
		got, err = s.GetCredential(cred.ID)
		require.NoError(t, err)
		assert.Equal(t, models.CredentialExpired, got.Status)
	})

	t.Run("RefreshClaimLease", func(t *testing.T) {
		cred := createTestCredential(t, s, uuid.New().String())
		leaseCutoff := time.Now().Add(-2 * time.Minute)

		require.NoError(t, s.ClaimCredentialForRefresh(cred.ID, leaseCutoff))

		// Second claim inside the lease loses
		err := s.ClaimCredentialForRefresh(cred.ID, leaseCutoff)
		assert.ErrorIs(t, err, ErrCredentialClaimed)

		// An abandoned lease may be taken over
		futureCutoff := time.Now().Add(time.Minute)
		assert.NoError(t, s.ClaimCredentialForRefresh(cred.ID, futureCutoff))

		require.NoError(t, s.ReleaseRefreshClaim(cred.ID))
		assert.NoError(t, s.ClaimCredentialForRefresh(cred.ID, leaseCutoff))
	})

	t.Run("RotateCredentialHandles", func(t *testing.T) {
		cred := createTestCredential(t, s, uuid.New().String())
		require.NoError(t, s.ClaimCredentialForRefresh(cred.ID, time.Now().Add(-time.Minute)))

		_, err := s.BumpRefreshFailures(cred.ID)
		require.NoError(t, err)

		expiry := time.Now().Add(time.Hour)
		require.NoError(t, s.RotateCredentialHandles(cred.ID, "new-access", "new-refresh", &expiry))

		got, err := s.GetCredential(cred.ID)
		require.NoError(t, err)
		assert.Equal(t, "new-access", got.AccessTokenHandle)
		assert.Equal(t, "new-refresh", got.RefreshTokenHandle)
		assert.Equal(t, 0, got.RefreshFailures)
		assert.Nil(t, got.RefreshClaimedAt)
		assert.NotNil(t, got.ExpiresAt)
		assert.NotNil(t, got.LastValidatedAt)
	})

	t.Run("BumpRefreshFailures", func(t *testing.T) {
		cred := createTestCredential(t, s, uuid.New().String())

		n, err := s.BumpRefreshFailures(cred.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		n, err = s.BumpRefreshFailures(cred.ID)
		require.NoError(t, err)
		assert.Equal(t, 2, n)
	})

	t.Run("ListCredentialsNearingExpiry", func(t *testing.T) {
		userID := uuid.New().String()
		leaseCutoff := time.Now().Add(-2 * time.Minute)

		// Expiring soon with a refresh token: should be picked up
		expiring := createTestCredential(t, s, userID)
		soon := time.Now().Add(2 * time.Minute)
		expiring.ExpiresAt = &soon
		require.NoError(t, s.UpdateCredential(expiring))

		// Expiring far in the future: excluded
		healthy := createTestCredential(t, s, userID)
		far := time.Now().Add(24 * time.Hour)
		healthy.ExpiresAt = &far
		require.NoError(t, s.UpdateCredential(healthy))

		// No refresh token: excluded
		apiKey := createTestCredential(t, s, userID)
		apiKey.ExpiresAt = &soon
		apiKey.RefreshTokenHandle = ""
		require.NoError(t, s.UpdateCredential(apiKey))

		// Claimed by another worker: excluded
		claimed := createTestCredential(t, s, userID)
		claimed.ExpiresAt = &soon
		require.NoError(t, s.UpdateCredential(claimed))
		require.NoError(t, s.ClaimCredentialForRefresh(claimed.ID, leaseCutoff))

		creds, err := s.ListCredentialsNearingExpiry(5*time.Minute, leaseCutoff, 100)
		require.NoError(t, err)

		ids := make(map[string]bool)
		for _, c := range creds {
			ids[c.ID] = true
		}
		assert.True(t, ids[expiring.ID])
		assert.False(t, ids[healthy.ID])
		assert.False(t, ids[apiKey.ID])
		assert.False(t, ids[claimed.ID])
	})

	t.Run("MarkExpiredCredentials", func(t *testing.T) {
		userID := uuid.New().String()
		past := time.Now().Add(-time.Hour)

		// Past expiry, no refresh token: swept into expired
		stale := createTestCredential(t, s, userID)
		stale.ExpiresAt = &past
		stale.RefreshTokenHandle = ""
		require.NoError(t, s.UpdateCredential(stale))

		// Past expiry but refreshable: left for the refresh service
		refreshable := createTestCredential(t, s, userID)
		refreshable.ExpiresAt = &past
		require.NoError(t, s.UpdateCredential(refreshable))

		// No expiry at all: untouched
		perpetual := createTestCredential(t, s, userID)
		perpetual.RefreshTokenHandle = ""
		require.NoError(t, s.UpdateCredential(perpetual))

		n, err := s.MarkExpiredCredentials(time.Now())
		require.NoError(t, err)
		assert.GreaterOrEqual(t, n, int64(1))

		got, err := s.GetCredential(stale.ID)
		require.NoError(t, err)
		assert.Equal(t, models.CredentialExpired, got.Status)

		got, err = s.GetCredential(refreshable.ID)
		require.NoError(t, err)
		assert.Equal(t, models.CredentialActive, got.Status)

		got, err = s.GetCredential(perpetual.ID)
		require.NoError(t, err)
		assert.Equal(t, models.CredentialActive, got.Status)
	})

	t.Run("DeleteCredentialDeactivatesGrants", func(t *testing.T) {
		userID := uuid.New().String()
		cred := createTestCredential(t, s, userID)
		agent := createTestAgent(t, s, userID)
		grant := createTestGrant(t, s, agent.ID, cred.ID, userID)

		require.NoError(t, s.DeleteCredential(cred.ID))

		_, err := s.GetCredential(cred.ID)
		assert.ErrorIs(t, err, ErrRecordNotFound)

		got, err := s.GetPermissionGrant(grant.ID)
		require.NoError(t, err)
		assert.False(t, got.Active)
	})

	t.Run("FlowStateSingleUse", func(t *testing.T) {
		fs := &models.OAuthFlowState{
			StateHash:       uuid.New().String(),
			CodeVerifier:    "verifier",
			Provider:        "github",
			UserID:          uuid.New().String(),
			RequestedScopes: "repo",
			ExpiresAt:       time.Now().Add(10 * time.Minute),
		}
		require.NoError(t, s.CreateFlowState(fs))

		got, err := s.GetFlowStateByHash(fs.StateHash)
		require.NoError(t, err)
		assert.False(t, got.IsUsed())

		require.NoError(t, s.ConsumeFlowState(got.ID))

		// Second consume loses the conditional update
		err = s.ConsumeFlowState(got.ID)
		assert.ErrorIs(t, err, ErrStateAlreadyUsed)

		got, err = s.GetFlowStateByHash(fs.StateHash)
		require.NoError(t, err)
		assert.True(t, got.IsUsed())
	})

	t.Run("DeleteExpiredFlowStates", func(t *testing.T) {
		expired := &models.OAuthFlowState{
			StateHash:       uuid.New().String(),
			CodeVerifier:    "verifier",
			Provider:        "github",
			UserID:          uuid.New().String(),
			RequestedScopes: "repo",
			ExpiresAt:       time.Now().Add(-time.Minute),
		}
		live := &models.OAuthFlowState{
			StateHash:       uuid.New().String(),
			CodeVerifier:    "verifier",
			Provider:        "github",
			UserID:          uuid.New().String(),
			RequestedScopes: "repo",
			ExpiresAt:       time.Now().Add(10 * time.Minute),
		}
		require.NoError(t, s.CreateFlowState(expired))
		require.NoError(t, s.CreateFlowState(live))

		deleted, err := s.DeleteExpiredFlowStates()
		require.NoError(t, err)
		assert.GreaterOrEqual(t, deleted, int64(1))

		_, err = s.GetFlowStateByHash(expired.StateHash)
		assert.ErrorIs(t, err, ErrRecordNotFound)
		_, err = s.GetFlowStateByHash(live.StateHash)
		assert.NoError(t, err)
	})

	t.Run("GrantOperations", func(t *testing.T) {
		userID := uuid.New().String()
		cred := createTestCredential(t, s, userID)
		agent := createTestAgent(t, s, userID)
		grant := createTestGrant(t, s, agent.ID, cred.ID, userID)

		got, err := s.GetActiveGrant(agent.ID, cred.ID)
		require.NoError(t, err)
		assert.Equal(t, grant.ID, got.ID)

		require.NoError(t, s.RecordGrantUsage(grant.ID, time.Now()))
		require.NoError(t, s.RecordGrantUsage(grant.ID, time.Now()))
		got, err = s.GetPermissionGrant(grant.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(2), got.UsageCount)
		assert.NotNil(t, got.LastUsedAt)

		// Deactivation is idempotent
		require.NoError(t, s.DeactivateGrant(grant.ID))
		require.NoError(t, s.DeactivateGrant(grant.ID))

		_, err = s.GetActiveGrant(agent.ID, cred.ID)
		assert.ErrorIs(t, err, ErrRecordNotFound)
	})

	t.Run("DeactivateGrantsByAgent", func(t *testing.T) {
		userID := uuid.New().String()
		agent := createTestAgent(t, s, userID)
		cred1 := createTestCredential(t, s, userID)
		cred2 := createTestCredential(t, s, userID)
		createTestGrant(t, s, agent.ID, cred1.ID, userID)
		createTestGrant(t, s, agent.ID, cred2.ID, userID)

		revoked, err := s.DeactivateGrantsByAgent(agent.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(2), revoked)

		revoked, err = s.DeactivateGrantsByAgent(agent.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(0), revoked)
	})

	t.Run("AgentCRUD", func(t *testing.T) {
		userID := uuid.New().String()
		agent := createTestAgent(t, s, userID)

		got, err := s.GetAgent(agent.ID)
		require.NoError(t, err)
		assert.Equal(t, "test-agent", got.Name)

		require.NoError(t, s.TouchAgentSeen(agent.ID, time.Now()))
		got, err = s.GetAgent(agent.ID)
		require.NoError(t, err)
		assert.NotNil(t, got.LastSeenAt)

		agents, err := s.ListAgentsByUser(userID)
		require.NoError(t, err)
		assert.Len(t, agents, 1)

		require.NoError(t, s.DeleteAgent(agent.ID))
		_, err = s.GetAgent(agent.ID)
		assert.ErrorIs(t, err, ErrRecordNotFound)
	})

	t.Run("VaultSecrets", func(t *testing.T) {
		secret := &models.VaultSecret{
			Handle:     "local:" + uuid.New().String(),
			Ciphertext: []byte{0x01, 0x02, 0x03},
		}
		require.NoError(t, s.CreateVaultSecret(secret))

		got, err := s.GetVaultSecret(secret.Handle)
		require.NoError(t, err)
		assert.Equal(t, secret.Ciphertext, got.Ciphertext)

		require.NoError(t, s.DeleteVaultSecret(secret.Handle))
		_, err = s.GetVaultSecret(secret.Handle)
		assert.ErrorIs(t, err, ErrRecordNotFound)

		// Revoking an unknown handle is not an error
		assert.NoError(t, s.DeleteVaultSecret("local:unknown"))
	})

	t.Run("AuditLogs", func(t *testing.T) {
		actorID := uuid.New().String()

		logs := make([]*models.AuditLog, 0, 25)
		for i := 0; i < 25; i++ {
			logs = append(logs, &models.AuditLog{
				ID:          uuid.New().String(),
				EventType:   models.EventDecryptSuccess,
				EventTime:   time.Now(),
				Severity:    models.SeverityInfo,
				ActorUserID: actorID,
				Action:      fmt.Sprintf("secret_request_%d", i),
				Success:     true,
				CreatedAt:   time.Now(),
			})
		}
		require.NoError(t, s.CreateAuditLogBatch(logs))

		params := NewPaginationParams(1, 10)
		got, pagination, err := s.GetAuditLogsPaginated(params, AuditLogFilters{ActorUserID: actorID})
		require.NoError(t, err)
		assert.Len(t, got, 10)
		assert.Equal(t, int64(25), pagination.Total)
		assert.Equal(t, 3, pagination.TotalPages)
		assert.True(t, pagination.HasNext)
		assert.False(t, pagination.HasPrev)

		// Filter by event type misses
		got, pagination, err = s.GetAuditLogsPaginated(params, AuditLogFilters{
			ActorUserID: actorID,
			EventType:   models.EventGrantRevoked,
		})
		require.NoError(t, err)
		assert.Empty(t, got)
		assert.Equal(t, int64(0), pagination.Total)

		// Success filter
		failed := false
		_, pagination, err = s.GetAuditLogsPaginated(params, AuditLogFilters{
			ActorUserID: actorID,
			Success:     &failed,
		})
		require.NoError(t, err)
		assert.Equal(t, int64(0), pagination.Total)
	})

	t.Run("DeleteOldAuditLogs", func(t *testing.T) {
		old := &models.AuditLog{
			ID:          uuid.New().String(),
			EventType:   models.EventDecryptSuccess,
			EventTime:   time.Now().Add(-48 * time.Hour),
			Severity:    models.SeverityInfo,
			ActorUserID: uuid.New().String(),
			Action:      "secret_request",
			Success:     true,
			CreatedAt:   time.Now().Add(-48 * time.Hour),
		}
		require.NoError(t, s.CreateAuditLog(old))

		deleted, err := s.DeleteOldAuditLogs(time.Now().Add(-24 * time.Hour))
		require.NoError(t, err)
		assert.GreaterOrEqual(t, deleted, int64(1))
	})

	t.Run("Counts", func(t *testing.T) {
		count, err := s.CountCredentialsByStatus(models.CredentialActive)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, count, int64(0))

		active, err := s.CountActiveGrants()
		require.NoError(t, err)
		assert.GreaterOrEqual(t, active, int64(0))
	})
}

func TestPagination(t *testing.T) {
	params := NewPaginationParams(0, 0)
	assert.Equal(t, 1, params.Page)
	assert.Equal(t, 20, params.PageSize)

	params = NewPaginationParams(2, 500)
	assert.Equal(t, 100, params.PageSize)

	result := CalculatePagination(25, 2, 10)
	assert.Equal(t, 3, result.TotalPages)
	assert.True(t, result.HasPrev)
	assert.True(t, result.HasNext)

	result = CalculatePagination(25, 3, 10)
	assert.False(t, result.HasNext)
}
