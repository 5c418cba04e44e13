package services

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/credgate/credgate/internal/models"
	"github.com/credgate/credgate/internal/store"
	"github.com/credgate/credgate/internal/vault"
)

// fakeVault is an in-memory vault.Client for service tests. Failure modes
// are injected by setting the error fields.
type fakeVault struct {
	mu         sync.Mutex
	secrets    map[string][]byte
	counter    int
	storeErr   error
	decryptErr error
}

func newFakeVault() *fakeVault {
	return &fakeVault{secrets: make(map[string][]byte)}
}

func (f *fakeVault) Store(ctx context.Context, plaintext []byte) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.storeErr != nil {
		return "", f.storeErr
	}
	f.counter++
	handle := fmt.Sprintf("fake:%d", f.counter)
	value := make([]byte, len(plaintext))
	copy(value, plaintext)
	f.secrets[handle] = value
	return handle, nil
}

func (f *fakeVault) Decrypt(ctx context.Context, handle string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.decryptErr != nil {
		return nil, f.decryptErr
	}
	value, ok := f.secrets[handle]
	if !ok {
		return nil, vault.ErrHandleNotFound
	}
	return value, nil
}

func (f *fakeVault) Revoke(ctx context.Context, handle string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.secrets, handle)
	return nil
}

func (f *fakeVault) Health(ctx context.Context) error {
	return nil
}

func (f *fakeVault) has(handle string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.secrets[handle]
	return ok
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.New("sqlite", ":memory:")
	require.NoError(t, err)
	return s
}

func newTestAudit(t *testing.T, s *store.Store) *AuditService {
	t.Helper()
	audit := NewAuditService(s, nil, true, 100)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = audit.Shutdown(ctx)
	})
	return audit
}

// testDeps bundles the shared fixtures every service test needs
type testDeps struct {
	store *store.Store
	vault *fakeVault
	audit *AuditService
}

func newTestDeps(t *testing.T) *testDeps {
	t.Helper()
	s := newTestStore(t)
	return &testDeps{
		store: s,
		vault: newFakeVault(),
		audit: newTestAudit(t, s),
	}
}

func seedAgent(t *testing.T, s *store.Store, userID string) *models.Agent {
	t.Helper()
	agent := &models.Agent{
		ID:        uuid.New().String(),
		UserID:    userID,
		Name:      "worker",
		TokenSalt: "salt",
		TokenHash: "hash",
		Active:    true,
	}
	require.NoError(t, s.CreateAgent(agent))
	return agent
}

func seedCredential(t *testing.T, s *store.Store, userID, accessHandle, scopes string) *models.Credential {
	t.Helper()
	cred := &models.Credential{
		ID:                uuid.New().String(),
		UserID:            userID,
		Provider:          "github",
		AccessTokenHandle: accessHandle,
		Scopes:            scopes,
		Status:            models.CredentialActive,
	}
	require.NoError(t, s.CreateCredential(cred))
	return cred
}

func seedGrant(t *testing.T, s *store.Store, agentID, credentialID, userID, scopes string) *models.PermissionGrant {
	t.Helper()
	grant := &models.PermissionGrant{
		ID:              uuid.New().String(),
		AgentID:         agentID,
		CredentialID:    credentialID,
		GrantedByUserID: userID,
		PermissionLevel: models.PermissionReadOnly,
		Scopes:          scopes,
		GrantedAt:       time.Now(),
		Active:          true,
	}
	require.NoError(t, s.CreatePermissionGrant(grant))
	return grant
}

func countAuditRows(t *testing.T, s *store.Store, eventType models.EventType) int64 {
	t.Helper()
	count, err := s.CountAuditLogs(store.AuditLogFilters{EventType: eventType})
	require.NoError(t, err)
	return count
}
