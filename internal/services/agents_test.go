package services

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/credgate/credgate/internal/models"
)

func newTestAgentService(t *testing.T) (*AgentService, *GrantService, *testDeps) {
	t.Helper()
	deps := newTestDeps(t)
	grants := NewGrantService(deps.store, deps.audit, nil)
	agents := NewAgentService(deps.store, grants, deps.audit, nil)
	return agents, grants, deps
}

func TestCreateAgentAndAuthenticate(t *testing.T) {
	agents, _, deps := newTestAgentService(t)
	ctx := context.Background()

	agent, token, err := agents.CreateAgent(ctx, "user-1", "  deploy-bot  ")
	require.NoError(t, err)
	assert.Equal(t, "deploy-bot", agent.Name)
	assert.True(t, agent.Active)

	// The plaintext token is "<agent id>.<secret>" and the secret is only
	// ever stored hashed.
	id, secret, found := strings.Cut(token, ".")
	require.True(t, found)
	assert.Equal(t, agent.ID, id)
	assert.NotEmpty(t, secret)
	assert.NotContains(t, agent.TokenHash, secret)

	authed, err := agents.AuthenticateToken(token)
	require.NoError(t, err)
	assert.Equal(t, agent.ID, authed.ID)

	stored, err := deps.store.GetAgent(agent.ID)
	require.NoError(t, err)
	assert.NotNil(t, stored.LastSeenAt)
}

func TestCreateAgentRequiresName(t *testing.T) {
	agents, _, _ := newTestAgentService(t)

	_, _, err := agents.CreateAgent(context.Background(), "user-1", "   ")
	assert.Error(t, err)
}

func TestAuthenticateTokenRejectsBadTokens(t *testing.T) {
	agents, _, deps := newTestAgentService(t)
	ctx := context.Background()

	agent, token, err := agents.CreateAgent(ctx, "user-1", "bot")
	require.NoError(t, err)

	cases := []struct {
		name  string
		token string
	}{
		{"no separator", "notadottedtoken"},
		{"empty secret", agent.ID + "."},
		{"unknown agent", "00000000-0000-0000-0000-000000000000.secret"},
		{"wrong secret", agent.ID + ".wrong-secret"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := agents.AuthenticateToken(tc.token)
			assert.ErrorIs(t, err, ErrInvalidAgentToken)
		})
	}

	// Deactivated agents are rejected even with the right secret
	err = deps.store.DB().Model(&models.Agent{}).
		Where("id = ?", agent.ID).
		Update("active", false).Error
	require.NoError(t, err)

	_, err = agents.AuthenticateToken(token)
	assert.ErrorIs(t, err, ErrInvalidAgentToken)
}

func TestDeleteAgentRevokesGrants(t *testing.T) {
	agents, _, deps := newTestAgentService(t)
	ctx := context.Background()

	agent, _, err := agents.CreateAgent(ctx, "user-1", "bot")
	require.NoError(t, err)

	cred := seedCredential(t, deps.store, "user-1", "fake:access", "repo")
	grant := seedGrant(t, deps.store, agent.ID, cred.ID, "user-1", "repo")

	require.NoError(t, agents.DeleteAgent(ctx, "user-1", agent.ID))

	_, err = deps.store.GetAgent(agent.ID)
	assert.Error(t, err)

	stored, err := deps.store.GetPermissionGrant(grant.ID)
	require.NoError(t, err)
	assert.False(t, stored.Active)
}

func TestDeleteAgentOwnership(t *testing.T) {
	agents, _, _ := newTestAgentService(t)
	ctx := context.Background()

	agent, _, err := agents.CreateAgent(ctx, "user-1", "bot")
	require.NoError(t, err)

	// Another user's delete looks identical to a missing agent
	err = agents.DeleteAgent(ctx, "user-2", agent.ID)
	assert.ErrorIs(t, err, ErrAgentNotFound)

	err = agents.DeleteAgent(ctx, "user-1", "missing")
	assert.ErrorIs(t, err, ErrAgentNotFound)
}
