package services

import (
	"context"
	"crypto/subtle"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/credgate/credgate/internal/metrics"
	"github.com/credgate/credgate/internal/models"
	"github.com/credgate/credgate/internal/store"
	"github.com/credgate/credgate/internal/util"
)

const (
	agentSecretLength = 40
	agentSaltLength   = 16
)

// AgentService manages agent registration and token authentication
type AgentService struct {
	store    *store.Store
	grants   *GrantService
	audit    *AuditService
	recorder metrics.Recorder
}

// NewAgentService creates a new agent service
func NewAgentService(
	s *store.Store,
	grants *GrantService,
	audit *AuditService,
	recorder metrics.Recorder,
) *AgentService {
	if recorder == nil {
		recorder = metrics.NewNoopMetrics()
	}
	return &AgentService{
		store:    s,
		grants:   grants,
		audit:    audit,
		recorder: recorder,
	}
}

// CreateAgent registers an agent and returns it together with the one-time
// plaintext token "<agent id>.<secret>". Only the salted hash of the secret
// is stored, so the token cannot be shown again.
func (s *AgentService) CreateAgent(
	ctx context.Context,
	userID, name string,
) (*models.Agent, string, error) {
	if strings.TrimSpace(name) == "" {
		return nil, "", fmt.Errorf("agent name is required")
	}

	secret, err := util.CryptoRandomString(agentSecretLength)
	if err != nil {
		return nil, "", fmt.Errorf("failed to generate agent secret: %w", err)
	}
	salt, err := util.CryptoRandomString(agentSaltLength)
	if err != nil {
		return nil, "", fmt.Errorf("failed to generate salt: %w", err)
	}

	agent := &models.Agent{
		ID:        uuid.New().String(),
		UserID:    userID,
		Name:      strings.TrimSpace(name),
		TokenSalt: salt,
		TokenHash: util.HashToken(secret, salt),
		Active:    true,
	}
	if err := s.store.CreateAgent(agent); err != nil {
		return nil, "", fmt.Errorf("failed to create agent: %w", err)
	}

	s.audit.Log(ctx, AuditLogEntry{
		EventType:    models.EventAgentCreated,
		Severity:     models.SeverityInfo,
		ActorUserID:  userID,
		AgentID:      agent.ID,
		ResourceType: models.ResourceAgent,
		ResourceID:   agent.ID,
		Action:       "agent_created",
		Details: models.AuditDetails{
			"name": agent.Name,
		},
		Success: true,
	})

	return agent, agent.ID + "." + secret, nil
}

// ListAgents returns the user's registered agents
func (s *AgentService) ListAgents(userID string) ([]models.Agent, error) {
	return s.store.ListAgentsByUser(userID)
}

// DeleteAgent removes an agent and deactivates every grant it held
func (s *AgentService) DeleteAgent(ctx context.Context, userID, agentID string) error {
	agent, err := s.store.GetAgent(agentID)
	if err != nil {
		return ErrAgentNotFound
	}
	if agent.UserID != userID {
		return ErrAgentNotFound
	}

	revoked, err := s.grants.RevokeGrantsForAgent(ctx, agentID)
	if err != nil {
		return fmt.Errorf("failed to revoke agent grants: %w", err)
	}

	if err := s.store.DeleteAgent(agentID); err != nil {
		return fmt.Errorf("failed to delete agent: %w", err)
	}

	s.audit.Log(ctx, AuditLogEntry{
		EventType:    models.EventAgentDeleted,
		Severity:     models.SeverityInfo,
		ActorUserID:  userID,
		AgentID:      agentID,
		ResourceType: models.ResourceAgent,
		ResourceID:   agentID,
		Action:       "agent_deleted",
		Details: models.AuditDetails{
			"name":           agent.Name,
			"revoked_grants": revoked,
		},
		Success: true,
	})
	return nil
}

// AuthenticateToken resolves a bearer token of the form "<agent id>.<secret>"
// to an active agent. Comparison against the stored hash is constant time.
func (s *AgentService) AuthenticateToken(token string) (*models.Agent, error) {
	id, secret, ok := strings.Cut(token, ".")
	if !ok || id == "" || secret == "" {
		return nil, ErrInvalidAgentToken
	}

	agent, err := s.store.GetAgent(id)
	if err != nil {
		return nil, ErrInvalidAgentToken
	}
	if !agent.Active {
		return nil, ErrInvalidAgentToken
	}

	computed := util.HashToken(secret, agent.TokenSalt)
	if subtle.ConstantTimeCompare([]byte(computed), []byte(agent.TokenHash)) != 1 {
		return nil, ErrInvalidAgentToken
	}

	if err := s.store.TouchAgentSeen(agent.ID, time.Now()); err != nil {
		log.Printf("Failed to touch agent %s: %v", agent.ID, err)
	}
	return agent, nil
}
