package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/credgate/credgate/internal/metrics"
	"github.com/credgate/credgate/internal/models"
	"github.com/credgate/credgate/internal/store"
)

// Decision is the outcome of an authorization check. Reason is set only
// for denials and uses stable machine-readable values.
type Decision struct {
	Allowed    bool
	Reason     string
	Grant      *models.PermissionGrant
	Credential *models.Credential
}

// Denial reasons surfaced in audit entries and error responses
const (
	DenyNoGrant           = "no_grant"
	DenyGrantExpired      = "grant_expired"
	DenyGrantInactive     = "grant_inactive"
	DenyCredentialExpired = "credential_expired"
	DenyCredentialRevoked = "credential_revoked"
	DenyCredentialInvalid = "credential_needs_reauth"
	DenyScopeNotGranted   = "scope_not_granted"
)

// GrantService manages permission grants and answers authorization checks
type GrantService struct {
	store    *store.Store
	audit    *AuditService
	recorder metrics.Recorder
}

// NewGrantService creates a new grant service
func NewGrantService(s *store.Store, audit *AuditService, recorder metrics.Recorder) *GrantService {
	if recorder == nil {
		recorder = metrics.NewNoopMetrics()
	}
	return &GrantService{
		store:    s,
		audit:    audit,
		recorder: recorder,
	}
}

// CreateGrant authorizes an agent to use a credential. The credential must
// belong to the granting user, the agent must exist, and the grant's scopes
// must be a subset of what the provider actually granted.
func (s *GrantService) CreateGrant(
	ctx context.Context,
	userID, agentID, credentialID string,
	level models.PermissionLevel,
	scopes []string,
	expiresAt *time.Time,
) (*models.PermissionGrant, error) {
	cred, err := s.store.GetCredential(credentialID)
	if err != nil {
		return nil, ErrCredentialNotFound
	}
	if cred.UserID != userID {
		return nil, ErrNotOwner
	}
	if cred.Status == models.CredentialRevoked {
		return nil, ErrCredentialRevoked
	}

	agent, err := s.store.GetAgent(agentID)
	if err != nil {
		return nil, ErrAgentNotFound
	}
	if agent.UserID != userID {
		return nil, ErrAgentNotFound
	}

	if level != models.PermissionReadOnly && level != models.PermissionReadWrite {
		return nil, fmt.Errorf("invalid permission level %q", level)
	}

	// Default to everything the provider granted.
	if len(scopes) == 0 {
		scopes = cred.ScopeList()
	}
	for _, scope := range scopes {
		if !cred.HasScope(scope) {
			return nil, fmt.Errorf("%w: %s", ErrScopeNotGranted, scope)
		}
	}

	// A fresh grant supersedes any previous one for the pair.
	if prev, err := s.store.GetActiveGrant(agentID, credentialID); err == nil {
		if err := s.store.DeactivateGrant(prev.ID); err != nil {
			return nil, fmt.Errorf("failed to supersede grant: %w", err)
		}
	}

	grant := &models.PermissionGrant{
		ID:              uuid.New().String(),
		AgentID:         agentID,
		CredentialID:    credentialID,
		GrantedByUserID: userID,
		PermissionLevel: level,
		Scopes:          strings.Join(scopes, " "),
		GrantedAt:       time.Now(),
		ExpiresAt:       expiresAt,
		Active:          true,
	}
	if err := s.store.CreatePermissionGrant(grant); err != nil {
		return nil, fmt.Errorf("failed to create grant: %w", err)
	}

	s.recorder.RecordGrantCreated(string(level))
	s.audit.Log(ctx, AuditLogEntry{
		EventType:    models.EventGrantCreated,
		Severity:     models.SeverityInfo,
		ActorUserID:  userID,
		AgentID:      agentID,
		CredentialID: credentialID,
		ResourceType: models.ResourceGrant,
		ResourceID:   grant.ID,
		Action:       "grant_created",
		Scope:        grant.Scopes,
		Details: models.AuditDetails{
			"permission_level": string(level),
		},
		Success: true,
	})
	return grant, nil
}

// RevokeGrant deactivates a grant. Revoking an already revoked grant is a
// no-op. Only the user who owns the underlying credential may revoke.
func (s *GrantService) RevokeGrant(ctx context.Context, userID, grantID string) error {
	grant, err := s.store.GetPermissionGrant(grantID)
	if err != nil {
		return ErrGrantNotFound
	}
	if grant.GrantedByUserID != userID {
		return ErrGrantNotFound
	}

	wasActive := grant.Active
	if err := s.store.DeactivateGrant(grantID); err != nil {
		return fmt.Errorf("failed to revoke grant: %w", err)
	}

	if wasActive {
		s.recorder.RecordGrantRevoked("user_request")
	}
	s.audit.Log(ctx, AuditLogEntry{
		EventType:    models.EventGrantRevoked,
		Severity:     models.SeverityInfo,
		ActorUserID:  userID,
		AgentID:      grant.AgentID,
		CredentialID: grant.CredentialID,
		ResourceType: models.ResourceGrant,
		ResourceID:   grantID,
		Action:       "grant_revoked",
		Success:      true,
	})
	return nil
}

// ListGrantsForCredential returns all grants on a credential the user owns
func (s *GrantService) ListGrantsForCredential(
	userID, credentialID string,
) ([]models.PermissionGrant, error) {
	cred, err := s.store.GetCredential(credentialID)
	if err != nil {
		return nil, ErrCredentialNotFound
	}
	if cred.UserID != userID {
		return nil, ErrNotOwner
	}
	return s.store.ListGrantsByCredential(credentialID)
}

// ListGrantsForAgent returns an agent's grants
func (s *GrantService) ListGrantsForAgent(agentID string) ([]models.PermissionGrant, error) {
	return s.store.ListGrantsByAgent(agentID)
}

// Authorize evaluates whether agentID may use credentialID for scope. It is
// a pure read: no state changes, no audit writes. Callers record the
// decision themselves so the audit entry carries request context.
func (s *GrantService) Authorize(agentID, credentialID, scope string) (Decision, error) {
	grant, err := s.store.GetActiveGrant(agentID, credentialID)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return Decision{Allowed: false, Reason: DenyNoGrant}, nil
		}
		return Decision{}, err
	}
	if grant.IsExpired() {
		return Decision{Allowed: false, Reason: DenyGrantExpired, Grant: grant}, nil
	}
	if !grant.Active {
		return Decision{Allowed: false, Reason: DenyGrantInactive, Grant: grant}, nil
	}

	cred, err := s.store.GetCredential(credentialID)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return Decision{Allowed: false, Reason: DenyNoGrant, Grant: grant}, nil
		}
		return Decision{}, err
	}

	switch cred.Status {
	case models.CredentialActive:
		// Usable.
	case models.CredentialRevoked:
		return Decision{Allowed: false, Reason: DenyCredentialRevoked, Grant: grant, Credential: cred}, nil
	case models.CredentialExpired:
		return Decision{Allowed: false, Reason: DenyCredentialExpired, Grant: grant, Credential: cred}, nil
	default:
		// error: the owner must reconnect
		return Decision{Allowed: false, Reason: DenyCredentialInvalid, Grant: grant, Credential: cred}, nil
	}

	// An active status is not enough: a past expiry means the stored token
	// is stale even if the status sweep has not caught up yet.
	if cred.ExpiresAt != nil && time.Now().After(*cred.ExpiresAt) {
		return Decision{Allowed: false, Reason: DenyCredentialExpired, Grant: grant, Credential: cred}, nil
	}

	if !grant.AllowsScope(scope) || !cred.HasScope(scope) {
		return Decision{Allowed: false, Reason: DenyScopeNotGranted, Grant: grant, Credential: cred}, nil
	}

	return Decision{Allowed: true, Grant: grant, Credential: cred}, nil
}

// RecordUsage bumps the grant usage counter after a successful brokered use
func (s *GrantService) RecordUsage(grantID string) error {
	return s.store.RecordGrantUsage(grantID, time.Now())
}

// RevokeGrantsForAgent deactivates every grant an agent holds, returning the
// number revoked. Used when the agent itself is deleted.
func (s *GrantService) RevokeGrantsForAgent(ctx context.Context, agentID string) (int64, error) {
	revoked, err := s.store.DeactivateGrantsByAgent(agentID)
	if err != nil {
		return 0, err
	}
	for i := int64(0); i < revoked; i++ {
		s.recorder.RecordGrantRevoked("agent_deleted")
	}
	return revoked, nil
}
