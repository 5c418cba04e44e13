package services

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/credgate/credgate/internal/metrics"
	"github.com/credgate/credgate/internal/models"
	"github.com/credgate/credgate/internal/provider"
	"github.com/credgate/credgate/internal/store"
	"github.com/credgate/credgate/internal/util"
	"github.com/credgate/credgate/internal/vault"
)

const stateTokenBytes = 32

// FlowService drives the OAuth authorization-code flow with PKCE and the
// API-key ingestion path. Tokens obtained here go straight to the vault;
// only handles are persisted.
type FlowService struct {
	store     *store.Store
	vault     vault.Client
	providers *provider.Registry
	audit     *AuditService
	recorder  metrics.Recorder

	stateTTL        time.Duration
	exchangeTimeout time.Duration
}

// NewFlowService creates a new flow service
func NewFlowService(
	s *store.Store,
	v vault.Client,
	providers *provider.Registry,
	audit *AuditService,
	recorder metrics.Recorder,
	stateTTL, exchangeTimeout time.Duration,
) *FlowService {
	if recorder == nil {
		recorder = metrics.NewNoopMetrics()
	}
	return &FlowService{
		store:           s,
		vault:           v,
		providers:       providers,
		audit:           audit,
		recorder:        recorder,
		stateTTL:        stateTTL,
		exchangeTimeout: exchangeTimeout,
	}
}

// BeginFlow starts an authorization flow for the given provider and returns
// the URL the user must be redirected to. agentID may be empty; when set, a
// read-only grant for that agent is created once the flow completes.
func (s *FlowService) BeginFlow(
	ctx context.Context,
	userID, providerName, agentID string,
	scopes []string,
) (string, error) {
	desc, err := s.providers.OAuth(providerName)
	if err != nil {
		s.recorder.RecordFlowStarted(providerName, false)
		return "", ErrUnknownProvider
	}

	if agentID != "" {
		if _, err := s.store.GetAgent(agentID); err != nil {
			s.recorder.RecordFlowStarted(providerName, false)
			return "", ErrAgentNotFound
		}
	}

	if len(scopes) == 0 {
		scopes = desc.DefaultScopes
	}

	state, err := util.CryptoRandomURLString(stateTokenBytes)
	if err != nil {
		s.recorder.RecordFlowStarted(providerName, false)
		return "", fmt.Errorf("failed to generate state token: %w", err)
	}
	verifier := oauth2.GenerateVerifier()

	flowState := &models.OAuthFlowState{
		StateHash:       util.SHA256Hex(state),
		CodeVerifier:    verifier,
		Provider:        providerName,
		UserID:          userID,
		AgentID:         agentID,
		RequestedScopes: strings.Join(scopes, " "),
		ExpiresAt:       time.Now().Add(s.stateTTL),
	}
	if err := s.store.CreateFlowState(flowState); err != nil {
		s.recorder.RecordFlowStarted(providerName, false)
		return "", fmt.Errorf("failed to persist flow state: %w", err)
	}

	authURL := desc.Config(scopes).AuthCodeURL(
		state,
		oauth2.AccessTypeOffline,
		oauth2.S256ChallengeOption(verifier),
	)

	s.recorder.RecordFlowStarted(providerName, true)
	s.audit.Log(ctx, AuditLogEntry{
		EventType:    models.EventFlowStarted,
		Severity:     models.SeverityInfo,
		ActorUserID:  userID,
		AgentID:      agentID,
		ResourceType: models.ResourceFlow,
		Action:       "oauth_flow_started",
		Scope:        flowState.RequestedScopes,
		Details: models.AuditDetails{
			"provider": providerName,
			"state":    state,
		},
		Success: true,
	})

	return authURL, nil
}

// CompleteFlow handles the provider callback: it validates and consumes the
// state token, exchanges the authorization code, vaults the tokens, and
// upserts the credential. When the originating flow pre-selected an agent,
// a read-only grant is created in the same step.
func (s *FlowService) CompleteFlow(
	ctx context.Context,
	state, code string,
) (*models.Credential, error) {
	start := time.Now()

	flowState, err := s.lookupFlowState(state)
	if err != nil {
		s.recorder.RecordFlowCompleted("unknown", "error", time.Since(start))
		return nil, err
	}

	cred, err := s.exchangeAndStore(ctx, flowState, code)
	if err != nil {
		s.recorder.RecordFlowCompleted(flowState.Provider, "error", time.Since(start))
		if auditErr := s.audit.LogSync(ctx, AuditLogEntry{
			EventType:    models.EventFlowExchangeDenied,
			Severity:     models.SeverityWarning,
			ActorUserID:  flowState.UserID,
			AgentID:      flowState.AgentID,
			ResourceType: models.ResourceFlow,
			Action:       "oauth_exchange_failed",
			Success:      false,
			Reason:       err.Error(),
			Details: models.AuditDetails{
				"provider": flowState.Provider,
			},
		}); auditErr != nil {
			log.Printf("Failed to audit exchange failure: %v", auditErr)
		}
		return nil, err
	}

	// The state becomes unusable only after the exchange and the credential
	// write both succeeded, so a transient failure lets the user retry the
	// same callback once.
	if err := s.store.ConsumeFlowState(flowState.ID); err != nil {
		// Someone else consumed it concurrently: treat the whole callback
		// as replayed.
		s.recorder.RecordFlowCompleted(flowState.Provider, "error", time.Since(start))
		return nil, ErrInvalidOrExpiredState
	}

	if flowState.AgentID != "" {
		if err := s.createInitialGrant(ctx, flowState, cred); err != nil {
			log.Printf("Failed to create initial grant for agent %s: %v", flowState.AgentID, err)
		}
	}

	s.recorder.RecordFlowCompleted(flowState.Provider, "success", time.Since(start))
	s.audit.Log(ctx, AuditLogEntry{
		EventType:    models.EventCredentialConnected,
		Severity:     models.SeverityInfo,
		ActorUserID:  flowState.UserID,
		CredentialID: cred.ID,
		ResourceType: models.ResourceCredential,
		ResourceID:   cred.ID,
		Action:       "credential_connected",
		Scope:        cred.Scopes,
		Details: models.AuditDetails{
			"provider": cred.Provider,
		},
		Success: true,
	})

	return cred, nil
}

// DenyFlow consumes the state for a callback where the provider returned an
// error (user declined consent, provider-side failure). The denial is
// audited synchronously.
func (s *FlowService) DenyFlow(ctx context.Context, state, providerError string) error {
	flowState, err := s.lookupFlowState(state)
	if err != nil {
		return err
	}

	if err := s.store.ConsumeFlowState(flowState.ID); err != nil {
		return ErrInvalidOrExpiredState
	}

	s.recorder.RecordFlowCompleted(flowState.Provider, "denied", 0)
	return s.audit.LogSync(ctx, AuditLogEntry{
		EventType:    models.EventFlowExchangeDenied,
		Severity:     models.SeverityWarning,
		ActorUserID:  flowState.UserID,
		AgentID:      flowState.AgentID,
		ResourceType: models.ResourceFlow,
		Action:       "oauth_flow_denied",
		Success:      false,
		Reason:       providerError,
		Details: models.AuditDetails{
			"provider": flowState.Provider,
		},
	})
}

// lookupFlowState resolves the plaintext state token to a live flow record
func (s *FlowService) lookupFlowState(state string) (*models.OAuthFlowState, error) {
	if state == "" {
		return nil, ErrInvalidOrExpiredState
	}

	flowState, err := s.store.GetFlowStateByHash(util.SHA256Hex(state))
	if err != nil {
		return nil, ErrInvalidOrExpiredState
	}
	if flowState.IsUsed() || flowState.IsExpired() {
		return nil, ErrInvalidOrExpiredState
	}
	return flowState, nil
}

// exchangeAndStore performs the code exchange and persists the resulting
// credential with vaulted token handles.
func (s *FlowService) exchangeAndStore(
	ctx context.Context,
	flowState *models.OAuthFlowState,
	code string,
) (*models.Credential, error) {
	desc, err := s.providers.OAuth(flowState.Provider)
	if err != nil {
		return nil, ErrUnknownProvider
	}

	exchangeCtx, cancel := context.WithTimeout(ctx, s.exchangeTimeout)
	defer cancel()

	token, err := desc.Config(flowState.ScopeList()).Exchange(
		exchangeCtx,
		code,
		oauth2.VerifierOption(flowState.CodeVerifier),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenExchangeFailed, err)
	}

	accessHandle, err := s.vaultStore(ctx, []byte(token.AccessToken))
	if err != nil {
		return nil, err
	}

	var refreshHandle string
	if token.RefreshToken != "" {
		refreshHandle, err = s.vaultStore(ctx, []byte(token.RefreshToken))
		if err != nil {
			// Don't leave the access token orphaned in the vault.
			s.vaultRevoke(ctx, accessHandle)
			return nil, err
		}
	}

	grantedScopes := flowState.RequestedScopes
	if scope, ok := token.Extra("scope").(string); ok && scope != "" {
		grantedScopes = strings.Join(strings.FieldsFunc(scope, func(r rune) bool {
			return r == ' ' || r == ','
		}), " ")
	}

	var expiresAt *time.Time
	if !token.Expiry.IsZero() {
		t := token.Expiry
		expiresAt = &t
	}

	return s.upsertCredential(ctx, flowState, accessHandle, refreshHandle, grantedScopes, expiresAt)
}

// upsertCredential updates the existing connection for (user, provider) or
// creates a new one. On update the previous vault handles are revoked after
// the rotation commits.
func (s *FlowService) upsertCredential(
	ctx context.Context,
	flowState *models.OAuthFlowState,
	accessHandle, refreshHandle, grantedScopes string,
	expiresAt *time.Time,
) (*models.Credential, error) {
	existing, err := s.store.GetCredentialByUserAndProvider(
		flowState.UserID, flowState.Provider,
	)
	if err == nil {
		oldAccess := existing.AccessTokenHandle
		oldRefresh := existing.RefreshTokenHandle

		// A re-auth without a new refresh token keeps the old one.
		if refreshHandle == "" {
			refreshHandle = oldRefresh
			oldRefresh = ""
		}

		if err := s.store.RotateCredentialHandles(
			existing.ID, accessHandle, refreshHandle, expiresAt,
		); err != nil {
			s.vaultRevoke(ctx, accessHandle)
			if refreshHandle != "" && refreshHandle != existing.RefreshTokenHandle {
				s.vaultRevoke(ctx, refreshHandle)
			}
			return nil, fmt.Errorf("failed to rotate credential: %w", err)
		}
		if existing.Status != models.CredentialActive {
			if err := s.store.UpdateCredentialStatus(existing.ID, models.CredentialActive); err != nil {
				log.Printf("Failed to reactivate credential %s: %v", existing.ID, err)
			}
		}
		if err := s.store.UpdateCredentialScopes(existing.ID, grantedScopes); err != nil {
			return nil, fmt.Errorf("failed to update credential scopes: %w", err)
		}

		s.vaultRevoke(ctx, oldAccess)
		if oldRefresh != "" {
			s.vaultRevoke(ctx, oldRefresh)
		}
		return s.store.GetCredential(existing.ID)
	}

	cred := &models.Credential{
		ID:                 uuid.New().String(),
		UserID:             flowState.UserID,
		Provider:           flowState.Provider,
		AccessTokenHandle:  accessHandle,
		RefreshTokenHandle: refreshHandle,
		Scopes:             grantedScopes,
		ExpiresAt:          expiresAt,
		Status:             models.CredentialActive,
	}
	if err := s.store.CreateCredential(cred); err != nil {
		s.vaultRevoke(ctx, accessHandle)
		if refreshHandle != "" {
			s.vaultRevoke(ctx, refreshHandle)
		}
		return nil, fmt.Errorf("failed to create credential: %w", err)
	}
	return cred, nil
}

// createInitialGrant gives the pre-selected agent read-only access covering
// the scopes the provider actually granted.
func (s *FlowService) createInitialGrant(
	ctx context.Context,
	flowState *models.OAuthFlowState,
	cred *models.Credential,
) error {
	grant := &models.PermissionGrant{
		ID:              uuid.New().String(),
		AgentID:         flowState.AgentID,
		CredentialID:    cred.ID,
		GrantedByUserID: flowState.UserID,
		PermissionLevel: models.PermissionReadOnly,
		Scopes:          cred.Scopes,
		GrantedAt:       time.Now(),
		Active:          true,
	}
	if err := s.store.CreatePermissionGrant(grant); err != nil {
		return err
	}

	s.recorder.RecordGrantCreated(string(models.PermissionReadOnly))
	s.audit.Log(ctx, AuditLogEntry{
		EventType:    models.EventGrantCreated,
		Severity:     models.SeverityInfo,
		ActorUserID:  flowState.UserID,
		AgentID:      flowState.AgentID,
		CredentialID: cred.ID,
		ResourceType: models.ResourceGrant,
		ResourceID:   grant.ID,
		Action:       "grant_created",
		Scope:        grant.Scopes,
		Success:      true,
	})
	return nil
}

// StoreAPIKey ingests a bare API key as a non-expiring credential
func (s *FlowService) StoreAPIKey(
	ctx context.Context,
	userID, providerName, key string,
	scopes []string,
) (*models.Credential, error) {
	desc, err := s.providers.APIKey(providerName)
	if err != nil {
		return nil, ErrUnknownProvider
	}
	if key == "" {
		return nil, fmt.Errorf("%w: empty key", ErrTokenExchangeFailed)
	}

	if len(scopes) == 0 {
		scopes = desc.KeyScopes
	}

	handle, err := s.vaultStore(ctx, []byte(key))
	if err != nil {
		return nil, err
	}

	cred := &models.Credential{
		ID:                uuid.New().String(),
		UserID:            userID,
		Provider:          desc.Name,
		AccessTokenHandle: handle,
		Scopes:            strings.Join(scopes, " "),
		Status:            models.CredentialActive,
	}
	if err := s.store.CreateCredential(cred); err != nil {
		s.vaultRevoke(ctx, handle)
		return nil, fmt.Errorf("failed to create credential: %w", err)
	}

	s.audit.Log(ctx, AuditLogEntry{
		EventType:    models.EventCredentialConnected,
		Severity:     models.SeverityInfo,
		ActorUserID:  userID,
		CredentialID: cred.ID,
		ResourceType: models.ResourceCredential,
		ResourceID:   cred.ID,
		Action:       "api_key_stored",
		Scope:        cred.Scopes,
		Details: models.AuditDetails{
			"provider": desc.Name,
		},
		Success: true,
	})
	return cred, nil
}

// DisconnectCredential removes a connection, revokes its vault handles, and
// deactivates every grant that referenced it.
func (s *FlowService) DisconnectCredential(ctx context.Context, userID, credentialID string) error {
	cred, err := s.store.GetCredential(credentialID)
	if err != nil {
		return ErrCredentialNotFound
	}
	if cred.UserID != userID {
		return ErrNotOwner
	}

	grants, err := s.store.ListGrantsByCredential(credentialID)
	if err != nil {
		return fmt.Errorf("failed to list grants: %w", err)
	}
	activeGrants := 0
	for _, g := range grants {
		if g.Active {
			activeGrants++
		}
	}

	// Row deletion deactivates dependent grants in the same transaction.
	if err := s.store.DeleteCredential(credentialID); err != nil {
		return fmt.Errorf("failed to delete credential: %w", err)
	}

	// Vault revocation is best effort: the handles are unreachable once the
	// credential row is gone.
	s.vaultRevoke(ctx, cred.AccessTokenHandle)
	if cred.RefreshTokenHandle != "" {
		s.vaultRevoke(ctx, cred.RefreshTokenHandle)
	}

	for i := 0; i < activeGrants; i++ {
		s.recorder.RecordGrantRevoked("credential_deleted")
	}
	s.audit.Log(ctx, AuditLogEntry{
		EventType:    models.EventCredentialDisconnected,
		Severity:     models.SeverityInfo,
		ActorUserID:  userID,
		CredentialID: credentialID,
		ResourceType: models.ResourceCredential,
		ResourceID:   credentialID,
		Action:       "credential_disconnected",
		Details: models.AuditDetails{
			"provider":           cred.Provider,
			"deactivated_grants": activeGrants,
		},
		Success: true,
	})
	return nil
}

// ListConnections returns the user's credentials. Vault handles are excluded
// from serialization at the model level.
func (s *FlowService) ListConnections(userID string) ([]models.Credential, error) {
	return s.store.ListCredentialsByUser(userID)
}

// GetConnection returns one credential with an ownership check
func (s *FlowService) GetConnection(userID, credentialID string) (*models.Credential, error) {
	cred, err := s.store.GetCredential(credentialID)
	if err != nil {
		return nil, ErrCredentialNotFound
	}
	if cred.UserID != userID {
		return nil, ErrNotOwner
	}
	return cred, nil
}

// CleanupExpiredFlows deletes flow states past their TTL
func (s *FlowService) CleanupExpiredFlows() (int64, error) {
	return s.store.DeleteExpiredFlowStates()
}

// vaultStore stores a secret and records the round-trip
func (s *FlowService) vaultStore(ctx context.Context, plaintext []byte) (string, error) {
	start := time.Now()
	handle, err := s.vault.Store(ctx, plaintext)
	s.recorder.RecordVaultOperation("store", err == nil, time.Since(start))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrVaultUnavailable, err)
	}
	return handle, nil
}

// vaultRevoke revokes a handle, logging failures instead of returning them
func (s *FlowService) vaultRevoke(ctx context.Context, handle string) {
	if handle == "" {
		return
	}
	start := time.Now()
	err := s.vault.Revoke(ctx, handle)
	s.recorder.RecordVaultOperation("revoke", err == nil, time.Since(start))
	if err != nil {
		log.Printf("Failed to revoke vault handle: %v", err)
	}
}
