package services

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/credgate/credgate/internal/metrics"
	"github.com/credgate/credgate/internal/models"
	"github.com/credgate/credgate/internal/store"
	"github.com/credgate/credgate/internal/vault"
)

// SecretResponse is what an authorized agent receives. The plaintext secret
// exists only in this in-flight response; it is never persisted or logged.
type SecretResponse struct {
	Secret          string                 `json:"secret"`
	Provider        string                 `json:"provider"`
	PermissionLevel models.PermissionLevel `json:"permission_level"`
	Scopes          []string               `json:"scopes"`
	ExpiresAt       *time.Time             `json:"expires_at,omitempty"`
}

// BrokerService mediates every agent access to a decrypted secret. The
// sequence is fixed: authorize, decrypt, audit, respond. Denials are audited
// durably before the caller sees the response.
type BrokerService struct {
	store    *store.Store
	vault    vault.Client
	grants   *GrantService
	audit    *AuditService
	recorder metrics.Recorder

	requestTimeout time.Duration
}

// NewBrokerService creates a new broker service
func NewBrokerService(
	s *store.Store,
	v vault.Client,
	grants *GrantService,
	audit *AuditService,
	recorder metrics.Recorder,
	requestTimeout time.Duration,
) *BrokerService {
	if recorder == nil {
		recorder = metrics.NewNoopMetrics()
	}
	return &BrokerService{
		store:          s,
		vault:          v,
		grants:         grants,
		audit:          audit,
		recorder:       recorder,
		requestTimeout: requestTimeout,
	}
}

// RequestSecret authorizes the agent against credentialID for scope and, if
// allowed, returns the decrypted secret. Every path through this method
// produces an audit entry before returning.
func (s *BrokerService) RequestSecret(
	ctx context.Context,
	agent *models.Agent,
	credentialID, scope string,
) (*SecretResponse, error) {
	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, s.requestTimeout)
	defer cancel()

	decision, err := s.grants.Authorize(agent.ID, credentialID, scope)
	if err != nil {
		s.recorder.RecordBrokerRequest("unknown", "error", time.Since(start))
		return nil, err
	}

	providerName := "unknown"
	if decision.Credential != nil {
		providerName = decision.Credential.Provider
	}

	if !decision.Allowed {
		s.auditDenial(ctx, agent, credentialID, scope, decision)
		s.recorder.RecordBrokerRequest(providerName, "denied", time.Since(start))
		return nil, denialError(decision.Reason)
	}

	cred := decision.Credential

	plaintext, err := s.vaultDecrypt(ctx, cred.AccessTokenHandle)
	if err != nil {
		reason := "vault_unavailable"
		if errors.Is(err, ErrCredentialNeedsReauth) {
			// The handle points at nothing: the stored secret is gone and
			// the credential cannot work again until the owner reconnects.
			reason = "vault_handle_not_found"
			if statusErr := s.store.UpdateCredentialStatus(credentialID, models.CredentialError); statusErr != nil {
				log.Printf("Failed to mark credential %s as errored: %v", credentialID, statusErr)
			}
		}

		// Fail closed: the agent gets nothing, and the failure is durable
		// in the audit log before we respond.
		if auditErr := s.audit.LogSync(ctx, AuditLogEntry{
			EventType:    models.EventDecryptFailure,
			Severity:     models.SeverityError,
			ActorUserID:  agent.UserID,
			AgentID:      agent.ID,
			CredentialID: credentialID,
			ResourceType: models.ResourceCredential,
			ResourceID:   credentialID,
			Action:       "secret_request",
			Scope:        scope,
			Success:      false,
			Reason:       reason,
			Details: models.AuditDetails{
				"provider": cred.Provider,
				"grant_id": decision.Grant.ID,
			},
		}); auditErr != nil {
			log.Printf("Failed to audit decrypt failure: %v", auditErr)
		}
		s.recorder.RecordBrokerRequest(cred.Provider, "error", time.Since(start))
		return nil, err
	}

	// Success is audited durably before the secret leaves the broker.
	if err := s.audit.LogSync(ctx, AuditLogEntry{
		EventType:    models.EventDecryptSuccess,
		Severity:     models.SeverityInfo,
		ActorUserID:  agent.UserID,
		AgentID:      agent.ID,
		CredentialID: credentialID,
		ResourceType: models.ResourceCredential,
		ResourceID:   credentialID,
		Action:       "secret_request",
		Scope:        scope,
		Success:      true,
		Details: models.AuditDetails{
			"provider":         cred.Provider,
			"grant_id":         decision.Grant.ID,
			"permission_level": string(decision.Grant.PermissionLevel),
		},
	}); err != nil {
		// An access that cannot be recorded must not happen.
		s.recorder.RecordBrokerRequest(cred.Provider, "error", time.Since(start))
		return nil, err
	}

	// Bookkeeping failures don't block the response.
	if err := s.grants.RecordUsage(decision.Grant.ID); err != nil {
		log.Printf("Failed to record grant usage for %s: %v", decision.Grant.ID, err)
	}
	if err := s.store.TouchCredentialValidated(credentialID, time.Now()); err != nil {
		log.Printf("Failed to touch credential %s: %v", credentialID, err)
	}

	s.recorder.RecordBrokerRequest(cred.Provider, "success", time.Since(start))
	return &SecretResponse{
		Secret:          string(plaintext),
		Provider:        cred.Provider,
		PermissionLevel: decision.Grant.PermissionLevel,
		Scopes:          decision.Grant.ScopeList(),
		ExpiresAt:       cred.ExpiresAt,
	}, nil
}

// auditDenial records a denied request synchronously. If the audit write
// itself fails we still deny, so there is no path where the denial would be
// upgraded to an allow.
func (s *BrokerService) auditDenial(
	ctx context.Context,
	agent *models.Agent,
	credentialID, scope string,
	decision Decision,
) {
	details := models.AuditDetails{}
	if decision.Credential != nil {
		details["provider"] = decision.Credential.Provider
	}
	if decision.Grant != nil {
		details["grant_id"] = decision.Grant.ID
	}

	if err := s.audit.LogSync(ctx, AuditLogEntry{
		EventType:    models.EventDecryptDenied,
		Severity:     models.SeverityWarning,
		ActorUserID:  agent.UserID,
		AgentID:      agent.ID,
		CredentialID: credentialID,
		ResourceType: models.ResourceCredential,
		ResourceID:   credentialID,
		Action:       "secret_request",
		Scope:        scope,
		Success:      false,
		Reason:       decision.Reason,
		Details:      details,
	}); err != nil {
		log.Printf("Failed to audit denial: %v", err)
	}
}

// denialError maps a denial reason to a service error. Reasons that would
// leak whether a credential exists collapse to ErrNotAuthorized.
func denialError(reason string) error {
	switch reason {
	case DenyScopeNotGranted:
		return ErrScopeNotGranted
	case DenyCredentialRevoked:
		return ErrCredentialRevoked
	case DenyCredentialExpired, DenyCredentialInvalid:
		return ErrCredentialNeedsReauth
	default:
		return ErrNotAuthorized
	}
}

// vaultDecrypt resolves a handle with metrics, mapping vault errors to the
// service taxonomy.
func (s *BrokerService) vaultDecrypt(ctx context.Context, handle string) ([]byte, error) {
	start := time.Now()
	plaintext, err := s.vault.Decrypt(ctx, handle)
	s.recorder.RecordVaultOperation("decrypt", err == nil, time.Since(start))
	if err != nil {
		if errors.Is(err, vault.ErrHandleNotFound) {
			return nil, ErrCredentialNeedsReauth
		}
		return nil, ErrVaultUnavailable
	}
	return plaintext, nil
}
