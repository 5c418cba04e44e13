package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/credgate/credgate/internal/metrics"
	"github.com/credgate/credgate/internal/models"
	"github.com/credgate/credgate/internal/provider"
	"github.com/credgate/credgate/internal/store"
	"github.com/credgate/credgate/internal/vault"
)

// RefreshConfig tunes the background token refresh service
type RefreshConfig struct {
	Interval    time.Duration // how often to scan for expiring credentials
	Window      time.Duration // refresh credentials expiring within this window
	Workers     int           // concurrent refreshes per cycle
	MaxFailures int           // consecutive failures before status=error
	ClaimLease  time.Duration // per-credential lease so cycles never overlap
	BatchLimit  int           // max credentials per cycle
}

// RefreshService proactively rotates OAuth access tokens before they expire.
// Each credential is claimed with a database lease so concurrent cycles (or
// replicas) never refresh the same credential twice.
type RefreshService struct {
	store     *store.Store
	vault     vault.Client
	providers *provider.Registry
	audit     *AuditService
	recorder  metrics.Recorder
	cfg       RefreshConfig
}

// NewRefreshService creates a new refresh service
func NewRefreshService(
	s *store.Store,
	v vault.Client,
	providers *provider.Registry,
	audit *AuditService,
	recorder metrics.Recorder,
	cfg RefreshConfig,
) *RefreshService {
	if recorder == nil {
		recorder = metrics.NewNoopMetrics()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.BatchLimit <= 0 {
		cfg.BatchLimit = 100
	}
	return &RefreshService{
		store:     s,
		vault:     v,
		providers: providers,
		audit:     audit,
		recorder:  recorder,
		cfg:       cfg,
	}
}

// Run executes refresh cycles until ctx is cancelled
func (s *RefreshService) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	log.Printf("Token refresh service started (interval %s, window %s, %d workers)",
		s.cfg.Interval, s.cfg.Window, s.cfg.Workers)

	for {
		select {
		case <-ctx.Done():
			log.Println("Token refresh service stopped")
			return
		case <-ticker.C:
			if err := s.RunOnce(ctx); err != nil {
				log.Printf("Refresh cycle failed: %v", err)
			}
		}
	}
}

// RunOnce performs a single refresh cycle: sweep past-expiry credentials
// that cannot be refreshed into expired status, then find credentials
// expiring inside the window, claim each one, and refresh them on a
// bounded worker pool.
func (s *RefreshService) RunOnce(ctx context.Context) error {
	expired, err := s.store.MarkExpiredCredentials(time.Now())
	if err != nil {
		log.Printf("Failed to sweep expired credentials: %v", err)
	} else if expired > 0 {
		log.Printf("Marked %d credentials as expired", expired)
	}

	leaseCutoff := time.Now().Add(-s.cfg.ClaimLease)
	creds, err := s.store.ListCredentialsNearingExpiry(s.cfg.Window, leaseCutoff, s.cfg.BatchLimit)
	if err != nil {
		return fmt.Errorf("failed to list expiring credentials: %w", err)
	}
	if len(creds) == 0 {
		return nil
	}

	sem := make(chan struct{}, s.cfg.Workers)
	var wg sync.WaitGroup
	for i := range creds {
		cred := creds[i]

		if err := s.store.ClaimCredentialForRefresh(cred.ID, leaseCutoff); err != nil {
			if !errors.Is(err, store.ErrCredentialClaimed) {
				log.Printf("Failed to claim credential %s: %v", cred.ID, err)
			}
			continue
		}

		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			s.refreshOne(ctx, &cred)
		}()
	}
	wg.Wait()
	return nil
}

// refreshOne rotates a single claimed credential. The claim is released by
// RotateCredentialHandles on success or BumpRefreshFailures on failure.
func (s *RefreshService) refreshOne(ctx context.Context, cred *models.Credential) {
	start := time.Now()

	token, oldRefresh, err := s.redeemRefreshToken(ctx, cred)
	if err != nil {
		s.recorder.RecordTokenRefresh(cred.Provider, false, time.Since(start))
		s.handleFailure(ctx, cred, err)
		return
	}

	if err := s.rotate(ctx, cred, token, oldRefresh); err != nil {
		s.recorder.RecordTokenRefresh(cred.Provider, false, time.Since(start))
		s.handleFailure(ctx, cred, err)
		return
	}

	s.recorder.RecordTokenRefresh(cred.Provider, true, time.Since(start))
	s.audit.Log(ctx, AuditLogEntry{
		EventType:    models.EventRefreshSuccess,
		Severity:     models.SeverityInfo,
		ActorUserID:  "system",
		CredentialID: cred.ID,
		ResourceType: models.ResourceCredential,
		ResourceID:   cred.ID,
		Action:       "token_refreshed",
		Details: models.AuditDetails{
			"provider": cred.Provider,
		},
		Success: true,
	})
}

// redeemRefreshToken decrypts the stored refresh token and trades it for a
// fresh token pair at the provider. The plaintext refresh token is also
// returned so the caller can tell whether the provider rotated it.
func (s *RefreshService) redeemRefreshToken(
	ctx context.Context,
	cred *models.Credential,
) (*oauth2.Token, string, error) {
	desc, err := s.providers.OAuth(cred.Provider)
	if err != nil {
		return nil, "", ErrUnknownProvider
	}

	refreshPlain, err := s.vaultDecrypt(ctx, cred.RefreshTokenHandle)
	if err != nil {
		return nil, "", err
	}

	src := desc.Config(cred.ScopeList()).TokenSource(ctx, &oauth2.Token{
		RefreshToken: string(refreshPlain),
	})
	token, err := src.Token()
	if err != nil {
		return nil, "", fmt.Errorf("provider refresh failed: %w", err)
	}
	return token, string(refreshPlain), nil
}

// rotate vaults the new tokens and swaps the handles in one transaction,
// revoking the superseded vault entries afterwards.
func (s *RefreshService) rotate(
	ctx context.Context,
	cred *models.Credential,
	token *oauth2.Token,
	oldRefresh string,
) error {
	accessHandle, err := s.vaultStore(ctx, []byte(token.AccessToken))
	if err != nil {
		return err
	}

	// Providers may rotate the refresh token. The token source echoes the
	// request's refresh token when the response omits one, so compare
	// against the old plaintext instead of checking for emptiness.
	refreshHandle := cred.RefreshTokenHandle
	refreshRotated := false
	if token.RefreshToken != "" && token.RefreshToken != oldRefresh {
		refreshHandle, err = s.vaultStore(ctx, []byte(token.RefreshToken))
		if err != nil {
			s.vaultRevoke(ctx, accessHandle)
			return err
		}
		refreshRotated = true
	}

	var expiresAt *time.Time
	if !token.Expiry.IsZero() {
		t := token.Expiry
		expiresAt = &t
	}

	if err := s.store.RotateCredentialHandles(cred.ID, accessHandle, refreshHandle, expiresAt); err != nil {
		s.vaultRevoke(ctx, accessHandle)
		if refreshRotated {
			s.vaultRevoke(ctx, refreshHandle)
		}
		return fmt.Errorf("failed to rotate handles: %w", err)
	}

	// Old secrets are unreachable now; revocation is cleanup, not safety.
	s.vaultRevoke(ctx, cred.AccessTokenHandle)
	if refreshRotated {
		s.vaultRevoke(ctx, cred.RefreshTokenHandle)
	}
	return nil
}

// handleFailure audits a failed refresh and downgrades the credential when
// the provider rejected the refresh token outright or failures pile up.
func (s *RefreshService) handleFailure(ctx context.Context, cred *models.Credential, cause error) {
	terminal := false
	reason := cause.Error()

	var retrieveErr *oauth2.RetrieveError
	if errors.As(cause, &retrieveErr) && retrieveErr.ErrorCode == "invalid_grant" {
		// The refresh token is dead; retrying cannot help.
		terminal = true
		reason = "invalid_grant"
	}
	if errors.Is(cause, vault.ErrHandleNotFound) {
		// The refresh-token handle points at nothing; only a reconnect
		// can repair the credential.
		terminal = true
		reason = "vault_handle_not_found"
	}

	failures, err := s.store.BumpRefreshFailures(cred.ID)
	if err != nil {
		log.Printf("Failed to bump refresh failures for %s: %v", cred.ID, err)
	} else if failures >= s.cfg.MaxFailures {
		terminal = true
	}

	if terminal {
		if err := s.store.UpdateCredentialStatus(cred.ID, models.CredentialError); err != nil {
			log.Printf("Failed to mark credential %s as errored: %v", cred.ID, err)
		}
	}

	severity := models.SeverityWarning
	if terminal {
		severity = models.SeverityError
	}
	s.audit.Log(ctx, AuditLogEntry{
		EventType:    models.EventRefreshFailure,
		Severity:     severity,
		ActorUserID:  "system",
		CredentialID: cred.ID,
		ResourceType: models.ResourceCredential,
		ResourceID:   cred.ID,
		Action:       "token_refresh_failed",
		Success:      false,
		Reason:       reason,
		Details: models.AuditDetails{
			"provider": cred.Provider,
			"terminal": terminal,
		},
	})
}

func (s *RefreshService) vaultStore(ctx context.Context, plaintext []byte) (string, error) {
	start := time.Now()
	handle, err := s.vault.Store(ctx, plaintext)
	s.recorder.RecordVaultOperation("store", err == nil, time.Since(start))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrVaultUnavailable, err)
	}
	return handle, nil
}

func (s *RefreshService) vaultDecrypt(ctx context.Context, handle string) ([]byte, error) {
	start := time.Now()
	plaintext, err := s.vault.Decrypt(ctx, handle)
	s.recorder.RecordVaultOperation("decrypt", err == nil, time.Since(start))
	if err != nil {
		if errors.Is(err, vault.ErrHandleNotFound) {
			return nil, fmt.Errorf("refresh token handle: %w", err)
		}
		return nil, fmt.Errorf("%w: %v", ErrVaultUnavailable, err)
	}
	return plaintext, nil
}

func (s *RefreshService) vaultRevoke(ctx context.Context, handle string) {
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
