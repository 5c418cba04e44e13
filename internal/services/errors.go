package services

import "errors"

// Service-level sentinel errors. Handlers translate these into HTTP
// responses; callers switch on them with errors.Is.
var (
	// Flow errors
	ErrUnknownProvider       = errors.New("unknown or disabled provider")
	ErrInvalidOrExpiredState = errors.New("state is invalid, expired, or already used")
	ErrTokenExchangeFailed   = errors.New("authorization code exchange failed")
	ErrProviderDenied        = errors.New("provider denied the authorization request")

	// Credential errors
	ErrCredentialNotFound    = errors.New("credential not found")
	ErrCredentialRevoked     = errors.New("credential has been revoked")
	ErrCredentialNeedsReauth = errors.New("credential requires re-authorization")
	ErrNotOwner              = errors.New("credential belongs to another user")

	// Grant / authorization errors
	ErrGrantNotFound   = errors.New("permission grant not found")
	ErrNotAuthorized   = errors.New("agent has no usable grant for this credential")
	ErrScopeNotGranted = errors.New("requested scope exceeds the grant")

	// Agent errors
	ErrAgentNotFound     = errors.New("agent not found")
	ErrInvalidAgentToken = errors.New("agent token is invalid")

	// Vault errors are wrapped from the vault package; broker surfaces
	// this one when the vault cannot serve a decrypt in time.
	ErrVaultUnavailable = errors.New("secret vault unavailable")
)
