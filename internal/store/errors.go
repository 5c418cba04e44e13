package store

import "errors"

var (
	// ErrRecordNotFound wraps GORM's not found error for consistency
	ErrRecordNotFound = errors.New("record not found")

	// ErrStateAlreadyUsed is returned by ConsumeFlowState when the state
	// was already consumed by a concurrent callback (0 rows updated).
	ErrStateAlreadyUsed = errors.New("flow state already used")

	// ErrCredentialClaimed is returned by ClaimCredentialForRefresh when
	// another refresh worker holds the lease on the credential.
	ErrCredentialClaimed = errors.New("credential already claimed for refresh")
)
