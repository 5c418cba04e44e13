package vault

import (
	"context"
	"errors"
)

var (
	// ErrVaultUnavailable indicates a transient failure reaching the
	// encrypted store. Callers fail closed and may retry.
	ErrVaultUnavailable = errors.New("vault unavailable")

	// ErrHandleNotFound indicates the handle does not exist. This is an
	// integrity problem for the owning credential, which must be forced
	// into error status and reconnected.
	ErrHandleNotFound = errors.New("vault handle not found")
)

// Client is the entire contract this service has with the secret vault.
// Plaintext returned by Decrypt must never outlive the caller's stack:
// no caching of decrypted values is permitted at any layer.
type Client interface {
	// Store encrypts and persists plaintext, returning an opaque handle.
	Store(ctx context.Context, plaintext []byte) (string, error)

	// Decrypt returns the plaintext for a handle.
	Decrypt(ctx context.Context, handle string) ([]byte, error)

	// Revoke deletes the underlying secret. Best-effort and idempotent:
	// revoking an unknown handle is not an error.
	Revoke(ctx context.Context, handle string) error

	// Health reports whether the vault is reachable.
	Health(ctx context.Context) error
}
