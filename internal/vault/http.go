package vault

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/credgate/credgate/internal/retry"
)

// HTTPClient talks to an external encrypted-secret service over its REST
// surface. The service owns encryption at rest; this client only moves
// plaintext in and handles out.
type HTTPClient struct {
	baseURL   string
	authToken string
	client    *retry.Client
}

// HTTPConfig configures the HTTP vault client
type HTTPConfig struct {
	BaseURL    string
	AuthToken  string
	Timeout    time.Duration
	MaxRetries int
}

// NewHTTPClient creates a vault client over the external secret service
func NewHTTPClient(cfg HTTPConfig) *HTTPClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPClient{
		baseURL:   cfg.BaseURL,
		authToken: cfg.AuthToken,
		client: retry.NewClient(
			retry.WithHTTPClient(&http.Client{Timeout: timeout}),
			retry.WithMaxRetries(cfg.MaxRetries),
		),
	}
}

type storeRequest struct {
	Value string `json:"value"`
}

type storeResponse struct {
	Handle string `json:"handle"`
}

type decryptResponse struct {
	Value string `json:"value"`
}

// Store encrypts and persists plaintext via the vault service
func (v *HTTPClient) Store(ctx context.Context, plaintext []byte) (string, error) {
	body, err := json.Marshal(storeRequest{Value: string(plaintext)})
	if err != nil {
		return "", fmt.Errorf("failed to encode vault request: %w", err)
	}

	resp, err := v.do(ctx, http.MethodPost, "/v1/secrets", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("%w: store returned %s", ErrVaultUnavailable, resp.Status)
	}

	var out storeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("%w: invalid store response: %v", ErrVaultUnavailable, err)
	}
	if out.Handle == "" {
		return "", fmt.Errorf("%w: store returned empty handle", ErrVaultUnavailable)
	}
	return out.Handle, nil
}

// Decrypt returns the plaintext for a handle
func (v *HTTPClient) Decrypt(ctx context.Context, handle string) ([]byte, error) {
	resp, err := v.do(ctx, http.MethodGet, "/v1/secrets/"+handle, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		var out decryptResponse
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return nil, fmt.Errorf("%w: invalid decrypt response: %v", ErrVaultUnavailable, err)
		}
		return []byte(out.Value), nil
	case http.StatusNotFound:
		return nil, ErrHandleNotFound
	default:
		return nil, fmt.Errorf("%w: decrypt returned %s", ErrVaultUnavailable, resp.Status)
	}
}

// Revoke deletes the underlying secret. A 404 is treated as success.
func (v *HTTPClient) Revoke(ctx context.Context, handle string) error {
	resp, err := v.do(ctx, http.MethodDelete, "/v1/secrets/"+handle, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusNoContent, http.StatusNotFound:
		return nil
	default:
		return fmt.Errorf("%w: revoke returned %s", ErrVaultUnavailable, resp.Status)
	}
}

// Health checks vault reachability
func (v *HTTPClient) Health(ctx context.Context) error {
	resp, err := v.do(ctx, http.MethodGet, "/healthz", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: health returned %s", ErrVaultUnavailable, resp.Status)
	}
	return nil
}

func (v *HTTPClient) do(ctx context.Context, method, path string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, v.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build vault request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if v.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+v.authToken)
	}

	resp, err := v.client.Do(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrVaultUnavailable, err)
	}
	return resp, nil
}
