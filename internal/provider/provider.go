package provider

import (
	"errors"

	"golang.org/x/oauth2"
)

// ErrUnknownProvider is returned when no descriptor is registered under
// the requested name.
var ErrUnknownProvider = errors.New("unknown provider")

// OAuthDescriptor describes an OAuth 2.1 provider this service can drive
// an authorization-code + PKCE flow against.
type OAuthDescriptor struct {
	Name         string
	ClientID     string
	ClientSecret string
	Endpoint     oauth2.Endpoint
	// DefaultScopes are requested when the caller supplies none.
	DefaultScopes []string
	RedirectURL   string
}

// Config builds the oauth2 client configuration for a flow with the given
// scopes.
func (d *OAuthDescriptor) Config(scopes []string) *oauth2.Config {
	if len(scopes) == 0 {
		scopes = d.DefaultScopes
	}
	return &oauth2.Config{
		ClientID:     d.ClientID,
		ClientSecret: d.ClientSecret,
		Endpoint:     d.Endpoint,
		RedirectURL:  d.RedirectURL,
		Scopes:       scopes,
	}
}

// APIKeyDescriptor describes a provider whose connections are bare API
// keys: no endpoints, no refresh, no expiry.
type APIKeyDescriptor struct {
	Name string
	// KeyScopes are the scopes a stored key is considered to grant;
	// key-based providers have no scope negotiation of their own.
	KeyScopes []string
}

// Registry holds the two descriptor variants, keyed by provider name.
// The variants are kept separate so a caller always knows which kind it
// is handling; there is no untyped config blob.
type Registry struct {
	oauth   map[string]*OAuthDescriptor
	apiKeys map[string]*APIKeyDescriptor
}

// NewRegistry creates an empty provider registry
func NewRegistry() *Registry {
	return &Registry{
		oauth:   make(map[string]*OAuthDescriptor),
		apiKeys: make(map[string]*APIKeyDescriptor),
	}
}

// RegisterOAuth adds an OAuth provider descriptor
func (r *Registry) RegisterOAuth(d *OAuthDescriptor) {
	r.oauth[d.Name] = d
}

// RegisterAPIKey adds an API-key provider descriptor
func (r *Registry) RegisterAPIKey(d *APIKeyDescriptor) {
	r.apiKeys[d.Name] = d
}

// OAuth returns the OAuth descriptor for name
func (r *Registry) OAuth(name string) (*OAuthDescriptor, error) {
	d, ok := r.oauth[name]
	if !ok {
		return nil, ErrUnknownProvider
	}
	return d, nil
}

// APIKey returns the API-key descriptor for name
func (r *Registry) APIKey(name string) (*APIKeyDescriptor, error) {
	d, ok := r.apiKeys[name]
	if !ok {
		return nil, ErrUnknownProvider
	}
	return d, nil
}

// OAuthNames lists registered OAuth provider names
func (r *Registry) OAuthNames() []string {
	names := make([]string, 0, len(r.oauth))
	for name := range r.oauth {
		names = append(names, name)
	}
	return names
}

// APIKeyNames lists registered API-key provider names
func (r *Registry) APIKeyNames() []string {
	names := make([]string, 0, len(r.apiKeys))
	for name := range r.apiKeys {
		names = append(names, name)
	}
	return names
}
