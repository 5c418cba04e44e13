package provider

import (
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
)

// GoogleEndpoint is declared inline rather than importing
// golang.org/x/oauth2/google, which drags in cloud SDK metadata packages
// this service has no use for.
var GoogleEndpoint = oauth2.Endpoint{
	AuthURL:  "https://accounts.google.com/o/oauth2/auth",
	TokenURL: "https://oauth2.googleapis.com/token",
}

// SlackEndpoint covers Slack's OAuth v2 flow
var SlackEndpoint = oauth2.Endpoint{
	AuthURL:  "https://slack.com/oauth/v2/authorize",
	TokenURL: "https://slack.com/api/oauth.v2.access",
}

// NewGmailDescriptor builds the Gmail (Google) provider descriptor
func NewGmailDescriptor(clientID, clientSecret, redirectURL string, scopes []string) *OAuthDescriptor {
	if len(scopes) == 0 {
		scopes = []string{"https://www.googleapis.com/auth/gmail.readonly"}
	}
	return &OAuthDescriptor{
		Name:          "gmail",
		ClientID:      clientID,
		ClientSecret:  clientSecret,
		Endpoint:      GoogleEndpoint,
		DefaultScopes: scopes,
		RedirectURL:   redirectURL,
	}
}

// NewGitHubDescriptor builds the GitHub provider descriptor
func NewGitHubDescriptor(clientID, clientSecret, redirectURL string, scopes []string) *OAuthDescriptor {
	if len(scopes) == 0 {
		scopes = []string{"repo", "read:user"}
	}
	return &OAuthDescriptor{
		Name:          "github",
		ClientID:      clientID,
		ClientSecret:  clientSecret,
		Endpoint:      github.Endpoint,
		DefaultScopes: scopes,
		RedirectURL:   redirectURL,
	}
}

// NewSlackDescriptor builds the Slack provider descriptor
func NewSlackDescriptor(clientID, clientSecret, redirectURL string, scopes []string) *OAuthDescriptor {
	if len(scopes) == 0 {
		scopes = []string{"chat:write", "channels:read"}
	}
	return &OAuthDescriptor{
		Name:          "slack",
		ClientID:      clientID,
		ClientSecret:  clientSecret,
		Endpoint:      SlackEndpoint,
		DefaultScopes: scopes,
		RedirectURL:   redirectURL,
	}
}
