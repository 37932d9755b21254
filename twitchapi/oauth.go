// Package twitchapi holds the Twitch identity endpoints the bot needs: the
// OAuth2 provider description for the chat identity and token validation.
package twitchapi

import (
	"strings"

	"golang.org/x/oauth2"

	"github.com/onnwee/happye-bot/oauth"
)

// Service is the token store key for the chat identity.
const Service = "twitch"

// DefaultScopes lets the bot read and write chat.
const DefaultScopes = "chat:read chat:edit"

// IDBaseURL is the Twitch identity host.
const IDBaseURL = "https://id.twitch.tv"

// Endpoint returns the OAuth2 endpoints under base (IDBaseURL in production).
// Twitch expects client credentials in the form body.
func Endpoint(base string) oauth2.Endpoint {
	base = strings.TrimRight(base, "/")
	return oauth2.Endpoint{
		AuthURL:   base + "/oauth2/authorize",
		TokenURL:  base + "/oauth2/token",
		AuthStyle: oauth2.AuthStyleInParams,
	}
}

// NewProvider describes the Twitch chat identity. scopes is space or comma
// separated; empty means DefaultScopes.
func NewProvider(clientID, clientSecret, redirectURI, scopes string, endpoint oauth2.Endpoint) *oauth.Provider {
	return &oauth.Provider{
		Service: Service,
		Config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURI,
			Scopes:       SplitScopes(scopes, DefaultScopes),
			Endpoint:     endpoint,
		},
	}
}

// SplitScopes accepts "a b", "a,b" or "a, b". def is used when s is blank.
func SplitScopes(s, def string) []string {
	if strings.TrimSpace(s) == "" {
		s = def
	}
	return strings.Fields(strings.ReplaceAll(s, ",", " "))
}
