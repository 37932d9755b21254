package oauth

import (
	"golang.org/x/oauth2"
)

// Provider describes one identity provider: its service key (used for
// persistence and metrics) and the OAuth2 client configuration.
type Provider struct {
	Service string
	Config  *oauth2.Config
}

// AuthCodeURL builds the consent URL the user must open once.
func (p *Provider) AuthCodeURL(state string) string {
	return p.Config.AuthCodeURL(state)
}
