package twitchapi

import (
	"net/url"
	"reflect"
	"strings"
	"testing"

	"golang.org/x/oauth2"
)

func TestNewProviderAuthURL(t *testing.T) {
	tests := []struct {
		name      string
		scopes    string
		wantScope string
	}{
		{name: "default scopes", scopes: "", wantScope: "chat:read chat:edit"},
		{name: "comma separated", scopes: "chat:read,chat:edit,moderator:read:chatters", wantScope: "chat:read chat:edit moderator:read:chatters"},
		{name: "space separated", scopes: "chat:read  chat:edit", wantScope: "chat:read chat:edit"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewProvider("client-id", "secret", "http://localhost:42069/auth", tt.scopes, Endpoint(IDBaseURL))
			if p.Service != "twitch" {
				t.Errorf("Service = %q, want twitch", p.Service)
			}
			raw := p.AuthCodeURL("state-123")
			if !strings.HasPrefix(raw, "https://id.twitch.tv/oauth2/authorize?") {
				t.Fatalf("URL doesn't start with Twitch auth endpoint: %s", raw)
			}
			u, err := url.Parse(raw)
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			q := u.Query()
			checks := map[string]string{
				"client_id":     "client-id",
				"redirect_uri":  "http://localhost:42069/auth",
				"response_type": "code",
				"state":         "state-123",
				"scope":         tt.wantScope,
			}
			for k, want := range checks {
				if got := q.Get(k); got != want {
					t.Errorf("%s = %q, want %q", k, got, want)
				}
			}
		})
	}
}

func TestEndpoint(t *testing.T) {
	e := Endpoint("http://127.0.0.1:9999/")
	if e.TokenURL != "http://127.0.0.1:9999/oauth2/token" {
		t.Errorf("TokenURL = %s", e.TokenURL)
	}
	if e.AuthStyle != oauth2.AuthStyleInParams {
		t.Errorf("AuthStyle = %v, want AuthStyleInParams", e.AuthStyle)
	}
}

func TestSplitScopes(t *testing.T) {
	if got := SplitScopes(" a, b c ", "x"); !reflect.DeepEqual(got, []string{"a", "b", "c"}) {
		t.Errorf("SplitScopes = %v", got)
	}
	if got := SplitScopes("  ", "x y"); !reflect.DeepEqual(got, []string{"x", "y"}) {
		t.Errorf("SplitScopes default = %v", got)
	}
}
