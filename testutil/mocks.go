// Package testutil holds shared fakes for the provider HTTP APIs and a
// Postgres helper for integration tests.
package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

// MockAPIServer serves canned provider responses keyed by request path and
// records every request it receives.
type MockAPIServer struct {
	*httptest.Server

	mu       sync.Mutex
	handlers map[string]http.HandlerFunc
	requests []*http.Request
	forms    []map[string]string
}

// NewMockAPIServer starts a server that answers 404 for unregistered paths.
func NewMockAPIServer(t *testing.T) *MockAPIServer {
	t.Helper()
	m := &MockAPIServer{handlers: make(map[string]http.HandlerFunc)}
	m.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm() //nolint:errcheck // test mock, form is optional
		form := make(map[string]string, len(r.PostForm))
		for k := range r.PostForm {
			form[k] = r.PostForm.Get(k)
		}
		m.mu.Lock()
		m.requests = append(m.requests, r)
		m.forms = append(m.forms, form)
		h, ok := m.handlers[r.URL.Path]
		m.mu.Unlock()
		if ok {
			h(w, r)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(m.Close)
	return m
}

// Handle registers h for path, replacing any earlier handler.
func (m *MockAPIServer) Handle(path string, h http.HandlerFunc) {
	m.mu.Lock()
	m.handlers[path] = h
	m.mu.Unlock()
}

// Requests returns the requests received for path.
func (m *MockAPIServer) Requests(path string) []*http.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*http.Request
	for _, r := range m.requests {
		if r.URL.Path == path {
			out = append(out, r)
		}
	}
	return out
}

// Forms returns the decoded POST bodies received for path.
func (m *MockAPIServer) Forms(path string) []map[string]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []map[string]string
	for i, r := range m.requests {
		if r.URL.Path == path {
			out = append(out, m.forms[i])
		}
	}
	return out
}

// WriteJSON is a helper for custom handlers.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v) //nolint:errcheck // test mock response
}

// MockOAuthTokenResponse answers the token endpoint at path for both the
// authorization_code and refresh_token grants.
func (m *MockAPIServer) MockOAuthTokenResponse(path, accessToken, refreshToken string, expiresIn int) {
	m.Handle(path, func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, map[string]any{
			"access_token":  accessToken,
			"refresh_token": refreshToken,
			"expires_in":    expiresIn,
			"token_type":    "bearer",
		})
	})
}

// MockTwitchValidate answers /oauth2/validate with login.
func (m *MockAPIServer) MockTwitchValidate(login string, expiresIn int) {
	m.Handle("/oauth2/validate", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "" {
			WriteJSON(w, http.StatusUnauthorized, map[string]any{"status": 401, "message": "missing authorization token"})
			return
		}
		WriteJSON(w, http.StatusOK, map[string]any{
			"client_id":  "client",
			"login":      login,
			"user_id":    "1234",
			"scopes":     []string{"chat:read", "chat:edit"},
			"expires_in": expiresIn,
		})
	})
}

// MockTrack is the subset of a Spotify track object the fakes emit.
type MockTrack struct {
	URI     string
	Name    string
	Artists []string
}

// MockSpotifySearch answers /v1/search with tracks.
func (m *MockAPIServer) MockSpotifySearch(tracks ...MockTrack) {
	m.Handle("/v1/search", func(w http.ResponseWriter, r *http.Request) {
		items := make([]map[string]any, 0, len(tracks))
		for _, tr := range tracks {
			artists := make([]map[string]string, 0, len(tr.Artists))
			for _, a := range tr.Artists {
				artists = append(artists, map[string]string{"name": a})
			}
			items = append(items, map[string]any{"uri": tr.URI, "name": tr.Name, "artists": artists})
		}
		WriteJSON(w, http.StatusOK, map[string]any{"tracks": map[string]any{"items": items}})
	})
}

// MockSpotifyQueue answers /v1/me/player/queue with status.
func (m *MockAPIServer) MockSpotifyQueue(status int) {
	m.Handle("/v1/me/player/queue", func(w http.ResponseWriter, r *http.Request) {
		if status >= 400 {
			WriteJSON(w, status, map[string]any{"error": map[string]any{"status": status, "message": "No active device found"}})
			return
		}
		w.WriteHeader(status)
	})
}
