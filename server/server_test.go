package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onnwee/happye-bot/oauth"
)

type fixture struct {
	handler http.Handler
	twitch  *oauth.CodeSlot
	spotify *oauth.CodeSlot
	ready   error
}

func newFixture(t *testing.T, rl RateLimitConfig) *fixture {
	t.Helper()
	f := &fixture{twitch: &oauth.CodeSlot{}, spotify: &oauth.CodeSlot{}}
	authURL := func(base string) func(string) string {
		return func(state string) string { return base + "?state=" + url.QueryEscape(state) }
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	f.handler = NewMux(ctx, Options{
		Services: []Service{
			{Name: "twitch", CallbackPath: "/auth", Slot: f.twitch, AuthCodeURL: authURL("https://id.twitch.tv/oauth2/authorize")},
			{Name: "spotify", CallbackPath: "/spotify-auth", Slot: f.spotify, AuthCodeURL: authURL("https://accounts.spotify.com/authorize")},
		},
		Readiness: []ReadinessCheck{{Name: "twitch_token", Check: func(context.Context) error { return f.ready }}},
		RateLimit: rl,
	})
	return f
}

func (f *fixture) get(target string) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	f.handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, target, nil))
	return rr
}

func TestCallbackStoresCode(t *testing.T) {
	f := newFixture(t, RateLimitConfig{})

	rr := f.get("/auth?code=abc123&scope=chat%3Aread+chat%3Aedit")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, CallbackBody, rr.Body.String())
	assert.Equal(t, "You can close this now 🎉", rr.Body.String())
	assert.NotEmpty(t, rr.Header().Get("X-Correlation-ID"))

	code, ok := f.twitch.Take()
	require.True(t, ok)
	assert.Equal(t, "abc123", code)
	_, ok = f.spotify.Take()
	assert.False(t, ok, "slots are per service")

	rr = f.get("/spotify-auth?code=sp1")
	assert.Equal(t, http.StatusOK, rr.Code)
	code, ok = f.spotify.Take()
	require.True(t, ok)
	assert.Equal(t, "sp1", code)
}

func TestCallbackRejects(t *testing.T) {
	f := newFixture(t, RateLimitConfig{})
	tests := map[string]string{
		"missing code":   "/auth",
		"empty code":     "/auth?code=",
		"unknown state":  "/auth?code=abc&state=forged",
		"provider error": "/auth?error=access_denied&error_description=nope",
	}
	for name, target := range tests {
		t.Run(name, func(t *testing.T) {
			rr := f.get(target)
			assert.Equal(t, http.StatusBadRequest, rr.Code)
			_, ok := f.twitch.Take()
			assert.False(t, ok)
		})
	}

	rr := httptest.NewRecorder()
	f.handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/auth?code=x", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}

func TestStartRedirectAndState(t *testing.T) {
	f := newFixture(t, RateLimitConfig{})

	rr := f.get("/auth/twitch/start")
	require.Equal(t, http.StatusFound, rr.Code)
	loc, err := url.Parse(rr.Header().Get("Location"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(loc.String(), "https://id.twitch.tv/oauth2/authorize"))
	state := loc.Query().Get("state")
	require.NotEmpty(t, state)

	// a state issued for twitch is not valid for spotify
	assert.Equal(t, http.StatusBadRequest, f.get("/spotify-auth?code=c&state="+state).Code)

	rr = f.get("/auth/twitch/start")
	loc, _ = url.Parse(rr.Header().Get("Location"))
	state = loc.Query().Get("state")
	assert.Equal(t, http.StatusOK, f.get("/auth?code=c&state="+state).Code)
	assert.Equal(t, http.StatusBadRequest, f.get("/auth?code=c&state="+state).Code, "states are single use")
}

func TestStateExpiry(t *testing.T) {
	h := NewHandlers(nil, nil)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	h.now = func() time.Time { return now }

	require.True(t, h.addOAuthState("s1", "twitch"))
	now = now.Add(stateTTL + time.Second)
	assert.False(t, h.consumeOAuthState("s1", "twitch"))
}

func TestHealthAndReadiness(t *testing.T) {
	f := newFixture(t, RateLimitConfig{})

	rr := f.get("/healthz")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "ok", rr.Body.String())

	f.ready = errors.New("waiting for authorization")
	rr = f.get("/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Contains(t, rr.Body.String(), `"failed_check":"twitch_token"`)

	f.ready = nil
	rr = f.get("/readyz")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"ready"}`, rr.Body.String())
}

func TestMetricsRoute(t *testing.T) {
	f := newFixture(t, RateLimitConfig{})
	rr := f.get("/metrics")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "go_goroutines")
}

func TestCorrelationIDPropagates(t *testing.T) {
	f := newFixture(t, RateLimitConfig{})
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Correlation-ID", "corr-1")
	rr := httptest.NewRecorder()
	f.handler.ServeHTTP(rr, req)
	assert.Equal(t, "corr-1", rr.Header().Get("X-Correlation-ID"))
}

func TestRateLimitCallbacks(t *testing.T) {
	f := newFixture(t, RateLimitConfig{Enabled: true, Requests: 2, Window: time.Minute})
	assert.Equal(t, http.StatusOK, f.get("/auth?code=a").Code)
	assert.Equal(t, http.StatusOK, f.get("/auth?code=b").Code)
	rr := f.get("/auth?code=c")
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, "60", rr.Header().Get("Retry-After"))
	assert.Equal(t, http.StatusOK, f.get("/healthz").Code, "health checks are not limited")
}

func TestClientIP(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "10.0.0.1:5555"
	assert.Equal(t, "10.0.0.1", clientIP(r, false))
	r.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	assert.Equal(t, "10.0.0.1", clientIP(r, false), "header ignored unless trusted")
	assert.Equal(t, "203.0.113.9", clientIP(r, true))
}

func TestRateLimitIgnoresSpoofedForwardedFor(t *testing.T) {
	f := newFixture(t, RateLimitConfig{Enabled: true, Requests: 1, Window: time.Minute})
	send := func(xff string) int {
		req := httptest.NewRequest(http.MethodGet, "/auth?code=a", nil)
		req.Header.Set("X-Forwarded-For", xff)
		rr := httptest.NewRecorder()
		f.handler.ServeHTTP(rr, req)
		return rr.Code
	}
	assert.Equal(t, http.StatusOK, send("198.51.100.1"))
	assert.Equal(t, http.StatusTooManyRequests, send("198.51.100.2"), "a new header value is not a new client")
}

func TestRateLimitTrustedForwardedFor(t *testing.T) {
	f := newFixture(t, RateLimitConfig{Enabled: true, Requests: 1, Window: time.Minute, TrustForwardedFor: true})
	send := func(xff string) int {
		req := httptest.NewRequest(http.MethodGet, "/auth?code=a", nil)
		req.Header.Set("X-Forwarded-For", xff)
		rr := httptest.NewRecorder()
		f.handler.ServeHTTP(rr, req)
		return rr.Code
	}
	assert.Equal(t, http.StatusOK, send("198.51.100.1"))
	assert.Equal(t, http.StatusOK, send("198.51.100.2"))
	assert.Equal(t, http.StatusTooManyRequests, send("198.51.100.1"))
}

func TestServerLifecycle(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	srv := New(ln.Addr().String(), newFixture(t, RateLimitConfig{}).handler)

	done := make(chan error, 1)
	go func() { done <- srv.Serve(ln) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + ln.Addr().String() + "/healthz")
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, srv.Shutdown(context.Background()))
	select {
	case err := <-done:
		assert.NoError(t, err, "closing is a clean exit")
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestServerStartBindError(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	err = New(ln.Addr().String(), http.NotFoundHandler()).Start()
	assert.Error(t, err)
}
