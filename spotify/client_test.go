package spotify

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/onnwee/happye-bot/apperrors"
	"github.com/onnwee/happye-bot/commands"
	"github.com/onnwee/happye-bot/oauth"
	"github.com/onnwee/happye-bot/testutil"
)

type staticTokens string

func (s staticTokens) Current(context.Context) oauth.Token { return oauth.Token{AccessToken: string(s)} }

func newClient(t *testing.T) (*Client, *testutil.MockAPIServer) {
	t.Helper()
	srv := testutil.NewMockAPIServer(t)
	return &Client{BaseURL: srv.URL, Tokens: staticTokens("sp-token")}, srv
}

func TestTrackString(t *testing.T) {
	assert.Equal(t, "Song A - Artist B", Track{Name: "Song A", Artists: []string{"Artist B", "Artist C"}}.String())
	assert.Equal(t, "Lonely", Track{Name: "Lonely"}.String())
}

func TestSearch(t *testing.T) {
	c, srv := newClient(t)
	srv.MockSpotifySearch(testutil.MockTrack{URI: "spotify:track:1", Name: "Song A", Artists: []string{"Artist B"}})

	tracks, err := c.Search(context.Background(), "song a b", 1)
	require.NoError(t, err)
	require.Len(t, tracks, 1)
	assert.Equal(t, Track{URI: "spotify:track:1", Name: "Song A", Artists: []string{"Artist B"}}, tracks[0])

	reqs := srv.Requests("/v1/search")
	require.Len(t, reqs, 1)
	assert.Equal(t, "Bearer sp-token", reqs[0].Header.Get("Authorization"))
	q := reqs[0].URL.Query()
	assert.Equal(t, "song a b", q.Get("q"))
	assert.Equal(t, "track", q.Get("type"))
	assert.Equal(t, "1", q.Get("limit"))
}

func TestSearchEmptyQuery(t *testing.T) {
	c, _ := newClient(t)
	_, err := c.Search(context.Background(), "  ", 1)
	assert.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestSearchHTTPError(t *testing.T) {
	c, srv := newClient(t)
	srv.Handle("/v1/search", func(w http.ResponseWriter, r *http.Request) {
		testutil.WriteJSON(w, http.StatusUnauthorized, map[string]any{"error": map[string]any{"status": 401, "message": "The access token expired"}})
	})
	_, err := c.Search(context.Background(), "x", 1)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrNetwork)
	assert.Contains(t, err.Error(), "access token expired")
}

func TestSearchMalformed(t *testing.T) {
	c, srv := newClient(t)
	srv.Handle("/v1/search", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("{not json"))
	})
	_, err := c.Search(context.Background(), "x", 1)
	assert.ErrorIs(t, err, apperrors.ErrProtocol)
}

func TestQueue(t *testing.T) {
	c, srv := newClient(t)
	srv.MockSpotifyQueue(http.StatusNoContent)

	require.NoError(t, c.Queue(context.Background(), "spotify:track:1"))
	reqs := srv.Requests("/v1/me/player/queue")
	require.Len(t, reqs, 1)
	assert.Equal(t, http.MethodPost, reqs[0].Method)
	assert.Equal(t, "spotify:track:1", reqs[0].URL.Query().Get("uri"))
}

func TestQueueNoDevice(t *testing.T) {
	c, srv := newClient(t)
	srv.MockSpotifyQueue(http.StatusNotFound)
	err := c.Queue(context.Background(), "spotify:track:1")
	assert.ErrorIs(t, err, ErrNoActiveDevice)
}

func TestQueueAction(t *testing.T) {
	c, srv := newClient(t)
	srv.MockSpotifySearch(testutil.MockTrack{URI: "spotify:track:9", Name: "Song A", Artists: []string{"Artist B"}})
	srv.MockSpotifyQueue(http.StatusNoContent)

	res, err := (&QueueAction{Client: c}).Run(context.Background(), "song a")
	require.NoError(t, err)
	assert.Equal(t, commands.ActionResult{Outcome: commands.OutcomeFound, Display: "Song A - Artist B"}, res)
	assert.Equal(t, "spotify:track:9", srv.Requests("/v1/me/player/queue")[0].URL.Query().Get("uri"))
}

func TestQueueActionNoResults(t *testing.T) {
	c, srv := newClient(t)
	srv.MockSpotifySearch()

	res, err := (&QueueAction{Client: c}).Run(context.Background(), "zzzz")
	require.NoError(t, err)
	assert.Equal(t, commands.OutcomeEmpty, res.Outcome)
	assert.Empty(t, srv.Requests("/v1/me/player/queue"), "nothing to queue")
}

func TestQueueActionFailures(t *testing.T) {
	t.Run("search", func(t *testing.T) {
		c, _ := newClient(t) // no handler: 404
		_, err := (&QueueAction{Client: c}).Run(context.Background(), "x")
		require.Error(t, err)
	})
	t.Run("queue", func(t *testing.T) {
		c, srv := newClient(t)
		srv.MockSpotifySearch(testutil.MockTrack{URI: "spotify:track:1", Name: "A"})
		srv.MockSpotifyQueue(http.StatusNotFound)
		_, err := (&QueueAction{Client: c}).Run(context.Background(), "x")
		assert.True(t, errors.Is(err, ErrNoActiveDevice))
	})
}

func TestNewProvider(t *testing.T) {
	p := NewProvider("id", "secret", "http://localhost:42069/spotify-auth", "", Endpoint(AccountsBaseURL))
	assert.Equal(t, "spotify", p.Service)
	assert.Equal(t, []string{"user-modify-playback-state", "user-read-playback-state"}, p.Config.Scopes)
	assert.Equal(t, "https://accounts.spotify.com/api/token", p.Config.Endpoint.TokenURL)
	assert.Equal(t, oauth2.AuthStyleInHeader, p.Config.Endpoint.AuthStyle)
	assert.Contains(t, p.AuthCodeURL("s1"), "https://accounts.spotify.com/authorize?")
}

// The broker refreshes an expired Spotify token with basic auth before the API call.
func TestClientWithBrokerRefresh(t *testing.T) {
	srv := testutil.NewMockAPIServer(t)
	srv.MockOAuthTokenResponse("/api/token", "fresh", "r2", 3600)
	srv.MockSpotifySearch(testutil.MockTrack{URI: "spotify:track:1", Name: "A"})

	store := &memStore{tok: oauth.Token{AccessToken: "stale", RefreshToken: "r1", CreatedAt: time.Now().Add(-time.Hour), ExpiresIn: 60}}
	b := oauth.NewBroker(NewProvider("id", "secret", "http://cb", "", Endpoint(srv.URL)), store, &oauth.CodeSlot{})
	_, err := b.Acquire(context.Background())
	require.NoError(t, err)

	c := &Client{BaseURL: srv.URL, Tokens: b}
	_, err = c.Search(context.Background(), "a", 1)
	require.NoError(t, err)

	tokReqs := srv.Requests("/api/token")
	require.Len(t, tokReqs, 1)
	user, pass, ok := tokReqs[0].BasicAuth()
	assert.True(t, ok)
	assert.Equal(t, "id", user)
	assert.Equal(t, "secret", pass)
	assert.Equal(t, "refresh_token", srv.Forms("/api/token")[0]["grant_type"])
	assert.Equal(t, "Bearer fresh", srv.Requests("/v1/search")[0].Header.Get("Authorization"))
	assert.Equal(t, "fresh", store.tok.AccessToken)
}

type memStore struct{ tok oauth.Token }

func (m *memStore) Load(context.Context, string) (oauth.Token, error) { return m.tok, nil }

func (m *memStore) Save(_ context.Context, _ string, tok oauth.Token) error {
	m.tok = tok
	return nil
}
