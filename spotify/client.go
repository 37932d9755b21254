// Package spotify is a minimal Web API client for song requests: track search
// and adding to the active player's queue. Every call reads its bearer token
// from the broker, refreshing it first when it has expired.
package spotify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/oauth2"

	"github.com/onnwee/happye-bot/apperrors"
	"github.com/onnwee/happye-bot/oauth"
	"github.com/onnwee/happye-bot/telemetry"
)

// Service is the token store key for Spotify.
const Service = "spotify"

// DefaultScopes allows reading and modifying playback.
const DefaultScopes = "user-modify-playback-state user-read-playback-state"

const (
	AccountsBaseURL = "https://accounts.spotify.com"
	APIBaseURL      = "https://api.spotify.com"
)

// ErrNoActiveDevice is returned by Queue when nothing is playing.
var ErrNoActiveDevice = errors.New("spotify: no active device")

// Endpoint returns the OAuth2 endpoints under base (AccountsBaseURL in
// production). Spotify expects client credentials as HTTP basic auth.
func Endpoint(base string) oauth2.Endpoint {
	base = strings.TrimRight(base, "/")
	return oauth2.Endpoint{
		AuthURL:   base + "/authorize",
		TokenURL:  base + "/api/token",
		AuthStyle: oauth2.AuthStyleInHeader,
	}
}

// NewProvider describes the Spotify account the bot queues songs on.
func NewProvider(clientID, clientSecret, redirectURI, scopes string, endpoint oauth2.Endpoint) *oauth.Provider {
	if strings.TrimSpace(scopes) == "" {
		scopes = DefaultScopes
	}
	return &oauth.Provider{
		Service: Service,
		Config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURI,
			Scopes:       strings.Fields(strings.ReplaceAll(scopes, ",", " ")),
			Endpoint:     endpoint,
		},
	}
}

// TokenSource yields the current bearer token. *oauth.Broker satisfies it.
type TokenSource interface {
	Current(ctx context.Context) oauth.Token
}

// Track is a search hit.
type Track struct {
	URI     string
	Name    string
	Artists []string
}

// String is the display form used in chat replies: "Name - First Artist".
func (t Track) String() string {
	if len(t.Artists) == 0 {
		return t.Name
	}
	return t.Name + " - " + t.Artists[0]
}

// Client talks to the Spotify Web API.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	Tokens     TokenSource
}

func (c *Client) http() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

func (c *Client) url(path string) string {
	base := c.BaseURL
	if base == "" {
		base = APIBaseURL
	}
	return strings.TrimRight(base, "/") + path
}

func (c *Client) do(ctx context.Context, method, rawURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, nil)
	if err != nil {
		return nil, err
	}
	tok := c.Tokens.Current(ctx)
	req.Header.Set("Authorization", "Bearer "+tok.AccessToken)
	resp, err := c.http().Do(req)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrNetwork, nil, err)
	}
	return resp, nil
}

func closeBody(resp *http.Response) {
	if err := resp.Body.Close(); err != nil {
		slog.Warn("failed to close response body", slog.Any("err", err))
	}
}

func statusError(op string, resp *http.Response) error {
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return apperrors.Wrap(apperrors.ErrNetwork, nil, fmt.Errorf("spotify %s failed: %s: %s", op, resp.Status, strings.TrimSpace(string(b))))
}

// Search returns up to limit tracks matching query, best match first.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]Track, error) {
	if strings.TrimSpace(query) == "" {
		return nil, apperrors.Wrap(apperrors.ErrValidation, nil, errors.New("search query empty"))
	}
	if limit <= 0 {
		limit = 1
	}
	ctx, span := telemetry.StartSpan(ctx, "spotify", "spotify.search")
	defer span.End()

	q := url.Values{}
	q.Set("q", query)
	q.Set("type", "track")
	q.Set("limit", fmt.Sprintf("%d", limit))
	resp, err := c.do(ctx, http.MethodGet, c.url("/v1/search")+"?"+q.Encode())
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	defer closeBody(resp)
	telemetry.SetSpanHTTPStatus(span, resp.StatusCode)
	if resp.StatusCode != http.StatusOK {
		err := statusError("search", resp)
		telemetry.RecordError(span, err)
		return nil, err
	}

	var body struct {
		Tracks struct {
			Items []struct {
				URI     string `json:"uri"`
				Name    string `json:"name"`
				Artists []struct {
					Name string `json:"name"`
				} `json:"artists"`
			} `json:"items"`
		} `json:"tracks"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrProtocol, nil, fmt.Errorf("decode search response: %w", err))
	}
	out := make([]Track, 0, len(body.Tracks.Items))
	for _, it := range body.Tracks.Items {
		tr := Track{URI: it.URI, Name: it.Name}
		for _, a := range it.Artists {
			tr.Artists = append(tr.Artists, a.Name)
		}
		out = append(out, tr)
	}
	telemetry.SetSpanSuccess(span)
	return out, nil
}

// Queue adds uri to the end of the active player's queue.
func (c *Client) Queue(ctx context.Context, uri string) error {
	if uri == "" {
		return apperrors.Wrap(apperrors.ErrValidation, nil, errors.New("track uri empty"))
	}
	ctx, span := telemetry.StartSpan(ctx, "spotify", "spotify.queue")
	defer span.End()

	resp, err := c.do(ctx, http.MethodPost, c.url("/v1/me/player/queue")+"?"+url.Values{"uri": {uri}}.Encode())
	if err != nil {
		telemetry.RecordError(span, err)
		return err
	}
	defer closeBody(resp)
	telemetry.SetSpanHTTPStatus(span, resp.StatusCode)
	switch {
	case resp.StatusCode == http.StatusNotFound:
		err := apperrors.Wrap(apperrors.ErrNetwork, ErrNoActiveDevice, statusError("queue", resp))
		telemetry.RecordError(span, err)
		return err
	case resp.StatusCode >= 300:
		err := statusError("queue", resp)
		telemetry.RecordError(span, err)
		return err
	}
	telemetry.SetSpanSuccess(span)
	return nil
}
