package twitchapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/onnwee/happye-bot/apperrors"
)

// ErrInvalidToken is returned when Twitch rejects the token outright.
var ErrInvalidToken = errors.New("twitch: token is invalid")

// Validation is the /oauth2/validate response.
type Validation struct {
	ClientID  string   `json:"client_id"`
	Login     string   `json:"login"`
	UserID    string   `json:"user_id"`
	Scopes    []string `json:"scopes"`
	ExpiresIn int64    `json:"expires_in"`
}

// HasScope reports whether the token carries scope.
func (v *Validation) HasScope(scope string) bool {
	for _, s := range v.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

// Validator calls the token validation endpoint.
type Validator struct {
	BaseURL    string
	HTTPClient *http.Client
}

func (v *Validator) http() *http.Client {
	if v.HTTPClient != nil {
		return v.HTTPClient
	}
	return http.DefaultClient
}

// Validate resolves the login behind accessToken and its remaining lifetime.
func (v *Validator) Validate(ctx context.Context, accessToken string) (*Validation, error) {
	if accessToken == "" {
		return nil, apperrors.Wrap(apperrors.ErrValidation, ErrInvalidToken, errors.New("access token empty"))
	}
	base := v.BaseURL
	if base == "" {
		base = IDBaseURL
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(base, "/")+"/oauth2/validate", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "OAuth "+accessToken)
	resp, err := v.http().Do(req)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrNetwork, nil, err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	if resp.StatusCode == http.StatusUnauthorized {
		return nil, apperrors.Wrap(apperrors.ErrValidation, ErrInvalidToken, fmt.Errorf("validate: %s", resp.Status))
	}
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, apperrors.Wrap(apperrors.ErrNetwork, nil, fmt.Errorf("twitch validate failed: %s: %s", resp.Status, string(b)))
	}
	var out Validation
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrProtocol, nil, fmt.Errorf("decode validate response: %w", err))
	}
	return &out, nil
}
