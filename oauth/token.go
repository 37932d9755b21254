// Package oauth owns the credential lifecycle for the external services the bot
// talks to (Twitch chat identity, Spotify). A Broker turns a one-time
// authorization code delivered to the local callback listener into a persisted,
// refreshable Token, and exposes it to the chat transport through the small
// Credentials capability.
//
// Bootstrap states per service:
//
//	WaitingForCode -> Exchanging -> Ready
//	                            \-> Failed
//	Loaded (persisted token found, no network call)
package oauth

import (
	"errors"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

// Token is the durable representation of one service's credential state.
type Token struct {
	AccessToken  string     `json:"access_token"`
	RefreshToken string     `json:"refresh_token"`
	TokenType    string     `json:"token_type,omitempty"`
	Scope        string     `json:"scope,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	ExpiresIn    int64      `json:"expires_in,omitempty"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
}

var errEmptyAccessToken = errors.New("access_token is empty")

// Validate is the syntactic check applied to provider responses and persisted files.
func (t Token) Validate() error {
	if strings.TrimSpace(t.AccessToken) == "" {
		return errEmptyAccessToken
	}
	return nil
}

// Deadline reports when the access token stops being usable. ok is false for
// tokens that carry no expiry at all. A lifetime with no created_at to count
// from yields the zero time, so the token is due for refresh.
func (t Token) Deadline() (deadline time.Time, ok bool) {
	if t.ExpiresIn > 0 && !t.CreatedAt.IsZero() {
		return t.CreatedAt.Add(time.Duration(t.ExpiresIn) * time.Second), true
	}
	if t.ExpiresAt != nil {
		return *t.ExpiresAt, true
	}
	if t.ExpiresIn > 0 {
		return time.Time{}, true
	}
	return time.Time{}, false
}

// Expired compares created_at + expires_in against now. Tokens without expiry never expire.
func (t Token) Expired(now time.Time) bool {
	d, ok := t.Deadline()
	return ok && !now.Before(d)
}

// fromOAuth2 stamps a provider response with CreatedAt = now.
func fromOAuth2(tok *oauth2.Token, now time.Time) Token {
	out := Token{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.TokenType,
		Scope:        scopeOf(tok),
		CreatedAt:    now,
		ExpiresIn:    tok.ExpiresIn,
	}
	if out.ExpiresIn <= 0 && !tok.Expiry.IsZero() {
		out.ExpiresIn = int64(tok.Expiry.Sub(now).Round(time.Second) / time.Second)
	}
	if out.ExpiresIn > 0 {
		exp := now.Add(time.Duration(out.ExpiresIn) * time.Second)
		out.ExpiresAt = &exp
	}
	return out
}

// scopeOf handles both shapes seen in the wild: Spotify returns a space
// separated string, Twitch a JSON array.
func scopeOf(tok *oauth2.Token) string {
	switch v := tok.Extra("scope").(type) {
	case string:
		return v
	case []any:
		parts := make([]string, 0, len(v))
		for _, s := range v {
			if str, ok := s.(string); ok {
				parts = append(parts, str)
			}
		}
		return strings.Join(parts, " ")
	}
	return ""
}
