package oauth

import (
	"context"
	"log/slog"

	"golang.org/x/oauth2"

	"github.com/onnwee/happye-bot/apperrors"
	"github.com/onnwee/happye-bot/telemetry"
)

// Refresh renews the credential when created_at + expires_in has passed and
// is a no-op otherwise. It runs opportunistically before each use of the
// credential, never on a timer.
func (b *Broker) Refresh(ctx context.Context) (Token, error) {
	return b.refresh(ctx, false)
}

// ForceRefresh renews the credential regardless of its recorded expiry, for
// when the provider has already rejected it.
func (b *Broker) ForceRefresh(ctx context.Context) (Token, error) {
	return b.refresh(ctx, true)
}

// Current returns a usable credential with soft-fail semantics: when refresh
// fails the error is logged and the stale token is returned, so the caller's
// request may itself fail upstream.
func (b *Broker) Current(ctx context.Context) Token {
	tok, err := b.Refresh(ctx)
	if err == nil {
		return tok
	}
	stale, _ := b.current()
	telemetry.LoggerWithCorr(ctx).Warn("token refresh failed; using stale token",
		slog.String("component", "oauth"),
		slog.String("service", b.provider.Service),
		slog.String("kind", apperrors.Kind(err)),
		slog.Any("err", err))
	return stale
}

func (b *Broker) refresh(ctx context.Context, force bool) (Token, error) {
	b.refreshMu.Lock()
	defer b.refreshMu.Unlock()

	cur, ok := b.current()
	if !ok {
		return Token{}, ErrNoToken
	}
	if !force && !cur.Expired(b.now()) {
		return cur, nil
	}
	if cur.RefreshToken == "" {
		return cur, apperrors.Wrap(apperrors.ErrValidation, ErrRefresh, ErrNoRefreshToken)
	}

	svc := b.provider.Service
	callCtx := b.clientContext(context.WithoutCancel(ctx))
	callCtx, span := telemetry.StartSpan(callCtx, "oauth", "oauth.refresh", telemetry.ServiceAttr(svc))
	defer span.End()

	// An empty access token makes the source treat the credential as invalid
	// and go straight to the refresh grant.
	otok, err := b.provider.Config.TokenSource(callCtx, &oauth2.Token{RefreshToken: cur.RefreshToken}).Token()
	if err != nil {
		telemetry.RecordError(span, err)
		telemetry.TokenRefresh(svc, "error")
		return cur, apperrors.Wrap(apperrors.ErrNetwork, ErrRefresh, err)
	}
	tok := fromOAuth2(otok, b.now())
	if tok.RefreshToken == "" {
		tok.RefreshToken = cur.RefreshToken
	}
	if tok.Scope == "" {
		tok.Scope = cur.Scope
	}
	if err := tok.Validate(); err != nil {
		telemetry.RecordError(span, err)
		telemetry.TokenRefresh(svc, "error")
		return cur, apperrors.Wrap(apperrors.ErrValidation, ErrInvalidTokenResponse, err)
	}

	b.set(tok)
	telemetry.TokenRefresh(svc, "ok")
	telemetry.SetSpanSuccess(span)
	if err := b.store.Save(ctx, svc, tok); err != nil {
		// the renewed token is still good for this process
		slog.Warn("token persist failed", slog.String("service", svc), slog.Any("err", err))
	} else {
		slog.Info("token refreshed", slog.String("component", "oauth"), slog.String("service", svc))
	}
	return tok, nil
}
