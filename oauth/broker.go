package oauth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/oauth2"

	"github.com/onnwee/happye-bot/apperrors"
	"github.com/onnwee/happye-bot/telemetry"
)

var (
	// ErrNoToken is returned by a Store when nothing is persisted for a service.
	ErrNoToken = errors.New("oauth: no persisted token")
	// ErrBootstrapAborted is the outcome of Acquire when shutdown fires while waiting for a code.
	ErrBootstrapAborted = errors.New("oauth: bootstrap aborted")
	// ErrTokenExchange wraps a failed authorization-code exchange.
	ErrTokenExchange = errors.New("oauth: token exchange failed")
	// ErrInvalidTokenResponse wraps a provider response that parsed but is unusable.
	ErrInvalidTokenResponse = errors.New("oauth: invalid token response")
	// ErrRefresh wraps a failed refresh-grant request.
	ErrRefresh = errors.New("oauth: token refresh failed")
	// ErrNoRefreshToken is returned when an expired token cannot be renewed.
	ErrNoRefreshToken = errors.New("oauth: token has no refresh_token")
)

// DefaultPollInterval is how often Acquire checks the pending-code slot.
const DefaultPollInterval = time.Second

// Store persists tokens keyed by service name.
type Store interface {
	// Load returns ErrNoToken when nothing is stored for service.
	Load(ctx context.Context, service string) (Token, error)
	Save(ctx context.Context, service string, tok Token) error
}

// Credentials is the capability handed to the chat transport so its
// reconnect logic can read and replace the credential without knowing how it
// is persisted.
type Credentials interface {
	Load(ctx context.Context) (Token, error)
	Update(ctx context.Context, tok Token) error
}

// BootstrapState tracks Acquire progress for one service.
type BootstrapState int32

const (
	StateIdle BootstrapState = iota
	StateWaitingForCode
	StateExchanging
	StateReady
	StateLoaded
	StateFailed
)

func (s BootstrapState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateWaitingForCode:
		return "waiting_for_code"
	case StateExchanging:
		return "exchanging"
	case StateReady:
		return "ready"
	case StateLoaded:
		return "loaded"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Usable reports whether a credential is available in this state.
func (s BootstrapState) Usable() bool { return s == StateReady || s == StateLoaded }

// Broker acquires, persists and refreshes the credential of one service.
type Broker struct {
	provider     *Provider
	store        Store
	slot         *CodeSlot
	pollInterval time.Duration
	now          func() time.Time
	httpClient   *http.Client

	mu    sync.Mutex
	token *Token

	// serializes refresh-grant requests so concurrent callers do not double-refresh
	refreshMu sync.Mutex
	state     atomic.Int32
}

// Option customizes a Broker.
type Option func(*Broker)

// WithPollInterval overrides DefaultPollInterval.
func WithPollInterval(d time.Duration) Option {
	return func(b *Broker) {
		if d > 0 {
			b.pollInterval = d
		}
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option { return func(b *Broker) { b.now = now } }

// WithHTTPClient sets the client used for token endpoint requests.
func WithHTTPClient(hc *http.Client) Option { return func(b *Broker) { b.httpClient = hc } }

// NewBroker wires a provider to its store and pending-code slot.
func NewBroker(p *Provider, store Store, slot *CodeSlot, opts ...Option) *Broker {
	b := &Broker{
		provider:     p,
		store:        store,
		slot:         slot,
		pollInterval: DefaultPollInterval,
		now:          time.Now,
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Service returns the service key the broker manages.
func (b *Broker) Service() string { return b.provider.Service }

// State returns the current bootstrap state.
func (b *Broker) State() BootstrapState { return BootstrapState(b.state.Load()) }

func (b *Broker) setState(s BootstrapState) {
	b.state.Store(int32(s))
	telemetry.SetBootstrapState(b.provider.Service, int(s))
}

// AuthCodeURL exposes the provider consent URL for the start redirect.
func (b *Broker) AuthCodeURL(state string) string { return b.provider.AuthCodeURL(state) }

// Acquire returns the service credential. A persisted token short-circuits the
// OAuth flow without any network call and without checking freshness; expiry
// is handled lazily by Refresh. Otherwise Acquire blocks until the callback
// listener delivers a code or ctx is cancelled (ErrBootstrapAborted).
func (b *Broker) Acquire(ctx context.Context) (Token, error) {
	svc := b.provider.Service
	log := slog.Default().With(slog.String("component", "oauth"), slog.String("service", svc))

	tok, err := b.store.Load(ctx, svc)
	switch {
	case err == nil:
		if verr := tok.Validate(); verr != nil {
			b.setState(StateFailed)
			return Token{}, apperrors.Wrap(apperrors.ErrValidation, nil, verr)
		}
		b.set(tok)
		b.setState(StateLoaded)
		log.Info("loaded persisted token")
		return tok, nil
	case !errors.Is(err, ErrNoToken):
		b.setState(StateFailed)
		return Token{}, err
	}

	b.setState(StateWaitingForCode)
	log.Info("waiting for authorization code", slog.Duration("poll_interval", b.pollInterval))
	code, err := b.waitForCode(ctx)
	if err != nil {
		log.Info("bootstrap aborted while waiting for code")
		return Token{}, err
	}

	b.setState(StateExchanging)
	tok, err = b.exchange(ctx, code)
	if err != nil {
		b.setState(StateFailed)
		telemetry.TokenExchange(svc, "error")
		return Token{}, err
	}
	telemetry.TokenExchange(svc, "ok")

	if err := b.store.Save(ctx, svc, tok); err != nil {
		b.setState(StateFailed)
		return Token{}, err
	}
	b.set(tok)
	b.setState(StateReady)
	log.Info("authorization complete", slog.String("scope", tok.Scope))
	return tok, nil
}

func (b *Broker) waitForCode(ctx context.Context) (string, error) {
	ticker := time.NewTicker(b.pollInterval)
	defer ticker.Stop()
	for {
		if ctx.Err() != nil {
			return "", ErrBootstrapAborted
		}
		if code, ok := b.slot.Take(); ok {
			return code, nil
		}
		select {
		case <-ctx.Done():
			return "", ErrBootstrapAborted
		case <-ticker.C:
		}
	}
}

func (b *Broker) exchange(ctx context.Context, code string) (Token, error) {
	// an exchange that started is allowed to finish even if shutdown fires
	callCtx := b.clientContext(context.WithoutCancel(ctx))
	callCtx, span := telemetry.StartSpan(callCtx, "oauth", "oauth.exchange", telemetry.ServiceAttr(b.provider.Service))
	defer span.End()

	otok, err := b.provider.Config.Exchange(callCtx, code)
	if err != nil {
		telemetry.RecordError(span, err)
		var re *oauth2.RetrieveError
		if errors.As(err, &re) && re.Response != nil && re.Response.StatusCode < 500 {
			return Token{}, apperrors.Wrap(apperrors.ErrValidation, ErrTokenExchange, err)
		}
		return Token{}, apperrors.Wrap(apperrors.ErrNetwork, ErrTokenExchange, err)
	}
	tok := fromOAuth2(otok, b.now())
	if err := tok.Validate(); err != nil {
		telemetry.RecordError(span, err)
		return Token{}, apperrors.Wrap(apperrors.ErrValidation, ErrInvalidTokenResponse, err)
	}
	telemetry.SetSpanSuccess(span)
	return tok, nil
}

func (b *Broker) clientContext(ctx context.Context) context.Context {
	if b.httpClient == nil {
		return ctx
	}
	return context.WithValue(ctx, oauth2.HTTPClient, b.httpClient)
}

func (b *Broker) set(tok Token) {
	b.mu.Lock()
	b.token = &tok
	b.mu.Unlock()
}

func (b *Broker) current() (Token, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.token == nil {
		return Token{}, false
	}
	return *b.token, true
}

// Load implements Credentials.
func (b *Broker) Load(_ context.Context) (Token, error) {
	tok, ok := b.current()
	if !ok {
		return Token{}, ErrNoToken
	}
	return tok, nil
}

// Update implements Credentials: replace in memory, then persist.
func (b *Broker) Update(ctx context.Context, tok Token) error {
	if err := tok.Validate(); err != nil {
		return apperrors.Wrap(apperrors.ErrValidation, nil, err)
	}
	b.set(tok)
	return b.store.Save(ctx, b.provider.Service, tok)
}
