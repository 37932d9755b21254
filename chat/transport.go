package chat

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	twitch "github.com/gempir/go-twitch-irc/v4"
	"golang.org/x/time/rate"

	"github.com/onnwee/happye-bot/apperrors"
	"github.com/onnwee/happye-bot/oauth"
	"github.com/onnwee/happye-bot/telemetry"
)

var (
	// ErrNotConnected is returned by Say while no IRC session is up.
	ErrNotConnected = errors.New("chat: not connected")
	// ErrConnect wraps the last error of a failed initial connection.
	ErrConnect = errors.New("chat: could not establish connection")
)

// Twitch limits: 20 messages per 30 seconds for non-moderators, 500 characters per message.
const (
	DefaultSendRate  = rate.Limit(20.0 / 30.0)
	DefaultSendBurst = 1
	MaxMessageLength = 500
)

// Credentials is what the transport needs from the chat identity broker.
// *oauth.Broker satisfies it.
type Credentials interface {
	oauth.Credentials
	Current(ctx context.Context) oauth.Token
	ForceRefresh(ctx context.Context) (oauth.Token, error)
}

// ircClient is the subset of *twitch.Client the transport drives.
type ircClient interface {
	OnConnect(func())
	OnPrivateMessage(func(twitch.PrivateMessage))
	Join(channels ...string)
	Say(channel, text string)
	SetIRCToken(token string)
	Connect() error
	Disconnect() error
}

// TransportConfig configures a TwitchTransport.
type TransportConfig struct {
	Channel  string
	Username string
	// SendRate and SendBurst feed the outbound limiter; zero means the Twitch defaults.
	SendRate  rate.Limit
	SendBurst int
	// Buffer is the inbound queue size; messages beyond it are dropped.
	Buffer int
	// InitialAttempts bounds retries before the first successful connection.
	InitialAttempts int
	MinBackoff      time.Duration
	MaxBackoff      time.Duration
}

func (c *TransportConfig) defaults() {
	if c.SendRate == 0 {
		c.SendRate = DefaultSendRate
	}
	if c.SendBurst <= 0 {
		c.SendBurst = DefaultSendBurst
	}
	if c.Buffer <= 0 {
		c.Buffer = 64
	}
	if c.InitialAttempts <= 0 {
		c.InitialAttempts = 5
	}
	if c.MinBackoff <= 0 {
		c.MinBackoff = 2 * time.Second
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 2 * time.Minute
	}
}

// TwitchTransport owns the IRC session for one channel.
type TwitchTransport struct {
	cfg     TransportConfig
	creds   Credentials
	client  ircClient
	limiter *rate.Limiter
	msgs    chan Message

	connected atomic.Bool
	// established is set by each successful connect and consumed by Run.
	established atomic.Bool
	everUp      atomic.Bool
}

// NewTwitchTransport builds a transport over a go-twitch-irc client. The token
// is set from creds before every connection attempt.
func NewTwitchTransport(cfg TransportConfig, creds Credentials) *TwitchTransport {
	return newTransport(cfg, creds, twitch.NewClient(cfg.Username, ""))
}

func newTransport(cfg TransportConfig, creds Credentials, client ircClient) *TwitchTransport {
	cfg.defaults()
	cfg.Channel = strings.ToLower(strings.TrimPrefix(cfg.Channel, "#"))
	t := &TwitchTransport{
		cfg:     cfg,
		creds:   creds,
		client:  client,
		limiter: rate.NewLimiter(cfg.SendRate, cfg.SendBurst),
		msgs:    make(chan Message, cfg.Buffer),
	}
	client.OnConnect(t.onConnect)
	client.OnPrivateMessage(t.onPrivateMessage)
	client.Join(cfg.Channel)
	return t
}

// Messages is the inbound stream consumed by Router.Run.
func (t *TwitchTransport) Messages() <-chan Message { return t.msgs }

// Connected reports whether the IRC session is currently up.
func (t *TwitchTransport) Connected() bool { return t.connected.Load() }

// Channel returns the normalized channel name.
func (t *TwitchTransport) Channel() string { return t.cfg.Channel }

func (t *TwitchTransport) onConnect() {
	t.connected.Store(true)
	t.established.Store(true)
	t.everUp.Store(true)
	telemetry.SetChatConnected(true)
	slog.Info("chat connected", slog.String("component", "chat"), slog.String("channel", t.cfg.Channel))
}

func (t *TwitchTransport) onPrivateMessage(pm twitch.PrivateMessage) {
	if strings.EqualFold(pm.User.Name, t.cfg.Username) {
		return
	}
	user := pm.User.DisplayName
	if user == "" {
		user = pm.User.Name
	}
	m := Message{ID: pm.ID, Channel: pm.Channel, User: user, Text: pm.Message}
	select {
	case t.msgs <- m:
		telemetry.MessageReceived()
	default:
		telemetry.MessageDropped()
		slog.Warn("chat inbound queue full; message dropped", slog.String("component", "chat"), slog.String("user", user))
	}
}

// Say sends text to channel once the rate limiter allows it. Text longer than
// Twitch accepts is truncated.
func (t *TwitchTransport) Say(ctx context.Context, channel, text string) error {
	if !t.connected.Load() {
		return apperrors.Wrap(apperrors.ErrProtocol, nil, ErrNotConnected)
	}
	if err := t.limiter.Wait(ctx); err != nil {
		return apperrors.Wrap(apperrors.ErrProtocol, nil, err)
	}
	if r := []rune(text); len(r) > MaxMessageLength {
		text = string(r[:MaxMessageLength])
	}
	t.client.Say(channel, text)
	return nil
}

// Run keeps the session connected until ctx is done, then disconnects and
// returns nil. Failing to establish the first connection within
// InitialAttempts is fatal; after that, drops are retried indefinitely.
func (t *TwitchTransport) Run(ctx context.Context) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = t.cfg.MinBackoff
	bo.MaxInterval = t.cfg.MaxBackoff
	bo.MaxElapsedTime = 0

	log := slog.Default().With(slog.String("component", "chat"), slog.String("channel", t.cfg.Channel))
	failures := 0
	for {
		if ctx.Err() != nil {
			return nil
		}
		tok := t.creds.Current(ctx)
		t.client.SetIRCToken("oauth:" + tok.AccessToken)

		err := t.connectOnce(ctx)
		if ctx.Err() != nil {
			log.Info("chat disconnected for shutdown")
			return nil
		}
		if t.established.Swap(false) {
			// the session was up; a later drop starts a fresh backoff sequence
			failures = 0
			bo.Reset()
		}
		if errors.Is(err, twitch.ErrLoginAuthenticationFailed) {
			log.Warn("chat login rejected; forcing token refresh")
			if _, rerr := t.creds.ForceRefresh(ctx); rerr != nil {
				log.Warn("forced token refresh failed", slog.String("kind", apperrors.Kind(rerr)), slog.Any("err", rerr))
			}
		}

		failures++
		if !t.everUp.Load() && failures >= t.cfg.InitialAttempts {
			return apperrors.Wrap(apperrors.ErrProtocol, ErrConnect, err)
		}
		wait := bo.NextBackOff()
		log.Warn("chat connection lost; reconnecting", slog.Any("err", err), slog.Duration("retry_in", wait), slog.Int("attempt", failures))
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(wait):
		}
	}
}

func (t *TwitchTransport) connectOnce(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		select {
		case <-done:
			return
		case <-ctx.Done():
		}
		// Disconnect fails until the connection is open; keep trying until Connect returns.
		for t.client.Disconnect() != nil {
			select {
			case <-done:
				return
			case <-time.After(100 * time.Millisecond):
			}
		}
	}()

	err := t.client.Connect()
	close(done)
	if t.connected.Swap(false) {
		telemetry.SetChatConnected(false)
	}
	if errors.Is(err, twitch.ErrClientDisconnected) {
		return nil
	}
	return err
}
