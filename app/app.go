// Package app is the composition root: it wires the token brokers, the
// callback listener and the chat loop together and runs them as one errgroup
// under a single shutdown signal.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/onnwee/happye-bot/chat"
	"github.com/onnwee/happye-bot/commands"
	"github.com/onnwee/happye-bot/config"
	"github.com/onnwee/happye-bot/oauth"
	"github.com/onnwee/happye-bot/server"
	"github.com/onnwee/happye-bot/spotify"
	"github.com/onnwee/happye-bot/twitchapi"
)

// Transport is the chat connection the router reads from and replies through.
type Transport interface {
	chat.Sender
	Run(ctx context.Context) error
	Messages() <-chan chat.Message
}

// Deps are the collaborators Run does not build from Config.
type Deps struct {
	Store oauth.Store

	// Base URL overrides; empty means production.
	TwitchIDBaseURL        string
	SpotifyAccountsBaseURL string
	SpotifyAPIBaseURL      string
	HTTPClient             *http.Client

	// Listener, when set, is served instead of binding cfg.HTTPAddr.
	Listener net.Listener
	// NewTransport defaults to chat.NewTwitchTransport.
	NewTransport func(chat.TransportConfig, chat.Credentials) Transport

	// Coordinator, when set, is used in place of a fresh one so callers can
	// observe the lifecycle.
	Coordinator func(parent context.Context, stopHTTP func(context.Context) error) *Coordinator
}

func (d *Deps) defaults() {
	if d.TwitchIDBaseURL == "" {
		d.TwitchIDBaseURL = twitchapi.IDBaseURL
	}
	if d.SpotifyAccountsBaseURL == "" {
		d.SpotifyAccountsBaseURL = spotify.AccountsBaseURL
	}
	if d.SpotifyAPIBaseURL == "" {
		d.SpotifyAPIBaseURL = spotify.APIBaseURL
	}
	if d.NewTransport == nil {
		d.NewTransport = func(cfg chat.TransportConfig, creds chat.Credentials) Transport {
			return chat.NewTwitchTransport(cfg, creds)
		}
	}
	if d.Coordinator == nil {
		d.Coordinator = NewCoordinator
	}
}

// Run starts the HTTP listener, the bootstrap and chat task, and the shutdown
// watcher, and waits for all three. Cancelling ctx is the interrupt. The first
// task error aborts the others and is returned.
func Run(ctx context.Context, cfg *config.Config, deps Deps) error {
	deps.defaults()

	twitchSlot := &oauth.CodeSlot{}
	twitchBroker := oauth.NewBroker(
		twitchapi.NewProvider(cfg.TwitchClientID, cfg.TwitchClientSecret, cfg.TwitchRedirectURI, cfg.TwitchScopes, twitchapi.Endpoint(deps.TwitchIDBaseURL)),
		deps.Store, twitchSlot,
		oauth.WithPollInterval(cfg.BootstrapPollInterval),
		oauth.WithHTTPClient(deps.HTTPClient),
	)
	brokers := []*oauth.Broker{twitchBroker}
	services := []server.Service{{
		Name:         twitchapi.Service,
		CallbackPath: "/auth",
		Slot:         twitchSlot,
		AuthCodeURL:  twitchBroker.AuthCodeURL,
	}}

	var spotifyBroker *oauth.Broker
	if cfg.SpotifyEnabled() {
		spotifySlot := &oauth.CodeSlot{}
		spotifyBroker = oauth.NewBroker(
			spotify.NewProvider(cfg.SpotifyClientID, cfg.SpotifySecret, cfg.SpotifyRedirectURI, cfg.SpotifyScopes, spotify.Endpoint(deps.SpotifyAccountsBaseURL)),
			deps.Store, spotifySlot,
			oauth.WithPollInterval(cfg.BootstrapPollInterval),
			oauth.WithHTTPClient(deps.HTTPClient),
		)
		brokers = append(brokers, spotifyBroker)
		services = append(services, server.Service{
			Name:         spotify.Service,
			CallbackPath: "/spotify-auth",
			Slot:         spotifySlot,
			AuthCodeURL:  spotifyBroker.AuthCodeURL,
		})
	}

	g, gctx := errgroup.WithContext(ctx)

	rateLimit := server.DefaultRateLimit
	rateLimit.TrustForwardedFor = cfg.TrustProxy
	handler := server.NewMux(gctx, server.Options{
		Services:  services,
		Readiness: readinessChecks(brokers),
		RateLimit: rateLimit,
	})
	srv := server.New(cfg.HTTPAddr, handler)
	coord := deps.Coordinator(gctx, srv.Shutdown)
	defer coord.finish()

	g.Go(func() error {
		if deps.Listener != nil {
			return srv.Serve(deps.Listener)
		}
		return srv.Start()
	})

	b := &bot{cfg: cfg, deps: deps, twitch: twitchBroker, spotify: spotifyBroker}
	g.Go(func() error { return b.run(coord.Context()) })

	g.Go(func() error {
		<-gctx.Done()
		if err := coord.Begin(gctx); err != nil {
			slog.Warn("http shutdown incomplete", slog.String("component", "app"), slog.Any("err", err))
		}
		return nil
	})

	err := g.Wait()
	if err != nil {
		slog.Error("run failed", slog.String("component", "app"), slog.Any("err", err))
	}
	return err
}

func readinessChecks(brokers []*oauth.Broker) []server.ReadinessCheck {
	checks := make([]server.ReadinessCheck, 0, len(brokers))
	for _, br := range brokers {
		checks = append(checks, server.ReadinessCheck{
			Name: br.Service() + "_token",
			Check: func(context.Context) error {
				if st := br.State(); !st.Usable() {
					return fmt.Errorf("%s token %s", br.Service(), st)
				}
				return nil
			},
		})
	}
	return checks
}

// bot is the bootstrap and chat task.
type bot struct {
	cfg     *config.Config
	deps    Deps
	twitch  *oauth.Broker
	spotify *oauth.Broker
}

func (b *bot) run(ctx context.Context) error {
	if _, err := b.acquire(ctx, b.twitch); err != nil {
		return cleanAbort(err)
	}
	b.checkTwitchIdentity(ctx)

	cmds := commands.Defaults()
	actions := map[string]commands.Action{}
	if b.spotify != nil {
		if _, err := b.acquire(ctx, b.spotify); err != nil {
			return cleanAbort(err)
		}
		cmds = append(cmds, commands.SongRequest())
		actions[commands.SpotifyQueueAction] = &spotify.QueueAction{Client: &spotify.Client{
			BaseURL:    b.deps.SpotifyAPIBaseURL,
			HTTPClient: b.deps.HTTPClient,
			Tokens:     b.spotify,
		}}
	}
	if b.cfg.CommandsFile != "" {
		extra, err := commands.LoadFile(b.cfg.CommandsFile)
		if err != nil {
			return err
		}
		cmds = mergeCommands(cmds, extra)
	}
	registry, err := commands.NewRegistry(cmds)
	if err != nil {
		return fmt.Errorf("command table: %w", err)
	}
	slog.Info("commands registered", slog.String("component", "app"), slog.Any("commands", registry.Names()))

	transport := b.deps.NewTransport(chat.TransportConfig{
		Channel:   b.cfg.TwitchChannel,
		Username:  b.cfg.TwitchBotUsername,
		SendRate:  rate.Limit(float64(b.cfg.ChatSendRate) / 30.0),
		SendBurst: 1,
	}, b.twitch)
	router := chat.NewRouter(registry, actions)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return transport.Run(gctx) })
	g.Go(func() error { return router.Run(gctx, transport.Messages(), transport) })
	return g.Wait()
}

// acquire logs where to authorize when nothing is persisted, then blocks in
// Broker.Acquire.
func (b *bot) acquire(ctx context.Context, br *oauth.Broker) (oauth.Token, error) {
	if _, err := b.deps.Store.Load(ctx, br.Service()); errors.Is(err, oauth.ErrNoToken) {
		slog.Info("authorization required; open this URL in a browser",
			slog.String("component", "app"),
			slog.String("service", br.Service()),
			slog.String("url", fmt.Sprintf("http://%s/auth/%s/start", b.cfg.HTTPAddr, br.Service())))
	}
	tok, err := br.Acquire(ctx)
	if err != nil {
		return oauth.Token{}, fmt.Errorf("%s bootstrap: %w", br.Service(), err)
	}
	return tok, nil
}

// checkTwitchIdentity validates the chat token once at startup. It records the
// expiry when the token carries none and warns about a wrong account or a
// missing chat:edit scope. Failures are logged only; the chat login is the
// authoritative check.
func (b *bot) checkTwitchIdentity(ctx context.Context) {
	log := slog.Default().With(slog.String("component", "app"), slog.String("service", twitchapi.Service))
	v := &twitchapi.Validator{BaseURL: b.deps.TwitchIDBaseURL, HTTPClient: b.deps.HTTPClient}

	tok := b.twitch.Current(ctx)
	res, err := v.Validate(ctx, tok.AccessToken)
	if errors.Is(err, twitchapi.ErrInvalidToken) {
		log.Warn("twitch token rejected; forcing refresh")
		if tok, err = b.twitch.ForceRefresh(ctx); err == nil {
			res, err = v.Validate(ctx, tok.AccessToken)
		}
	}
	if err != nil {
		log.Warn("twitch token validation failed", slog.Any("err", err))
		return
	}
	log.Info("twitch identity", slog.String("login", res.Login), slog.Any("scopes", res.Scopes))
	if !strings.EqualFold(res.Login, b.cfg.TwitchBotUsername) {
		log.Warn("token belongs to a different account than TWITCH_BOT_USERNAME",
			slog.String("login", res.Login), slog.String("configured", b.cfg.TwitchBotUsername))
	}
	if !res.HasScope("chat:edit") {
		log.Warn("token lacks chat:edit; replies will be rejected")
	}
	if _, ok := tok.Deadline(); !ok && res.ExpiresIn > 0 {
		tok.CreatedAt = time.Now()
		tok.ExpiresIn = res.ExpiresIn
		if err := b.twitch.Update(ctx, tok); err != nil {
			log.Warn("failed to record token expiry", slog.Any("err", err))
		}
	}
}

// cleanAbort turns a shutdown during bootstrap into a clean exit.
func cleanAbort(err error) error {
	if errors.Is(err, oauth.ErrBootstrapAborted) {
		slog.Info("bootstrap aborted by shutdown", slog.String("component", "app"))
		return nil
	}
	return err
}

// mergeCommands overlays file commands on the built-in table; a file entry
// replaces a built-in with the same name.
func mergeCommands(base, overlay []commands.Command) []commands.Command {
	idx := make(map[string]int, len(base))
	out := append([]commands.Command(nil), base...)
	for i, c := range out {
		idx[strings.ToLower(c.Name)] = i
	}
	for _, c := range overlay {
		if i, ok := idx[strings.ToLower(c.Name)]; ok {
			out[i] = c
			continue
		}
		idx[strings.ToLower(c.Name)] = len(out)
		out = append(out, c)
	}
	return out
}
