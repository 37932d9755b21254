// Command happye-bot is a Twitch chat bot. It:
//   - Loads configuration (.env, environment, flags) and initializes structured logging.
//   - Opens the token store (file by default, or Postgres/Redis) and runs migrations.
//   - Serves the OAuth callback listener with /healthz, /readyz and /metrics.
//   - Bootstraps the Twitch (and optionally Spotify) credentials, then answers
//     chat commands until SIGINT/SIGTERM.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/onnwee/happye-bot/app"
	"github.com/onnwee/happye-bot/config"
	"github.com/onnwee/happye-bot/telemetry"
	"github.com/onnwee/happye-bot/tokenstore"
)

var version = "dev"

func main() {
	envFile := pflag.String("env-file", ".env", "dotenv file loaded before the environment is read")
	addr := pflag.String("addr", "", "callback listener address (overrides HTTP_ADDR)")
	channel := pflag.String("channel", "", "Twitch channel to join (overrides TWITCH_CHANNEL)")
	tokenDir := pflag.String("token-dir", "", "directory for token files (overrides TOKEN_DIR)")
	tokenStore := pflag.String("token-store", "", "token store backend: file, postgres or redis (overrides TOKEN_STORE)")
	pflag.Parse()

	// Local dev convenience only; production relies on real env
	if err := config.LoadEnvFile(*envFile); err != nil {
		slog.Warn("env file not loaded", slog.Any("err", err))
	}

	setupLogging()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}
	if *addr != "" {
		cfg.HTTPAddr = *addr
	}
	if *channel != "" {
		cfg.TwitchChannel = strings.ToLower(strings.TrimPrefix(*channel, "#"))
	}
	if *tokenDir != "" {
		cfg.TokenDir = *tokenDir
	}
	if *tokenStore != "" {
		cfg.TokenStore = strings.ToLower(*tokenStore)
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		slog.Error("config invalid", slog.Any("err", err))
		os.Exit(1)
	}

	telemetry.Init()

	// Optional; requires OTEL_EXPORTER_OTLP_ENDPOINT
	shutdownTracing, err := telemetry.InitTracing("happye-bot", version)
	if err != nil {
		slog.Error("tracing initialization failed", slog.Any("err", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	store, err := tokenstore.Open(ctx, tokenstore.Options{
		Backend:       cfg.TokenStore,
		Dir:           cfg.TokenDir,
		DSN:           cfg.DBDsn,
		RedisAddr:     cfg.RedisAddr,
		RedisPassword: cfg.RedisPassword,
		RedisDB:       cfg.RedisDB,
		EncryptionKey: cfg.TokenEncryptionKey,
	})
	if err != nil {
		slog.Error("failed to open token store", slog.String("backend", cfg.TokenStore), slog.Any("err", err))
		stop()
		shutdownTracing()
		os.Exit(1)
	}

	slog.Info("starting",
		slog.String("version", version),
		slog.String("channel", cfg.TwitchChannel),
		slog.String("addr", cfg.HTTPAddr),
		slog.String("token_store", cfg.TokenStore),
		slog.Bool("spotify", cfg.SpotifyEnabled()))

	runErr := app.Run(ctx, cfg, app.Deps{Store: store})

	stop()
	if err := store.Close(); err != nil {
		slog.Error("failed to close token store", slog.Any("err", err))
	}
	shutdownTracing()
	if runErr != nil {
		os.Exit(1)
	}
	slog.Info("stopped")
}

// setupLogging configures the default logger from LOG_LEVEL and LOG_FORMAT.
// Defaults: level=info, format=text.
func setupLogging() {
	lvl := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	case "info", "":
		// keep default
	default:
		// unknown level -> keep info but note once using temporary logger
		tmp := slog.New(slog.NewTextHandler(os.Stdout, nil))
		tmp.Warn("unknown LOG_LEVEL, using info", slog.String("value", os.Getenv("LOG_LEVEL")))
	}
	format := strings.ToLower(os.Getenv("LOG_FORMAT")) // text | json
	var handler slog.Handler
	switch format {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	default:
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	}
	slog.SetDefault(slog.New(handler))
	slog.Info("logger initialized", slog.String("level", lvl.String()), slog.String("format", map[bool]string{true: "json", false: "text"}[format == "json"]))
}
