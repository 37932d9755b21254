// Command authurl prints the consent URLs for the bot's OAuth identities so
// they can be opened by hand on a machine other than the one running the bot.
// The callback listener accepts the resulting redirect without a state.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/pflag"

	"github.com/onnwee/happye-bot/config"
	"github.com/onnwee/happye-bot/oauth"
	"github.com/onnwee/happye-bot/spotify"
	"github.com/onnwee/happye-bot/twitchapi"
)

func main() {
	envFile := pflag.String("env-file", ".env", "dotenv file loaded before the environment is read")
	pflag.Parse()

	if err := config.LoadEnvFile(*envFile); err != nil {
		slog.Warn("env file not loaded", slog.Any("err", err))
	}
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}
	for _, p := range providers(cfg) {
		fmt.Printf("%s: %s\n", p.Service, p.AuthCodeURL(""))
	}
}

func providers(cfg *config.Config) []*oauth.Provider {
	var out []*oauth.Provider
	if cfg.TwitchClientID != "" {
		out = append(out, twitchapi.NewProvider(cfg.TwitchClientID, cfg.TwitchClientSecret, cfg.TwitchRedirectURI, cfg.TwitchScopes, twitchapi.Endpoint(twitchapi.IDBaseURL)))
	}
	if cfg.SpotifyEnabled() {
		out = append(out, spotify.NewProvider(cfg.SpotifyClientID, cfg.SpotifySecret, cfg.SpotifyRedirectURI, cfg.SpotifyScopes, spotify.Endpoint(spotify.AccountsBaseURL)))
	}
	return out
}
