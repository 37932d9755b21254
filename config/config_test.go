package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

var allKeys = []string{
	"TWITCH_CLIENT_ID", "TWITCH_CLIENT_SECRET", "TWITCH_CHANNEL", "TWITCH_BOT_USERNAME",
	"TWITCH_SCOPES", "TWITCH_REDIRECT_URI", "SPOTIFY_CLIENT_ID", "SPOTIFY_SECRET",
	"SPOTIFY_SCOPES", "SPOTIFY_REDIRECT_URI", "CALLBACK_PORT", "HTTP_ADDR", "TOKEN_STORE",
	"TOKEN_DIR", "TOKEN_ENCRYPTION_KEY", "DB_DSN", "REDIS_ADDR", "REDIS_PASSWORD",
	"REDIS_DB", "COMMANDS_FILE", "CHAT_SEND_RATE", "BOOTSTRAP_POLL_INTERVAL", "TRUST_PROXY",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range allKeys {
		t.Setenv(k, "")
	}
}

func setTwitch(t *testing.T) {
	t.Helper()
	t.Setenv("TWITCH_CLIENT_ID", "id")
	t.Setenv("TWITCH_CLIENT_SECRET", "secret")
	t.Setenv("TWITCH_CHANNEL", "#HappyE")
	t.Setenv("TWITCH_BOT_USERNAME", "happyebot")
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.CallbackPort != DefaultCallbackPort {
		t.Errorf("CallbackPort = %d, want %d", cfg.CallbackPort, DefaultCallbackPort)
	}
	if cfg.HTTPAddr != "127.0.0.1:42069" {
		t.Errorf("HTTPAddr = %q", cfg.HTTPAddr)
	}
	if cfg.TwitchRedirectURI != "http://localhost:42069/auth" {
		t.Errorf("TwitchRedirectURI = %q", cfg.TwitchRedirectURI)
	}
	if cfg.SpotifyRedirectURI != "http://localhost:42069/spotify-auth" {
		t.Errorf("SpotifyRedirectURI = %q", cfg.SpotifyRedirectURI)
	}
	if cfg.TokenStore != "file" || cfg.TokenDir != "." {
		t.Errorf("token store defaults = %q %q", cfg.TokenStore, cfg.TokenDir)
	}
	if cfg.ChatSendRate != 20 || cfg.BootstrapPollInterval != time.Second {
		t.Errorf("chat defaults = %d %v", cfg.ChatSendRate, cfg.BootstrapPollInterval)
	}
	if cfg.SpotifyEnabled() {
		t.Error("spotify should be disabled without SPOTIFY_CLIENT_ID")
	}
	if cfg.TrustProxy {
		t.Error("TrustProxy should default to false")
	}
}

func TestLoadOverrides(t *testing.T) {
	clearEnv(t)
	setTwitch(t)
	t.Setenv("CALLBACK_PORT", "8080")
	t.Setenv("BOOTSTRAP_POLL_INTERVAL", "2s")
	t.Setenv("TOKEN_STORE", "Redis")
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("TRUST_PROXY", "1")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.TwitchChannel != "happye" {
		t.Errorf("TwitchChannel = %q, want normalized happye", cfg.TwitchChannel)
	}
	if cfg.HTTPAddr != "127.0.0.1:8080" || cfg.TwitchRedirectURI != "http://localhost:8080/auth" {
		t.Errorf("port not applied: %q %q", cfg.HTTPAddr, cfg.TwitchRedirectURI)
	}
	if cfg.BootstrapPollInterval != 2*time.Second {
		t.Errorf("BootstrapPollInterval = %v", cfg.BootstrapPollInterval)
	}
	if !cfg.TrustProxy {
		t.Error("TRUST_PROXY=1 not applied")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() = %v", err)
	}
}

func TestLoadBadNumbers(t *testing.T) {
	for _, kv := range [][2]string{{"CALLBACK_PORT", "abc"}, {"REDIS_DB", "x"}, {"CHAT_SEND_RATE", "1.5"}, {"BOOTSTRAP_POLL_INTERVAL", "soon"}} {
		t.Run(kv[0], func(t *testing.T) {
			clearEnv(t)
			t.Setenv(kv[0], kv[1])
			if _, err := Load(); err == nil || !strings.Contains(err.Error(), kv[0]) {
				t.Errorf("Load() error = %v, want mention of %s", err, kv[0])
			}
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{name: "twitch only", env: nil},
		{name: "missing twitch secret", env: map[string]string{"TWITCH_CLIENT_SECRET": ""}, wantErr: "TwitchClientSecret"},
		{name: "spotify without secret", env: map[string]string{"SPOTIFY_CLIENT_ID": "sp"}, wantErr: "SpotifySecret"},
		{name: "spotify complete", env: map[string]string{"SPOTIFY_CLIENT_ID": "sp", "SPOTIFY_SECRET": "s"}},
		{name: "postgres without dsn", env: map[string]string{"TOKEN_STORE": "postgres"}, wantErr: "DBDsn"},
		{name: "unknown store", env: map[string]string{"TOKEN_STORE": "etcd"}, wantErr: "TokenStore"},
		{name: "bad key", env: map[string]string{"TOKEN_ENCRYPTION_KEY": "not base64!"}, wantErr: "TokenEncryptionKey"},
		{name: "bad port", env: map[string]string{"CALLBACK_PORT": "70000", "HTTP_ADDR": "127.0.0.1:1"}, wantErr: "CallbackPort"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			setTwitch(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			cfg, err := Load()
			if err != nil {
				t.Fatalf("Load() error: %v", err)
			}
			err = cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() = %v, want mention of %s", err, tt.wantErr)
			}
		})
	}
}

func TestLoadEnvFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("TWITCH_CHANNEL=fromfile\nTWITCH_BOT_USERNAME=filebot\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.Unsetenv("TWITCH_CHANNEL"); err != nil {
		t.Fatal(err)
	}
	if err := os.Unsetenv("TWITCH_BOT_USERNAME"); err != nil {
		t.Fatal(err)
	}
	t.Setenv("TWITCH_BOT_USERNAME", "fromenv")
	if err := LoadEnvFile(path); err != nil {
		t.Fatalf("LoadEnvFile() error: %v", err)
	}
	t.Cleanup(func() { _ = os.Unsetenv("TWITCH_CHANNEL") })
	if got := os.Getenv("TWITCH_CHANNEL"); got != "fromfile" {
		t.Errorf("TWITCH_CHANNEL = %q", got)
	}
	if got := os.Getenv("TWITCH_BOT_USERNAME"); got != "fromenv" {
		t.Errorf("existing variables must win, got %q", got)
	}

	if err := LoadEnvFile(filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Errorf("missing file should be ignored, got %v", err)
	}
}
