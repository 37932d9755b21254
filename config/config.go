// Package config loads environment variables and provides a typed Config used
// across the bot. It applies defaults so a local run only needs the Twitch
// credentials; Spotify song requests are enabled when SPOTIFY_CLIENT_ID is set.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// DefaultCallbackPort is where the OAuth redirect listener binds by default.
const DefaultCallbackPort = 42069

type Config struct {
	// Twitch
	TwitchClientID     string `validate:"required"`
	TwitchClientSecret string `validate:"required"`
	TwitchChannel      string `validate:"required"`
	TwitchBotUsername  string `validate:"required"`
	TwitchScopes       string
	TwitchRedirectURI  string `validate:"required,url"`

	// Spotify (optional)
	SpotifyClientID    string
	SpotifySecret      string `validate:"required_with=SpotifyClientID"`
	SpotifyScopes      string
	SpotifyRedirectURI string `validate:"required,url"`

	// HTTP listener
	CallbackPort int    `validate:"min=1,max=65535"`
	HTTPAddr     string `validate:"required,hostname_port"`
	// TrustProxy keys the callback rate limit by X-Forwarded-For.
	TrustProxy bool

	// Token persistence
	TokenStore         string `validate:"oneof=file postgres redis"`
	TokenDir           string
	TokenEncryptionKey string `validate:"omitempty,base64"`
	DBDsn              string `validate:"required_if=TokenStore postgres"`
	RedisAddr          string `validate:"required_if=TokenStore redis"`
	RedisPassword      string
	RedisDB            int `validate:"min=0"`

	// Chat
	CommandsFile string
	// ChatSendRate is the number of messages allowed per 30 seconds.
	ChatSendRate int `validate:"min=1,max=100"`

	BootstrapPollInterval time.Duration `validate:"gt=0"`
}

// SpotifyEnabled reports whether song requests are configured.
func (c *Config) SpotifyEnabled() bool { return c.SpotifyClientID != "" }

// LoadEnvFile loads KEY=VALUE pairs from path into the environment without
// overriding variables that are already set. A missing file is not an error.
func LoadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

// Load reads environment variables and applies defaults. It does not validate;
// call Validate once flags have been applied.
func Load() (*Config, error) {
	cfg := &Config{
		TwitchClientID:     os.Getenv("TWITCH_CLIENT_ID"),
		TwitchClientSecret: os.Getenv("TWITCH_CLIENT_SECRET"),
		TwitchChannel:      strings.ToLower(strings.TrimPrefix(os.Getenv("TWITCH_CHANNEL"), "#")),
		TwitchBotUsername:  os.Getenv("TWITCH_BOT_USERNAME"),
		TwitchScopes:       os.Getenv("TWITCH_SCOPES"),
		TwitchRedirectURI:  os.Getenv("TWITCH_REDIRECT_URI"),
		SpotifyClientID:    os.Getenv("SPOTIFY_CLIENT_ID"),
		SpotifySecret:      os.Getenv("SPOTIFY_SECRET"),
		SpotifyScopes:      os.Getenv("SPOTIFY_SCOPES"),
		SpotifyRedirectURI: os.Getenv("SPOTIFY_REDIRECT_URI"),
		HTTPAddr:           os.Getenv("HTTP_ADDR"),
		TokenStore:         strings.ToLower(os.Getenv("TOKEN_STORE")),
		TokenDir:           os.Getenv("TOKEN_DIR"),
		TokenEncryptionKey: os.Getenv("TOKEN_ENCRYPTION_KEY"),
		DBDsn:              os.Getenv("DB_DSN"),
		RedisAddr:          os.Getenv("REDIS_ADDR"),
		RedisPassword:      os.Getenv("REDIS_PASSWORD"),
		CommandsFile:       os.Getenv("COMMANDS_FILE"),
		TrustProxy:         os.Getenv("TRUST_PROXY") == "1",
	}

	var err error
	if cfg.CallbackPort, err = intEnv("CALLBACK_PORT", DefaultCallbackPort); err != nil {
		return nil, err
	}
	if cfg.RedisDB, err = intEnv("REDIS_DB", 0); err != nil {
		return nil, err
	}
	if cfg.ChatSendRate, err = intEnv("CHAT_SEND_RATE", 20); err != nil {
		return nil, err
	}
	if cfg.BootstrapPollInterval, err = durationEnv("BOOTSTRAP_POLL_INTERVAL", time.Second); err != nil {
		return nil, err
	}
	if cfg.TokenStore == "" {
		cfg.TokenStore = "file"
	}
	if cfg.TokenDir == "" {
		cfg.TokenDir = "."
	}
	cfg.ApplyDefaults()
	return cfg, nil
}

// ApplyDefaults fills the values derived from CallbackPort. It is safe to call
// again after a flag changes the port or address.
func (c *Config) ApplyDefaults() {
	if c.HTTPAddr == "" {
		c.HTTPAddr = fmt.Sprintf("127.0.0.1:%d", c.CallbackPort)
	}
	if c.TwitchRedirectURI == "" {
		c.TwitchRedirectURI = fmt.Sprintf("http://localhost:%d/auth", c.CallbackPort)
	}
	if c.SpotifyRedirectURI == "" {
		c.SpotifyRedirectURI = fmt.Sprintf("http://localhost:%d/spotify-auth", c.CallbackPort)
	}
}

// Validate checks required fields and cross-field rules.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s (%s)", fe.Field(), fe.Tag()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, ", "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func intEnv(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func durationEnv(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
