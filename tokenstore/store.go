// Package tokenstore persists oauth.Token values per service. The file backend
// is the default and mirrors the `<service>_token.json` files a user can
// inspect or delete to force re-authorization; Postgres and Redis backends
// exist for hosted deployments where the working directory is ephemeral.
//
// Every backend seals secrets with a crypto.Sealer when one is configured.
package tokenstore

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/onnwee/happye-bot/crypto"
	"github.com/onnwee/happye-bot/oauth"
)

// Backend names accepted by Open.
const (
	BackendFile     = "file"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

// Options selects and configures a backend.
type Options struct {
	Backend       string
	Dir           string
	DSN           string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	EncryptionKey string
}

// Store is an oauth.Store that owns closable resources.
type Store interface {
	oauth.Store
	Close() error
}

// Open builds the configured backend. Postgres runs its migrations before returning.
func Open(ctx context.Context, opts Options) (Store, error) {
	var sealer crypto.Sealer
	if opts.EncryptionKey != "" {
		s, err := crypto.NewAESSealer(opts.EncryptionKey)
		if err != nil {
			return nil, fmt.Errorf("token encryption: %w", err)
		}
		sealer = s
		slog.Info("token encryption enabled (AES-256-GCM)", slog.String("component", "tokenstore"))
	} else {
		slog.Warn("TOKEN_ENCRYPTION_KEY not set, tokens will be stored in plaintext", slog.String("component", "tokenstore"))
	}

	switch opts.Backend {
	case BackendFile, "":
		return NewFile(opts.Dir, sealer), nil
	case BackendPostgres:
		db, err := sql.Open("pgx", opts.DSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		if err := db.PingContext(ctx); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("ping postgres: %w", err)
		}
		if err := Migrate(db); err != nil {
			_ = db.Close()
			return nil, err
		}
		return NewPostgres(db, sealer), nil
	case BackendRedis:
		rdb := redis.NewClient(&redis.Options{Addr: opts.RedisAddr, Password: opts.RedisPassword, DB: opts.RedisDB})
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			return nil, fmt.Errorf("ping redis: %w", err)
		}
		return NewRedis(rdb, sealer), nil
	default:
		return nil, fmt.Errorf("unknown token store backend %q", opts.Backend)
	}
}
