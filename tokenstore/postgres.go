package tokenstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" driver

	"github.com/onnwee/happye-bot/apperrors"
	"github.com/onnwee/happye-bot/crypto"
	"github.com/onnwee/happye-bot/oauth"
)

// encryption_version values in oauth_tokens.
const (
	plaintextVersion = 0
	sealedVersion    = 1
)

// Postgres stores tokens in the oauth_tokens table, one row per service.
type Postgres struct {
	db     *sql.DB
	sealer crypto.Sealer
}

// NewPostgres wraps an open, migrated database.
func NewPostgres(db *sql.DB, sealer crypto.Sealer) *Postgres {
	return &Postgres{db: db, sealer: sealer}
}

func (p *Postgres) Load(ctx context.Context, service string) (oauth.Token, error) {
	var (
		tok        oauth.Token
		access     string
		refresh    string
		expiresAt  sql.NullTime
		encVersion int
	)
	row := p.db.QueryRowContext(ctx, `SELECT access_token, refresh_token, token_type, scope, created_at, expires_in, expires_at, encryption_version
		FROM oauth_tokens WHERE service = $1`, service)
	err := row.Scan(&access, &refresh, &tok.TokenType, &tok.Scope, &tok.CreatedAt, &tok.ExpiresIn, &expiresAt, &encVersion)
	if errors.Is(err, sql.ErrNoRows) {
		return oauth.Token{}, oauth.ErrNoToken
	}
	if err != nil {
		return oauth.Token{}, apperrors.Wrap(apperrors.ErrIO, nil, fmt.Errorf("load %s token: %w", service, err))
	}

	if encVersion == sealedVersion {
		if p.sealer == nil {
			return oauth.Token{}, apperrors.Wrap(apperrors.ErrValidation, nil, fmt.Errorf("%s token is encrypted but TOKEN_ENCRYPTION_KEY is not configured", service))
		}
		if access, err = crypto.OpenString(p.sealer, access); err != nil {
			return oauth.Token{}, apperrors.Wrap(apperrors.ErrValidation, nil, fmt.Errorf("open %s access token: %w", service, err))
		}
		if refresh, err = crypto.OpenString(p.sealer, refresh); err != nil {
			return oauth.Token{}, apperrors.Wrap(apperrors.ErrValidation, nil, fmt.Errorf("open %s refresh token: %w", service, err))
		}
	}
	tok.AccessToken = access
	tok.RefreshToken = refresh
	tok.CreatedAt = tok.CreatedAt.UTC()
	if expiresAt.Valid {
		t := expiresAt.Time.UTC()
		tok.ExpiresAt = &t
	}
	if err := tok.Validate(); err != nil {
		return oauth.Token{}, apperrors.Wrap(apperrors.ErrValidation, nil, fmt.Errorf("%s token: %w", service, err))
	}
	return tok, nil
}

func (p *Postgres) Save(ctx context.Context, service string, tok oauth.Token) error {
	access, refresh := tok.AccessToken, tok.RefreshToken
	version := plaintextVersion
	if p.sealer != nil {
		var err error
		if access, err = crypto.SealString(p.sealer, access); err != nil {
			return apperrors.Wrap(apperrors.ErrIO, nil, fmt.Errorf("seal %s access token: %w", service, err))
		}
		if refresh, err = crypto.SealString(p.sealer, refresh); err != nil {
			return apperrors.Wrap(apperrors.ErrIO, nil, fmt.Errorf("seal %s refresh token: %w", service, err))
		}
		version = sealedVersion
	}
	var expiresAt *time.Time
	if tok.ExpiresAt != nil {
		t := tok.ExpiresAt.UTC()
		expiresAt = &t
	}
	_, err := p.db.ExecContext(ctx, `INSERT INTO oauth_tokens(service, access_token, refresh_token, token_type, scope, created_at, expires_in, expires_at, encryption_version, updated_at)
		VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,NOW())
		ON CONFLICT(service) DO UPDATE SET
		  access_token=EXCLUDED.access_token,
		  refresh_token=EXCLUDED.refresh_token,
		  token_type=EXCLUDED.token_type,
		  scope=EXCLUDED.scope,
		  created_at=EXCLUDED.created_at,
		  expires_in=EXCLUDED.expires_in,
		  expires_at=EXCLUDED.expires_at,
		  encryption_version=EXCLUDED.encryption_version,
		  updated_at=NOW()`,
		service, access, refresh, tok.TokenType, tok.Scope, tok.CreatedAt.UTC(), tok.ExpiresIn, expiresAt, version)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrIO, nil, fmt.Errorf("save %s token: %w", service, err))
	}
	return nil
}

func (p *Postgres) Close() error { return p.db.Close() }
