package tokenstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/onnwee/happye-bot/apperrors"
	"github.com/onnwee/happye-bot/crypto"
	"github.com/onnwee/happye-bot/oauth"
)

// KeyPrefix namespaces token keys in Redis.
const KeyPrefix = "chatbot:token:"

// Redis stores each token as a JSON string (sealed when a key is set) under
// KeyPrefix+service, without expiry.
type Redis struct {
	rdb    redis.UniversalClient
	sealer crypto.Sealer
}

func NewRedis(rdb redis.UniversalClient, sealer crypto.Sealer) *Redis {
	return &Redis{rdb: rdb, sealer: sealer}
}

func (r *Redis) Load(ctx context.Context, service string) (oauth.Token, error) {
	raw, err := r.rdb.Get(ctx, KeyPrefix+service).Result()
	if errors.Is(err, redis.Nil) {
		return oauth.Token{}, oauth.ErrNoToken
	}
	if err != nil {
		return oauth.Token{}, apperrors.Wrap(apperrors.ErrIO, nil, fmt.Errorf("load %s token: %w", service, err))
	}
	b := []byte(raw)
	if r.sealer != nil {
		if b, err = r.sealer.Open(raw); err != nil {
			return oauth.Token{}, apperrors.Wrap(apperrors.ErrValidation, nil, fmt.Errorf("open %s token: %w", service, err))
		}
	}
	var tok oauth.Token
	if err := json.Unmarshal(b, &tok); err != nil {
		return oauth.Token{}, apperrors.Wrap(apperrors.ErrValidation, nil, fmt.Errorf("parse %s token: %w", service, err))
	}
	if err := tok.Validate(); err != nil {
		return oauth.Token{}, apperrors.Wrap(apperrors.ErrValidation, nil, fmt.Errorf("%s token: %w", service, err))
	}
	return tok, nil
}

func (r *Redis) Save(ctx context.Context, service string, tok oauth.Token) error {
	b, err := json.Marshal(tok)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrValidation, nil, err)
	}
	val := string(b)
	if r.sealer != nil {
		if val, err = r.sealer.Seal(b); err != nil {
			return apperrors.Wrap(apperrors.ErrIO, nil, fmt.Errorf("seal %s token: %w", service, err))
		}
	}
	if err := r.rdb.Set(ctx, KeyPrefix+service, val, 0).Err(); err != nil {
		return apperrors.Wrap(apperrors.ErrIO, nil, fmt.Errorf("save %s token: %w", service, err))
	}
	return nil
}

func (r *Redis) Close() error { return r.rdb.Close() }
