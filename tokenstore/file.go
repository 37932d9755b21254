package tokenstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/onnwee/happye-bot/apperrors"
	"github.com/onnwee/happye-bot/crypto"
	"github.com/onnwee/happye-bot/oauth"
)

// sealedFile is the on-disk envelope used when encryption is enabled.
type sealedFile struct {
	Sealed string `json:"sealed"`
}

// File stores one JSON document per service at <dir>/<service>_token.json.
type File struct {
	dir    string
	sealer crypto.Sealer
}

// NewFile returns a file store rooted at dir ("." when empty). sealer may be nil.
func NewFile(dir string, sealer crypto.Sealer) *File {
	if dir == "" {
		dir = "."
	}
	return &File{dir: dir, sealer: sealer}
}

// Path returns the file backing service.
func (f *File) Path(service string) string {
	return filepath.Join(f.dir, service+"_token.json")
}

func (f *File) Load(_ context.Context, service string) (oauth.Token, error) {
	b, err := os.ReadFile(f.Path(service))
	if errors.Is(err, fs.ErrNotExist) {
		return oauth.Token{}, oauth.ErrNoToken
	}
	if err != nil {
		return oauth.Token{}, apperrors.Wrap(apperrors.ErrIO, nil, fmt.Errorf("read %s token: %w", service, err))
	}

	var env sealedFile
	if json.Unmarshal(b, &env) == nil && env.Sealed != "" {
		if f.sealer == nil {
			return oauth.Token{}, apperrors.Wrap(apperrors.ErrValidation, nil, fmt.Errorf("%s token is encrypted but TOKEN_ENCRYPTION_KEY is not configured", service))
		}
		b, err = f.sealer.Open(env.Sealed)
		if err != nil {
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

// Save writes atomically (temp file + rename) with 0600 permissions.
func (f *File) Save(_ context.Context, service string, tok oauth.Token) error {
	b, err := json.Marshal(tok)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrValidation, nil, err)
	}
	if f.sealer != nil {
		sealed, err := f.sealer.Seal(b)
		if err != nil {
			return apperrors.Wrap(apperrors.ErrIO, nil, fmt.Errorf("seal %s token: %w", service, err))
		}
		if b, err = json.Marshal(sealedFile{Sealed: sealed}); err != nil {
			return apperrors.Wrap(apperrors.ErrValidation, nil, err)
		}
	}
	if err := os.MkdirAll(f.dir, 0o700); err != nil {
		return apperrors.Wrap(apperrors.ErrIO, nil, err)
	}
	tmp, err := os.CreateTemp(f.dir, "."+service+"_token-*.json")
	if err != nil {
		return apperrors.Wrap(apperrors.ErrIO, nil, err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck // best-effort cleanup; gone after rename
	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		return apperrors.Wrap(apperrors.ErrIO, nil, err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		return apperrors.Wrap(apperrors.ErrIO, nil, err)
	}
	if err := tmp.Close(); err != nil {
		return apperrors.Wrap(apperrors.ErrIO, nil, err)
	}
	if err := os.Rename(tmp.Name(), f.Path(service)); err != nil {
		return apperrors.Wrap(apperrors.ErrIO, nil, fmt.Errorf("write %s token: %w", service, err))
	}
	return nil
}

func (f *File) Close() error { return nil }
