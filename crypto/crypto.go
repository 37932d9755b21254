// Package crypto seals persisted OAuth credentials at rest. Token files,
// Postgres rows and Redis values all go through the same Sealer so a key set
// via TOKEN_ENCRYPTION_KEY protects every backend identically.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
)

// ErrOpen is returned when a sealed value fails authentication.
var ErrOpen = errors.New("crypto: sealed value failed authentication")

// Sealer encrypts and authenticates small values (token JSON, token strings).
type Sealer interface {
	// Seal returns base64(nonce || ciphertext || tag).
	Seal(plaintext []byte) (string, error)
	// Open reverses Seal. It returns ErrOpen when the value was tampered
	// with or sealed under a different key.
	Open(sealed string) ([]byte, error)
}

// AESSealer implements Sealer with AES-256-GCM.
type AESSealer struct {
	aead cipher.AEAD
}

// NewAESSealer builds a sealer from a base64-encoded 32-byte key, e.g. the
// output of `openssl rand -base64 32`.
func NewAESSealer(base64Key string) (*AESSealer, error) {
	if base64Key == "" {
		return nil, fmt.Errorf("encryption key is empty")
	}
	key, err := base64.StdEncoding.DecodeString(base64Key)
	if err != nil {
		return nil, fmt.Errorf("invalid encryption key: base64 decode failed: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("invalid encryption key: must be 32 bytes (256 bits), got %d bytes", len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create GCM: %w", err)
	}
	return &AESSealer{aead: aead}, nil
}

func (s *AESSealer) Seal(plaintext []byte) (string, error) {
	if len(plaintext) == 0 {
		return "", fmt.Errorf("plaintext is empty")
	}
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	out := s.aead.Seal(nonce, nonce, plaintext, nil)
	return base64.StdEncoding.EncodeToString(out), nil
}

func (s *AESSealer) Open(sealed string) ([]byte, error) {
	if sealed == "" {
		return nil, fmt.Errorf("sealed value is empty")
	}
	raw, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return nil, fmt.Errorf("base64 decode failed: %w", err)
	}
	n := s.aead.NonceSize()
	if len(raw) < n+s.aead.Overhead() {
		return nil, fmt.Errorf("sealed value too short: got %d bytes", len(raw))
	}
	plaintext, err := s.aead.Open(nil, raw[:n], raw[n:], nil)
	if err != nil {
		// do not leak cipher internals
		return nil, ErrOpen
	}
	return plaintext, nil
}

// SealString seals s, passing empty strings through untouched so optional
// columns (a missing refresh token) stay empty.
func SealString(s Sealer, v string) (string, error) {
	if v == "" || s == nil {
		return v, nil
	}
	return s.Seal([]byte(v))
}

// OpenString is the inverse of SealString.
func OpenString(s Sealer, v string) (string, error) {
	if v == "" || s == nil {
		return v, nil
	}
	b, err := s.Open(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
