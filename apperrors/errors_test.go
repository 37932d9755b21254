package apperrors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWrap(t *testing.T) {
	sentinel := errors.New("oauth: token exchange failed")
	cause := errors.New("connection refused")

	err := Wrap(ErrNetwork, sentinel, cause)
	assert.ErrorIs(t, err, ErrNetwork)
	assert.ErrorIs(t, err, sentinel)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "network: oauth: token exchange failed: connection refused", err.Error())

	err = Wrap(ErrIO, nil, cause)
	assert.Equal(t, "io: connection refused", err.Error())

	assert.NoError(t, Wrap(ErrIO, sentinel, nil))
}

func TestKind(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, "none"},
		{Wrap(ErrIO, nil, errors.New("x")), "io"},
		{Wrap(ErrNetwork, nil, errors.New("x")), "network"},
		{Wrap(ErrValidation, nil, errors.New("x")), "validation"},
		{Wrap(ErrProtocol, nil, errors.New("x")), "protocol"},
		{errors.New("plain"), "unknown"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Kind(tt.err))
	}
}
