// Package apperrors holds the error taxonomy shared by every component.
//
// Each failure is wrapped with exactly one kind sentinel so callers can decide
// policy with errors.Is: bootstrap treats every kind as fatal, steady-state
// refresh treats Network as soft, the router swallows action failures.
package apperrors

import (
	"errors"
	"fmt"
)

var (
	// ErrIO covers persisted-state read/write failures.
	ErrIO = errors.New("io")
	// ErrNetwork covers token-exchange, refresh and external API request failures.
	ErrNetwork = errors.New("network")
	// ErrValidation covers malformed OAuth responses and unparsable persisted state.
	ErrValidation = errors.New("validation")
	// ErrProtocol covers chat join/send failures from the transport.
	ErrProtocol = errors.New("protocol")
)

// Wrap tags err with kind and an optional package-level sentinel, keeping all
// three reachable through errors.Is.
func Wrap(kind, sentinel, err error) error {
	if err == nil {
		return nil
	}
	if sentinel == nil {
		return fmt.Errorf("%w: %w", kind, err)
	}
	return fmt.Errorf("%w: %w: %w", kind, sentinel, err)
}

// Kind returns a short label for metrics and logs.
func Kind(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, ErrIO):
		return "io"
	case errors.Is(err, ErrNetwork):
		return "network"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrProtocol):
		return "protocol"
	default:
		return "unknown"
	}
}
