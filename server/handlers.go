// Package server exposes the local HTTP listener: the OAuth redirect receivers
// that hand authorization codes to the waiting brokers, the start redirects,
// health checks and Prometheus metrics.
package server

import (
	"context"
	"sync"
	"time"

	"github.com/onnwee/happye-bot/oauth"
)

const (
	// Maximum number of OAuth states to keep in memory
	maxOAuthStates = 1000
	stateTTL       = 10 * time.Minute
)

// Service is one OAuth provider the listener serves.
type Service struct {
	Name string
	// CallbackPath receives the redirect, e.g. /auth or /spotify-auth.
	CallbackPath string
	Slot         *oauth.CodeSlot
	// AuthCodeURL builds the consent URL for a state; typically Broker.AuthCodeURL.
	AuthCodeURL func(state string) string
}

// ReadinessCheck is evaluated by /readyz; a non-nil error means not ready.
type ReadinessCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// Handlers holds dependencies for all HTTP handlers.
type Handlers struct {
	services []Service
	checks   []ReadinessCheck
	now      func() time.Time

	stateMu    sync.Mutex
	stateStore map[string]stateEntry
}

type stateEntry struct {
	service string
	expiry  time.Time
}

// NewHandlers creates a new Handlers instance with the given dependencies.
func NewHandlers(services []Service, checks []ReadinessCheck) *Handlers {
	return &Handlers{
		services:   services,
		checks:     checks,
		now:        time.Now,
		stateStore: make(map[string]stateEntry),
	}
}

// cleanExpiredStates removes expired OAuth states from the store.
// This should be called with stateMu locked.
func (h *Handlers) cleanExpiredStates() {
	now := h.now()
	for state, e := range h.stateStore {
		if now.After(e.expiry) {
			delete(h.stateStore, state)
		}
	}
}

// addOAuthState records a state issued by a start redirect. It reports false
// when the store is full even after cleanup.
func (h *Handlers) addOAuthState(state, service string) bool {
	h.stateMu.Lock()
	defer h.stateMu.Unlock()

	if len(h.stateStore)%100 == 0 {
		h.cleanExpiredStates()
	}
	if len(h.stateStore) >= maxOAuthStates {
		h.cleanExpiredStates()
		if len(h.stateStore) >= maxOAuthStates {
			return false
		}
	}
	h.stateStore[state] = stateEntry{service: service, expiry: h.now().Add(stateTTL)}
	return true
}

// consumeOAuthState deletes state and reports whether it was issued for service and is unexpired.
func (h *Handlers) consumeOAuthState(state, service string) bool {
	h.stateMu.Lock()
	defer h.stateMu.Unlock()
	e, ok := h.stateStore[state]
	if !ok {
		return false
	}
	delete(h.stateStore, state)
	return e.service == service && !h.now().After(e.expiry)
}
