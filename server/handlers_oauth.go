package server

import (
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/onnwee/happye-bot/telemetry"
)

// CallbackBody is the confirmation shown in the browser after a redirect.
const CallbackBody = "You can close this now 🎉"

// HandleOAuthStart redirects the browser to the provider's consent page with a
// fresh state.
func (h *Handlers) HandleOAuthStart(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		st := uuid.NewString()
		if !h.addOAuthState(st, svc.Name) {
			http.Error(w, "too many pending authorizations", http.StatusServiceUnavailable)
			return
		}
		http.Redirect(w, r, svc.AuthCodeURL(st), http.StatusFound)
	}
}

// HandleOAuthCallback stores the authorization code for the waiting broker.
// The state, when present, must have been issued by HandleOAuthStart; a bare
// code (consent URL opened from the logs without state) is accepted.
func (h *Handlers) HandleOAuthCallback(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		log := telemetry.LoggerWithCorr(r.Context()).With(slog.String("component", "http"), slog.String("service", svc.Name))
		q := r.URL.Query()
		if e := q.Get("error"); e != "" {
			log.Warn("authorization denied", slog.String("error", e), slog.String("description", q.Get("error_description")))
			http.Error(w, "authorization denied: "+e, http.StatusBadRequest)
			return
		}
		code := q.Get("code")
		if code == "" {
			http.Error(w, "missing code", http.StatusBadRequest)
			return
		}
		if st := q.Get("state"); st != "" && !h.consumeOAuthState(st, svc.Name) {
			log.Warn("callback with unknown state")
			http.Error(w, "invalid state", http.StatusBadRequest)
			return
		}
		svc.Slot.Put(code)
		log.Info("authorization code received", slog.String("scope", q.Get("scope")))
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(CallbackBody))
	}
}
