// Package telemetry provides Prometheus metrics, OpenTelemetry tracing and
// correlation-id aware logging helpers for the bot.
package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	// Chat
	ChatMessagesReceived prometheus.Counter
	ChatMessagesDropped  prometheus.Counter
	RepliesSent          prometheus.Counter
	ReplySendFailures    prometheus.Counter
	ChatConnected        prometheus.Gauge // 1=connected,0=disconnected

	// Commands
	CommandsFired    *prometheus.CounterVec
	CommandCooldowns *prometheus.CounterVec
	ActionOutcomes   *prometheus.CounterVec
	ActionDuration   *prometheus.HistogramVec

	// Credentials
	TokenExchanges *prometheus.CounterVec
	TokenRefreshes *prometheus.CounterVec
	BootstrapState *prometheus.GaugeVec
)

// Init registers metrics (idempotent). Record helpers below call it, so
// packages can be exercised in tests without wiring main.
func Init() {
	once.Do(func() {
		ChatMessagesReceived = promauto.NewCounter(prometheus.CounterOpts{Name: "chatbot_messages_received_total", Help: "Chat messages received from the channel"})
		ChatMessagesDropped = promauto.NewCounter(prometheus.CounterOpts{Name: "chatbot_messages_dropped_total", Help: "Chat messages dropped because the router was saturated"})
		RepliesSent = promauto.NewCounter(prometheus.CounterOpts{Name: "chatbot_replies_sent_total", Help: "Replies handed to the chat transport"})
		ReplySendFailures = promauto.NewCounter(prometheus.CounterOpts{Name: "chatbot_reply_send_failures_total", Help: "Replies the chat transport failed to send"})
		ChatConnected = promauto.NewGauge(prometheus.GaugeOpts{Name: "chatbot_chat_connected", Help: "Chat connection open=1 closed=0"})
		CommandsFired = promauto.NewCounterVec(prometheus.CounterOpts{Name: "chatbot_commands_fired_total", Help: "Commands that passed cooldown and fired"}, []string{"command"})
		CommandCooldowns = promauto.NewCounterVec(prometheus.CounterOpts{Name: "chatbot_command_cooldown_total", Help: "Command invocations rejected by cooldown"}, []string{"command"})
		ActionOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{Name: "chatbot_action_outcomes_total", Help: "External action results by outcome (found, empty, error)"}, []string{"action", "outcome"})
		ActionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{Name: "chatbot_action_duration_seconds", Help: "External action duration seconds", Buckets: prometheus.DefBuckets}, []string{"action"})
		TokenExchanges = promauto.NewCounterVec(prometheus.CounterOpts{Name: "chatbot_token_exchanges_total", Help: "Authorization code exchanges by result"}, []string{"service", "result"})
		TokenRefreshes = promauto.NewCounterVec(prometheus.CounterOpts{Name: "chatbot_token_refreshes_total", Help: "Refresh-grant attempts by result"}, []string{"service", "result"})
		BootstrapState = promauto.NewGaugeVec(prometheus.GaugeOpts{Name: "chatbot_bootstrap_state", Help: "OAuth bootstrap state per service (see oauth.BootstrapState)"}, []string{"service"})
	})
}

// CommandFired counts a command that passed its cooldown.
func CommandFired(name string) { Init(); CommandsFired.WithLabelValues(name).Inc() }

// CommandCoolingDown counts an invocation rejected by cooldown.
func CommandCoolingDown(name string) { Init(); CommandCooldowns.WithLabelValues(name).Inc() }

// ActionOutcome records one external action result.
func ActionOutcome(action, outcome string, d time.Duration) {
	Init()
	ActionOutcomes.WithLabelValues(action, outcome).Inc()
	ActionDuration.WithLabelValues(action).Observe(d.Seconds())
}

// TokenExchange records an authorization code exchange result ("ok" or "error").
func TokenExchange(service, result string) { Init(); TokenExchanges.WithLabelValues(service, result).Inc() }

// TokenRefresh records a refresh-grant result ("ok" or "error").
func TokenRefresh(service, result string) { Init(); TokenRefreshes.WithLabelValues(service, result).Inc() }

// SetBootstrapState publishes the numeric bootstrap state for a service.
func SetBootstrapState(service string, state int) {
	Init()
	BootstrapState.WithLabelValues(service).Set(float64(state))
}

// SetChatConnected sets gauge to 1 if connected else 0.
func SetChatConnected(connected bool) {
	Init()
	if connected {
		ChatConnected.Set(1)
	} else {
		ChatConnected.Set(0)
	}
}

// MessageReceived counts an inbound chat line.
func MessageReceived() { Init(); ChatMessagesReceived.Inc() }

// MessageDropped counts an inbound chat line the router could not accept.
func MessageDropped() { Init(); ChatMessagesDropped.Inc() }

// ReplySent counts a reply outcome.
func ReplySent(err error) {
	Init()
	if err != nil {
		ReplySendFailures.Inc()
		return
	}
	RepliesSent.Inc()
}

// Correlation ID helpers ----------------------------------------------------
type corrKeyType struct{}

var corrKey corrKeyType

// WithCorrelation returns a new context embedding the correlation id.
func WithCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, corrKey, id)
}

// GetCorrelation returns correlation id or empty string.
func GetCorrelation(ctx context.Context) string {
	if s, ok := ctx.Value(corrKey).(string); ok {
		return s
	}
	return ""
}

// LoggerWithCorr returns a logger with corr attribute if present.
func LoggerWithCorr(ctx context.Context) *slog.Logger {
	if id := GetCorrelation(ctx); id != "" {
		return slog.Default().With(slog.String("corr", id))
	}
	return slog.Default()
}
