package chat

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/onnwee/happye-bot/apperrors"
	"github.com/onnwee/happye-bot/commands"
	"github.com/onnwee/happye-bot/telemetry"
)

// CommandMarker prefixes every command token.
const CommandMarker = "!"

// Message is one inbound chat line.
type Message struct {
	ID      string
	Channel string
	User    string
	Text    string
}

// Sender delivers a reply to a channel.
type Sender interface {
	Say(ctx context.Context, channel, text string) error
}

// Router maps chat lines to replies.
type Router struct {
	registry *commands.Registry
	actions  map[string]commands.Action
}

// NewRouter binds a registry to the actions its commands may name. actions may be nil.
func NewRouter(registry *commands.Registry, actions map[string]commands.Action) *Router {
	if actions == nil {
		actions = map[string]commands.Action{}
	}
	return &Router{registry: registry, actions: actions}
}

// ParseCommand splits a chat line into a lower-cased command name and its
// argument payload. The payload keeps the remaining words joined by single
// spaces. ok is false when the line is not a command.
func ParseCommand(text string) (name, payload string, ok bool) {
	fields := strings.Fields(text)
	if len(fields) == 0 || !strings.HasPrefix(fields[0], CommandMarker) {
		return "", "", false
	}
	return strings.ToLower(fields[0]), strings.Join(fields[1:], " "), true
}

// Route produces the reply for m, if any. Action failures are logged and
// swallowed; the requester simply gets no reply.
func (r *Router) Route(ctx context.Context, m Message) (string, bool) {
	name, payload, ok := ParseCommand(m.Text)
	if !ok {
		return "", false
	}
	cmd, ok := r.registry.Lookup(name, payload != "")
	if !ok {
		return "", false
	}
	if cmd.RequiresArgs && payload == "" {
		if cmd.Usage == "" {
			return "", false
		}
		return cmd.Render(cmd.Usage, m.User, "", ""), true
	}
	telemetry.CommandFired(name)
	log := telemetry.LoggerWithCorr(ctx).With(slog.String("component", "router"), slog.String("command", name), slog.String("user", m.User))

	if cmd.Action == "" {
		return cmd.Render(cmd.Response, m.User, "", ""), true
	}

	action, ok := r.actions[cmd.Action]
	if !ok {
		log.Error("command names an unknown action", slog.String("action", cmd.Action))
		return "", false
	}

	ctx, span := telemetry.StartSpan(ctx, "chat", "chat.action", telemetry.CommandAttr(name))
	defer span.End()

	start := time.Now()
	// a started action runs to completion even if shutdown begins meanwhile
	res, err := action.Run(context.WithoutCancel(ctx), payload)
	elapsed := time.Since(start)
	if err != nil {
		telemetry.RecordError(span, err)
		telemetry.ActionOutcome(cmd.Action, "error", elapsed)
		log.Warn("action failed", slog.String("action", cmd.Action), slog.String("kind", apperrors.Kind(err)), slog.Any("err", err))
		return "", false
	}
	telemetry.ActionOutcome(cmd.Action, res.Outcome.String(), elapsed)
	telemetry.SetSpanSuccess(span)

	switch res.Outcome {
	case commands.OutcomeFound:
		log.Info("action completed", slog.String("action", cmd.Action), slog.String("result", res.Display))
		return cmd.Render(cmd.Response, m.User, res.Display, payload), true
	default:
		if cmd.NoResult == "" {
			return "", false
		}
		return cmd.Render(cmd.NoResult, m.User, "", payload), true
	}
}

// Run routes messages from in until ctx is done or in is closed. A failed send
// is logged and counted; it never stops the loop. An in-flight message is
// finished before ctx is checked again.
func (r *Router) Run(ctx context.Context, in <-chan Message, out Sender) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case m, ok := <-in:
			if !ok {
				return nil
			}
			r.handle(ctx, m, out)
		}
	}
}

func (r *Router) handle(ctx context.Context, m Message, out Sender) {
	corr := m.ID
	if corr == "" {
		corr = uuid.NewString()
	}
	ctx = telemetry.WithCorrelation(ctx, corr)

	reply, ok := r.Route(ctx, m)
	if !ok {
		return
	}
	// the reply to a message already being handled is still delivered during shutdown
	err := out.Say(context.WithoutCancel(ctx), m.Channel, reply)
	telemetry.ReplySent(err)
	if err != nil {
		telemetry.LoggerWithCorr(ctx).Warn("reply send failed",
			slog.String("component", "router"),
			slog.String("channel", m.Channel),
			slog.String("kind", apperrors.Kind(err)),
			slog.Any("err", err))
	}
}
