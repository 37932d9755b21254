// Package commands holds the static chat command table and its per-command
// cooldown bookkeeping.
package commands

import (
	"context"
	"strings"
	"time"
)

// Template placeholders.
const (
	PlaceholderUser   = "<user>"
	PlaceholderResult = "<result>"
	PlaceholderQuery  = "<query>"
)

// Command is one entry of the command table. LastInvoked is the only field
// that changes after registration.
type Command struct {
	Name         string
	Response     string
	Usage        string
	NoResult     string
	TagUser      bool
	RequiresArgs bool
	Cooldown     time.Duration
	// Action names an external action in the router's action table; empty for
	// plain text replies.
	Action      string
	LastInvoked *time.Time
}

// Render substitutes the result and query placeholders into tmpl. The sender
// is substituted only when TagUser is set.
func (c Command) Render(tmpl, user, result, query string) string {
	r := strings.NewReplacer(PlaceholderResult, result, PlaceholderQuery, query)
	out := r.Replace(tmpl)
	if c.TagUser {
		out = strings.ReplaceAll(out, PlaceholderUser, user)
	}
	return out
}

// Outcome distinguishes an action that produced something from one that ran
// cleanly but found nothing. Failures are reported as errors.
type Outcome int

const (
	OutcomeEmpty Outcome = iota
	OutcomeFound
)

func (o Outcome) String() string {
	if o == OutcomeFound {
		return "found"
	}
	return "empty"
}

// ActionResult is what an Action hands back to the router.
type ActionResult struct {
	Outcome Outcome
	// Display replaces <result> in the response template.
	Display string
}

// Action is an external side effect bound to a command, e.g. queueing a track.
type Action interface {
	Run(ctx context.Context, payload string) (ActionResult, error)
}

// ActionFunc adapts a function to Action.
type ActionFunc func(ctx context.Context, payload string) (ActionResult, error)

func (f ActionFunc) Run(ctx context.Context, payload string) (ActionResult, error) {
	return f(ctx, payload)
}
