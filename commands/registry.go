package commands

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/onnwee/happye-bot/telemetry"
)

// Registry maps lower-case command names to commands. One instance is built at
// startup and shared by every goroutine that routes chat.
type Registry struct {
	mu   sync.Mutex
	cmds map[string]*Command
	now  func() time.Time
}

// Option customizes a Registry.
type Option func(*Registry)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option { return func(r *Registry) { r.now = now } }

// NewRegistry builds a registry from cmds. Names are normalized to lower case;
// duplicates and names without the ! marker are rejected.
func NewRegistry(cmds []Command, opts ...Option) (*Registry, error) {
	r := &Registry{cmds: make(map[string]*Command, len(cmds)), now: time.Now}
	for _, o := range opts {
		o(r)
	}
	for _, c := range cmds {
		if err := r.add(c); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Registry) add(c Command) error {
	name := strings.ToLower(strings.TrimSpace(c.Name))
	if !strings.HasPrefix(name, "!") || len(name) < 2 || strings.ContainsAny(name, " \t") {
		return fmt.Errorf("invalid command name %q", c.Name)
	}
	if c.Cooldown < 0 {
		return fmt.Errorf("command %s: negative cooldown", name)
	}
	if _, dup := r.cmds[name]; dup {
		return fmt.Errorf("duplicate command %s", name)
	}
	c.Name = name
	r.cmds[name] = &c
	return nil
}

// Lookup returns a copy of the named command if it may fire now, recording the
// invocation. A command that requires arguments is returned without touching
// its cooldown when argsProvided is false, so usage text is never rate limited.
// A command still cooling down is reported absent.
func (r *Registry) Lookup(name string, argsProvided bool) (Command, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.cmds[name]
	if !ok {
		return Command{}, false
	}
	if c.RequiresArgs && !argsProvided {
		return c.copy(), true
	}
	now := r.now()
	if c.Cooldown == 0 || c.LastInvoked == nil || !now.Before(c.LastInvoked.Add(c.Cooldown)) {
		// LastInvoked never moves backwards
		if c.LastInvoked == nil || !now.Before(*c.LastInvoked) {
			c.LastInvoked = &now
		}
		return c.copy(), true
	}
	telemetry.CommandCoolingDown(name)
	slog.Debug("command on cooldown",
		slog.String("component", "commands"),
		slog.String("command", name),
		slog.Duration("remaining", c.LastInvoked.Add(c.Cooldown).Sub(now)))
	return Command{}, false
}

// Names lists the registered commands in sorted order.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.cmds))
	for n := range r.cmds {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

func (c *Command) copy() Command {
	out := *c
	if c.LastInvoked != nil {
		t := *c.LastInvoked
		out.LastInvoked = &t
	}
	return out
}
