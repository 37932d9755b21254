package app

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
)

// State is the process lifecycle phase.
type State int32

const (
	Running State = iota
	ShuttingDown
	Stopped
)

func (s State) String() string {
	switch s {
	case Running:
		return "running"
	case ShuttingDown:
		return "shutting_down"
	case Stopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Coordinator owns the single shutdown signal. Begin is idempotent: the
// first call stops the HTTP listener and cancels the signal; later calls
// return the first call's result.
type Coordinator struct {
	state    atomic.Int32
	once     sync.Once
	ctx      context.Context
	cancel   context.CancelFunc
	stopHTTP func(context.Context) error
	httpErr  error
}

// NewCoordinator derives the shutdown signal from parent. stopHTTP may be nil.
func NewCoordinator(parent context.Context, stopHTTP func(context.Context) error) *Coordinator {
	ctx, cancel := context.WithCancel(parent)
	return &Coordinator{ctx: ctx, cancel: cancel, stopHTTP: stopHTTP}
}

// Context is done once shutdown has begun or parent is done. Every loop
// observes it between operations.
func (c *Coordinator) Context() context.Context { return c.ctx }

// State returns the current phase.
func (c *Coordinator) State() State { return State(c.state.Load()) }

// ShuttingDown reports whether Begin has been called.
func (c *Coordinator) ShuttingDown() bool { return c.State() != Running }

// Begin moves Running to ShuttingDown exactly once.
func (c *Coordinator) Begin(ctx context.Context) error {
	c.once.Do(func() {
		c.state.Store(int32(ShuttingDown))
		slog.Info("shutting down", slog.String("component", "app"))
		if c.stopHTTP != nil {
			c.httpErr = c.stopHTTP(ctx)
		}
		c.cancel()
	})
	return c.httpErr
}

// finish records that every task has returned.
func (c *Coordinator) finish() {
	c.cancel()
	c.state.Store(int32(Stopped))
}
