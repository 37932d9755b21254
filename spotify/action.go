package spotify

import (
	"context"
	"fmt"

	"github.com/onnwee/happye-bot/commands"
)

// Searcher is the part of Client the queue action uses.
type Searcher interface {
	Search(ctx context.Context, query string, limit int) ([]Track, error)
	Queue(ctx context.Context, uri string) error
}

// QueueAction searches for the payload and queues the first hit.
type QueueAction struct {
	Client Searcher
}

// Run reports OutcomeEmpty when the search finds nothing; search and queue
// failures are returned as errors.
func (a *QueueAction) Run(ctx context.Context, payload string) (commands.ActionResult, error) {
	tracks, err := a.Client.Search(ctx, payload, 1)
	if err != nil {
		return commands.ActionResult{}, fmt.Errorf("search %q: %w", payload, err)
	}
	if len(tracks) == 0 {
		return commands.ActionResult{Outcome: commands.OutcomeEmpty}, nil
	}
	tr := tracks[0]
	if err := a.Client.Queue(ctx, tr.URI); err != nil {
		return commands.ActionResult{}, fmt.Errorf("queue %s: %w", tr.URI, err)
	}
	return commands.ActionResult{Outcome: commands.OutcomeFound, Display: tr.String()}, nil
}
