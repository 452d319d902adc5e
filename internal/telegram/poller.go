package telegram

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/hyperengineering/tally/internal/metrics"
)

// allowedUpdates is the update subscription: reaction transitions, poll
// answers, and messages (for commands). Anything else is never delivered.
var allowedUpdates = []string{"message", "message_reaction", "poll_answer"}

// UpdateHandler consumes one decoded update. Handler errors are logged by
// the poller, never fatal: one poisoned update must not stall the stream.
type UpdateHandler interface {
	HandleUpdate(ctx context.Context, upd Update)
}

// Poller drives the getUpdates long-poll loop and dispatches updates in
// arrival order. Single goroutine; ordering per chat is preserved by
// processing updates sequentially.
type Poller struct {
	client  *Client
	handler UpdateHandler
	timeout time.Duration
	offset  int64
}

// NewPoller creates a Poller. timeout is the long-poll window passed to
// getUpdates.
func NewPoller(client *Client, handler UpdateHandler, timeout time.Duration) *Poller {
	return &Poller{
		client:  client,
		handler: handler,
		timeout: timeout,
	}
}

// Run polls until the context is cancelled. Transient API failures back
// off exponentially and the loop resumes from the last confirmed offset,
// so no update is skipped across retries.
func (p *Poller) Run(ctx context.Context) error {
	for {
		updates, err := p.fetchWithRetry(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}

		for _, upd := range updates {
			p.handler.HandleUpdate(ctx, upd)
			if upd.UpdateID >= p.offset {
				p.offset = upd.UpdateID + 1
			}
		}
		metrics.PollCyclesTotal.Inc()

		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

// fetchWithRetry wraps one getUpdates call in an exponential backoff with
// jitter. Context cancellation aborts immediately.
func (p *Poller) fetchWithRetry(ctx context.Context) ([]Update, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Second
	b.MaxInterval = time.Minute
	b.MaxElapsedTime = 0 // retry until the context goes away

	var updates []Update
	operation := func() error {
		var err error
		updates, err = p.client.GetUpdates(ctx, p.offset, p.timeout, allowedUpdates)
		if err != nil {
			var apiErr *APIError
			if errors.As(err, &apiErr) && !apiErr.Retryable() {
				return backoff.Permanent(err)
			}
			return err
		}
		return nil
	}

	notify := func(err error, next time.Duration) {
		slog.Warn("getUpdates failed, retrying",
			"error", err,
			"next_retry_in", next,
			"offset", p.offset,
		)
	}

	if err := backoff.RetryNotify(operation, backoff.WithContext(b, ctx), notify); err != nil {
		return nil, err
	}
	return updates, nil
}
