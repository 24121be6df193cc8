package outreach

import (
	"context"
	"fmt"
	"time"

	"github.com/entrhq/inreach/pkg/clock"
	"github.com/entrhq/inreach/pkg/logging"
	"github.com/entrhq/inreach/pkg/types"
)

// RetryGovernor retries a batch after session failures.
type RetryGovernor struct {
	maxRetries int
	backoff    time.Duration
	clock      clock.Clock
	logger     *logging.Logger
	emit       func(*types.RunEvent)
}

// NewRetryGovernor creates a governor making at most maxRetries attempts per
// batch, sleeping backoff between attempts.
func NewRetryGovernor(maxRetries int, backoff time.Duration, clk clock.Clock, logger *logging.Logger, emit func(*types.RunEvent)) *RetryGovernor {
	if maxRetries < 1 {
		maxRetries = 1
	}
	if clk == nil {
		clk = clock.Real{}
	}
	if logger == nil {
		logger = logging.Discard()
	}
	if emit == nil {
		emit = func(*types.RunEvent) {}
	}
	return &RetryGovernor{
		maxRetries: maxRetries,
		backoff:    backoff,
		clock:      clk,
		logger:     logger,
		emit:       emit,
	}
}

// Run calls attempt until it succeeds or the retries are used up.
//
// Only session errors are retried. When every attempt fails that way the
// batch is logged as skipped and Run returns nil, so one unhealthy batch does
// not end the run. Launch and ledger failures, and any other error, are
// returned at once. A cancelled ctx stops further attempts without an error;
// the caller observes the cancellation itself.
func (g *RetryGovernor) Run(ctx context.Context, runID int64, batch int, attempt func(ctx context.Context) error) error {
	var lastErr error
	for n := 1; n <= g.maxRetries; n++ {
		if n > 1 {
			if ctx.Err() != nil {
				g.logger.Warnf("batch %d: not retrying, run interrupted", batch)
				return nil
			}
			if err := g.clock.Sleep(ctx, g.backoff); err != nil {
				return nil
			}
		}

		err := attempt(ctx)
		if err == nil {
			return nil
		}
		if isFatal(err) || !IsSessionError(err) {
			return err
		}

		lastErr = err
		g.logger.Warnf("batch %d: attempt %d/%d failed: %v", batch, n, g.maxRetries, err)
	}

	msg := fmt.Sprintf("batch %d skipped after %d attempts: %v", batch, g.maxRetries, lastErr)
	g.logger.Errorf("%s", msg)
	g.emit(&types.RunEvent{Type: types.EventTypeBatchSkipped, RunID: runID, Batch: batch, Message: msg})
	return nil
}
