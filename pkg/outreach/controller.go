package outreach

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"

	"github.com/entrhq/inreach/pkg/clock"
	"github.com/entrhq/inreach/pkg/config"
	"github.com/entrhq/inreach/pkg/logging"
	"github.com/entrhq/inreach/pkg/types"
)

// Dependencies are the collaborators a Controller drives.
type Dependencies struct {
	Ledger     Ledger
	Limiter    QuotaLimiter
	Sessions   SessionFactory
	Interactor Interactor

	// Gates is only used when the gate is enabled in the config.
	Gates GateFactory

	Clock  clock.Clock
	Logger *logging.Logger
}

// Option configures a Controller.
type Option func(*Controller)

// WithListener registers a progress listener. Listeners run on the worker
// goroutine and must not block.
func WithListener(l types.EventListener) Option {
	return func(c *Controller) {
		c.listeners = append(c.listeners, l)
	}
}

// WithArtifacts writes a JSON and markdown summary when a run ends.
func WithArtifacts(w *ArtifactWriter) Option {
	return func(c *Controller) {
		c.artifacts = w
	}
}

// Controller runs a list of rows to a terminal Run status.
type Controller struct {
	cfg        *config.Config
	ledger     Ledger
	limiter    QuotaLimiter
	sessions   SessionFactory
	gates      GateFactory
	interactor Interactor
	clock      clock.Clock
	logger     *logging.Logger
	listeners  []types.EventListener
	artifacts  *ArtifactWriter
}

// NewController creates a Controller.
func NewController(cfg *config.Config, deps Dependencies, opts ...Option) (*Controller, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	switch {
	case deps.Ledger == nil:
		return nil, errors.New("ledger is required")
	case deps.Limiter == nil:
		return nil, errors.New("rate limiter is required")
	case deps.Sessions == nil:
		return nil, errors.New("session factory is required")
	case deps.Interactor == nil:
		return nil, errors.New("interactor is required")
	case cfg.Gate.Enabled && deps.Gates == nil:
		return nil, errors.New("gate factory is required when the gate is enabled")
	}

	c := &Controller{
		cfg:        cfg,
		ledger:     deps.Ledger,
		limiter:    deps.Limiter,
		sessions:   deps.Sessions,
		interactor: deps.Interactor,
		clock:      deps.Clock,
		logger:     deps.Logger,
	}
	if cfg.Gate.Enabled {
		c.gates = deps.Gates
	}
	if c.clock == nil {
		c.clock = clock.Real{}
	}
	if c.logger == nil {
		c.logger = logging.Discard()
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Start runs the rows on a new goroutine and calls onComplete exactly once
// with the result. The returned channel is closed after onComplete returns.
func (c *Controller) Start(ctx context.Context, source string, rows []types.ProfileRow, onComplete CompletionFunc) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		result := c.Run(ctx, source, rows)
		if onComplete != nil {
			onComplete(result)
		}
	}()
	return done
}

// runState accumulates what happened during one run
type runState struct {
	result  *types.RunResult
	records []*types.EmailRecord
	batches int
	skipped int
	waits   int
}

// Run processes rows in batches until they are all dispatched, the context is
// cancelled, or a fatal error occurs. It blocks through quota waits. The
// terminal status is written to the ledger exactly once, unless the run could
// not be created at all.
func (c *Controller) Run(ctx context.Context, source string, rows []types.ProfileRow) (result *types.RunResult) {
	st := &runState{result: &types.RunResult{StartedAt: c.clock.Now()}}
	result = st.result

	pending, err := c.pendingRows(ctx, source, rows)
	if err != nil {
		return c.abort(st, fmt.Errorf("%w: %w", ErrLedger, err))
	}

	runID, err := c.ledger.StartRun(ctx, source)
	if err != nil {
		return c.abort(st, fmt.Errorf("%w: start run: %w", ErrLedger, err))
	}
	result.RunID = runID
	c.logger.Infof("run %d started for %s: %d rows pending", runID, source, len(pending))
	c.emit(st, &types.RunEvent{Type: types.EventTypeRunStart, RunID: runID, Message: source})

	var runErr error
	func() {
		defer func() {
			if r := recover(); r != nil {
				c.logger.Errorf("run %d panicked: %v\n%s", runID, r, debug.Stack())
				runErr = fmt.Errorf("panic: %v", r)
				result.Status = types.RunFailed
			}
		}()
		result.Status, runErr = c.dispatch(ctx, st, runID, pending)
	}()

	c.finish(ctx, st, source, runErr)
	return result
}

// pendingRows drops rows already recorded by an earlier run when resuming.
func (c *Controller) pendingRows(ctx context.Context, source string, rows []types.ProfileRow) ([]types.ProfileRow, error) {
	if !c.cfg.Run.Resume {
		return rows, nil
	}
	last, err := c.ledger.LastProcessedRow(ctx, source)
	if err != nil {
		return nil, fmt.Errorf("resume: %w", err)
	}
	if last < 0 {
		return rows, nil
	}

	pending := make([]types.ProfileRow, 0, len(rows))
	for _, row := range rows {
		if row.Index > last {
			pending = append(pending, row)
		}
	}
	c.logger.Infof("resuming %s after row %d: %d of %d rows left", source, last, len(pending), len(rows))
	return pending, nil
}

// dispatch walks the pending rows batch by batch and reports the terminal status.
func (c *Controller) dispatch(ctx context.Context, st *runState, runID int64, pending []types.ProfileRow) (types.RunStatus, error) {
	processor := NewBatchProcessor(c.sessions, c.gates, c.interactor, c.ledger, c.clock, c.logger.With("batch"), c.emitter(st))
	governor := NewRetryGovernor(c.cfg.Run.MaxRetries, c.cfg.Run.RetryBackoff, c.clock, c.logger.With("retry"), c.emitter(st))

	batchSize := c.cfg.Run.BatchSize
	if batchSize < 1 {
		batchSize = 1
	}

	for len(pending) > 0 {
		if ctx.Err() != nil {
			return types.RunInterrupted, nil
		}

		allowed, err := c.limiter.Reserve(ctx, min(batchSize, len(pending)))
		if err != nil {
			if ctx.Err() != nil {
				return types.RunInterrupted, nil
			}
			return types.RunFailed, fmt.Errorf("%w: quota: %w", ErrLedger, err)
		}
		if allowed == 0 {
			until := c.limiter.NextWindow()
			st.waits++
			c.logger.Infof("run %d: daily quota exhausted, waiting until %s", runID, until.Format("2006-01-02 15:04"))
			c.emit(st, &types.RunEvent{Type: types.EventTypeQuotaExhausted, RunID: runID, Until: until})
			if _, err := c.limiter.WaitForNextWindow(ctx); err != nil {
				return types.RunInterrupted, nil
			}
			continue
		}

		rows := pending[:allowed]
		pending = pending[allowed:]
		batch := st.batches
		st.batches++
		st.result.Dispatched += len(rows)

		c.logger.Infof("run %d: batch %d with rows %d-%d", runID, batch, rows[0].Index, rows[len(rows)-1].Index)
		c.emit(st, &types.RunEvent{Type: types.EventTypeBatchStart, RunID: runID, Batch: batch})

		// rows recorded by earlier attempts are not processed again
		offset := 0
		err = governor.Run(ctx, runID, batch, func(ctx context.Context) error {
			n, err := processor.Process(context.WithoutCancel(ctx), runID, batch, rows[offset:])
			offset += n
			if offset >= len(rows) {
				return nil
			}
			return err
		})
		if err != nil {
			if isFatal(err) {
				return types.RunFailed, err
			}
			// anything else is confined to the batch
			c.logger.Errorf("run %d: batch %d failed: %v", runID, batch, err)
		}
		if offset < len(rows) {
			st.skipped++
		}
	}

	return types.RunCompleted, nil
}

// finish writes the terminal status, the artifacts and the run_end event.
func (c *Controller) finish(ctx context.Context, st *runState, source string, runErr error) {
	result := st.result
	result.EndedAt = c.clock.Now()
	result.Message = c.message(st, runErr)

	errMsg := ""
	if result.Status != types.RunCompleted {
		errMsg = result.Message
	}
	if err := c.ledger.EndRun(context.WithoutCancel(ctx), result.RunID, result.Status, errMsg); err != nil {
		c.logger.Errorf("run %d: writing terminal status: %v", result.RunID, err)
		if result.Status != types.RunFailed {
			result.Status = types.RunFailed
			result.Message = fmt.Sprintf("%s (ledger: %v)", result.Message, err)
		}
	}

	c.logger.Infof("run %d %s: %s", result.RunID, result.Status, result.Message)
	c.writeArtifacts(st, source)
	c.emit(st, &types.RunEvent{Type: types.EventTypeRunEnd, RunID: result.RunID, Result: result, Message: result.Message})
}

func (c *Controller) message(st *runState, runErr error) string {
	r := st.result
	tally := fmt.Sprintf("%d sent, %d skipped, %d failed", r.Sent, r.Skipped, r.Failed)
	switch r.Status {
	case types.RunCompleted:
		if st.skipped > 0 {
			return fmt.Sprintf("processed %d rows (%s); %d batches skipped", r.Sent+r.Skipped+r.Failed, tally, st.skipped)
		}
		return fmt.Sprintf("processed %d rows (%s)", r.Sent+r.Skipped+r.Failed, tally)
	case types.RunInterrupted:
		return fmt.Sprintf("interrupted after %d rows (%s)", r.Sent+r.Skipped+r.Failed, tally)
	default:
		if runErr == nil {
			return "run failed: " + tally
		}
		return fmt.Sprintf("%v (%s)", runErr, tally)
	}
}

// abort ends a run that never reached the ledger.
func (c *Controller) abort(st *runState, err error) *types.RunResult {
	st.result.Status = types.RunFailed
	st.result.EndedAt = c.clock.Now()
	st.result.Message = err.Error()
	c.logger.Errorf("run not started: %v", err)
	c.emit(st, &types.RunEvent{Type: types.EventTypeRunEnd, Result: st.result, Message: st.result.Message})
	return st.result
}

func (c *Controller) writeArtifacts(st *runState, source string) {
	if c.artifacts == nil {
		return
	}
	r := st.result
	summary := &RunSummary{
		RunID:     r.RunID,
		FileName:  source,
		Status:    r.Status,
		Message:   r.Message,
		StartTime: r.StartedAt,
		EndTime:   r.EndedAt,
		Duration:  r.EndedAt.Sub(r.StartedAt),
		Metrics: RunMetrics{
			Dispatched:     r.Dispatched,
			Sent:           r.Sent,
			Skipped:        r.Skipped,
			Failed:         r.Failed,
			Batches:        st.batches,
			SkippedBatches: st.skipped,
			QuotaWaits:     st.waits,
		},
	}
	for _, rec := range st.records {
		summary.Records = append(summary.Records, RecordSummary{
			RowIndex:   rec.RowIndex,
			ProfileURL: rec.ProfileURL,
			Status:     rec.Status,
			Reason:     rec.Reason,
			Error:      rec.Error,
		})
	}
	if err := c.artifacts.WriteAll(summary); err != nil {
		c.logger.Warnf("run %d: writing artifacts: %v", r.RunID, err)
	}
}

func (c *Controller) emitter(st *runState) func(*types.RunEvent) {
	return func(event *types.RunEvent) {
		c.emit(st, event)
	}
}

// emit tallies row outcomes and fans the event out to listeners.
func (c *Controller) emit(st *runState, event *types.RunEvent) {
	if event.Time.IsZero() {
		event.Time = c.clock.Now()
	}
	if event.Type == types.EventTypeRowOutcome && event.Record != nil {
		st.records = append(st.records, event.Record)
		switch event.Record.Status {
		case types.EmailSent:
			st.result.Sent++
		case types.EmailSkipped:
			st.result.Skipped++
		default:
			st.result.Failed++
		}
	}
	for _, l := range c.listeners {
		l(event)
	}
}
