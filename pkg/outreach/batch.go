package outreach

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/entrhq/inreach/pkg/clock"
	"github.com/entrhq/inreach/pkg/gate"
	"github.com/entrhq/inreach/pkg/logging"
	"github.com/entrhq/inreach/pkg/types"
)

// BatchProcessor runs a contiguous slice of rows on one browser session.
type BatchProcessor struct {
	sessions   SessionFactory
	gates      GateFactory
	interactor Interactor
	records    RecordWriter
	clock      clock.Clock
	logger     *logging.Logger
	emit       func(*types.RunEvent)
}

// NewBatchProcessor creates a BatchProcessor. gates may be nil to disable
// human gating; emit may be nil.
func NewBatchProcessor(sessions SessionFactory, gates GateFactory, interactor Interactor, records RecordWriter, clk clock.Clock, logger *logging.Logger, emit func(*types.RunEvent)) *BatchProcessor {
	if clk == nil {
		clk = clock.Real{}
	}
	if logger == nil {
		logger = logging.Discard()
	}
	if emit == nil {
		emit = func(*types.RunEvent) {}
	}
	return &BatchProcessor{
		sessions:   sessions,
		gates:      gates,
		interactor: interactor,
		records:    records,
		clock:      clk,
		logger:     logger,
		emit:       emit,
	}
}

// Process opens a session and processes rows in order, recording exactly one
// outcome per row. It returns how many rows were recorded. The session is
// closed on every path.
//
// Errors: ErrLaunch when no session could be opened, ErrSession when the
// session died (rows after the last recorded one were not attempted), and
// ErrLedger when a record could not be written.
func (b *BatchProcessor) Process(ctx context.Context, runID int64, batch int, rows []types.ProfileRow) (processed int, err error) {
	sess, err := b.sessions.Open(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrLaunch, err)
	}
	defer func() {
		if closeErr := sess.Close(); closeErr != nil {
			b.logger.Warnf("batch %d: closing session: %v", batch, closeErr)
		}
	}()

	var hg HumanGate
	if b.gates != nil {
		hg, err = b.gates(sess)
		if err != nil {
			return 0, fmt.Errorf("%w: install gate: %w", ErrSession, err)
		}
	}

	for _, row := range rows {
		outcome, rowErr := b.processRow(ctx, sess, b.announce(runID, batch, row, hg), row)

		rec := types.NewEmailRecord(runID, row, outcome, b.clock.Now())
		if err := b.records.RecordEmail(ctx, rec); err != nil {
			return processed, fmt.Errorf("%w: row %d: %w", ErrLedger, row.Index, err)
		}
		processed++
		b.logger.Infof("batch %d row %d (%s): %s %s", batch, row.Index, row.DisplayName(), rec.Status, rec.Error)
		b.emit(&types.RunEvent{Type: types.EventTypeRowOutcome, RunID: runID, Batch: batch, Row: &row, Record: rec})

		if rowErr == nil {
			continue
		}
		if IsSessionError(rowErr) {
			return processed, fmt.Errorf("%w: row %d: %w", ErrSession, row.Index, rowErr)
		}

		// a row that raised may have left the page mid-flow
		if resetErr := sess.Reset(); resetErr != nil {
			if IsSessionError(resetErr) {
				return processed, fmt.Errorf("%w: reset after row %d: %w", ErrSession, row.Index, resetErr)
			}
			b.logger.Warnf("batch %d: page reset after row %d failed: %v", batch, row.Index, resetErr)
		}
	}
	return processed, nil
}

// processRow runs the interactor and turns errors and panics into a Failed
// outcome. The error is returned so the caller can decide how to recover.
func (b *BatchProcessor) processRow(ctx context.Context, sess Session, hg HumanGate, row types.ProfileRow) (outcome types.Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Errorf("row %d panicked: %v\n%s", row.Index, r, debug.Stack())
			err = fmt.Errorf("panic: %v", r)
			outcome = types.FailedOutcome(types.ReasonPanic, err.Error(), outcome.Draft)
		}
	}()

	outcome, err = b.interactor.Process(ctx, sess, hg, row)
	if err != nil && outcome.Status != types.EmailFailed {
		outcome = types.FailedOutcome(reasonFor(err), err.Error(), outcome.Draft)
	}
	return outcome, err
}

// announce wraps the gate so a gate_waiting event is emitted for this row
func (b *BatchProcessor) announce(runID int64, batch int, row types.ProfileRow, hg HumanGate) HumanGate {
	if hg == nil {
		return nil
	}
	return &announcingGate{
		HumanGate: hg,
		notify: func() {
			b.emit(&types.RunEvent{Type: types.EventTypeGateWaiting, RunID: runID, Batch: batch, Row: &row})
		},
	}
}

type announcingGate struct {
	HumanGate
	notify func()
}

func (g *announcingGate) Await(ctx context.Context, timeout time.Duration) (gate.Result, error) {
	g.notify()
	return g.HumanGate.Await(ctx, timeout)
}

// isFatal reports errors that must stop the run rather than the batch.
func isFatal(err error) bool {
	return errors.Is(err, ErrLaunch) || errors.Is(err, ErrLedger)
}
