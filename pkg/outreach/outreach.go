// Package outreach is the batch outreach engine.
//
// A Controller splits the input rows into batches, asks the rate limiter how
// many sends today's quota still allows, and hands each permitted batch to a
// RetryGovernor wrapping a BatchProcessor. The BatchProcessor opens one
// browser session, runs every row through the ProfileInteraction state
// machine, and writes exactly one EmailRecord per row to the ledger before
// moving on, whatever happened to the row.
//
//	Controller ──► RateLimiter
//	    │
//	    ▼
//	RetryGovernor ──► BatchProcessor (one session)
//	                      │
//	                      ▼
//	              ProfileInteraction per row ──► Generator, contact, HumanGate
//	                      │
//	                      ▼
//	                    Ledger
//
// Everything runs on one worker goroutine. Cancellation is checked between
// batches only, so a row that has started always reaches a record.
package outreach

import (
	"context"
	"time"

	"github.com/entrhq/inreach/pkg/browser"
	"github.com/entrhq/inreach/pkg/contact"
	"github.com/entrhq/inreach/pkg/gate"
	"github.com/entrhq/inreach/pkg/types"
)

// Session is one browser session owned by a single batch.
type Session interface {
	browser.Page
	browser.Scriptable
	Close() error
}

// SessionFactory opens browser sessions.
type SessionFactory interface {
	Open(ctx context.Context) (Session, error)
}

// HumanGate blocks before a send until the operator decides.
type HumanGate interface {
	Await(ctx context.Context, timeout time.Duration) (gate.Result, error)
}

// GateFactory installs a HumanGate on a freshly opened session.
type GateFactory func(sess Session) (HumanGate, error)

// ContentGenerator writes a draft from page text.
type ContentGenerator interface {
	Generate(ctx context.Context, rawText, instructions string) (types.Draft, error)
}

// ContactResolver finds the messaging identifier on a profile page.
type ContactResolver interface {
	ResolveMessagingID(ctx context.Context, page contact.HTMLSource) (string, error)
}

// ChannelSelector puts the open composer on the right send channel.
type ChannelSelector interface {
	Select(page browser.Page, row types.ProfileRow) (contact.Channel, error)
}

// Interactor processes one row on an open session. A returned error means the
// interaction could not reach a terminal state; the caller records it as
// Failed. gate is nil when human gating is off.
type Interactor interface {
	Process(ctx context.Context, sess Session, gate HumanGate, row types.ProfileRow) (types.Outcome, error)
}

// RecordWriter appends row outcomes.
type RecordWriter interface {
	RecordEmail(ctx context.Context, rec *types.EmailRecord) error
}

// Ledger is the persistence the controller needs.
type Ledger interface {
	RecordWriter
	StartRun(ctx context.Context, fileName string) (int64, error)
	EndRun(ctx context.Context, runID int64, status types.RunStatus, errMsg string) error
	LastProcessedRow(ctx context.Context, fileName string) (int, error)
}

// QuotaLimiter gates batches against the daily quota.
type QuotaLimiter interface {
	Reserve(ctx context.Context, n int) (int, error)
	NextWindow() time.Time
	WaitForNextWindow(ctx context.Context) (time.Time, error)
}

// CompletionFunc receives the run result exactly once.
type CompletionFunc func(result *types.RunResult)
