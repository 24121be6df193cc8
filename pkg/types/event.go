package types

import "time"

// RunEventType defines the type of progress event emitted during a run.
type RunEventType string

const (
	EventTypeRunStart       RunEventType = "run_start"       // EventTypeRunStart indicates a run was created in the ledger.
	EventTypeBatchStart     RunEventType = "batch_start"     // EventTypeBatchStart indicates a batch is being dispatched.
	EventTypeBatchSkipped   RunEventType = "batch_skipped"   // EventTypeBatchSkipped indicates a batch exhausted its retries.
	EventTypeRowOutcome     RunEventType = "row_outcome"     // EventTypeRowOutcome indicates a row reached a terminal status.
	EventTypeQuotaExhausted RunEventType = "quota_exhausted" // EventTypeQuotaExhausted indicates the run is waiting for the next daily window.
	EventTypeGateWaiting    RunEventType = "gate_waiting"    // EventTypeGateWaiting indicates the operator must confirm or skip a send.
	EventTypeRunEnd         RunEventType = "run_end"         // EventTypeRunEnd indicates the run reached a terminal status.
)

// RunEvent is a progress notification. Listeners must not block.
type RunEvent struct {
	Type RunEventType
	Time time.Time

	RunID int64

	// Batch is the zero-based batch number for batch events.
	Batch int

	// Row is set for row and gate events.
	Row *ProfileRow

	// Record is set for row outcome events.
	Record *EmailRecord

	// Until is the resume time for quota events.
	Until time.Time

	// Result is set for run end events.
	Result *RunResult

	Message string
}

// EventListener receives run events on the worker goroutine.
type EventListener func(event *RunEvent)
