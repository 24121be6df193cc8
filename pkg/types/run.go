package types

import "time"

// RunStatus is the lifecycle state of a Run.
type RunStatus string

const (
	RunRunning     RunStatus = "Running"     // RunRunning is set when the run is created.
	RunCompleted   RunStatus = "Completed"   // RunCompleted means every batch was dispatched.
	RunFailed      RunStatus = "Failed"      // RunFailed means a fatal error stopped the run.
	RunInterrupted RunStatus = "Interrupted" // RunInterrupted means the operator aborted the run.
)

// IsTerminal reports whether the status ends a run.
func (s RunStatus) IsTerminal() bool {
	return s == RunCompleted || s == RunFailed || s == RunInterrupted
}

// Run is one execution of the engine over a source list.
type Run struct {
	ID       int64
	FileName string
	Status   RunStatus

	StartedAt time.Time
	EndedAt   *time.Time

	// Error is empty when the run ended without an error message.
	Error string

	// LastProcessedRow is the index of the last row recorded, or -1.
	LastProcessedRow int
}

// RunResult is what the controller reports once a run reaches a terminal status.
type RunResult struct {
	RunID   int64
	Status  RunStatus
	Message string

	Dispatched int
	Sent       int
	Skipped    int
	Failed     int

	StartedAt time.Time
	EndedAt   time.Time
}

// Success reports whether the run completed.
func (r *RunResult) Success() bool {
	return r.Status == RunCompleted
}
