package outreach

import (
	"errors"

	"github.com/entrhq/inreach/pkg/browser"
	"github.com/entrhq/inreach/pkg/types"
)

// Row-scoped errors. They end one row and are recorded; the batch continues.
var (
	ErrNavigation  = errors.New("navigation failed")
	ErrGeneration  = errors.New("generation failed")
	ErrResolution  = errors.New("resolution failed")
	ErrNoRecipient = errors.New("no recipient channel")
	ErrUIState     = errors.New("unexpected composer state")
)

// Batch- and run-scoped errors.
var (
	// ErrSession means the browser session died. The batch is retried.
	ErrSession = errors.New("browser session failure")

	// ErrLaunch means no session could be opened. The run fails.
	ErrLaunch = errors.New("browser session launch failed")

	// ErrLedger means an outcome could not be persisted. The run fails,
	// because continuing would leave rows without an audit record.
	ErrLedger = errors.New("ledger write failed")
)

// IsSessionError reports whether err means the browser session is unusable.
func IsSessionError(err error) bool {
	return errors.Is(err, ErrSession) || errors.Is(err, browser.ErrSessionLost)
}

// reasonFor maps an error to the record reason operators filter history by.
func reasonFor(err error) types.Reason {
	switch {
	case IsSessionError(err):
		return types.ReasonSession
	case errors.Is(err, ErrNavigation):
		return types.ReasonNavigation
	case errors.Is(err, ErrGeneration):
		return types.ReasonGeneration
	case errors.Is(err, ErrResolution):
		return types.ReasonResolution
	case errors.Is(err, ErrNoRecipient):
		return types.ReasonNoRecipientChannel
	default:
		return types.ReasonUIState
	}
}
