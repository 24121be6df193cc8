package types

import "time"

// EmailStatus is the terminal status of one processed row.
type EmailStatus string

const (
	EmailSent    EmailStatus = "Sent"    // EmailSent means the send control was clicked.
	EmailSkipped EmailStatus = "Skipped" // EmailSkipped means the row was deliberately not sent.
	EmailFailed  EmailStatus = "Failed"  // EmailFailed means a step failed.
)

// Reason tags why a row ended the way it did, so history can be filtered by
// remediation.
type Reason string

const (
	ReasonNone                Reason = ""
	ReasonNavigation          Reason = "navigation"
	ReasonGeneration          Reason = "generation"
	ReasonResolution          Reason = "resolution"
	ReasonNoRecipientChannel  Reason = "no_recipient_channel"
	ReasonUserSkipped         Reason = "user_skipped"
	ReasonUnrecognizedKey     Reason = "unrecognized_key"
	ReasonTimeout             Reason = "timeout"
	ReasonSendControlDisabled Reason = "send_control_disabled"
	ReasonUIState             Reason = "ui_state"
	ReasonSession             Reason = "session"
	ReasonPanic               Reason = "panic"
)

// Outcome is the tagged result of processing one profile.
type Outcome struct {
	Status  EmailStatus
	Reason  Reason
	Message string
	Draft   Draft
}

// SentOutcome builds a successful outcome.
func SentOutcome(draft Draft) Outcome {
	return Outcome{Status: EmailSent, Draft: draft}
}

// SkippedOutcome builds a skipped outcome.
func SkippedOutcome(reason Reason, message string, draft Draft) Outcome {
	return Outcome{Status: EmailSkipped, Reason: reason, Message: message, Draft: draft}
}

// FailedOutcome builds a failed outcome.
func FailedOutcome(reason Reason, message string, draft Draft) Outcome {
	return Outcome{Status: EmailFailed, Reason: reason, Message: message, Draft: draft}
}

// EmailRecord is the append-only audit entry for one processed row.
type EmailRecord struct {
	ID         int64
	RunID      int64
	RowIndex   int
	ProfileURL string
	Subject    string
	Body       string
	Status     EmailStatus
	Reason     Reason
	Error      string
	CreatedAt  time.Time
}

// NewEmailRecord converts an outcome for a row into its audit record.
func NewEmailRecord(runID int64, row ProfileRow, outcome Outcome, at time.Time) *EmailRecord {
	return &EmailRecord{
		RunID:      runID,
		RowIndex:   row.Index,
		ProfileURL: row.ProfileURL,
		Subject:    outcome.Draft.Subject,
		Body:       outcome.Draft.Body,
		Status:     outcome.Status,
		Reason:     outcome.Reason,
		Error:      outcome.Message,
		CreatedAt:  at,
	}
}
