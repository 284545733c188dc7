package scan

import (
	"time"

	"github.com/google/uuid"
)

// Outcome labels why a scan was accepted or rejected. One outcome per scan,
// written to the audit log and counted in metrics.
type Outcome string

const (
	OutcomeRedeemed           Outcome = "redeemed"
	OutcomeUnrecognizedFormat Outcome = "unrecognized_format"
	OutcomeEventMismatch      Outcome = "event_mismatch"
	OutcomeProviderUnavailable Outcome = "provider_unavailable"
	OutcomeGuestNotVerifiable Outcome = "guest_not_verifiable"
	OutcomeAlreadyExhausted   Outcome = "already_exhausted"
	OutcomeDuplicateScan      Outcome = "duplicate_scan"
	OutcomeRecordVanished     Outcome = "record_vanished"
	OutcomeLedgerWriteFailed  Outcome = "ledger_write_failed"
)

// Event is one row in the scan audit log.
type Event struct {
	ID             uuid.UUID `json:"id" db:"id"`
	TerminalID     string    `json:"terminal_id" db:"terminal_id"`
	PublicKey      string    `json:"public_key" db:"public_key"`
	EventID        string    `json:"event_id" db:"event_id"`
	Email          string    `json:"email" db:"email"`
	AttendeeName   string    `json:"attendee_name" db:"attendee_name"`
	Kind           string    `json:"kind" db:"kind"`
	Outcome        Outcome   `json:"outcome" db:"outcome"`
	LumaVerified   bool      `json:"luma_verified" db:"luma_verified"`
	RemainingAfter *int      `json:"remaining_after,omitempty" db:"remaining_after"`
	ScannedAt      time.Time `json:"scanned_at" db:"scanned_at"`
}
