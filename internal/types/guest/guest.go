package guest

import "time"

// Credential is what we can extract from a scanned check-in QR before
// talking to Lu.ma. The public key is the stable lookup key, never the email.
type Credential struct {
	EventID   string `json:"event_id"`
	PublicKey string `json:"public_key"`
	RawURL    string `json:"-"`
}

// Identity is the guest as Lu.ma knows them. Only populated after a
// successful provider call that returned an email.
type Identity struct {
	Email          string     `json:"email"`
	Name           string     `json:"name"`
	ApprovalStatus string     `json:"approval_status"`
	CheckedInAt    *time.Time `json:"checked_in_at,omitempty"`
	TicketName     string     `json:"ticket_name"`
}
