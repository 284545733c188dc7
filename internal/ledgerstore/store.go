package ledgerstore

import (
	"context"
	"errors"
	"time"

	"drinkPassAPI/internal/types/entitlement"
)

var (
	// ErrRecordVanished means the record existed when the caller last saw
	// it but was gone at redemption time. Fatal for the scan.
	ErrRecordVanished = errors.New("ledgerstore: record vanished")

	// ErrExhausted means the counter was already at zero. The store never
	// writes in this case, so over-redemption cannot happen even when two
	// terminals race on the last item.
	ErrExhausted = errors.New("ledgerstore: no entitlements remaining")
)

// Store owns the persistent entitlement records. Both operations are
// atomic: FindOrCreate cannot double-insert a public key, and Decrement is
// a conditional read-modify-write that refuses to go below zero.
type Store interface {
	// FindOrCreate returns the record for rec.PublicKey, inserting rec
	// (with a fresh ID) if none exists. The bool reports whether an insert
	// happened. Existing records are returned untouched: identity fields
	// and counters are first-write-wins.
	FindOrCreate(ctx context.Context, rec *entitlement.Record) (*entitlement.Record, bool, error)

	// Decrement takes one unit of kind off the record, recording the
	// redemption type and timestamp in the same write.
	Decrement(ctx context.Context, id string, kind entitlement.Kind, now time.Time) (*entitlement.Record, error)
}
