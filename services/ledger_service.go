package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"drinkPassAPI/internal/ledgerstore"
	"drinkPassAPI/internal/types/entitlement"
	"drinkPassAPI/internal/types/guest"
)

var (
	// ErrRecordVanished: the entitlement record disappeared between lookup
	// and redemption. Surfaced to the operator, never retried.
	ErrRecordVanished = errors.New("entitlement record no longer exists")

	// ErrAlreadyExhausted: the counter for the requested kind is at zero.
	// Raised both by the caller-side pre-check and by the store's atomic
	// decrement, so a race between two terminals still cannot over-redeem.
	ErrAlreadyExhausted = errors.New("no entitlements of this kind remaining")

	// ErrLedgerWriteFailed: the store rejected the combined update. The
	// scan aborts with no counter change.
	ErrLedgerWriteFailed = errors.New("failed to write entitlement record")
)

// LedgerService owns entitlement records: one per public key, created on
// first scan with the configured limits, decremented once per redemption.
type LedgerService struct {
	store  ledgerstore.Store
	limits entitlement.Limits
}

func NewLedgerService(store ledgerstore.Store, limits entitlement.Limits) *LedgerService {
	return &LedgerService{store: store, limits: limits}
}

// FindOrCreate returns the guest's record, creating it with full counters
// on first sight of the public key. Repeat scans never overwrite identity
// fields or counters, even when the provider reports different details.
func (s *LedgerService) FindOrCreate(ctx context.Context, cred *guest.Credential, identity *guest.Identity) (*entitlement.Record, bool, error) {
	rec := &entitlement.Record{
		PublicKey:       cred.PublicKey,
		EventID:         cred.EventID,
		Email:           identity.Email,
		AttendeeName:    identity.Name,
		RemainingDrinks: s.limits.Drinks,
		RemainingMeals:  s.limits.Meals,
		LumaVerified:    true,
		CreatedAt:       time.Now().UTC(),
	}

	stored, created, err := s.store.FindOrCreate(ctx, rec)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrLedgerWriteFailed, err)
	}
	if created {
		log.Printf("Ledger: created entitlement record %s for %s (%d drinks, %d meals)",
			stored.ID, stored.Email, stored.RemainingDrinks, stored.RemainingMeals)
	}
	return stored, created, nil
}

// Redeem takes one unit of kind off the record. The store re-reads the
// record inside its transaction, so the decision runs against fresh state,
// not the possibly stale copy the caller holds.
func (s *LedgerService) Redeem(ctx context.Context, recordID string, kind entitlement.Kind) (*entitlement.Record, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("invalid redemption kind %q", kind)
	}

	rec, err := s.store.Decrement(ctx, recordID, kind, time.Now().UTC())
	if err != nil {
		switch {
		case errors.Is(err, ledgerstore.ErrRecordVanished):
			return nil, ErrRecordVanished
		case errors.Is(err, ledgerstore.ErrExhausted):
			return nil, ErrAlreadyExhausted
		default:
			return nil, fmt.Errorf("%w: %v", ErrLedgerWriteFailed, err)
		}
	}
	return rec, nil
}
