package services

import (
	"context"
	"errors"
	"fmt"
	"log"

	"drinkPassAPI/internal/scanflow"
	"drinkPassAPI/internal/types/entitlement"
	"drinkPassAPI/internal/types/guest"
	"drinkPassAPI/internal/types/scan"
	"drinkPassAPI/middleware"
)

// POSService runs the scan pipeline: decode -> resolve identity ->
// find-or-create ledger record -> check remaining -> redeem. Each scan is
// strictly sequential; the per-terminal session keeps a second scan from
// starting while one is in flight.
type POSService struct {
	resolver *ResolverService
	ledger   *LedgerService
	dedup    *DedupService
	audit    *AuditService
	flow     *scanflow.Tracker
}

// ScanResult is what the operator sees after a successful redemption.
type ScanResult struct {
	Record   *entitlement.Record `json:"record"`
	Guest    *guest.Identity     `json:"guest"`
	NewGuest bool                `json:"new_guest"`
}

func NewPOSService(resolver *ResolverService, ledger *LedgerService, dedup *DedupService, audit *AuditService) *POSService {
	return &POSService{
		resolver: resolver,
		ledger:   ledger,
		dedup:    dedup,
		audit:    audit,
		flow:     scanflow.NewTracker(),
	}
}

// TerminalState reports the scan session state for one terminal. The UI
// only observes it, it drives nothing.
func (s *POSService) TerminalState(terminalID string) scanflow.State {
	return s.flow.Session(terminalID).State()
}

// ProcessScan handles one scanned QR on one terminal. Every error is
// terminal for this scan; nothing is retried automatically, and every
// outcome lands in the audit log.
func (s *POSService) ProcessScan(ctx context.Context, terminalID, scannedText string, kind entitlement.Kind) (*ScanResult, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("invalid redemption kind %q", kind)
	}

	sess := s.flow.Session(terminalID)
	if err := sess.Start(); err != nil {
		return nil, err
	}
	defer sess.Reset()

	ev := &scan.Event{TerminalID: terminalID, Kind: string(kind)}

	cred, err := s.resolver.ParseCredential(scannedText)
	if err != nil {
		var mismatch *EventMismatchError
		if errors.As(err, &mismatch) {
			ev.EventID = mismatch.ScannedEventID
			s.reject(ctx, ev, scan.OutcomeEventMismatch)
		} else {
			s.reject(ctx, ev, scan.OutcomeUnrecognizedFormat)
		}
		return nil, err
	}
	ev.PublicKey = cred.PublicKey
	ev.EventID = cred.EventID

	if err := s.dedup.Reserve(ctx, cred.PublicKey); err != nil {
		s.reject(ctx, ev, scan.OutcomeDuplicateScan)
		return nil, err
	}

	sess.Advance(scanflow.StateResolving)

	identity, err := s.resolver.ResolveIdentity(ctx, cred)
	if err != nil {
		s.dedup.Release(ctx, cred.PublicKey)
		if errors.Is(err, ErrGuestNotVerifiable) {
			s.reject(ctx, ev, scan.OutcomeGuestNotVerifiable)
		} else {
			s.reject(ctx, ev, scan.OutcomeProviderUnavailable)
		}
		return nil, err
	}
	ev.Email = identity.Email
	ev.AttendeeName = identity.Name
	ev.LumaVerified = true

	rec, created, err := s.ledger.FindOrCreate(ctx, cred, identity)
	if err != nil {
		s.dedup.Release(ctx, cred.PublicKey)
		s.reject(ctx, ev, scan.OutcomeLedgerWriteFailed)
		return nil, err
	}

	// Pre-check against the freshly returned record. An exhausted guest is
	// rejected here without touching Redeem; the store's conditional
	// decrement below is the backstop for the race this check leaves open.
	if rec.Remaining(kind) <= 0 {
		s.dedup.Release(ctx, cred.PublicKey)
		zero := 0
		ev.RemainingAfter = &zero
		s.reject(ctx, ev, scan.OutcomeAlreadyExhausted)
		return nil, ErrAlreadyExhausted
	}

	sess.Advance(scanflow.StateRedeeming)

	rec, err = s.ledger.Redeem(ctx, rec.ID, kind)
	if err != nil {
		s.dedup.Release(ctx, cred.PublicKey)
		switch {
		case errors.Is(err, ErrRecordVanished):
			s.reject(ctx, ev, scan.OutcomeRecordVanished)
		case errors.Is(err, ErrAlreadyExhausted):
			// Lost the race for the last unit to another terminal.
			zero := 0
			ev.RemainingAfter = &zero
			s.reject(ctx, ev, scan.OutcomeAlreadyExhausted)
		default:
			s.reject(ctx, ev, scan.OutcomeLedgerWriteFailed)
		}
		return nil, err
	}

	sess.Advance(scanflow.StateResult)

	remaining := rec.Remaining(kind)
	ev.RemainingAfter = &remaining
	ev.Outcome = scan.OutcomeRedeemed
	s.record(ctx, ev)
	middleware.RecordRedemption(string(kind))

	log.Printf("POS: redeemed 1 %s for %s (%d remaining)", kind, rec.Email, remaining)

	return &ScanResult{
		Record:   rec,
		Guest:    identity,
		NewGuest: created,
	}, nil
}

func (s *POSService) reject(ctx context.Context, ev *scan.Event, outcome scan.Outcome) {
	ev.Outcome = outcome
	s.record(ctx, ev)
}

func (s *POSService) record(ctx context.Context, ev *scan.Event) {
	middleware.RecordScanOutcome(string(ev.Outcome))
	if s.audit != nil {
		s.audit.Record(ctx, ev)
	}
}
