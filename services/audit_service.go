package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"drinkPassAPI/internal/types/scan"
)

// AuditService keeps the append-only scan log in Postgres. Every scan
// attempt lands here with its outcome, accepted or not. Audit failures are
// logged and swallowed: a redemption must never fail because the log did.
type AuditService struct {
	db *pgxpool.Pool
}

func NewAuditService(db *pgxpool.Pool) *AuditService {
	return &AuditService{db: db}
}

// EnsureSchema creates the scan_events table if it is missing. Called once
// at startup.
func (s *AuditService) EnsureSchema(ctx context.Context) error {
	query := `
	CREATE TABLE IF NOT EXISTS scan_events (
		id UUID PRIMARY KEY,
		terminal_id TEXT NOT NULL DEFAULT '',
		public_key TEXT NOT NULL DEFAULT '',
		event_id TEXT NOT NULL DEFAULT '',
		email TEXT NOT NULL DEFAULT '',
		attendee_name TEXT NOT NULL DEFAULT '',
		kind TEXT NOT NULL DEFAULT '',
		outcome TEXT NOT NULL,
		luma_verified BOOLEAN NOT NULL DEFAULT FALSE,
		remaining_after INTEGER,
		scanned_at TIMESTAMPTZ NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_scan_events_scanned_at ON scan_events (scanned_at DESC);
	`

	if _, err := s.db.Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to ensure scan_events schema: %w", err)
	}
	return nil
}

// Record appends one scan event. Best effort.
func (s *AuditService) Record(ctx context.Context, ev *scan.Event) {
	if ev.ID == uuid.Nil {
		ev.ID = uuid.New()
	}
	if ev.ScannedAt.IsZero() {
		ev.ScannedAt = time.Now().UTC()
	}

	query := `
	INSERT INTO scan_events (id, terminal_id, public_key, event_id, email, attendee_name, kind, outcome, luma_verified, remaining_after, scanned_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err := s.db.Exec(
		ctx,
		query,
		ev.ID,
		ev.TerminalID,
		ev.PublicKey,
		ev.EventID,
		ev.Email,
		ev.AttendeeName,
		ev.Kind,
		ev.Outcome,
		ev.LumaVerified,
		ev.RemainingAfter,
		ev.ScannedAt,
	)
	if err != nil {
		log.Printf("Audit: failed to record scan event for pk %s: %v", ev.PublicKey, err)
	}
}

// RecentScans returns the latest scan events, newest first.
func (s *AuditService) RecentScans(ctx context.Context, limit int) ([]*scan.Event, error) {
	if limit <= 0 {
		limit = 10
	}

	query := `
	SELECT id, terminal_id, public_key, event_id, email, attendee_name, kind, outcome, luma_verified, remaining_after, scanned_at
	FROM scan_events
	ORDER BY scanned_at DESC
	LIMIT $1
	`

	rows, err := s.db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load recent scans: %w", err)
	}
	defer rows.Close()

	var events []*scan.Event
	for rows.Next() {
		var ev scan.Event
		err := rows.Scan(
			&ev.ID,
			&ev.TerminalID,
			&ev.PublicKey,
			&ev.EventID,
			&ev.Email,
			&ev.AttendeeName,
			&ev.Kind,
			&ev.Outcome,
			&ev.LumaVerified,
			&ev.RemainingAfter,
			&ev.ScannedAt,
		)
		if err != nil {
			return nil, err
		}
		events = append(events, &ev)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return events, nil
}

// TodayCount returns how many redemptions succeeded since local midnight
// (the database's idea of today).
func (s *AuditService) TodayCount(ctx context.Context) (int, error) {
	query := `
	SELECT COUNT(*)
	FROM scan_events
	WHERE outcome = $1 AND scanned_at >= date_trunc('day', now())
	`

	var count int
	if err := s.db.QueryRow(ctx, query, scan.OutcomeRedeemed).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count today's redemptions: %w", err)
	}
	return count, nil
}
