package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/MrEthical07/goGuard/internal/rate"
	"github.com/jackc/pgx/v5"
)

var _ rate.Ledger = (*Ledger)(nil)

// Ledger is a sliding-window rate ledger in guard_rate_events. Each Record
// runs in a transaction holding an advisory lock on the identifier, so the
// prune, count and append are serialised per identifier across instances.
type Ledger struct {
	db *DB
}

// NewLedger returns a ledger over db.
func NewLedger(db *DB) *Ledger {
	return &Ledger{db: db}
}

// Record prunes, counts and conditionally inserts under an advisory lock on identifier.
func (l *Ledger) Record(ctx context.Context, identifier string, now time.Time, window time.Duration, max int) (rate.Decision, error) {
	var d rate.Decision

	err := pgx.BeginFunc(ctx, l.db, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, identifier); err != nil {
			return fmt.Errorf("lock identifier: %w", err)
		}
		if _, err := tx.Exec(ctx,
			`DELETE FROM guard_rate_events WHERE identifier = $1 AND at < $2`,
			identifier, now.Add(-window),
		); err != nil {
			return fmt.Errorf("prune window: %w", err)
		}

		var oldest *time.Time
		if err := tx.QueryRow(ctx,
			`SELECT count(*), min(at) FROM guard_rate_events WHERE identifier = $1`,
			identifier,
		).Scan(&d.Count, &oldest); err != nil {
			return fmt.Errorf("count window: %w", err)
		}

		if d.Count >= max {
			if oldest != nil {
				d.Oldest = *oldest
			}
			return nil
		}

		if _, err := tx.Exec(ctx,
			`INSERT INTO guard_rate_events (identifier, at) VALUES ($1, $2)`,
			identifier, now,
		); err != nil {
			return fmt.Errorf("append attempt: %w", err)
		}
		d.Allowed = true
		d.Count++
		if oldest != nil {
			d.Oldest = *oldest
		} else {
			d.Oldest = now
		}
		return nil
	})
	if err != nil {
		return rate.Decision{}, err
	}
	return d, nil
}
