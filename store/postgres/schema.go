package postgres

import (
	"context"
	"fmt"
)

const schema = `
CREATE TABLE IF NOT EXISTS guard_accounts (
	id              UUID PRIMARY KEY,
	username        TEXT NOT NULL UNIQUE,
	email           TEXT NOT NULL UNIQUE,
	password_hash   TEXT NOT NULL,
	active          BOOLEAN NOT NULL DEFAULT TRUE,
	totp_enabled    BOOLEAN NOT NULL DEFAULT FALSE,
	failed_attempts INTEGER NOT NULL DEFAULT 0,
	locked_until    TIMESTAMPTZ,
	last_login      TIMESTAMPTZ,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS guard_backup_codes (
	id         UUID PRIMARY KEY,
	account_id UUID NOT NULL REFERENCES guard_accounts (id) ON DELETE CASCADE,
	code_hash  TEXT NOT NULL,
	used       BOOLEAN NOT NULL DEFAULT FALSE,
	used_at    TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS guard_backup_codes_unused_idx
	ON guard_backup_codes (account_id) WHERE NOT used;

CREATE TABLE IF NOT EXISTS guard_rate_events (
	identifier TEXT NOT NULL,
	at         TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS guard_rate_events_identifier_at_idx
	ON guard_rate_events (identifier, at);
`

// EnsureSchema creates the tables and indexes when they are missing. It is
// safe to run on every start.
func (db *DB) EnsureSchema(ctx context.Context) error {
	if _, err := db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}
