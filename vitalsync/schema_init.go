// Copyright 2026 Vitaltrack Authors
// SPDX-License-Identifier: Apache-2.0

package vitalsync

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// initializeSchemaInTx creates the auth tables and the canonical synced
// tables. Replicated timestamps (updated_at, deleted_at and payload-internal
// times) are stored as epoch-millisecond BIGINTs so they round-trip exactly
// through the wire format and the SQLite client store; session bookkeeping
// uses TIMESTAMPTZ because it never crosses the sync protocol.
func (s *SyncService) initializeSchemaInTx(ctx context.Context, tx pgx.Tx) error {
	statements := []string{
		/*language=postgresql*/ `
CREATE TABLE IF NOT EXISTS users (
	id           TEXT PRIMARY KEY,
	email        TEXT NOT NULL UNIQUE,
	display_name TEXT NOT NULL DEFAULT '',
	locked       BOOLEAN NOT NULL DEFAULT FALSE,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
)`,
		/*language=postgresql*/ `
CREATE TABLE IF NOT EXISTS user_credentials (
	user_id       TEXT PRIMARY KEY REFERENCES users(id),
	password_hash TEXT NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
)`,
		// CLI sessions never carry expires_at; only web sessions expire.
		/*language=postgresql*/ `
CREATE TABLE IF NOT EXISTS sessions (
	id           TEXT PRIMARY KEY,
	token        TEXT NOT NULL UNIQUE,
	user_id      TEXT NOT NULL REFERENCES users(id),
	type         TEXT NOT NULL CHECK (type IN ('web', 'cli')),
	device_name  TEXT NOT NULL DEFAULT '',
	last_used_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	expires_at   TIMESTAMPTZ
)`,
		/*language=postgresql*/ `
CREATE TABLE IF NOT EXISTS weight_logs (
	id         TEXT PRIMARY KEY,
	user_id    TEXT NOT NULL REFERENCES users(id),
	logged_at  BIGINT NOT NULL,
	weight_kg  DOUBLE PRECISION NOT NULL,
	note       TEXT NOT NULL DEFAULT '',
	updated_at BIGINT NOT NULL,
	deleted_at BIGINT
)`,
		/*language=postgresql*/ `
CREATE TABLE IF NOT EXISTS injection_logs (
	id             TEXT PRIMARY KEY,
	user_id        TEXT NOT NULL REFERENCES users(id),
	injected_at    BIGINT NOT NULL,
	medication     TEXT NOT NULL,
	dose_mg        DOUBLE PRECISION NOT NULL,
	injection_site TEXT NOT NULL DEFAULT '',
	note           TEXT NOT NULL DEFAULT '',
	updated_at     BIGINT NOT NULL,
	deleted_at     BIGINT
)`,
		/*language=postgresql*/ `
CREATE TABLE IF NOT EXISTS inventory_items (
	id           TEXT PRIMARY KEY,
	user_id      TEXT NOT NULL REFERENCES users(id),
	medication   TEXT NOT NULL,
	form         TEXT NOT NULL DEFAULT 'vial',
	total_mg     DOUBLE PRECISION NOT NULL,
	remaining_mg DOUBLE PRECISION NOT NULL,
	acquired_at  BIGINT NOT NULL,
	expires_at   BIGINT,
	updated_at   BIGINT NOT NULL,
	deleted_at   BIGINT
)`,
		/*language=postgresql*/ `
CREATE TABLE IF NOT EXISTS schedules (
	id         TEXT PRIMARY KEY,
	user_id    TEXT NOT NULL REFERENCES users(id),
	name       TEXT NOT NULL,
	medication TEXT NOT NULL,
	start_date TEXT NOT NULL,
	active     BOOLEAN NOT NULL DEFAULT FALSE,
	updated_at BIGINT NOT NULL,
	deleted_at BIGINT
)`,
		/*language=postgresql*/ `
CREATE TABLE IF NOT EXISTS schedule_phases (
	id             TEXT PRIMARY KEY,
	user_id        TEXT NOT NULL REFERENCES users(id),
	schedule_id    TEXT NOT NULL,
	position       INTEGER NOT NULL,
	dose_mg        DOUBLE PRECISION NOT NULL,
	interval_days  INTEGER NOT NULL,
	duration_weeks INTEGER NOT NULL,
	updated_at     BIGINT NOT NULL,
	deleted_at     BIGINT
)`,
		/*language=postgresql*/ `
CREATE TABLE IF NOT EXISTS goals (
	id               TEXT PRIMARY KEY,
	user_id          TEXT NOT NULL REFERENCES users(id),
	kind             TEXT NOT NULL,
	target_weight_kg DOUBLE PRECISION NOT NULL DEFAULT 0,
	target_date      TEXT,
	achieved         BOOLEAN NOT NULL DEFAULT FALSE,
	updated_at       BIGINT NOT NULL,
	deleted_at       BIGINT
)`,
		/*language=postgresql*/ `
CREATE TABLE IF NOT EXISTS user_settings (
	id                TEXT PRIMARY KEY,
	user_id           TEXT NOT NULL REFERENCES users(id),
	weight_unit       TEXT NOT NULL DEFAULT 'kg',
	timezone          TEXT NOT NULL DEFAULT 'UTC',
	week_starts_on    INTEGER NOT NULL DEFAULT 1,
	reminders_enabled BOOLEAN NOT NULL DEFAULT FALSE,
	updated_at        BIGINT NOT NULL,
	deleted_at        BIGINT
)`,
	}

	for _, stmt := range statements {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}

	// The pull fan-out reads each table by (user_id, updated_at).
	for _, table := range SyncedTables {
		idx := fmt.Sprintf(
			`CREATE INDEX IF NOT EXISTS idx_%s_user_updated ON %s (user_id, updated_at)`,
			table, table,
		)
		if _, err := tx.Exec(ctx, idx); err != nil {
			return fmt.Errorf("failed to create index on %s: %w", table, err)
		}
	}

	if _, err := tx.Exec(ctx,
		`CREATE INDEX IF NOT EXISTS idx_sessions_token ON sessions (token)`); err != nil {
		return fmt.Errorf("failed to create sessions token index: %w", err)
	}

	return nil
}
