// Copyright 2026 Vitaltrack Authors
// SPDX-License-Identifier: Apache-2.0

// Package vitalsqlite implements the client side of the vitaltrack sync
// core: a SQLite-backed local store with a write-ahead outbox, a typed remote
// client for the sync API, and the orchestrator that drives one pull/push
// cycle.
package vitalsqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"github.com/vitaltrack/go-vitalsync/vitalsync"
)

// Store owns the on-device copy of every synced table, the pending-change
// outbox and a small key/value metadata store holding the replication cursor.
//
// Local tables keep the full row snapshot as JSON next to indexed replication
// columns; typed validation happens at the protocol boundary, so the store
// never re-derives columns from the snapshot.
type Store struct {
	DB     *sql.DB
	clock  vitalsync.Clock
	logger *slog.Logger

	// Serialize writes to avoid SQLite locking issues; the orchestrator and
	// concurrent user writes both go through this mutex.
	writeMu sync.Mutex
}

// OutboxEntry is one not-yet-acknowledged local mutation. Entries coalesce
// per (table, row id): repeated local writes overwrite the payload and
// operation but keep the original queue position.
type OutboxEntry struct {
	Seq       int64
	Table     string
	ID        string
	Op        string
	Payload   json.RawMessage
	Timestamp int64 // row updated_at at queue time, epoch millis
	QueuedAt  int64
}

// ToSyncChange converts the entry to its wire representation.
func (e *OutboxEntry) ToSyncChange() vitalsync.SyncChange {
	return vitalsync.SyncChange{
		Table:     e.Table,
		ID:        e.ID,
		Op:        e.Op,
		Payload:   e.Payload,
		Timestamp: e.Timestamp,
	}
}

// OpenStore opens (or creates) the local database file and initializes the
// schema.
func OpenStore(path string, clock vitalsync.Clock, logger *slog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open local database: %w", err)
	}
	store, err := NewStore(db, clock, logger)
	if err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// NewStore wraps an existing database handle, used directly by tests.
func NewStore(db *sql.DB, clock vitalsync.Clock, logger *slog.Logger) (*Store, error) {
	if clock == nil {
		clock = vitalsync.SystemClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	// One writer at a time keeps SQLite happy and keeps in-memory test
	// databases on a single connection.
	db.SetMaxOpenConns(1)

	if err := initializeDatabase(db); err != nil {
		return nil, fmt.Errorf("failed to initialize local database: %w", err)
	}
	return &Store{DB: db, clock: clock, logger: logger}, nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error { return s.DB.Close() }

// initializeDatabase creates the synced tables, the outbox and the metadata
// store.
func initializeDatabase(db *sql.DB) error {
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		return fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.Exec(`PRAGMA foreign_keys=ON`); err != nil {
		return fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	for _, table := range vitalsync.SyncedTables {
		ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id         TEXT PRIMARY KEY,
			user_id    TEXT NOT NULL,
			payload    TEXT NOT NULL,
			updated_at INTEGER NOT NULL,
			deleted_at INTEGER
		)`, table)
		if _, err := db.Exec(ddl); err != nil {
			return fmt.Errorf("failed to create table %s: %w", table, err)
		}
	}

	statements := []string{
		`CREATE TABLE IF NOT EXISTS _sync_outbox (
			seq        INTEGER PRIMARY KEY AUTOINCREMENT,
			table_name TEXT NOT NULL,
			row_id     TEXT NOT NULL,
			op         TEXT NOT NULL CHECK (op IN ('insert','update','delete')),
			payload    TEXT NOT NULL,
			timestamp  INTEGER NOT NULL,
			queued_at  INTEGER NOT NULL,
			UNIQUE (table_name, row_id)
		)`,
		`CREATE TABLE IF NOT EXISTS _sync_meta (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,
	}
	for _, stmt := range statements {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to create sync table: %w", err)
		}
	}
	return nil
}

// WriteWithOutbox performs the local row write and the outbox append as one
// atomic unit: if it returns success both are durably persisted, if it fails
// neither is. Repeated writes to the same row before a sync collapse into the
// outbox's latest entry.
//
// The row's updated_at is bumped to a value not earlier than anything
// previously stored for it, since updated_at is the replication watermark.
func (s *Store) WriteWithOutbox(ctx context.Context, op string, p vitalsync.RowPayload) error {
	switch op {
	case vitalsync.OpInsert, vitalsync.OpUpdate, vitalsync.OpDelete:
	default:
		return fmt.Errorf("unknown outbox operation %q", op)
	}

	meta := p.Meta()
	if meta.ID == "" || meta.UserID == "" {
		return fmt.Errorf("payload for %s is missing id or user_id", p.Table())
	}
	if meta.UpdatedAt <= 0 {
		meta.UpdatedAt = vitalsync.TimeToMillis(s.clock.Now())
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var stored int64
	err = tx.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT updated_at FROM %s WHERE id = ?`, p.Table()), meta.ID,
	).Scan(&stored)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("failed to read stored row: %w", err)
	}
	if stored >= meta.UpdatedAt {
		meta.UpdatedAt = stored + 1
	}

	if op == vitalsync.OpDelete {
		if meta.DeletedAt == nil {
			ts := meta.UpdatedAt
			meta.DeletedAt = &ts
		}
	} else {
		// A non-delete write revives a soft-deleted row.
		meta.DeletedAt = nil
	}

	payload, err := vitalsync.EncodePayload(p)
	if err != nil {
		return err
	}

	if err := upsertLocalRowInTx(ctx, tx, p.Table(), meta.ID, meta.UserID, payload, meta.UpdatedAt, meta.DeletedAt); err != nil {
		return err
	}

	now := vitalsync.TimeToMillis(s.clock.Now())
	_, err = tx.ExecContext(ctx, `
		INSERT INTO _sync_outbox (table_name, row_id, op, payload, timestamp, queued_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (table_name, row_id) DO UPDATE SET
			op = excluded.op,
			payload = excluded.payload,
			timestamp = excluded.timestamp,
			queued_at = excluded.queued_at
	`, p.Table(), meta.ID, op, string(payload), meta.UpdatedAt, now)
	if err != nil {
		return fmt.Errorf("failed to queue outbox entry: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit local write: %w", err)
	}
	return nil
}

// GetOutbox returns up to limit pending entries in stable queue order so
// repeated pagination during a push is deterministic.
func (s *Store) GetOutbox(ctx context.Context, limit int) ([]OutboxEntry, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT seq, table_name, row_id, op, payload, timestamp, queued_at
		FROM _sync_outbox ORDER BY seq LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query outbox: %w", err)
	}
	defer rows.Close()

	var entries []OutboxEntry
	for rows.Next() {
		var e OutboxEntry
		var payload string
		if err := rows.Scan(&e.Seq, &e.Table, &e.ID, &e.Op, &payload, &e.Timestamp, &e.QueuedAt); err != nil {
			return nil, fmt.Errorf("failed to scan outbox entry: %w", err)
		}
		e.Payload = json.RawMessage(payload)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read outbox: %w", err)
	}
	return entries, nil
}

// OutboxCount returns the number of pending entries.
func (s *Store) OutboxCount(ctx context.Context) (int, error) {
	var count int
	if err := s.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM _sync_outbox`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count outbox: %w", err)
	}
	return count, nil
}

// OutboxRef identifies one outbox entry by its coalescing key. The outbox is
// keyed (table, row id), so clearing by row id alone could drop another
// table's entry when an id is reused across tables.
type OutboxRef struct {
	Table string
	ID    string
}

// ClearOutbox removes entries acknowledged by the server.
func (s *Store) ClearOutbox(ctx context.Context, refs []OutboxRef) error {
	if len(refs) == 0 {
		return nil
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, ref := range refs {
		_, err := tx.ExecContext(ctx,
			`DELETE FROM _sync_outbox WHERE table_name = ? AND row_id = ?`, ref.Table, ref.ID)
		if err != nil {
			return fmt.Errorf("failed to clear outbox entry %s/%s: %w", ref.Table, ref.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit outbox clear: %w", err)
	}
	return nil
}

// RemoveFromOutbox drops the pending entry for one row, used when the
// server's conflicting version has been applied locally.
func (s *Store) RemoveFromOutbox(ctx context.Context, table, id string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_, err := s.DB.ExecContext(ctx,
		`DELETE FROM _sync_outbox WHERE table_name = ? AND row_id = ?`, table, id)
	if err != nil {
		return fmt.Errorf("failed to remove outbox entry %s/%s: %w", table, id, err)
	}
	return nil
}

// ApplyChanges applies one page of pulled changes atomically. A change is
// applied only when its timestamp is not older than the currently stored
// row's updated_at, so a stale re-pull can never clobber a newer local edit
// that has not synced yet.
func (s *Store) ApplyChanges(ctx context.Context, changes []vitalsync.SyncChange) error {
	if len(changes) == 0 {
		return nil
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for i := range changes {
		ch := &changes[i]
		p, err := vitalsync.DecodePayload(ch.Table, ch.Payload)
		if err != nil {
			return fmt.Errorf("failed to decode pulled change %s/%s: %w", ch.Table, ch.ID, err)
		}

		var stored int64
		err = tx.QueryRowContext(ctx,
			fmt.Sprintf(`SELECT updated_at FROM %s WHERE id = ?`, ch.Table), ch.ID,
		).Scan(&stored)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("failed to read stored row: %w", err)
		}
		if stored > ch.Timestamp {
			s.logger.Debug("Skipping stale remote change",
				"table", ch.Table, "id", ch.ID, "stored", stored, "incoming", ch.Timestamp)
			continue
		}

		meta := p.Meta()
		deletedAt := meta.DeletedAt
		if ch.Op == vitalsync.OpDelete && deletedAt == nil {
			ts := ch.Timestamp
			deletedAt = &ts
		}
		if err := upsertLocalRowInTx(ctx, tx, ch.Table, ch.ID, meta.UserID, ch.Payload, ch.Timestamp, deletedAt); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit applied changes: %w", err)
	}
	return nil
}

// ApplyServerVersion force-applies the server's row after a push conflict.
// The server always wins a detected conflict, so there is no timestamp guard
// here; callers also remove the losing outbox entry via RemoveFromOutbox.
func (s *Store) ApplyServerVersion(ctx context.Context, table string, conflict vitalsync.SyncConflict) error {
	p, err := vitalsync.DecodePayload(table, conflict.ServerVersion)
	if err != nil {
		return fmt.Errorf("failed to decode server version for %s/%s: %w", table, conflict.ID, err)
	}
	meta := p.Meta()

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := upsertLocalRowInTx(ctx, tx, table, meta.ID, meta.UserID, conflict.ServerVersion, meta.UpdatedAt, meta.DeletedAt); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit server version: %w", err)
	}
	return nil
}

// upsertLocalRowInTx writes one local row snapshot.
func upsertLocalRowInTx(ctx context.Context, tx *sql.Tx, table, id, userID string, payload json.RawMessage, updatedAt int64, deletedAt *int64) error {
	q := fmt.Sprintf(`
		INSERT INTO %s (id, user_id, payload, updated_at, deleted_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			user_id = excluded.user_id,
			payload = excluded.payload,
			updated_at = excluded.updated_at,
			deleted_at = excluded.deleted_at
	`, table)
	if _, err := tx.ExecContext(ctx, q, id, userID, string(payload), updatedAt, deletedAt); err != nil {
		return fmt.Errorf("failed to upsert local row %s/%s: %w", table, id, err)
	}
	return nil
}

// GetMeta reads a metadata value; absent keys return the empty string.
func (s *Store) GetMeta(ctx context.Context, key string) (string, error) {
	var value string
	err := s.DB.QueryRowContext(ctx, `SELECT value FROM _sync_meta WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read meta %q: %w", key, err)
	}
	return value, nil
}

// SetMeta writes a metadata value.
func (s *Store) SetMeta(ctx context.Context, key, value string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO _sync_meta (key, value) VALUES (?, ?)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		return fmt.Errorf("failed to write meta %q: %w", key, err)
	}
	return nil
}

// Cursor returns the persisted replication cursor, defaulting to the epoch
// so a fresh client pulls full history.
func (s *Store) Cursor(ctx context.Context) (string, error) {
	cursor, err := s.GetMeta(ctx, vitalsync.MetaKeyLastSyncCursor)
	if err != nil {
		return "", err
	}
	if cursor == "" {
		return vitalsync.EpochCursor, nil
	}
	return cursor, nil
}

// SetCursor persists the replication cursor.
func (s *Store) SetCursor(ctx context.Context, cursor string) error {
	return s.SetMeta(ctx, vitalsync.MetaKeyLastSyncCursor, cursor)
}
