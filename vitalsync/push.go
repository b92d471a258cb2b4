// Copyright 2026 Vitaltrack Authors
// SPDX-License-Identifier: Apache-2.0

package vitalsync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
)

// Push applies a batch of client changes. Each change is applied when the
// stored row is not newer than the incoming timestamp; otherwise it is
// reported as a conflict carrying the full current server row. One entry's
// conflict never blocks the others, and the response's accepted and conflict
// id sets partition the input.
//
// Changes that fail protocol validation (unknown table, undecodable payload,
// id or user mismatch) reject the whole request with ErrInvalidChange before
// anything is applied.
func (s *SyncService) Push(ctx context.Context, userID string, changes []SyncChange) (*PushResponse, error) {
	resp := &PushResponse{Accepted: []string{}, Conflicts: []SyncConflict{}}
	if len(changes) == 0 {
		return resp, nil
	}

	// Validate the batch up front so a malformed entry cannot partially apply.
	decoded := make([]RowPayload, len(changes))
	for i, ch := range changes {
		p, err := s.validateChange(userID, ch)
		if err != nil {
			return nil, err
		}
		decoded[i] = p
	}

	err := pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadWrite}, func(tx pgx.Tx) error {
		for i, ch := range changes {
			conflict, serverRow, err := s.applyChangeInTx(ctx, tx, userID, ch, decoded[i])
			if err != nil {
				return err
			}
			if conflict {
				resp.Conflicts = append(resp.Conflicts, SyncConflict{ID: ch.ID, ServerVersion: serverRow})
			} else {
				resp.Accepted = append(resp.Accepted, ch.ID)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to process push transaction: %w", err)
	}

	return resp, nil
}

// validateChange decodes the payload and checks it is consistent with the
// envelope and the authenticated user.
func (s *SyncService) validateChange(userID string, ch SyncChange) (RowPayload, error) {
	if !IsSyncedTable(ch.Table) {
		return nil, fmt.Errorf("%w: table %q is not synced", ErrInvalidChange, ch.Table)
	}
	switch ch.Op {
	case OpInsert, OpUpdate, OpDelete:
	default:
		return nil, fmt.Errorf("%w: unknown operation %q", ErrInvalidChange, ch.Op)
	}
	if ch.Timestamp <= 0 {
		return nil, fmt.Errorf("%w: missing timestamp for %s/%s", ErrInvalidChange, ch.Table, ch.ID)
	}
	p, err := DecodePayload(ch.Table, ch.Payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidChange, err)
	}
	meta := p.Meta()
	if meta.ID != ch.ID {
		return nil, fmt.Errorf("%w: payload id %q does not match change id %q", ErrInvalidChange, meta.ID, ch.ID)
	}
	if meta.UserID != userID {
		return nil, fmt.Errorf("%w: payload owner %q does not match authenticated user", ErrInvalidChange, meta.UserID)
	}
	return p, nil
}

// applyChangeInTx applies one change, or detects a conflict when the stored
// row is strictly newer. Equal timestamps are "not newer" and accepted.
func (s *SyncService) applyChangeInTx(ctx context.Context, tx pgx.Tx, userID string, ch SyncChange, p RowPayload) (conflict bool, serverRow json.RawMessage, err error) {
	var stored int64
	q := fmt.Sprintf(`SELECT updated_at FROM %s WHERE id = $1 AND user_id = $2 FOR UPDATE`, ch.Table)
	err = tx.QueryRow(ctx, q, ch.ID, userID).Scan(&stored)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		// New row, nothing to compare against.
	case err != nil:
		return false, nil, fmt.Errorf("failed to read stored %s row: %w", ch.Table, err)
	case conflictsWith(stored, ch.Timestamp):
		row, err := s.serverRowJSON(ctx, tx, ch.Table, ch.ID, userID)
		if err != nil {
			return false, nil, err
		}
		return true, row, nil
	}

	if err := upsertRowInTx(ctx, tx, ch, p); err != nil {
		return false, nil, err
	}
	return false, nil, nil
}

// conflictsWith reports whether a stored watermark beats an incoming one.
// Equal timestamps do not conflict; the incoming change wins deterministically.
func conflictsWith(storedUpdatedAt, incomingTimestamp int64) bool {
	return storedUpdatedAt > incomingTimestamp
}

// upsertRowInTx writes the decoded payload into the canonical table. The
// incoming change's own timestamp becomes the stored updated_at so the
// replication watermark is preserved rather than re-stamped.
func upsertRowInTx(ctx context.Context, tx pgx.Tx, ch SyncChange, p RowPayload) error {
	meta := p.Meta()

	deletedAt := meta.DeletedAt
	if ch.Op == OpDelete && deletedAt == nil {
		ts := ch.Timestamp
		deletedAt = &ts
	}
	if ch.Op != OpDelete {
		deletedAt = nil
	}

	cols := p.columns()
	args := []any{ch.ID, meta.UserID, ch.Timestamp, deletedAt}
	args = append(args, p.args()...)

	colNames := make([]string, 0, len(cols)+4)
	colNames = append(colNames, "id", "user_id", "updated_at", "deleted_at")
	colNames = append(colNames, cols...)

	placeholders := make([]string, len(colNames))
	setClauses := make([]string, 0, len(colNames)-1)
	for i, name := range colNames {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		if name != "id" {
			setClauses = append(setClauses, fmt.Sprintf("%s = EXCLUDED.%s", name, name))
		}
	}

	q := fmt.Sprintf(/*language=postgresql*/ `
INSERT INTO %s (%s) VALUES (%s)
ON CONFLICT (id) DO UPDATE SET %s`,
		ch.Table,
		strings.Join(colNames, ", "),
		strings.Join(placeholders, ", "),
		strings.Join(setClauses, ", "),
	)

	if _, err := tx.Exec(ctx, q, args...); err != nil {
		return fmt.Errorf("failed to upsert %s/%s: %w", ch.Table, ch.ID, err)
	}
	return nil
}

// serverRowJSON fetches the full current server row for conflict reporting.
func (s *SyncService) serverRowJSON(ctx context.Context, tx pgx.Tx, table, id, userID string) (json.RawMessage, error) {
	var row json.RawMessage
	q := fmt.Sprintf(`SELECT to_jsonb(t) FROM %s AS t WHERE t.id = $1 AND t.user_id = $2`, table)
	if err := tx.QueryRow(ctx, q, id, userID).Scan(&row); err != nil {
		return nil, fmt.Errorf("failed to read server row %s/%s: %w", table, id, err)
	}
	return row, nil
}
