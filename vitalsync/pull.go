// Copyright 2026 Vitaltrack Authors
// SPDX-License-Identifier: Apache-2.0

package vitalsync

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"golang.org/x/sync/errgroup"
)

// Pull returns one page of the user's changes newer than cursor, merged
// across every synced table and globally ordered by timestamp. The global
// ordering is what makes the returned cursor a safe watermark for all tables
// at once instead of per-table watermarks.
func (s *SyncService) Pull(ctx context.Context, userID, cursor string, limit int) (*PullResponse, error) {
	since, err := ParseCursor(cursor)
	if err != nil {
		return nil, fmt.Errorf("invalid cursor %q: %w", cursor, err)
	}
	limit = s.clampPullLimit(limit)

	// Fan out one query per synced table. The queries are independent
	// read-only scans of disjoint tables, so they run concurrently and are
	// merged in memory afterward. Each table fetches limit+1 rows, enough to
	// decide has_more for the combined page.
	pages := make([][]SyncChange, len(SyncedTables))
	g, gctx := errgroup.WithContext(ctx)
	for i, table := range SyncedTables {
		g.Go(func() error {
			page, err := s.queryTableChanges(gctx, table, userID, since, limit+1)
			if err != nil {
				return err
			}
			pages[i] = page
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to fetch pull page: %w", err)
	}

	var combined []SyncChange
	for _, page := range pages {
		combined = append(combined, page...)
	}
	return assemblePullResponse(combined, cursor, limit), nil
}

// queryTableChanges reads one table's changes newer than the watermark.
func (s *SyncService) queryTableChanges(ctx context.Context, table, userID string, since int64, limit int) ([]SyncChange, error) {
	q := fmt.Sprintf(/*language=postgresql*/ `
SELECT t.id, t.updated_at, t.deleted_at, to_jsonb(t) AS payload
FROM %s AS t
WHERE t.user_id = $1 AND t.updated_at > $2
ORDER BY t.updated_at, t.id
LIMIT $3`, table)

	rows, err := s.pool.Query(ctx, q, userID, since, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s changes: %w", table, err)
	}
	defer rows.Close()

	var changes []SyncChange
	for rows.Next() {
		var (
			id        string
			updatedAt int64
			deletedAt *int64
			payload   json.RawMessage
		)
		if err := rows.Scan(&id, &updatedAt, &deletedAt, &payload); err != nil {
			return nil, fmt.Errorf("failed to scan %s change: %w", table, err)
		}
		changes = append(changes, SyncChange{
			Table:     table,
			ID:        id,
			Op:        deriveOp(deletedAt),
			Payload:   payload,
			Timestamp: updatedAt,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read %s changes: %w", table, err)
	}
	return changes, nil
}

// deriveOp maps the soft-delete marker to the wire operation. The protocol
// does not distinguish first-insert from update; receivers upsert.
func deriveOp(deletedAt *int64) string {
	if deletedAt != nil {
		return OpDelete
	}
	return OpUpdate
}

// assemblePullResponse globally sorts the combined changes, applies the page
// limit and computes the next cursor. The sort is total (timestamp, then
// table, then id) so repeated pulls with the same cursor return identical
// pages.
func assemblePullResponse(combined []SyncChange, cursor string, limit int) *PullResponse {
	sort.Slice(combined, func(i, j int) bool {
		a, b := combined[i], combined[j]
		if a.Timestamp != b.Timestamp {
			return a.Timestamp < b.Timestamp
		}
		if a.Table != b.Table {
			return a.Table < b.Table
		}
		return a.ID < b.ID
	})

	hasMore := len(combined) > limit
	if hasMore {
		combined = combined[:limit]
	}

	next := cursor
	if len(combined) > 0 {
		next = FormatCursor(combined[len(combined)-1].Timestamp)
	}

	if combined == nil {
		combined = []SyncChange{}
	}
	return &PullResponse{
		Changes: combined,
		Cursor:  next,
		HasMore: hasMore,
	}
}
