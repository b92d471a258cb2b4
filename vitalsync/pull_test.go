// Copyright 2026 Vitaltrack Authors
// SPDX-License-Identifier: Apache-2.0

package vitalsync

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func mkChange(table, id string, ts int64) SyncChange {
	return SyncChange{
		Table:     table,
		ID:        id,
		Op:        OpUpdate,
		Payload:   json.RawMessage(`{}`),
		Timestamp: ts,
	}
}

func TestAssemblePullResponseGlobalOrdering(t *testing.T) {
	combined := []SyncChange{
		mkChange(TableWeightLogs, "w1", 300),
		mkChange(TableInjectionLogs, "i1", 100),
		mkChange(TableGoals, "g1", 200),
		// Same timestamp sorts by table name, then id.
		mkChange(TableWeightLogs, "w2", 200),
		mkChange(TableGoals, "g0", 200),
	}

	resp := assemblePullResponse(combined, EpochCursor, 10)
	require.False(t, resp.HasMore)
	require.Len(t, resp.Changes, 5)

	ids := make([]string, len(resp.Changes))
	for i, ch := range resp.Changes {
		ids[i] = ch.ID
	}
	require.Equal(t, []string{"i1", "g0", "g1", "w2", "w1"}, ids)
	require.Equal(t, FormatCursor(300), resp.Cursor)
}

func TestAssemblePullResponseDeterministic(t *testing.T) {
	combined := []SyncChange{
		mkChange(TableWeightLogs, "b", 100),
		mkChange(TableWeightLogs, "a", 100),
	}
	first := assemblePullResponse(append([]SyncChange(nil), combined...), EpochCursor, 10)
	second := assemblePullResponse(append([]SyncChange(nil), combined...), EpochCursor, 10)
	require.Equal(t, first, second)
	require.Equal(t, "a", first.Changes[0].ID)
}

func TestAssemblePullResponsePagination(t *testing.T) {
	t1, t2, t3 := int64(1000), int64(2000), int64(3000)
	combined := []SyncChange{
		mkChange(TableWeightLogs, "w1", t1),
		mkChange(TableInjectionLogs, "i1", t2),
		mkChange(TableGoals, "g1", t3),
	}

	// First page: two oldest changes, cursor at t2, more remaining.
	page1 := assemblePullResponse(append([]SyncChange(nil), combined...), EpochCursor, 2)
	require.True(t, page1.HasMore)
	require.Len(t, page1.Changes, 2)
	require.Equal(t, "w1", page1.Changes[0].ID)
	require.Equal(t, "i1", page1.Changes[1].ID)
	require.Equal(t, FormatCursor(t2), page1.Cursor)

	// Second page starts after t2: only the t3 change remains.
	remaining := []SyncChange{mkChange(TableGoals, "g1", t3)}
	page2 := assemblePullResponse(remaining, page1.Cursor, 2)
	require.False(t, page2.HasMore)
	require.Len(t, page2.Changes, 1)
	require.Equal(t, "g1", page2.Changes[0].ID)
	require.Equal(t, FormatCursor(t3), page2.Cursor)
}

func TestAssemblePullResponseEmptyPage(t *testing.T) {
	cursor := FormatCursor(5000)
	resp := assemblePullResponse(nil, cursor, 100)
	require.NotNil(t, resp.Changes)
	require.Empty(t, resp.Changes)
	require.False(t, resp.HasMore)
	// No changes means the cursor does not move.
	require.Equal(t, cursor, resp.Cursor)
}

func TestAssemblePullResponseLimitBoundary(t *testing.T) {
	combined := []SyncChange{
		mkChange(TableWeightLogs, "w1", 100),
		mkChange(TableWeightLogs, "w2", 200),
	}
	resp := assemblePullResponse(combined, EpochCursor, 2)
	require.False(t, resp.HasMore)
	require.Len(t, resp.Changes, 2)
}

func TestDeriveOp(t *testing.T) {
	require.Equal(t, OpUpdate, deriveOp(nil))
	ts := int64(123)
	require.Equal(t, OpDelete, deriveOp(&ts))
}
