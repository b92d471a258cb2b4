// Copyright 2026 Vitaltrack Authors
// SPDX-License-Identifier: Apache-2.0

package vitalsync

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func validMeta() SyncMeta {
	return SyncMeta{
		ID:        uuid.NewString(),
		UserID:    uuid.NewString(),
		UpdatedAt: 1700000000000,
	}
}

func TestDecodePayloadWeightLog(t *testing.T) {
	meta := validMeta()
	raw := json.RawMessage(fmt.Sprintf(
		`{"id":%q,"user_id":%q,"updated_at":%d,"logged_at":1700000000000,"weight_kg":92.5,"note":"morning"}`,
		meta.ID, meta.UserID, meta.UpdatedAt))

	p, err := DecodePayload(TableWeightLogs, raw)
	require.NoError(t, err)

	weight, ok := p.(*WeightLogPayload)
	require.True(t, ok)
	require.Equal(t, meta.ID, weight.ID)
	require.Equal(t, 92.5, weight.WeightKg)
	require.Equal(t, "morning", weight.Note)
	require.Nil(t, weight.DeletedAt)
}

func TestDecodePayloadAllTables(t *testing.T) {
	for _, table := range SyncedTables {
		meta := validMeta()
		raw := json.RawMessage(fmt.Sprintf(
			`{"id":%q,"user_id":%q,"updated_at":%d}`, meta.ID, meta.UserID, meta.UpdatedAt))
		p, err := DecodePayload(table, raw)
		require.NoError(t, err, "table %s", table)
		require.Equal(t, table, p.Table())
	}
}

func TestDecodePayloadRejectsUnknownTable(t *testing.T) {
	_, err := DecodePayload("users", json.RawMessage(`{}`))
	require.Error(t, err)
}

func TestDecodePayloadRejectsBadMeta(t *testing.T) {
	cases := map[string]string{
		"non-uuid id":        `{"id":"42","user_id":"u1","updated_at":1}`,
		"missing user":       fmt.Sprintf(`{"id":%q,"updated_at":1}`, uuid.NewString()),
		"missing updated_at": fmt.Sprintf(`{"id":%q,"user_id":"u1"}`, uuid.NewString()),
		"not json":           `weight=92`,
		"empty":              ``,
	}
	for name, raw := range cases {
		_, err := DecodePayload(TableWeightLogs, json.RawMessage(raw))
		require.Error(t, err, name)
	}
}

func TestEncodeDecodeSoftDelete(t *testing.T) {
	deletedAt := int64(1700000001000)
	p := &GoalPayload{
		SyncMeta: SyncMeta{
			ID:        uuid.NewString(),
			UserID:    uuid.NewString(),
			UpdatedAt: deletedAt,
			DeletedAt: &deletedAt,
		},
		Kind:     "target_weight",
		TargetKg: 85,
	}

	raw, err := EncodePayload(p)
	require.NoError(t, err)

	decoded, err := DecodePayload(TableGoals, raw)
	require.NoError(t, err)
	require.NotNil(t, decoded.Meta().DeletedAt)
	require.Equal(t, deletedAt, *decoded.Meta().DeletedAt)
}

func TestIsSyncedTable(t *testing.T) {
	for _, table := range SyncedTables {
		require.True(t, IsSyncedTable(table))
	}
	require.False(t, IsSyncedTable("sessions"))
	require.False(t, IsSyncedTable("users"))
	require.False(t, IsSyncedTable(""))
}
