// Copyright 2026 Vitaltrack Authors
// SPDX-License-Identifier: Apache-2.0

package vitalsync

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
)

// newIntegrationService connects to the database named by TEST_DATABASE_URL,
// initializes the schema and seeds one user. Rows created for that user are
// removed on cleanup.
func newIntegrationService(t *testing.T) (*SyncService, *pgxpool.Pool, string) {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dbURL)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelWarn}))
	svc, err := NewSyncService(pool, &ServiceConfig{AppName: "push-integration-test"}, nil, logger)
	require.NoError(t, err)

	userID := uuid.NewString()
	_, err = pool.Exec(ctx, `INSERT INTO users (id, email) VALUES ($1, $2)`,
		userID, "push-test-"+userID+"@example.com")
	require.NoError(t, err)
	t.Cleanup(func() {
		for _, table := range SyncedTables {
			_, _ = pool.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE user_id = $1`, table), userID)
		}
		_, _ = pool.Exec(ctx, `DELETE FROM sessions WHERE user_id = $1`, userID)
		_, _ = pool.Exec(ctx, `DELETE FROM user_credentials WHERE user_id = $1`, userID)
		_, _ = pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, userID)
	})

	return svc, pool, userID
}

func integrationWeightChange(id, userID string, ts int64, kg float64, op string) SyncChange {
	payload := fmt.Sprintf(
		`{"id":%q,"user_id":%q,"updated_at":%d,"logged_at":%d,"weight_kg":%g}`,
		id, userID, ts, ts, kg)
	return SyncChange{
		Table: TableWeightLogs, ID: id, Op: op,
		Payload: []byte(payload), Timestamp: ts,
	}
}

func TestPushIntegration(t *testing.T) {
	svc, _, userID := newIntegrationService(t)
	ctx := context.Background()
	id := uuid.NewString()

	t.Run("accept and pull back", func(t *testing.T) {
		resp, err := svc.Push(ctx, userID, []SyncChange{
			integrationWeightChange(id, userID, 2000, 90, OpInsert),
		})
		require.NoError(t, err)
		require.Equal(t, []string{id}, resp.Accepted)
		require.Empty(t, resp.Conflicts)

		pull, err := svc.Pull(ctx, userID, EpochCursor, 100)
		require.NoError(t, err)
		require.Len(t, pull.Changes, 1)
		require.Equal(t, id, pull.Changes[0].ID)
		require.Equal(t, OpUpdate, pull.Changes[0].Op)
		require.Equal(t, int64(2000), pull.Changes[0].Timestamp, "stored updated_at is the pushed timestamp")

		decoded, err := DecodePayload(TableWeightLogs, pull.Changes[0].Payload)
		require.NoError(t, err)
		require.Equal(t, 90.0, decoded.(*WeightLogPayload).WeightKg)
	})

	t.Run("stale push conflicts with full server row", func(t *testing.T) {
		resp, err := svc.Push(ctx, userID, []SyncChange{
			integrationWeightChange(id, userID, 1000, 85, OpUpdate),
		})
		require.NoError(t, err)
		require.Empty(t, resp.Accepted)
		require.Len(t, resp.Conflicts, 1)
		require.Equal(t, id, resp.Conflicts[0].ID)

		server, err := DecodePayload(TableWeightLogs, resp.Conflicts[0].ServerVersion)
		require.NoError(t, err)
		require.Equal(t, int64(2000), server.Meta().UpdatedAt, "server row is untouched by the losing push")
		require.Equal(t, 90.0, server.(*WeightLogPayload).WeightKg)
	})

	t.Run("equal timestamp accepted", func(t *testing.T) {
		resp, err := svc.Push(ctx, userID, []SyncChange{
			integrationWeightChange(id, userID, 2000, 88, OpUpdate),
		})
		require.NoError(t, err)
		require.Equal(t, []string{id}, resp.Accepted)
		require.Empty(t, resp.Conflicts)

		pull, err := svc.Pull(ctx, userID, EpochCursor, 100)
		require.NoError(t, err)
		require.Len(t, pull.Changes, 1)
		decoded, err := DecodePayload(TableWeightLogs, pull.Changes[0].Payload)
		require.NoError(t, err)
		require.Equal(t, 88.0, decoded.(*WeightLogPayload).WeightKg, "equal-timestamp push wins")
	})

	t.Run("batch response partitions the input", func(t *testing.T) {
		fresh := uuid.NewString()
		resp, err := svc.Push(ctx, userID, []SyncChange{
			integrationWeightChange(id, userID, 1500, 80, OpUpdate), // stale, loses to 2000
			integrationWeightChange(fresh, userID, 1500, 91, OpInsert),
		})
		require.NoError(t, err)
		require.Equal(t, []string{fresh}, resp.Accepted)
		require.Len(t, resp.Conflicts, 1)
		require.Equal(t, id, resp.Conflicts[0].ID, "one entry's conflict does not block the others")
	})

	t.Run("soft delete replicates as delete op", func(t *testing.T) {
		resp, err := svc.Push(ctx, userID, []SyncChange{
			integrationWeightChange(id, userID, 3000, 88, OpDelete),
		})
		require.NoError(t, err)
		require.Equal(t, []string{id}, resp.Accepted)

		pull, err := svc.Pull(ctx, userID, EpochCursor, 100)
		require.NoError(t, err)
		for _, ch := range pull.Changes {
			if ch.ID != id {
				continue
			}
			require.Equal(t, OpDelete, ch.Op)
			require.Equal(t, int64(3000), ch.Timestamp)
			decoded, err := DecodePayload(TableWeightLogs, ch.Payload)
			require.NoError(t, err)
			require.NotNil(t, decoded.Meta().DeletedAt)
		}
	})
}
