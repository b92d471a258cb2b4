// Copyright 2026 Vitaltrack Authors
// SPDX-License-Identifier: Apache-2.0

package vitalsqlite

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/vitaltrack/go-vitalsync/vitalsync"
)

// ErrSyncInProgress reports that a sync cycle is already running on this
// Syncer. Cycles never queue behind each other.
var ErrSyncInProgress = errors.New("sync already in progress")

// Sync cycle states, used for logging progress.
const (
	stateIdle    = "idle"
	statePulling = "pulling"
	statePushing = "pushing"
	stateDone    = "done"
	stateFailed  = "failed"
)

// Stats summarizes one completed sync cycle.
type Stats struct {
	PullCount int // remote changes applied locally
	PushCount int // outbox entries resolved by the server, accepted or conflict
}

// Syncer drives the pull-then-push replication cycle against a remote
// server. A cycle pulls every remote page and applies it, then drains the
// local outbox in batches, resolving push conflicts in the server's favor.
type Syncer struct {
	store     *Store
	remote    Remote
	token     string
	batchSize int
	logger    *slog.Logger

	// Held for the duration of a cycle; TryLock makes concurrent Sync calls
	// fail fast instead of queueing.
	mu sync.Mutex
}

func NewSyncer(store *Store, remote Remote, token string, logger *slog.Logger) *Syncer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Syncer{
		store:     store,
		remote:    remote,
		token:     token,
		batchSize: vitalsync.DefaultBatchSize,
		logger:    logger,
	}
}

// Sync runs one full cycle: pull all remote changes since the stored cursor,
// then push the pending outbox. The cursor advances only after the entire
// pull completes, so an interrupted cycle re-pulls from its starting point
// and relies on the store's idempotent apply.
func (s *Syncer) Sync(ctx context.Context) (*Stats, error) {
	if !s.mu.TryLock() {
		return nil, ErrSyncInProgress
	}
	defer s.mu.Unlock()

	stats := &Stats{}
	s.logger.Debug("Sync cycle starting", "state", stateIdle)

	if err := s.pull(ctx, stats); err != nil {
		s.logger.Debug("Sync cycle failed", "state", stateFailed, "error", err)
		return nil, err
	}
	if err := s.push(ctx, stats); err != nil {
		s.logger.Debug("Sync cycle failed", "state", stateFailed, "error", err)
		return nil, err
	}

	s.logger.Info("Sync cycle complete",
		"state", stateDone, "pulled", stats.PullCount, "pushed", stats.PushCount)
	return stats, nil
}

// pull applies remote pages until the server reports no more.
func (s *Syncer) pull(ctx context.Context, stats *Stats) error {
	cursor, err := s.store.Cursor(ctx)
	if err != nil {
		return err
	}
	start := cursor
	s.logger.Debug("Pull starting", "state", statePulling, "cursor", cursor)

	for {
		resp, err := s.remote.Pull(ctx, s.token, cursor, s.batchSize)
		if err != nil {
			return err
		}
		if err := s.store.ApplyChanges(ctx, resp.Changes); err != nil {
			return err
		}
		stats.PullCount += len(resp.Changes)

		if resp.HasMore && resp.Cursor == cursor {
			// A non-advancing cursor with more pages promised would loop
			// forever.
			return &vitalsync.SyncNetworkError{
				Err: fmt.Errorf("server reported more changes without advancing cursor %q", cursor),
			}
		}
		cursor = resp.Cursor
		if !resp.HasMore {
			break
		}
	}

	if cursor != start {
		if err := s.store.SetCursor(ctx, cursor); err != nil {
			return err
		}
	}
	return nil
}

// push drains the outbox in batches.
func (s *Syncer) push(ctx context.Context, stats *Stats) error {
	s.logger.Debug("Push starting", "state", statePushing)

	for {
		entries, err := s.store.GetOutbox(ctx, s.batchSize)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			return nil
		}

		changes := make([]vitalsync.SyncChange, len(entries))
		tableByID := make(map[string]string, len(entries))
		for i := range entries {
			changes[i] = entries[i].ToSyncChange()
			tableByID[entries[i].ID] = entries[i].Table
		}

		resp, err := s.remote.Push(ctx, s.token, changes)
		if err != nil {
			return err
		}
		if len(resp.Accepted)+len(resp.Conflicts) != len(changes) {
			return &vitalsync.SyncNetworkError{
				Err: fmt.Errorf("push response covers %d of %d changes",
					len(resp.Accepted)+len(resp.Conflicts), len(changes)),
			}
		}

		accepted := make([]OutboxRef, 0, len(resp.Accepted))
		for _, id := range resp.Accepted {
			table, ok := tableByID[id]
			if !ok {
				return &vitalsync.SyncNetworkError{
					Err: fmt.Errorf("push accepted unknown row id %q", id),
				}
			}
			accepted = append(accepted, OutboxRef{Table: table, ID: id})
		}
		if err := s.store.ClearOutbox(ctx, accepted); err != nil {
			return err
		}
		stats.PushCount += len(accepted)

		for _, conflict := range resp.Conflicts {
			table, ok := tableByID[conflict.ID]
			if !ok {
				return &vitalsync.SyncNetworkError{
					Err: fmt.Errorf("push conflict for unknown row id %q", conflict.ID),
				}
			}
			s.logger.Info("Push conflict resolved with server version",
				"table", table, "id", conflict.ID)
			if err := s.store.ApplyServerVersion(ctx, table, conflict); err != nil {
				return err
			}
			if err := s.store.RemoveFromOutbox(ctx, table, conflict.ID); err != nil {
				return err
			}
			stats.PushCount++
		}
	}
}
