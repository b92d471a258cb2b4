// Copyright 2026 Vitaltrack Authors
// SPDX-License-Identifier: Apache-2.0

// Package vitalsync implements the server side of the offline-first
// synchronization core for the vitaltrack health tracker: cursor-based pull,
// per-change push with conflict detection, and device-token authentication
// for non-browser clients.
package vitalsync

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SyncService provides the three sync operations (authenticate, pull, push)
// against the canonical per-user tables in PostgreSQL.
type SyncService struct {
	pool     *pgxpool.Pool
	logger   *slog.Logger
	clock    Clock
	config   *ServiceConfig
	sessions SessionStore
	users    CredentialStore
}

// ServiceConfig holds configuration for the sync service.
type ServiceConfig struct {
	AppName          string // Application name for connection tracking
	DefaultPullLimit int    // Page size when the client does not ask for one
	MaxPullLimit     int    // Hard cap on a single pull page
}

// NewSyncService creates a sync service from an existing pool and initializes
// the database schema in a single transaction.
func NewSyncService(pool *pgxpool.Pool, config *ServiceConfig, clock Clock, logger *slog.Logger) (*SyncService, error) {
	if config == nil {
		config = &ServiceConfig{AppName: "vitalsync"}
	}
	if config.DefaultPullLimit <= 0 {
		config.DefaultPullLimit = DefaultBatchSize
	}
	if config.MaxPullLimit <= 0 {
		config.MaxPullLimit = DefaultBatchSize
	}
	if clock == nil {
		clock = SystemClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}

	service := &SyncService{
		pool:     pool,
		logger:   logger,
		clock:    clock,
		config:   config,
		sessions: NewPgSessionStore(pool),
		users:    NewPgCredentialStore(pool),
	}

	ctx := context.Background()
	err := pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		if err := service.initializeSchemaInTx(ctx, tx); err != nil {
			logger.Error("Failed to initialize database schema", "error", err)
			return err
		}
		logger.Debug("Database schema initialized successfully")
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize sync service: %w", err)
	}

	return service, nil
}

// Pool returns the underlying connection pool for advanced callers.
func (s *SyncService) Pool() *pgxpool.Pool { return s.pool }

// Sessions returns the session store shared with the device authenticator.
func (s *SyncService) Sessions() SessionStore { return s.sessions }

// clampPullLimit normalizes a client-requested page size.
func (s *SyncService) clampPullLimit(limit int) int {
	if limit <= 0 {
		return s.config.DefaultPullLimit
	}
	if limit > s.config.MaxPullLimit {
		return s.config.MaxPullLimit
	}
	return limit
}
