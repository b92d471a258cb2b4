// Copyright 2026 Vitaltrack Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vitaltrack/go-vitalsync/vitalsqlite"
	"github.com/vitaltrack/go-vitalsync/vitalsync"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Exchange pending changes with the server",
	Long: `Run one sync cycle: pull remote changes since the last sync, apply them
locally, then upload everything in the pending queue. Conflicts are resolved
in the server's favor.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadClientConfig()
		if err != nil {
			return err
		}
		if err := requireLogin(cfg); err != nil {
			return err
		}

		logger, err := newFileLogger()
		if err != nil {
			return err
		}
		store, err := openLocalStore(logger)
		if err != nil {
			return err
		}
		defer store.Close()

		remote := vitalsqlite.NewRemoteClient(cfg.ServerURL, nil, logger)
		syncer := vitalsqlite.NewSyncer(store, remote, cfg.Token, logger)

		stats, err := syncer.Sync(cmd.Context())
		if err != nil {
			var authErr *vitalsync.SyncAuthError
			if errors.As(err, &authErr) {
				return errors.New("device token rejected by server; run 'vitalsync login' again")
			}
			var netErr *vitalsync.SyncNetworkError
			if errors.As(err, &netErr) {
				return fmt.Errorf("sync failed, local changes are kept and will retry: %v", netErr)
			}
			return err
		}

		fmt.Printf("Sync complete: pulled %d, pushed %d\n", stats.PullCount, stats.PushCount)
		return nil
	},
}
