// Copyright 2026 Vitaltrack Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/vitaltrack/go-vitalsync/vitalsync"
)

var pendingCmd = &cobra.Command{
	Use:   "pending",
	Short: "List queued changes that have not synced yet",
	RunE: func(cmd *cobra.Command, args []string) error {
		logger, err := newFileLogger()
		if err != nil {
			return err
		}
		store, err := openLocalStore(logger)
		if err != nil {
			return err
		}
		defer store.Close()

		cursor, err := store.Cursor(cmd.Context())
		if err != nil {
			return err
		}
		entries, err := store.GetOutbox(cmd.Context(), vitalsync.DefaultBatchSize)
		if err != nil {
			return err
		}

		fmt.Printf("Last sync cursor: %s\n", cursor)
		if len(entries) == 0 {
			fmt.Println("No pending changes")
			return nil
		}

		fmt.Printf("%d pending change(s):\n", len(entries))
		for _, e := range entries {
			queued := vitalsync.MillisToTime(e.QueuedAt).Local().Format(time.RFC3339)
			fmt.Printf("  %-16s %-8s %s (queued %s)\n", e.Table, e.Op, e.ID, queued)
		}
		return nil
	},
}
