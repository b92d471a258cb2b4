// Copyright 2026 Vitaltrack Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "vitalsync",
	Short: "Offline-first client for the vitaltrack health tracker",
	Long: `vitalsync keeps a local copy of your vitaltrack data on this machine.

Writes (weight readings, injections) land in a local queue immediately and
work fully offline; 'vitalsync sync' exchanges pending changes with the
server whenever you have a connection.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(logCmd)
	rootCmd.AddCommand(pendingCmd)
}

// Execute runs the CLI and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
