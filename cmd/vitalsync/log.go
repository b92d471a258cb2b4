// Copyright 2026 Vitaltrack Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/vitaltrack/go-vitalsync/vitalsync"
)

var logCmd = &cobra.Command{
	Use:   "log",
	Short: "Record a new entry in the local queue",
	Long: `Record a health entry. The entry is written to the local database and
queued for upload immediately; it reaches the server on the next sync.`,
}

var (
	weightKg   float64
	weightNote string
	weightAt   string
)

var logWeightCmd = &cobra.Command{
	Use:   "weight",
	Short: "Record a body-weight reading",
	RunE: func(cmd *cobra.Command, args []string) error {
		if weightKg <= 0 {
			return errors.New("--kg must be a positive weight in kilograms")
		}
		at, err := parseWhen(weightAt)
		if err != nil {
			return err
		}
		return writeEntry(cmd, func(userID string, now int64) vitalsync.RowPayload {
			return &vitalsync.WeightLogPayload{
				SyncMeta: vitalsync.SyncMeta{ID: uuid.NewString(), UserID: userID, UpdatedAt: now},
				LoggedAt: at,
				WeightKg: weightKg,
				Note:     weightNote,
			}
		})
	},
}

var (
	injMedication string
	injDoseMg     float64
	injSite       string
	injNote       string
	injAt         string
)

var logInjectionCmd = &cobra.Command{
	Use:   "injection",
	Short: "Record an administered injection",
	RunE: func(cmd *cobra.Command, args []string) error {
		if injMedication == "" {
			return errors.New("--medication is required")
		}
		if injDoseMg <= 0 {
			return errors.New("--dose-mg must be a positive dose in milligrams")
		}
		at, err := parseWhen(injAt)
		if err != nil {
			return err
		}
		return writeEntry(cmd, func(userID string, now int64) vitalsync.RowPayload {
			return &vitalsync.InjectionLogPayload{
				SyncMeta:   vitalsync.SyncMeta{ID: uuid.NewString(), UserID: userID, UpdatedAt: now},
				InjectedAt: at,
				Medication: injMedication,
				DoseMg:     injDoseMg,
				Site:       injSite,
				Note:       injNote,
			}
		})
	},
}

// writeEntry opens the local store and queues one new row.
func writeEntry(cmd *cobra.Command, build func(userID string, now int64) vitalsync.RowPayload) error {
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

	now := vitalsync.TimeToMillis(time.Now())
	payload := build(cfg.UserID, now)
	if err := store.WriteWithOutbox(cmd.Context(), vitalsync.OpInsert, payload); err != nil {
		return err
	}

	fmt.Printf("Recorded %s entry %s (queued for sync)\n", payload.Table(), payload.Meta().ID)
	return nil
}

// parseWhen converts an optional RFC 3339 flag value to epoch millis,
// defaulting to now.
func parseWhen(value string) (int64, error) {
	if value == "" {
		return vitalsync.TimeToMillis(time.Now()), nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return 0, fmt.Errorf("--at must be an RFC 3339 timestamp: %w", err)
	}
	return vitalsync.TimeToMillis(t), nil
}

func init() {
	logWeightCmd.Flags().Float64Var(&weightKg, "kg", 0, "weight in kilograms")
	logWeightCmd.Flags().StringVar(&weightNote, "note", "", "optional note")
	logWeightCmd.Flags().StringVar(&weightAt, "at", "", "when the reading was taken (RFC 3339, default now)")

	logInjectionCmd.Flags().StringVar(&injMedication, "medication", "", "medication name")
	logInjectionCmd.Flags().Float64Var(&injDoseMg, "dose-mg", 0, "dose in milligrams")
	logInjectionCmd.Flags().StringVar(&injSite, "site", "", "injection site")
	logInjectionCmd.Flags().StringVar(&injNote, "note", "", "optional note")
	logInjectionCmd.Flags().StringVar(&injAt, "at", "", "when the injection was given (RFC 3339, default now)")

	logCmd.AddCommand(logWeightCmd)
	logCmd.AddCommand(logInjectionCmd)
}
