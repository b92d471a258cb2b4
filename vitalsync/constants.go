// Copyright 2026 Vitaltrack Authors
// SPDX-License-Identifier: Apache-2.0

package vitalsync

// Operation constants for change operations
const (
	OpInsert = "insert"
	OpUpdate = "update"
	OpDelete = "delete"
)

// Synced table names. This is a fixed allow-list; pull and push never touch
// tables outside of it.
const (
	TableWeightLogs     = "weight_logs"
	TableInjectionLogs  = "injection_logs"
	TableInventoryItems = "inventory_items"
	TableSchedules      = "schedules"
	TableSchedulePhases = "schedule_phases"
	TableGoals          = "goals"
	TableUserSettings   = "user_settings"
)

// SyncedTables lists every replicated table in a stable order.
var SyncedTables = []string{
	TableWeightLogs,
	TableInjectionLogs,
	TableInventoryItems,
	TableSchedules,
	TableSchedulePhases,
	TableGoals,
	TableUserSettings,
}

// IsSyncedTable reports whether name is on the replication allow-list.
func IsSyncedTable(name string) bool {
	for _, t := range SyncedTables {
		if t == name {
			return true
		}
	}
	return false
}

// Login failure reason constants
const (
	ReasonInvalidCredentials = "invalid_credentials"
	ReasonAccountLocked      = "account_locked"
	ReasonNetworkError       = "network_error"
)

// Session type constants
const (
	SessionTypeWeb = "web"
	SessionTypeCLI = "cli"
)

// MetaKeyLastSyncCursor is the local metadata key holding the replication cursor.
const MetaKeyLastSyncCursor = "last_sync_cursor"

// DefaultBatchSize bounds pull/push page sizes on both sides of the protocol.
const DefaultBatchSize = 1000
