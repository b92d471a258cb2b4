// Copyright 2026 Vitaltrack Authors
// SPDX-License-Identifier: Apache-2.0

package vitalsync

import "encoding/json"

// REST/JSON models for the three sync endpoints. These are the wire shapes
// shared by the server handlers and the client's RemoteClient.

// AuthenticateRequest is the body of POST /sync/authenticate.
type AuthenticateRequest struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	DeviceName string `json:"device_name"`
}

// AuthenticateResponse carries the long-lived device token plus the user id
// the client stamps into locally authored rows.
type AuthenticateResponse struct {
	Token  string `json:"token"`
	UserID string `json:"user_id"`
}

// SyncChange is the wire representation of one row's current state. The
// operation is derived, not stored: "delete" when the row is soft-deleted,
// otherwise "update" (receivers upsert, so first-insert is not distinguished).
type SyncChange struct {
	Table     string          `json:"table"`     // Synced table name (allow-listed)
	ID        string          `json:"id"`        // Row id (UUID string)
	Op        string          `json:"op"`        // insert, update or delete
	Payload   json.RawMessage `json:"payload"`   // Full row snapshot
	Timestamp int64           `json:"timestamp"` // Row updated_at as epoch millis
}

// PullRequest is the body of POST /sync/pull.
type PullRequest struct {
	Cursor string `json:"cursor"`          // Opaque replication watermark
	Limit  int    `json:"limit,omitempty"` // Page size, default DefaultBatchSize
}

// PullResponse returns one globally ordered page of changes.
type PullResponse struct {
	Changes []SyncChange `json:"changes"`
	Cursor  string       `json:"cursor"`   // Timestamp of the last returned change
	HasMore bool         `json:"has_more"` // More changes beyond this page
}

// PushRequest is the body of POST /sync/push.
type PushRequest struct {
	Changes []SyncChange `json:"changes"`
}

// SyncConflict reports a pushed change that lost to a newer server row.
// ServerVersion is the full current server row so the client can reconcile.
type SyncConflict struct {
	ID            string          `json:"id"`
	ServerVersion json.RawMessage `json:"server_version"`
}

// PushResponse partitions the pushed ids: every input id appears in exactly
// one of Accepted or Conflicts.
type PushResponse struct {
	Accepted  []string       `json:"accepted"`
	Conflicts []SyncConflict `json:"conflicts"`
}

// ErrorResponse is the standardized error body. Error carries a machine
// readable reason code, Message a human readable description.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}
