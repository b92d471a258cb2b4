// Copyright 2026 Vitaltrack Authors
// SPDX-License-Identifier: Apache-2.0

package vitalsync

import (
	"errors"
	"fmt"
)

// SyncNetworkError wraps any transport, serialization or database failure.
// Retryable by re-running the sync cycle.
type SyncNetworkError struct {
	Err error
}

func (e *SyncNetworkError) Error() string {
	return fmt.Sprintf("sync network error: %v", e.Err)
}

func (e *SyncNetworkError) Unwrap() error { return e.Err }

// SyncAuthError signals an invalid or missing device token (401-equivalent).
// Not retryable without re-authenticating.
type SyncAuthError struct {
	Message string
}

func (e *SyncAuthError) Error() string {
	if e.Message == "" {
		return "sync auth error: device token rejected"
	}
	return "sync auth error: " + e.Message
}

// LoginFailedError is returned by authenticate. Reason is one of
// ReasonInvalidCredentials, ReasonAccountLocked or ReasonNetworkError; only
// the last is retryable without user interaction.
type LoginFailedError struct {
	Reason  string
	Message string
}

func (e *LoginFailedError) Error() string {
	return fmt.Sprintf("login failed (%s): %s", e.Reason, e.Message)
}

// InvalidTokenError is the device middleware rejection.
type InvalidTokenError struct {
	Message string
}

func (e *InvalidTokenError) Error() string { return "invalid token: " + e.Message }

// SyncConflictError is reserved for callers that want push conflicts treated
// as a hard failure. The orchestrator resolves conflicts inline (server wins)
// and never raises it.
type SyncConflictError struct {
	Conflicts []SyncConflict
}

func (e *SyncConflictError) Error() string {
	return fmt.Sprintf("push rejected %d conflicting changes", len(e.Conflicts))
}

// ErrInvalidChange marks a push request entry that fails protocol validation
// (unknown table, undecodable payload, id/user mismatch). It rejects the
// request before anything is applied.
var ErrInvalidChange = errors.New("invalid change")

// ErrSessionNotFound is returned by SessionStore lookups for unknown tokens.
var ErrSessionNotFound = errors.New("session not found")

// ErrUserNotFound is returned by CredentialStore lookups for unknown emails.
var ErrUserNotFound = errors.New("user not found")

// ErrCredentialNotFound is returned by CredentialStore lookups for accounts
// without a password credential.
var ErrCredentialNotFound = errors.New("credential not found")
