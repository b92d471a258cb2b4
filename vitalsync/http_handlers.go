// Copyright 2026 Vitaltrack Authors
// SPDX-License-Identifier: Apache-2.0

package vitalsync

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/vitaltrack/go-vitalsync/internal/auth"
)

// SyncAPI is the surface the HTTP handlers expose. *SyncService implements
// it; tests substitute a fake.
type SyncAPI interface {
	Authenticate(ctx context.Context, email, password, deviceName string) (*AuthenticateResponse, error)
	Pull(ctx context.Context, userID, cursor string, limit int) (*PullResponse, error)
	Push(ctx context.Context, userID string, changes []SyncChange) (*PushResponse, error)
}

var _ SyncAPI = (*SyncService)(nil)

// HTTPSyncHandlers provides the HTTP handlers for the sync API. Pull and push
// expect the device-auth middleware to have populated the request context.
type HTTPSyncHandlers struct {
	api    SyncAPI
	logger *slog.Logger
}

func NewHTTPSyncHandlers(api SyncAPI, logger *slog.Logger) *HTTPSyncHandlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPSyncHandlers{api: api, logger: logger}
}

// HandleAuthenticate processes POST /sync/authenticate.
func (h *HTTPSyncHandlers) HandleAuthenticate(w http.ResponseWriter, r *http.Request) {
	var req AuthenticateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "Failed to parse authenticate request")
		return
	}
	if req.Email == "" || req.Password == "" {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "email and password are required")
		return
	}

	resp, err := h.api.Authenticate(r.Context(), req.Email, req.Password, req.DeviceName)
	if err != nil {
		var loginErr *LoginFailedError
		if errors.As(err, &loginErr) {
			writeJSONError(w, loginStatusCode(loginErr.Reason), loginErr.Reason, loginErr.Message)
			return
		}
		h.logger.Error("Failed to authenticate device", "error", err)
		writeJSONError(w, http.StatusInternalServerError, ReasonNetworkError, "Failed to authenticate")
		return
	}

	writeJSON(w, h.logger, resp)
}

// HandlePull processes POST /sync/pull.
func (h *HTTPSyncHandlers) HandlePull(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.GetUserID(r.Context())
	if !ok {
		writeJSONError(w, http.StatusUnauthorized, "invalid_token", "Missing device identity")
		return
	}

	var req PullRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "Failed to parse pull request")
		return
	}
	if req.Cursor == "" {
		req.Cursor = EpochCursor
	}
	if _, err := ParseCursor(req.Cursor); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "cursor must be an ISO-8601 timestamp")
		return
	}

	resp, err := h.api.Pull(r.Context(), userID, req.Cursor, req.Limit)
	if err != nil {
		h.logger.Error("Failed to process pull", "error", err, "user_id", userID)
		writeJSONError(w, http.StatusInternalServerError, "pull_failed", "Failed to process pull")
		return
	}

	writeJSON(w, h.logger, resp)
}

// HandlePush processes POST /sync/push.
func (h *HTTPSyncHandlers) HandlePush(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.GetUserID(r.Context())
	if !ok {
		writeJSONError(w, http.StatusUnauthorized, "invalid_token", "Missing device identity")
		return
	}

	var req PushRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "Failed to parse push request")
		return
	}

	resp, err := h.api.Push(r.Context(), userID, req.Changes)
	if err != nil {
		if errors.Is(err, ErrInvalidChange) {
			writeJSONError(w, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}
		h.logger.Error("Failed to process push", "error", err, "user_id", userID, "changes_count", len(req.Changes))
		writeJSONError(w, http.StatusInternalServerError, "push_failed", "Failed to process push")
		return
	}

	writeJSON(w, h.logger, resp)
}

// loginStatusCode maps a login failure reason to its HTTP status.
func loginStatusCode(reason string) int {
	switch reason {
	case ReasonInvalidCredentials:
		return http.StatusUnauthorized
	case ReasonAccountLocked:
		return http.StatusLocked
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, logger *slog.Logger, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("Failed to encode response", "error", err)
	}
}

// writeJSONError writes a standardized error response.
func writeJSONError(w http.ResponseWriter, statusCode int, errorCode, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(ErrorResponse{Error: errorCode, Message: message})
}
