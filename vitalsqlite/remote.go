// Copyright 2026 Vitaltrack Authors
// SPDX-License-Identifier: Apache-2.0

package vitalsqlite

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/vitaltrack/go-vitalsync/vitalsync"
)

// Remote is the transport surface the sync orchestrator depends on. Tests
// substitute a fake; production uses RemoteClient.
type Remote interface {
	Authenticate(ctx context.Context, email, password, deviceName string) (*vitalsync.AuthenticateResponse, error)
	Pull(ctx context.Context, token, cursor string, limit int) (*vitalsync.PullResponse, error)
	Push(ctx context.Context, token string, changes []vitalsync.SyncChange) (*vitalsync.PushResponse, error)
}

// RemoteClient talks to a vitalsync server over HTTP. All transport and
// decoding failures surface as SyncNetworkError and an HTTP 401 on the sync
// endpoints surfaces as SyncAuthError, so callers branch on error type rather
// than status codes.
type RemoteClient struct {
	BaseURL string
	HTTP    *http.Client
	logger  *slog.Logger
}

var _ Remote = (*RemoteClient)(nil)

func NewRemoteClient(baseURL string, httpClient *http.Client, logger *slog.Logger) *RemoteClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RemoteClient{
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		HTTP:    httpClient,
		logger:  logger,
	}
}

// Authenticate exchanges credentials for a long-lived device token.
func (c *RemoteClient) Authenticate(ctx context.Context, email, password, deviceName string) (*vitalsync.AuthenticateResponse, error) {
	body := vitalsync.AuthenticateRequest{Email: email, Password: password, DeviceName: deviceName}
	resp, err := c.post(ctx, "/sync/authenticate", "", body)
	if err != nil {
		return nil, &vitalsync.LoginFailedError{
			Reason:  vitalsync.ReasonNetworkError,
			Message: fmt.Sprintf("could not reach server: %v", err),
		}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, &vitalsync.LoginFailedError{
			Reason:  vitalsync.ReasonInvalidCredentials,
			Message: serverMessage(resp.Body, "invalid email or password"),
		}
	case resp.StatusCode == http.StatusLocked:
		return nil, &vitalsync.LoginFailedError{
			Reason:  vitalsync.ReasonAccountLocked,
			Message: serverMessage(resp.Body, "account is locked"),
		}
	case resp.StatusCode != http.StatusOK:
		return nil, &vitalsync.LoginFailedError{
			Reason:  vitalsync.ReasonNetworkError,
			Message: fmt.Sprintf("server returned status %d", resp.StatusCode),
		}
	}

	var authResp vitalsync.AuthenticateResponse
	if err := json.NewDecoder(resp.Body).Decode(&authResp); err != nil || authResp.Token == "" {
		return nil, &vitalsync.LoginFailedError{
			Reason:  vitalsync.ReasonNetworkError,
			Message: "server returned a malformed authenticate response",
		}
	}
	return &authResp, nil
}

// Pull fetches one page of changes after the cursor. The response is
// validated before it is returned: unknown tables, undecodable payloads or an
// unparseable next cursor are protocol violations, reported as network
// errors so nothing malformed ever reaches the local store.
func (c *RemoteClient) Pull(ctx context.Context, token, cursor string, limit int) (*vitalsync.PullResponse, error) {
	body := vitalsync.PullRequest{Cursor: cursor, Limit: limit}
	resp, err := c.post(ctx, "/sync/pull", token, body)
	if err != nil {
		return nil, &vitalsync.SyncNetworkError{Err: err}
	}
	defer resp.Body.Close()

	if err := c.checkSyncStatus(resp); err != nil {
		return nil, err
	}

	var pullResp vitalsync.PullResponse
	if err := json.NewDecoder(resp.Body).Decode(&pullResp); err != nil {
		return nil, &vitalsync.SyncNetworkError{Err: fmt.Errorf("malformed pull response: %w", err)}
	}
	if err := validatePullResponse(&pullResp); err != nil {
		return nil, &vitalsync.SyncNetworkError{Err: err}
	}
	return &pullResp, nil
}

// Push uploads a batch of pending changes.
func (c *RemoteClient) Push(ctx context.Context, token string, changes []vitalsync.SyncChange) (*vitalsync.PushResponse, error) {
	body := vitalsync.PushRequest{Changes: changes}
	resp, err := c.post(ctx, "/sync/push", token, body)
	if err != nil {
		return nil, &vitalsync.SyncNetworkError{Err: err}
	}
	defer resp.Body.Close()

	if err := c.checkSyncStatus(resp); err != nil {
		return nil, err
	}

	var pushResp vitalsync.PushResponse
	if err := json.NewDecoder(resp.Body).Decode(&pushResp); err != nil {
		return nil, &vitalsync.SyncNetworkError{Err: fmt.Errorf("malformed push response: %w", err)}
	}
	return &pushResp, nil
}

// post sends a JSON POST. A non-empty token is attached as a bearer header.
func (c *RemoteClient) post(ctx context.Context, path, token string, body any) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return c.HTTP.Do(req)
}

// checkSyncStatus maps non-2xx sync responses to typed errors. The caller
// still owns the body on a nil return.
func (c *RemoteClient) checkSyncStatus(resp *http.Response) error {
	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return &vitalsync.SyncAuthError{Message: serverMessage(resp.Body, "device token rejected")}
	case resp.StatusCode != http.StatusOK:
		return &vitalsync.SyncNetworkError{
			Err: fmt.Errorf("server returned status %d: %s", resp.StatusCode, serverMessage(resp.Body, "")),
		}
	}
	return nil
}

// validatePullResponse rejects responses the local store must never see.
func validatePullResponse(resp *vitalsync.PullResponse) error {
	if _, err := vitalsync.ParseCursor(resp.Cursor); err != nil {
		return fmt.Errorf("malformed pull cursor %q: %w", resp.Cursor, err)
	}
	for i := range resp.Changes {
		ch := &resp.Changes[i]
		if !vitalsync.IsSyncedTable(ch.Table) {
			return fmt.Errorf("pull returned unknown table %q", ch.Table)
		}
		if _, err := vitalsync.DecodePayload(ch.Table, ch.Payload); err != nil {
			return fmt.Errorf("pull returned undecodable payload for %s/%s: %w", ch.Table, ch.ID, err)
		}
	}
	return nil
}

// serverMessage extracts the human-readable message from an error response
// body, falling back when the body is not the standard error shape.
func serverMessage(body io.Reader, fallback string) string {
	var errResp vitalsync.ErrorResponse
	if err := json.NewDecoder(body).Decode(&errResp); err == nil && errResp.Message != "" {
		return errResp.Message
	}
	return fallback
}
