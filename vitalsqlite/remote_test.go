// Copyright 2026 Vitaltrack Authors
// SPDX-License-Identifier: Apache-2.0

package vitalsqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/vitaltrack/go-vitalsync/vitalsync"
)

func TestRemoteAuthenticate(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, "/sync/authenticate", r.URL.Path)
			require.Empty(t, r.Header.Get("Authorization"), "no bearer on authenticate")

			var req vitalsync.AuthenticateRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			require.Equal(t, "a@b.c", req.Email)
			require.Equal(t, "laptop", req.DeviceName)

			json.NewEncoder(w).Encode(vitalsync.AuthenticateResponse{Token: "tok", UserID: "u1"})
		}))
		defer srv.Close()

		c := NewRemoteClient(srv.URL, nil, nil)
		resp, err := c.Authenticate(context.Background(), "a@b.c", "pw", "laptop")
		require.NoError(t, err)
		require.Equal(t, "tok", resp.Token)
		require.Equal(t, "u1", resp.UserID)
	})

	t.Run("failure reasons", func(t *testing.T) {
		cases := []struct {
			status int
			reason string
		}{
			{http.StatusUnauthorized, vitalsync.ReasonInvalidCredentials},
			{http.StatusForbidden, vitalsync.ReasonInvalidCredentials},
			{http.StatusLocked, vitalsync.ReasonAccountLocked},
			{http.StatusInternalServerError, vitalsync.ReasonNetworkError},
		}
		for _, tc := range cases {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				json.NewEncoder(w).Encode(vitalsync.ErrorResponse{Error: "e", Message: "m"})
			}))
			c := NewRemoteClient(srv.URL, nil, nil)
			_, err := c.Authenticate(context.Background(), "a@b.c", "pw", "laptop")
			srv.Close()

			var loginErr *vitalsync.LoginFailedError
			require.ErrorAs(t, err, &loginErr, "status %d", tc.status)
			require.Equal(t, tc.reason, loginErr.Reason, "status %d", tc.status)
		}
	})

	t.Run("unreachable server", func(t *testing.T) {
		c := NewRemoteClient("http://127.0.0.1:1", nil, nil)
		_, err := c.Authenticate(context.Background(), "a@b.c", "pw", "laptop")
		var loginErr *vitalsync.LoginFailedError
		require.ErrorAs(t, err, &loginErr)
		require.Equal(t, vitalsync.ReasonNetworkError, loginErr.Reason)
	})

	t.Run("malformed response", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"token":`)
		}))
		defer srv.Close()

		c := NewRemoteClient(srv.URL, nil, nil)
		_, err := c.Authenticate(context.Background(), "a@b.c", "pw", "laptop")
		var loginErr *vitalsync.LoginFailedError
		require.ErrorAs(t, err, &loginErr)
		require.Equal(t, vitalsync.ReasonNetworkError, loginErr.Reason)
	})
}

func validPullPage(t *testing.T) vitalsync.PullResponse {
	t.Helper()
	id, userID := uuid.NewString(), uuid.NewString()
	payload := fmt.Sprintf(
		`{"id":%q,"user_id":%q,"updated_at":1000,"logged_at":1000,"weight_kg":90}`, id, userID)
	return vitalsync.PullResponse{
		Changes: []vitalsync.SyncChange{{
			Table: vitalsync.TableWeightLogs, ID: id, Op: vitalsync.OpUpdate,
			Payload: json.RawMessage(payload), Timestamp: 1000,
		}},
		Cursor: vitalsync.FormatCursor(1000),
	}
}

func TestRemotePull(t *testing.T) {
	t.Run("success with bearer header", func(t *testing.T) {
		page := validPullPage(t)
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, "/sync/pull", r.URL.Path)
			require.Equal(t, "Bearer tok", r.Header.Get("Authorization"))

			var req vitalsync.PullRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			require.Equal(t, vitalsync.EpochCursor, req.Cursor)
			require.Equal(t, 100, req.Limit)

			json.NewEncoder(w).Encode(page)
		}))
		defer srv.Close()

		c := NewRemoteClient(srv.URL, nil, nil)
		resp, err := c.Pull(context.Background(), "tok", vitalsync.EpochCursor, 100)
		require.NoError(t, err)
		require.Len(t, resp.Changes, 1)
		require.Equal(t, page.Cursor, resp.Cursor)
	})

	t.Run("unauthorized maps to auth error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(vitalsync.ErrorResponse{Error: "invalid_token", Message: "unknown device token"})
		}))
		defer srv.Close()

		c := NewRemoteClient(srv.URL, nil, nil)
		_, err := c.Pull(context.Background(), "tok", vitalsync.EpochCursor, 100)
		var authErr *vitalsync.SyncAuthError
		require.ErrorAs(t, err, &authErr)
		require.Contains(t, authErr.Message, "unknown device token")
	})

	t.Run("unknown table rejected", func(t *testing.T) {
		page := validPullPage(t)
		page.Changes[0].Table = "users"
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(page)
		}))
		defer srv.Close()

		c := NewRemoteClient(srv.URL, nil, nil)
		_, err := c.Pull(context.Background(), "tok", vitalsync.EpochCursor, 100)
		var netErr *vitalsync.SyncNetworkError
		require.ErrorAs(t, err, &netErr)
	})

	t.Run("undecodable payload rejected", func(t *testing.T) {
		page := validPullPage(t)
		page.Changes[0].Payload = json.RawMessage(`{"id":"not-a-uuid"}`)
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(page)
		}))
		defer srv.Close()

		c := NewRemoteClient(srv.URL, nil, nil)
		_, err := c.Pull(context.Background(), "tok", vitalsync.EpochCursor, 100)
		var netErr *vitalsync.SyncNetworkError
		require.ErrorAs(t, err, &netErr)
	})

	t.Run("malformed cursor rejected", func(t *testing.T) {
		page := validPullPage(t)
		page.Cursor = "later"
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(page)
		}))
		defer srv.Close()

		c := NewRemoteClient(srv.URL, nil, nil)
		_, err := c.Pull(context.Background(), "tok", vitalsync.EpochCursor, 100)
		var netErr *vitalsync.SyncNetworkError
		require.ErrorAs(t, err, &netErr)
	})

	t.Run("transport failure", func(t *testing.T) {
		c := NewRemoteClient("http://127.0.0.1:1", nil, nil)
		_, err := c.Pull(context.Background(), "tok", vitalsync.EpochCursor, 100)
		var netErr *vitalsync.SyncNetworkError
		require.ErrorAs(t, err, &netErr)
	})
}

func TestRemotePush(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, "/sync/push", r.URL.Path)
			require.Equal(t, "Bearer tok", r.Header.Get("Authorization"))

			var req vitalsync.PushRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			require.Len(t, req.Changes, 1)

			json.NewEncoder(w).Encode(vitalsync.PushResponse{
				Accepted:  []string{req.Changes[0].ID},
				Conflicts: []vitalsync.SyncConflict{},
			})
		}))
		defer srv.Close()

		page := validPullPage(t)
		c := NewRemoteClient(srv.URL, nil, nil)
		resp, err := c.Push(context.Background(), "tok", page.Changes)
		require.NoError(t, err)
		require.Equal(t, []string{page.Changes[0].ID}, resp.Accepted)
	})

	t.Run("unauthorized maps to auth error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		}))
		defer srv.Close()

		c := NewRemoteClient(srv.URL, nil, nil)
		_, err := c.Push(context.Background(), "tok", nil)
		var authErr *vitalsync.SyncAuthError
		require.ErrorAs(t, err, &authErr)
	})

	t.Run("malformed response", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `accepted`)
		}))
		defer srv.Close()

		c := NewRemoteClient(srv.URL, nil, nil)
		_, err := c.Push(context.Background(), "tok", nil)
		var netErr *vitalsync.SyncNetworkError
		require.ErrorAs(t, err, &netErr)
	})
}
