// Copyright 2026 Vitaltrack Authors
// SPDX-License-Identifier: Apache-2.0

package vitalsync

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vitaltrack/go-vitalsync/internal/auth"
)

// Session is a device or web session row. A token of type "cli" never
// carries an expiry; only web sessions expire.
type Session struct {
	ID         string
	Token      string
	UserID     string
	Type       string
	DeviceName string
	LastUsedAt time.Time
	CreatedAt  time.Time
	ExpiresAt  *time.Time
}

// SessionStore abstracts session persistence so the device authenticator can
// be tested without a database.
type SessionStore interface {
	CreateSession(ctx context.Context, session *Session) error
	SessionByToken(ctx context.Context, token string) (*Session, error)
	TouchSession(ctx context.Context, id string, at time.Time) error
}

// PgSessionStore is the PostgreSQL session store.
type PgSessionStore struct {
	pool *pgxpool.Pool
}

func NewPgSessionStore(pool *pgxpool.Pool) *PgSessionStore {
	return &PgSessionStore{pool: pool}
}

func (s *PgSessionStore) CreateSession(ctx context.Context, session *Session) error {
	_, err := s.pool.Exec(ctx, `
INSERT INTO sessions (id, token, user_id, type, device_name, last_used_at, created_at, expires_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		session.ID, session.Token, session.UserID, session.Type,
		session.DeviceName, session.LastUsedAt, session.CreatedAt, session.ExpiresAt)
	return err
}

func (s *PgSessionStore) SessionByToken(ctx context.Context, token string) (*Session, error) {
	var session Session
	err := s.pool.QueryRow(ctx, `
SELECT id, token, user_id, type, device_name, last_used_at, created_at, expires_at
FROM sessions WHERE token = $1`, token,
	).Scan(&session.ID, &session.Token, &session.UserID, &session.Type,
		&session.DeviceName, &session.LastUsedAt, &session.CreatedAt, &session.ExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (s *PgSessionStore) TouchSession(ctx context.Context, id string, at time.Time) error {
	_, err := s.pool.Exec(ctx, `UPDATE sessions SET last_used_at = $1 WHERE id = $2`, at, id)
	return err
}

// DeviceAuthenticator validates bearer tokens presented by non-browser
// clients and resolves them to a user id. It is a parallel, simpler mechanism
// to the cookie session system protecting the interactive endpoints, and it
// gates only the sync endpoints.
type DeviceAuthenticator struct {
	sessions SessionStore
	clock    Clock
	logger   *slog.Logger
}

func NewDeviceAuthenticator(sessions SessionStore, clock Clock, logger *slog.Logger) *DeviceAuthenticator {
	if clock == nil {
		clock = SystemClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &DeviceAuthenticator{sessions: sessions, clock: clock, logger: logger}
}

// ExtractBearerToken parses an "Authorization: Bearer <token>" header value.
// Missing header, wrong scheme or a malformed value all report absent; there
// is no partial parsing.
func ExtractBearerToken(headerValue string) (string, bool) {
	if headerValue == "" {
		return "", false
	}
	parts := strings.SplitN(headerValue, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", false
	}
	return token, true
}

// ValidateCLIToken resolves a device token to its user id. A token that
// matches a session of any other type is rejected: a valid web session token
// must not authenticate CLI calls.
//
// On success last_used_at is updated as best-effort bookkeeping; a failure
// there is logged, not surfaced, so it cannot fail the request it
// authenticates.
func (a *DeviceAuthenticator) ValidateCLIToken(ctx context.Context, token string) (*Session, error) {
	session, err := a.sessions.SessionByToken(ctx, token)
	if errors.Is(err, ErrSessionNotFound) {
		return nil, &InvalidTokenError{Message: "unknown device token"}
	}
	if err != nil {
		return nil, err
	}
	if session.Type != SessionTypeCLI {
		return nil, &InvalidTokenError{Message: "token is not a device token"}
	}

	if err := a.sessions.TouchSession(ctx, session.ID, a.clock.Now()); err != nil {
		a.logger.Warn("Failed to update session last_used_at", "error", err, "session_id", session.ID)
	}
	return session, nil
}

// AuthenticateHeader composes bearer extraction and token validation for a
// raw Authorization header value.
func (a *DeviceAuthenticator) AuthenticateHeader(ctx context.Context, headerValue string) (*Session, error) {
	token, ok := ExtractBearerToken(headerValue)
	if !ok {
		return nil, &InvalidTokenError{Message: "Missing or invalid Authorization header"}
	}
	return a.ValidateCLIToken(ctx, token)
}

// Middleware guards an HTTP handler with device-token authentication and
// stores the resolved identity in the request context.
func (a *DeviceAuthenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		session, err := a.AuthenticateHeader(r.Context(), r.Header.Get("Authorization"))
		if err != nil {
			var invalidErr *InvalidTokenError
			if errors.As(err, &invalidErr) {
				writeJSONError(w, http.StatusUnauthorized, "invalid_token", invalidErr.Message)
				return
			}
			a.logger.Error("Device token validation failed", "error", err)
			writeJSONError(w, http.StatusInternalServerError, "auth_failed", "Failed to validate device token")
			return
		}

		ctx := auth.SetAuthContext(r.Context(), session.UserID, session.ID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
