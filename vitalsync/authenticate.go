// Copyright 2026 Vitaltrack Authors
// SPDX-License-Identifier: Apache-2.0

package vitalsync

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/bcrypt"
)

// User is an account row as seen by the authenticate flow.
type User struct {
	ID          string
	Email       string
	DisplayName string
	Locked      bool
}

// CredentialStore abstracts account and password-hash lookups so the
// authenticate flow can be tested without a database.
type CredentialStore interface {
	UserByEmail(ctx context.Context, email string) (*User, error)
	PasswordHashByUserID(ctx context.Context, userID string) (string, error)
}

// PgCredentialStore is the PostgreSQL credential store.
type PgCredentialStore struct {
	pool *pgxpool.Pool
}

func NewPgCredentialStore(pool *pgxpool.Pool) *PgCredentialStore {
	return &PgCredentialStore{pool: pool}
}

func (s *PgCredentialStore) UserByEmail(ctx context.Context, email string) (*User, error) {
	var user User
	err := s.pool.QueryRow(ctx,
		`SELECT id, email, display_name, locked FROM users WHERE lower(email) = lower($1)`, email,
	).Scan(&user.ID, &user.Email, &user.DisplayName, &user.Locked)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *PgCredentialStore) PasswordHashByUserID(ctx context.Context, userID string) (string, error) {
	var hash string
	err := s.pool.QueryRow(ctx,
		`SELECT password_hash FROM user_credentials WHERE user_id = $1`, userID,
	).Scan(&hash)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrCredentialNotFound
	}
	if err != nil {
		return "", err
	}
	return hash, nil
}

// Authenticate verifies email/password credentials and creates a long-lived
// CLI device session, returning its opaque token and the user's id.
//
// Every credential miss (unknown email, OAuth-only account without a password
// credential, wrong password) is reported as invalid_credentials. Database
// failures are reported as network_error instead so clients can tell "you're
// wrong" from "we couldn't check".
func (s *SyncService) Authenticate(ctx context.Context, email, password, deviceName string) (*AuthenticateResponse, error) {
	user, err := s.users.UserByEmail(ctx, email)
	if errors.Is(err, ErrUserNotFound) {
		return nil, &LoginFailedError{Reason: ReasonInvalidCredentials, Message: "invalid email or password"}
	}
	if err != nil {
		s.logger.Error("Failed to look up user for authenticate", "error", err)
		return nil, &LoginFailedError{Reason: ReasonNetworkError, Message: "could not verify credentials"}
	}
	if user.Locked {
		return nil, &LoginFailedError{Reason: ReasonAccountLocked, Message: "account is locked"}
	}

	passwordHash, err := s.users.PasswordHashByUserID(ctx, user.ID)
	if errors.Is(err, ErrCredentialNotFound) {
		// OAuth-only accounts have no password credential.
		return nil, &LoginFailedError{Reason: ReasonInvalidCredentials, Message: "invalid email or password"}
	}
	if err != nil {
		s.logger.Error("Failed to look up credentials for authenticate", "error", err, "user_id", user.ID)
		return nil, &LoginFailedError{Reason: ReasonNetworkError, Message: "could not verify credentials"}
	}

	if err := bcrypt.CompareHashAndPassword([]byte(passwordHash), []byte(password)); err != nil {
		return nil, &LoginFailedError{Reason: ReasonInvalidCredentials, Message: "invalid email or password"}
	}

	token, err := newSessionToken()
	if err != nil {
		s.logger.Error("Failed to generate session token", "error", err)
		return nil, &LoginFailedError{Reason: ReasonNetworkError, Message: "could not create session"}
	}

	now := s.clock.Now()
	session := &Session{
		ID:         uuid.NewString(),
		Token:      token,
		UserID:     user.ID,
		Type:       SessionTypeCLI,
		DeviceName: deviceName,
		LastUsedAt: now,
		CreatedAt:  now,
		// ExpiresAt stays nil: CLI device sessions never expire.
	}
	if err := s.sessions.CreateSession(ctx, session); err != nil {
		s.logger.Error("Failed to create CLI session", "error", err, "user_id", user.ID)
		return nil, &LoginFailedError{Reason: ReasonNetworkError, Message: "could not create session"}
	}

	s.logger.Info("Created CLI device session", "user_id", user.ID, "device_name", deviceName)
	return &AuthenticateResponse{Token: token, UserID: user.ID}, nil
}

// newSessionToken generates an opaque 256-bit bearer token.
func newSessionToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
