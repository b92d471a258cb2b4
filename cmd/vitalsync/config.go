// Copyright 2026 Vitaltrack Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/vitaltrack/go-vitalsync/vitalsqlite"
)

// clientConfig is persisted in the user's config directory after login.
type clientConfig struct {
	ServerURL  string `json:"server_url"`
	Email      string `json:"email"`
	UserID     string `json:"user_id"`
	Token      string `json:"token"`
	DeviceName string `json:"device_name"`
}

// configDir resolves the per-user state directory, honoring VITALSYNC_HOME
// for tests and unusual setups.
func configDir() (string, error) {
	if dir := os.Getenv("VITALSYNC_HOME"); dir != "" {
		return dir, os.MkdirAll(dir, 0o700)
	}
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to locate config directory: %w", err)
	}
	dir := filepath.Join(base, "vitalsync")
	return dir, os.MkdirAll(dir, 0o700)
}

// loadClientConfig reads the stored config; a missing file yields an empty
// config so login can create it.
func loadClientConfig() (*clientConfig, error) {
	dir, err := configDir()
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(dir, "config.json"))
	if errors.Is(err, fs.ErrNotExist) {
		return &clientConfig{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	var cfg clientConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}

// saveClientConfig writes the config with owner-only permissions since it
// holds the device token.
func saveClientConfig(cfg *clientConfig) error {
	dir, err := configDir()
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "config.json"), data, 0o600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// requireLogin reports a friendly error when no device session is stored.
func requireLogin(cfg *clientConfig) error {
	if cfg.Token == "" || cfg.UserID == "" || cfg.ServerURL == "" {
		return errors.New("not logged in; run 'vitalsync login' first")
	}
	return nil
}

// newFileLogger logs to a rotating file in the config directory so command
// output stays clean.
func newFileLogger() (*slog.Logger, error) {
	dir, err := configDir()
	if err != nil {
		return nil, err
	}
	writer := &lumberjack.Logger{
		Filename:   filepath.Join(dir, "vitalsync.log"),
		MaxSize:    5, // megabytes
		MaxBackups: 3,
		MaxAge:     30, // days
	}
	return slog.New(slog.NewJSONHandler(writer, &slog.HandlerOptions{Level: slog.LevelDebug})), nil
}

// openLocalStore opens the client database in the config directory.
func openLocalStore(logger *slog.Logger) (*vitalsqlite.Store, error) {
	dir, err := configDir()
	if err != nil {
		return nil, err
	}
	return vitalsqlite.OpenStore(filepath.Join(dir, "local.db"), nil, logger)
}
