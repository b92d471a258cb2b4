// Copyright 2026 Vitaltrack Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/vitaltrack/go-vitalsync/vitalsqlite"
	"github.com/vitaltrack/go-vitalsync/vitalsync"
)

var (
	loginServer     string
	loginEmail      string
	loginPassword   string
	loginDeviceName string
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in and store a device token for this machine",
	Long: `Authenticate against a vitalsync server with your email and password.

On success the server issues a long-lived device token that is stored in the
local config; subsequent commands use the token and never your password.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if loginServer == "" || loginEmail == "" {
			return errors.New("--server and --email are required")
		}

		password := loginPassword
		if password == "" {
			fmt.Fprint(os.Stderr, "Password: ")
			reader := bufio.NewReader(os.Stdin)
			line, err := reader.ReadString('\n')
			if err != nil {
				return fmt.Errorf("failed to read password: %w", err)
			}
			password = strings.TrimRight(line, "\r\n")
		}
		if password == "" {
			return errors.New("password must not be empty")
		}

		deviceName := loginDeviceName
		if deviceName == "" {
			if host, err := os.Hostname(); err == nil {
				deviceName = host
			} else {
				deviceName = "cli"
			}
		}

		logger, err := newFileLogger()
		if err != nil {
			return err
		}

		remote := vitalsqlite.NewRemoteClient(loginServer, nil, logger)
		resp, err := remote.Authenticate(cmd.Context(), loginEmail, password, deviceName)
		if err != nil {
			var loginErr *vitalsync.LoginFailedError
			if errors.As(err, &loginErr) {
				return fmt.Errorf("login failed (%s): %s", loginErr.Reason, loginErr.Message)
			}
			return err
		}

		cfg := &clientConfig{
			ServerURL:  strings.TrimSuffix(loginServer, "/"),
			Email:      loginEmail,
			UserID:     resp.UserID,
			Token:      resp.Token,
			DeviceName: deviceName,
		}
		if err := saveClientConfig(cfg); err != nil {
			return err
		}

		fmt.Printf("Logged in as %s (device %q)\n", loginEmail, deviceName)
		return nil
	},
}

func init() {
	loginCmd.Flags().StringVar(&loginServer, "server", "", "server base URL, e.g. https://sync.example.com")
	loginCmd.Flags().StringVar(&loginEmail, "email", "", "account email")
	loginCmd.Flags().StringVar(&loginPassword, "password", "", "account password (prompted if omitted)")
	loginCmd.Flags().StringVar(&loginDeviceName, "device-name", "", "label for this device (defaults to hostname)")
}
