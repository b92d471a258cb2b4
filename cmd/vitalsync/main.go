// Copyright 2026 Vitaltrack Authors
// SPDX-License-Identifier: Apache-2.0

// vitalsync is the command-line client: it keeps a local SQLite copy of the
// user's health data, queues offline writes, and syncs them with the server.
package main

func main() {
	Execute()
}
