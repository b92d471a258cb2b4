// Copyright 2026 Vitaltrack Authors
// SPDX-License-Identifier: Apache-2.0

package vitalsync

import "time"

// Clock is the single authoritative time source for the sync core. Everything
// that stamps rows or sessions goes through it so tests can control time.
type Clock interface {
	Now() time.Time
}

// SystemClock is the wall-clock implementation used in production.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// EpochCursor is the initial replication cursor. A client that has never
// synced starts here and therefore pulls full history.
const EpochCursor = "1970-01-01T00:00:00.000Z"

const cursorLayout = "2006-01-02T15:04:05.000Z"

// FormatCursor renders an epoch-millisecond watermark as an opaque cursor
// string (ISO-8601 UTC with millisecond precision).
func FormatCursor(ms int64) string {
	return time.UnixMilli(ms).UTC().Format(cursorLayout)
}

// ParseCursor parses a cursor back to epoch milliseconds. Cursors written by
// older clients without a fractional part are accepted too.
func ParseCursor(s string) (int64, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return 0, err
	}
	return t.UnixMilli(), nil
}

// TimeToMillis converts a time to the epoch-millisecond representation used
// for every replicated timestamp.
func TimeToMillis(t time.Time) int64 { return t.UnixMilli() }

// MillisToTime is the inverse of TimeToMillis.
func MillisToTime(ms int64) time.Time { return time.UnixMilli(ms).UTC() }
