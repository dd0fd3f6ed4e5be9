package model

import (
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// TimestampLayout is the naive, fixed-width form every stored timestamp uses.
// Fixed width keeps lexical order equal to chronological order.
const TimestampLayout = "2006-01-02T15:04:05.000000"

// naiveLayouts are accepted for inputs without a zone; they are read as UTC.
var naiveLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// FormatTimestamp converts t to UTC and renders it in TimestampLayout.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// NormalizeTimestamp parses a remote ISO-8601 timestamp, converts it to UTC
// and strips the zone so it can be compared with stored values as text.
func NormalizeTimestamp(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("empty timestamp")
	}
	if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return FormatTimestamp(t), nil
	}
	for _, layout := range naiveLayouts {
		if t, err := time.ParseInLocation(layout, raw, time.UTC); err == nil {
			return FormatTimestamp(t), nil
		}
	}
	return "", fmt.Errorf("unrecognized timestamp %q", raw)
}

// IsPending reports whether an entity's output is behind its remote state:
// it has never been saved, or it was saved before the last remote update.
func IsPending(updatedAt, savedAt sql.NullString) bool {
	if !savedAt.Valid {
		return true
	}
	return updatedAt.Valid && savedAt.String < updatedAt.String
}
