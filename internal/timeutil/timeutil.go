// Package timeutil provides helpers for the RFC3339 UTC timestamp
// strings stored in the database.
package timeutil

import "time"

// Format returns t as an RFC3339Nano UTC string, or "" for the
// zero time.
func Format(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

// Ptr returns a pointer to the formatted timestamp, or nil for
// the zero time.
func Ptr(t time.Time) *string {
	if t.IsZero() {
		return nil
	}
	s := Format(t)
	return &s
}

// Parse parses an RFC3339 timestamp string, accepting the
// second-precision form as well. Returns the zero time on failure.
func Parse(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		t, err = time.Parse("2006-01-02T15:04:05Z", s)
		if err != nil {
			return time.Time{}
		}
	}
	return t
}
