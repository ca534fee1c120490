// Package ids mints the 128-bit job identifiers the execution core hands
// back to clients. Collision probability across the process lifetime (and
// across restarts, since ids are never reused from the persistence log) is
// the one a random v4 UUID gives: negligible.
package ids

import "github.com/google/uuid"

// NewJobID returns a fresh random identifier rendered as text.
func NewJobID() string {
	return uuid.New().String()
}

// NewRequestID returns a correlation id for request tracing headers
// (X-Request-Id). Reuses the same generator as job ids; request tracing
// doesn't need the full 36-character form but collision-resistance still
// matters across a busy server, so no truncation is applied.
func NewRequestID() string {
	return uuid.New().String()
}
