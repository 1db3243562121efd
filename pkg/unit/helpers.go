package unit

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

func parseUUID(s string) (uuid.UUID, error) {
	if s == "" {
		return uuid.UUID{}, fmt.Errorf("empty uuid")
	}
	return uuid.Parse(s)
}

// parseTimestamp accepts ISO 8601 UTC, matching spec.md's created_at
// contract. RFC 3339 is ISO 8601's well-defined profile and is what every
// unit in the wild actually emits (trailing "Z" or a numeric offset).
func parseTimestamp(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.999999999Z")
}

// NewUUIDv7 generates a fresh UUIDv7, the only identity and ordering
// primitive in the system (I4). It panics if the entropy source fails,
// matching uuid.Must — a caller minting a fresh unit id has no useful
// recovery path from a broken system RNG.
func NewUUIDv7() uuid.UUID {
	return uuid.Must(uuid.NewV7())
}
