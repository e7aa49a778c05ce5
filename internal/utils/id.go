package utils

import "github.com/google/uuid"

// NewID returns a random identifier for connections and messages.
func NewID() string {
	return uuid.NewString()
}

// ShortID returns the first eight characters of id, for log lines.
func ShortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}
