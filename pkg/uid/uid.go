package uid

import (
	"strings"

	"github.com/google/uuid"
)

// New generates a new random identifier.
func New() string {
	return uuid.New().String()
}

// IsValid checks if a string is a valid UUID.
func IsValid(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// Short returns the first eight hex digits of id, for filenames and log lines.
func Short(id string) string {
	s := strings.ReplaceAll(id, "-", "")
	if len(s) > 8 {
		return s[:8]
	}
	return s
}
