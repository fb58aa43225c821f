package common

import (
	"github.com/google/uuid"
)

// NewRunID generates a unique scenario run ID with the "run_" prefix
func NewRunID() string {
	return "run_" + uuid.New().String()
}

// IsUUID reports whether s is a canonical hyphenated UUID
func IsUUID(s string) bool {
	if len(s) != 36 {
		return false
	}
	_, err := uuid.Parse(s)
	return err == nil
}
