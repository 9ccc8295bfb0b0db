package util

import (
	"crypto/sha256"
	"fmt"

	"github.com/google/uuid"
)

// NewID returns a random UUIDv4 string.
func NewID() string {
	return uuid.NewString()
}

// HashToken returns the hex SHA-256 of value. Refresh tokens are stored only
// in hashed form.
func HashToken(value string) string {
	sum := sha256.Sum256([]byte(value))
	return fmt.Sprintf("%x", sum)
}
