package utils

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Hash generates a SHA-256 hash of the input string
func Hash(input string) string {
	sum := sha256.Sum256([]byte(input))
	return hex.EncodeToString(sum[:])
}

// ShortHash hashes the parts joined by a separator and keeps the first n hex characters.
func ShortHash(n int, parts ...string) string {
	h := Hash(strings.Join(parts, "\x1f"))
	if n <= 0 || n > len(h) {
		return h
	}
	return h[:n]
}
