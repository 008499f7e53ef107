package utils

import (
	"crypto/md5"
	"encoding/hex"
	"strings"

	"github.com/google/uuid"
)

// MD5Hash generates MD5 hash of input string
func MD5Hash(input string) string {
	hash := md5.Sum([]byte(input))
	return hex.EncodeToString(hash[:])
}

// NormalizedHash hashes the lower-cased, trimmed input so trivially
// different spellings of the same question share a cache key.
func NormalizedHash(input string) string {
	return MD5Hash(strings.ToLower(strings.TrimSpace(input)))
}

// NewRequestID returns a random request identifier.
func NewRequestID() string {
	return uuid.NewString()
}
