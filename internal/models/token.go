package models

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
)

// GenerateToken mints a new opaque API token: 40 hex characters from 20
// random bytes. The raw token is shown once at provisioning; only its
// hash is stored.
func GenerateToken() (string, error) {
	buf := make([]byte, 20)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// HashToken returns the hex sha256 of a raw API token, the form stored in
// the users table and used as the Redis cache key.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
