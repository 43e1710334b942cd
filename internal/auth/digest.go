// Package auth provides authentication primitives for the backend: the legacy
// password digest, API key/secret generation, and JWT session tokens.
//
// The password digest is a plain SHA-256 hex string, deterministic and
// unsalted, because the stores must verify hashes written by earlier
// deployments of this system. Changing the scheme would invalidate every
// stored credential.
package auth

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/google/uuid"
)

// HashSecret returns the hex-encoded SHA-256 digest of s.
func HashSecret(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// GenerateToken returns a new random opaque token. API keys and secrets are
// two independent tokens generated this way; conversation and message IDs use
// the same shape.
func GenerateToken() string {
	return uuid.NewString()
}
