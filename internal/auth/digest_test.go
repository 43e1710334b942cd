package auth

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashSecret(t *testing.T) {
	// Known SHA-256 vector; the digest must stay byte-compatible with
	// credentials written by earlier deployments.
	assert.Equal(t,
		"5e884898da28047151d0e56f8dc6292773603d0d6aabbdd62a11ef721d1542d8",
		HashSecret("password"))

	assert.Equal(t, HashSecret("secret"), HashSecret("secret"))
	assert.NotEqual(t, HashSecret("secret"), HashSecret("Secret"))
	assert.Len(t, HashSecret(""), 64)
}

func TestGenerateToken(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		token := GenerateToken()
		_, err := uuid.Parse(token)
		require.NoError(t, err)
		require.False(t, seen[token], "tokens must be unique")
		seen[token] = true
	}
}
