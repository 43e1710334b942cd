package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueAndVerify(t *testing.T) {
	issuer := NewTokenIssuer("test-secret", time.Hour)

	token, err := issuer.Issue("alice")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := issuer.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.Username)
	assert.Equal(t, "alice", claims.Subject)
	assert.Equal(t, "code-supporter", claims.Issuer)
}

func TestVerify_WrongSecret(t *testing.T) {
	token, err := NewTokenIssuer("secret-a", time.Hour).Issue("alice")
	require.NoError(t, err)

	_, err = NewTokenIssuer("secret-b", time.Hour).Verify(token)
	assert.Error(t, err)
}

func TestVerify_Expired(t *testing.T) {
	issuer := NewTokenIssuer("test-secret", time.Hour)

	claims := &Claims{
		Username: "alice",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
			IssuedAt:  jwt.NewNumericDate(time.Now().Add(-2 * time.Hour)),
			Issuer:    "code-supporter",
			Subject:   "alice",
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)

	_, err = issuer.Verify(token)
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)
}

func TestVerify_RejectsNonHMAC(t *testing.T) {
	issuer := NewTokenIssuer("test-secret", time.Hour)

	// alg=none tokens must never pass.
	token, err := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{Username: "alice"}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = issuer.Verify(token)
	assert.Error(t, err)
}

func TestVerify_RejectsEmptyUsername(t *testing.T) {
	issuer := NewTokenIssuer("test-secret", time.Hour)
	token, err := issuer.Issue("")
	require.NoError(t, err)

	_, err = issuer.Verify(token)
	assert.Error(t, err)
}

func TestVerify_Garbage(t *testing.T) {
	issuer := NewTokenIssuer("test-secret", time.Hour)
	_, err := issuer.Verify("not-a-token")
	assert.Error(t, err)
}

func TestNewTokenIssuer_GeneratesSecretWhenEmpty(t *testing.T) {
	a := NewTokenIssuer("", 0)
	b := NewTokenIssuer("", 0)

	token, err := a.Issue("alice")
	require.NoError(t, err)

	_, err = a.Verify(token)
	assert.NoError(t, err, "an issuer verifies its own tokens")
	_, err = b.Verify(token)
	assert.Error(t, err, "generated secrets are per-issuer")
}

func TestNewTokenIssuer_DefaultTTL(t *testing.T) {
	issuer := NewTokenIssuer("test-secret", 0)
	token, err := issuer.Issue("alice")
	require.NoError(t, err)

	claims, err := issuer.Verify(token)
	require.NoError(t, err)

	remaining := time.Until(claims.ExpiresAt.Time)
	assert.Greater(t, remaining, 23*time.Hour)
	assert.LessOrEqual(t, remaining, DefaultTokenTTL)
}
