// jwt.go handles session token creation and verification with a shared HS256
// secret. The issuer is an injected dependency constructed once at startup
// rather than package-level state, so tests can run with independent secrets.
package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultTokenTTL is used when the issuer is constructed with a zero TTL.
const DefaultTokenTTL = 24 * time.Hour

// Claims represents the session token claims structure
type Claims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// TokenIssuer creates and verifies session tokens for registered users.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenIssuer constructs a TokenIssuer. An empty secret generates a random
// one and logs a warning: sessions then do not survive a restart, which is
// acceptable for development but not production.
func NewTokenIssuer(secret string, ttl time.Duration) *TokenIssuer {
	if secret == "" {
		raw := make([]byte, 32)
		if _, err := rand.Read(raw); err != nil {
			panic("auth: unable to read random bytes: " + err.Error())
		}
		secret = hex.EncodeToString(raw)
		slog.Warn("no JWT secret configured; generated a random one, sessions will not persist across restarts")
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &TokenIssuer{secret: []byte(secret), ttl: ttl}
}

// Issue creates a signed session token for an authenticated user
func (i *TokenIssuer) Issue(username string) (string, error) {
	now := time.Now()
	claims := &Claims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    "code-supporter",
			Subject:   username,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(i.secret)
}

// Verify parses and validates a session token
func (i *TokenIssuer) Verify(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return i.secret, nil
	})
	if err != nil {
		return nil, err
	}

	if !token.Valid {
		return nil, errors.New("invalid token")
	}

	claims, ok := token.Claims.(*Claims)
	if !ok {
		return nil, errors.New("invalid claims type")
	}
	if claims.Username == "" {
		return nil, errors.New("token has no subject user")
	}

	return claims, nil
}
