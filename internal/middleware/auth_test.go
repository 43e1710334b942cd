package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/code-supporter/code-supporter/internal/auth"
	"github.com/code-supporter/code-supporter/internal/store/models"
)

// stubKeyStore implements store.APIKeyStore for middleware tests. Only
// VerifyAPIKey is exercised here.
type stubKeyStore struct {
	valid       bool
	permissions []string
	err         error
	verified    []string
}

func (s *stubKeyStore) CreateAPIKey(ctx context.Context, name string, permissions []string, createdBy string) (string, string, error) {
	return "", "", errors.New("not implemented")
}

func (s *stubKeyStore) VerifyAPIKey(ctx context.Context, key string) (bool, []string, error) {
	s.verified = append(s.verified, key)
	return s.valid, s.permissions, s.err
}

func (s *stubKeyStore) GetAPIKey(ctx context.Context, key string) (*models.APIKey, error) {
	return nil, nil
}

func (s *stubKeyStore) ListAPIKeys(ctx context.Context, createdBy string) ([]*models.APIKey, error) {
	return nil, nil
}

func (s *stubKeyStore) UpdateAPIKeyStatus(ctx context.Context, key, status, updatedBy string) (bool, error) {
	return false, nil
}

func (s *stubKeyStore) UpdateAPIKeyPermissions(ctx context.Context, key string, permissions []string, updatedBy string) (bool, error) {
	return false, nil
}

func (s *stubKeyStore) DeleteAPIKey(ctx context.Context, key, deletedBy string) (bool, error) {
	return false, nil
}

func jwtRouter(issuer *auth.TokenIssuer) *gin.Engine {
	r := gin.New()
	r.GET("/protected", JWTAuth(issuer), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"username": Username(c)})
	})
	return r
}

func TestJWTAuth_ValidToken(t *testing.T) {
	issuer := auth.NewTokenIssuer("test-secret", time.Hour)
	token, err := issuer.Issue("alice")
	require.NoError(t, err)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	jwtRouter(issuer).ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "alice")
}

func TestJWTAuth_Rejections(t *testing.T) {
	issuer := auth.NewTokenIssuer("test-secret", time.Hour)
	otherIssuer := auth.NewTokenIssuer("other-secret", time.Hour)
	foreign, err := otherIssuer.Issue("alice")
	require.NoError(t, err)

	expiredIssuer := auth.NewTokenIssuer("test-secret", time.Nanosecond)
	expired, err := expiredIssuer.Issue("alice")
	require.NoError(t, err)
	time.Sleep(10 * time.Millisecond)

	cases := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"not bearer", "Basic abc"},
		{"empty token", "Bearer   "},
		{"garbage token", "Bearer not.a.jwt"},
		{"wrong secret", "Bearer " + foreign},
		{"expired", "Bearer " + expired},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/protected", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			jwtRouter(issuer).ServeHTTP(w, req)
			assert.Equal(t, http.StatusUnauthorized, w.Code)
		})
	}
}

func apiKeyRouter(keys *stubKeyStore, permission string) *gin.Engine {
	r := gin.New()
	r.POST("/public", APIKeyAuth(keys, permission), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"api_key": APIKey(c)})
	})
	return r
}

func TestAPIKeyAuth_AcceptsHeaderAndQuery(t *testing.T) {
	keys := &stubKeyStore{valid: true, permissions: []string{"chat"}}
	r := apiKeyRouter(keys, "chat")

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/public", nil)
	req.Header.Set(APIKeyHeader, "key-abc")
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "key-abc")

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/public?api_key=key-query", nil)
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, []string{"key-abc", "key-query"}, keys.verified)
}

func TestAPIKeyAuth_MissingKey(t *testing.T) {
	keys := &stubKeyStore{valid: true, permissions: []string{"chat"}}
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/public", nil)
	apiKeyRouter(keys, "chat").ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Empty(t, keys.verified, "store must not be queried without a key")
}

func TestAPIKeyAuth_InvalidKey(t *testing.T) {
	keys := &stubKeyStore{valid: false}
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/public", nil)
	req.Header.Set(APIKeyHeader, "disabled-key")
	apiKeyRouter(keys, "chat").ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAPIKeyAuth_MissingPermission(t *testing.T) {
	keys := &stubKeyStore{valid: true, permissions: []string{"other"}}
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/public", nil)
	req.Header.Set(APIKeyHeader, "key-abc")
	apiKeyRouter(keys, "chat").ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestAPIKeyAuth_StoreError(t *testing.T) {
	keys := &stubKeyStore{err: errors.New("backend down")}
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/public", nil)
	req.Header.Set(APIKeyHeader, "key-abc")
	apiKeyRouter(keys, "chat").ServeHTTP(w, req)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
