// Package handlers implements the HTTP endpoints of the Code Supporter
// backend. Handlers translate between the JSON API and the storage
// interfaces; they return generic error messages and leave the detail in the
// structured logs.
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/code-supporter/code-supporter/internal/auth"
	"github.com/code-supporter/code-supporter/internal/config"
	"github.com/code-supporter/code-supporter/internal/store"
)

// AuthHandlers handles registration and login.
type AuthHandlers struct {
	cfg    *config.AuthConfig
	users  store.UserStore
	issuer *auth.TokenIssuer
}

// NewAuthHandlers creates a new AuthHandlers instance.
func NewAuthHandlers(cfg *config.AuthConfig, users store.UserStore, issuer *auth.TokenIssuer) *AuthHandlers {
	return &AuthHandlers{cfg: cfg, users: users, issuer: issuer}
}

type registerRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Register creates a new account.
// POST /api/register
func (h *AuthHandlers) Register() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req registerRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}
		if len(req.Username) < h.cfg.MinUsername {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Username too short"})
			return
		}
		if len(req.Password) < h.cfg.MinPassword {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Password too short"})
			return
		}

		err := h.users.CreateUser(c.Request.Context(), req.Username, req.Password)
		if errors.Is(err, store.ErrAlreadyExists) {
			c.JSON(http.StatusConflict, gin.H{"error": "Username already exists"})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Registration failed"})
			return
		}
		c.JSON(http.StatusCreated, gin.H{"message": "Account created"})
	}
}

// Login verifies credentials and issues a session token.
// POST /api/login
func (h *AuthHandlers) Login() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req registerRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}

		ok, err := h.users.Authenticate(c.Request.Context(), req.Username, req.Password)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Login failed"})
			return
		}
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid username or password"})
			return
		}

		token, err := h.issuer.Issue(req.Username)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Login failed"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"token": token, "username": req.Username})
	}
}
