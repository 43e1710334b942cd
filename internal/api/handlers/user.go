// user.go implements handlers for the authenticated account's own profile,
// settings, and password.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/code-supporter/code-supporter/internal/config"
	"github.com/code-supporter/code-supporter/internal/middleware"
	"github.com/code-supporter/code-supporter/internal/store"
)

// UserHandlers handles profile endpoints.
type UserHandlers struct {
	cfg   *config.AuthConfig
	users store.UserStore
}

// NewUserHandlers creates a new UserHandlers instance.
func NewUserHandlers(cfg *config.AuthConfig, users store.UserStore) *UserHandlers {
	return &UserHandlers{cfg: cfg, users: users}
}

// Profile returns the authenticated account without its password hash.
// GET /api/user
func (h *UserHandlers) Profile() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := h.users.GetUser(c.Request.Context(), middleware.Username(c))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load profile"})
			return
		}
		if user == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"user": user})
	}
}

type settingsRequest struct {
	Settings map[string]any `json:"settings"`
}

// UpdateSettings replaces the account's settings map wholesale.
// PUT /api/user/settings
func (h *UserHandlers) UpdateSettings() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req settingsRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}

		ok, err := h.users.UpdateSettings(c.Request.Context(), middleware.Username(c), req.Settings)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update settings"})
			return
		}
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Settings updated"})
	}
}

type passwordRequest struct {
	OldPassword string `json:"old_password"`
	NewPassword string `json:"new_password"`
}

// ChangePassword rotates the account password after re-verifying the old one.
// PUT /api/user/password
func (h *UserHandlers) ChangePassword() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req passwordRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}
		if len(req.NewPassword) < h.cfg.MinPassword {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Password too short"})
			return
		}

		ok, err := h.users.ChangePassword(c.Request.Context(), middleware.Username(c), req.OldPassword, req.NewPassword)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to change password"})
			return
		}
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Current password is incorrect"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Password changed"})
	}
}
