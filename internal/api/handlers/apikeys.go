// apikeys.go implements API key management. Ownership is enforced here, not
// in the store: a key record is loaded first and its creator compared to the
// authenticated account. Keys created by others 404 so existence cannot be
// probed.
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/code-supporter/code-supporter/internal/middleware"
	"github.com/code-supporter/code-supporter/internal/store"
	"github.com/code-supporter/code-supporter/internal/store/models"
)

// APIKeyHandlers handles API key management endpoints.
type APIKeyHandlers struct {
	keys store.APIKeyStore
}

// NewAPIKeyHandlers creates a new APIKeyHandlers instance.
func NewAPIKeyHandlers(keys store.APIKeyStore) *APIKeyHandlers {
	return &APIKeyHandlers{keys: keys}
}

// requireOwned loads the key and verifies the caller created it. Deleted
// keys are treated as gone.
func (h *APIKeyHandlers) requireOwned(c *gin.Context, key string) *models.APIKey {
	record, err := h.keys.GetAPIKey(c.Request.Context(), key)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load API key"})
		return nil
	}
	if record == nil || record.Status == models.APIKeyStatusDeleted || !record.IsOwnedBy(middleware.Username(c)) {
		c.JSON(http.StatusNotFound, gin.H{"error": "API key not found"})
		return nil
	}
	return record
}

type createKeyRequest struct {
	Name        string   `json:"name"`
	Permissions []string `json:"permissions"`
}

// Create mints a new key pair. The secret appears in this response and
// nowhere else.
// POST /api/apikeys
func (h *APIKeyHandlers) Create() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createKeyRequest
		if err := c.ShouldBindJSON(&req); err != nil || req.Name == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Name is required"})
			return
		}

		key, secret, err := h.keys.CreateAPIKey(c.Request.Context(), req.Name, req.Permissions, middleware.Username(c))
		if errors.Is(err, store.ErrInvalid) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid API key request"})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create API key"})
			return
		}

		c.JSON(http.StatusCreated, gin.H{
			"api_key":    key,
			"api_secret": secret,
			"message":    "Store the secret now; it will not be shown again",
		})
	}
}

// List returns the caller's non-deleted keys with secret hashes stripped.
// GET /api/apikeys
func (h *APIKeyHandlers) List() gin.HandlerFunc {
	return func(c *gin.Context) {
		keys, err := h.keys.ListAPIKeys(c.Request.Context(), middleware.Username(c))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list API keys"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"api_keys": keys})
	}
}

// Get returns one key record.
// GET /api/apikeys/:key
func (h *APIKeyHandlers) Get() gin.HandlerFunc {
	return func(c *gin.Context) {
		record := h.requireOwned(c, c.Param("key"))
		if record == nil {
			return
		}
		c.JSON(http.StatusOK, gin.H{"api_key": record})
	}
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

// UpdateStatus enables or disables a key.
// PUT /api/apikeys/:key/status
func (h *APIKeyHandlers) UpdateStatus() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.Param("key")

		var req updateStatusRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}
		if h.requireOwned(c, key) == nil {
			return
		}

		ok, err := h.keys.UpdateAPIKeyStatus(c.Request.Context(), key, req.Status, middleware.Username(c))
		if errors.Is(err, store.ErrInvalid) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Status must be 'active' or 'disabled'"})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update API key"})
			return
		}
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "API key not found"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "API key updated"})
	}
}

type updatePermissionsRequest struct {
	Permissions []string `json:"permissions"`
}

// UpdatePermissions replaces a key's permission set.
// PUT /api/apikeys/:key/permissions
func (h *APIKeyHandlers) UpdatePermissions() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.Param("key")

		var req updatePermissionsRequest
		if err := c.ShouldBindJSON(&req); err != nil || len(req.Permissions) == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Permissions are required"})
			return
		}
		if h.requireOwned(c, key) == nil {
			return
		}

		ok, err := h.keys.UpdateAPIKeyPermissions(c.Request.Context(), key, req.Permissions, middleware.Username(c))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update API key"})
			return
		}
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "API key not found"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "API key updated"})
	}
}

// Delete soft-deletes a key. The transition is terminal.
// DELETE /api/apikeys/:key
func (h *APIKeyHandlers) Delete() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.Param("key")
		if h.requireOwned(c, key) == nil {
			return
		}

		ok, err := h.keys.DeleteAPIKey(c.Request.Context(), key, middleware.Username(c))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete API key"})
			return
		}
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "API key not found"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "API key deleted"})
	}
}
