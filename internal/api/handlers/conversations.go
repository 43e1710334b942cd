// conversations.go implements the conversation CRUD endpoints. Every route is
// scoped to the authenticated account; a conversation owned by someone else
// is indistinguishable from one that does not exist.
package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/code-supporter/code-supporter/internal/middleware"
	"github.com/code-supporter/code-supporter/internal/store"
)

// ConversationHandlers handles conversation endpoints.
type ConversationHandlers struct {
	convs store.ConversationStore
}

// NewConversationHandlers creates a new ConversationHandlers instance.
func NewConversationHandlers(convs store.ConversationStore) *ConversationHandlers {
	return &ConversationHandlers{convs: convs}
}

// requireAccess rejects the request unless the conversation belongs to the
// authenticated account. Missing and foreign conversations both yield 404.
func (h *ConversationHandlers) requireAccess(c *gin.Context, conversationID string) bool {
	ok, err := h.convs.CheckConversationAccess(c.Request.Context(), middleware.Username(c), conversationID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load conversation"})
		return false
	}
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Conversation not found"})
		return false
	}
	return true
}

// List returns the account's conversations ordered by last activity.
// GET /api/conversations?limit=20&offset=0
func (h *ConversationHandlers) List() gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
		offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
		if limit < 1 || limit > 100 {
			limit = 20
		}
		if offset < 0 {
			offset = 0
		}

		username := middleware.Username(c)
		ctx := c.Request.Context()

		summaries, err := h.convs.ListConversations(ctx, username, limit, offset)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list conversations"})
			return
		}
		total, err := h.convs.CountConversations(ctx, username)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list conversations"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"conversations": summaries,
			"total":         total,
			"limit":         limit,
			"offset":        offset,
		})
	}
}

type createConversationRequest struct {
	Title string `json:"title"`
}

// Create starts an empty conversation.
// POST /api/conversations
func (h *ConversationHandlers) Create() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createConversationRequest
		// The body is optional; an empty or absent title gets a default.
		_ = c.ShouldBindJSON(&req)

		id, err := h.convs.CreateConversation(c.Request.Context(), middleware.Username(c), req.Title)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create conversation"})
			return
		}
		c.JSON(http.StatusCreated, gin.H{"conversation_id": id})
	}
}

// Get returns one conversation with its full message log.
// GET /api/conversations/:conversation_id
func (h *ConversationHandlers) Get() gin.HandlerFunc {
	return func(c *gin.Context) {
		conversationID := c.Param("conversation_id")
		if !h.requireAccess(c, conversationID) {
			return
		}

		ctx := c.Request.Context()
		conv, err := h.convs.GetConversation(ctx, conversationID)
		if err != nil || conv == nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load conversation"})
			return
		}
		messages, err := h.convs.GetMessages(ctx, conversationID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load conversation"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"conversation": conv, "messages": messages})
	}
}

type updateTitleRequest struct {
	Title string `json:"title"`
}

// UpdateTitle renames a conversation.
// PUT /api/conversations/:conversation_id
func (h *ConversationHandlers) UpdateTitle() gin.HandlerFunc {
	return func(c *gin.Context) {
		conversationID := c.Param("conversation_id")

		var req updateTitleRequest
		if err := c.ShouldBindJSON(&req); err != nil || req.Title == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Title is required"})
			return
		}
		if !h.requireAccess(c, conversationID) {
			return
		}

		ok, err := h.convs.UpdateConversationTitle(c.Request.Context(), conversationID, req.Title)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update conversation"})
			return
		}
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "Conversation not found"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Conversation updated"})
	}
}

// Delete soft-deletes one conversation.
// DELETE /api/conversations/:conversation_id
func (h *ConversationHandlers) Delete() gin.HandlerFunc {
	return func(c *gin.Context) {
		conversationID := c.Param("conversation_id")
		if !h.requireAccess(c, conversationID) {
			return
		}

		if _, err := h.convs.DeleteConversation(c.Request.Context(), conversationID); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete conversation"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Conversation deleted"})
	}
}

// DeleteAll soft-deletes every conversation of the account.
// DELETE /api/conversations
func (h *ConversationHandlers) DeleteAll() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, err := h.convs.DeleteAllConversations(c.Request.Context(), middleware.Username(c)); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete conversations"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "All conversations deleted"})
	}
}
