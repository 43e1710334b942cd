// chat.go implements the completion endpoints: authenticated chat with
// persisted history, the SSE streaming variant, and the stateless public
// endpoint used by API key integrations.
package handlers

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/code-supporter/code-supporter/internal/chat"
	"github.com/code-supporter/code-supporter/internal/config"
	"github.com/code-supporter/code-supporter/internal/middleware"
	"github.com/code-supporter/code-supporter/internal/store"
	"github.com/code-supporter/code-supporter/internal/store/models"
	"github.com/code-supporter/code-supporter/internal/telemetry"
)

// ChatHandlers handles completion endpoints.
type ChatHandlers struct {
	cfg       *config.ChatConfig
	convs     store.ConversationStore
	usage     store.UsageStore
	completer chat.Completer
}

// NewChatHandlers creates a new ChatHandlers instance.
func NewChatHandlers(cfg *config.ChatConfig, convs store.ConversationStore, usage store.UsageStore, completer chat.Completer) *ChatHandlers {
	return &ChatHandlers{cfg: cfg, convs: convs, usage: usage, completer: completer}
}

type chatRequest struct {
	Message        string `json:"message"`
	ConversationID string `json:"conversation_id"`
}

// resolveConversation returns the conversation to use for this request,
// creating a fresh one when the client did not name any. Naming a
// conversation that does not exist or belongs to someone else yields the same
// 404 so ownership cannot be probed.
func (h *ChatHandlers) resolveConversation(c *gin.Context, conversationID string) (string, bool) {
	username := middleware.Username(c)
	if conversationID == "" {
		id, err := h.convs.CreateConversation(c.Request.Context(), username, "")
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to start conversation"})
			return "", false
		}
		return id, true
	}

	ok, err := h.convs.CheckConversationAccess(c.Request.Context(), username, conversationID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load conversation"})
		return "", false
	}
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Conversation not found"})
		return "", false
	}
	return conversationID, true
}

// buildPrompt loads persisted history and assembles the model prompt.
func (h *ChatHandlers) buildPrompt(c *gin.Context, conversationID, message string) ([]chat.Message, bool) {
	history, err := h.convs.GetMessages(c.Request.Context(), conversationID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load conversation"})
		return nil, false
	}
	return chat.BuildPrompt(h.cfg.SystemPrompt, history, message, h.cfg.HistoryLimit), true
}

// Chat runs one synchronous completion turn against a persisted conversation.
// POST /api/chat
func (h *ChatHandlers) Chat() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req chatRequest
		if err := c.ShouldBindJSON(&req); err != nil || req.Message == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Message is required"})
			return
		}

		conversationID, ok := h.resolveConversation(c, req.ConversationID)
		if !ok {
			return
		}
		prompt, ok := h.buildPrompt(c, conversationID, req.Message)
		if !ok {
			return
		}

		if _, err := h.convs.AppendMessage(c.Request.Context(), conversationID, models.RoleUser, req.Message); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save message"})
			return
		}

		start := time.Now()
		reply, err := h.completer.Complete(c.Request.Context(), prompt)
		telemetry.ChatCompletionDuration.Observe(time.Since(start).Seconds())
		if err != nil {
			telemetry.ChatCompletionsTotal.WithLabelValues("sync", "error").Inc()
			slog.Error("completion failed", "conversation_id", conversationID, "error", err)
			c.JSON(http.StatusBadGateway, gin.H{"error": "Completion failed"})
			return
		}
		telemetry.ChatCompletionsTotal.WithLabelValues("sync", "ok").Inc()

		if _, err := h.convs.AppendMessage(c.Request.Context(), conversationID, models.RoleAssistant, reply); err != nil {
			slog.Error("failed to persist assistant reply", "conversation_id", conversationID, "error", err)
		}
		c.JSON(http.StatusOK, gin.H{"response": reply, "conversation_id": conversationID})
	}
}

// ChatStream is the SSE variant of Chat. Content deltas are forwarded as
// data: events while the model generates; the assembled reply is persisted
// once the stream ends. Errors after the stream opens are reported as an
// error event because the 200 status is already on the wire.
// POST /api/chat/stream
func (h *ChatHandlers) ChatStream() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req chatRequest
		if err := c.ShouldBindJSON(&req); err != nil || req.Message == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Message is required"})
			return
		}

		conversationID, ok := h.resolveConversation(c, req.ConversationID)
		if !ok {
			return
		}
		prompt, ok := h.buildPrompt(c, conversationID, req.Message)
		if !ok {
			return
		}

		if _, err := h.convs.AppendMessage(c.Request.Context(), conversationID, models.RoleUser, req.Message); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save message"})
			return
		}

		c.Header("Content-Type", "text/event-stream")
		c.Header("Cache-Control", "no-cache")
		c.Header("Connection", "keep-alive")
		c.Header("X-Accel-Buffering", "no")
		c.Writer.WriteHeader(http.StatusOK)

		flusher, _ := c.Writer.(http.Flusher)
		writeEvent := func(payload gin.H) {
			data, err := sseData(payload)
			if err != nil {
				return
			}
			fmt.Fprintf(c.Writer, "data: %s\n\n", data)
			if flusher != nil {
				flusher.Flush()
			}
		}
		writeEvent(gin.H{"conversation_id": conversationID})

		start := time.Now()
		reply, err := h.completer.StreamComplete(c.Request.Context(), prompt, func(chunk string) error {
			writeEvent(gin.H{"content": chunk})
			return nil
		})
		telemetry.ChatCompletionDuration.Observe(time.Since(start).Seconds())

		if err != nil {
			telemetry.ChatCompletionsTotal.WithLabelValues("stream", "error").Inc()
			slog.Error("streaming completion failed", "conversation_id", conversationID, "error", err)
			writeEvent(gin.H{"error": "Completion failed"})
		} else {
			telemetry.ChatCompletionsTotal.WithLabelValues("stream", "ok").Inc()
		}

		if reply != "" {
			if _, err := h.convs.AppendMessage(c.Request.Context(), conversationID, models.RoleAssistant, reply); err != nil {
				slog.Error("failed to persist assistant reply", "conversation_id", conversationID, "error", err)
			}
		}
		fmt.Fprint(c.Writer, "data: [DONE]\n\n")
		if flusher != nil {
			flusher.Flush()
		}
	}
}

type publicChatRequest struct {
	Message  string         `json:"message"`
	UserID   string         `json:"user_id"`
	UserInfo map[string]any `json:"user_info"`
	History  []chat.Message `json:"history"`
}

// ChatPublic serves API key integrations. It is stateless: the caller sends
// its own history and no conversation is persisted. Each request tracks the
// external end user for usage reporting.
// POST /api/chat/public
func (h *ChatHandlers) ChatPublic() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req publicChatRequest
		if err := c.ShouldBindJSON(&req); err != nil || req.Message == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Message is required"})
			return
		}
		if req.UserID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "user_id is required"})
			return
		}

		apiKey := middleware.APIKey(c)
		if _, err := h.usage.TrackAPIUser(c.Request.Context(), apiKey, req.UserID, req.UserInfo); err != nil {
			// Tracking is best-effort; a failed write must not block the chat.
			slog.Warn("failed to track api user", "error", err)
		}

		prompt := make([]chat.Message, 0, len(req.History)+2)
		if h.cfg.SystemPrompt != "" {
			prompt = append(prompt, chat.Message{Role: models.RoleSystem, Content: h.cfg.SystemPrompt})
		}
		for _, msg := range req.History {
			if !models.ValidRole(msg.Role) {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid history role"})
				return
			}
			prompt = append(prompt, msg)
		}
		prompt = append(prompt, chat.Message{Role: models.RoleUser, Content: req.Message})

		start := time.Now()
		reply, err := h.completer.Complete(c.Request.Context(), prompt)
		telemetry.ChatCompletionDuration.Observe(time.Since(start).Seconds())
		if err != nil {
			telemetry.ChatCompletionsTotal.WithLabelValues("public", "error").Inc()
			slog.Error("public completion failed", "error", err)
			c.JSON(http.StatusBadGateway, gin.H{"error": "Completion failed"})
			return
		}
		telemetry.ChatCompletionsTotal.WithLabelValues("public", "ok").Inc()

		c.JSON(http.StatusOK, gin.H{"response": reply})
	}
}
