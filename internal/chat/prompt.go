package chat

import (
	"github.com/code-supporter/code-supporter/internal/store/models"
)

// BuildPrompt assembles the model prompt: system prompt first, then the most
// recent history turns up to limit (zero or negative means unlimited), then
// the new user message.
func BuildPrompt(systemPrompt string, history []*models.Message, userMessage string, limit int) []Message {
	if limit > 0 && len(history) > limit {
		history = history[len(history)-limit:]
	}

	prompt := make([]Message, 0, len(history)+2)
	if systemPrompt != "" {
		prompt = append(prompt, Message{Role: models.RoleSystem, Content: systemPrompt})
	}
	for _, msg := range history {
		prompt = append(prompt, Message{Role: msg.Role, Content: msg.Content})
	}
	return append(prompt, Message{Role: models.RoleUser, Content: userMessage})
}
