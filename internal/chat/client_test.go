package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/code-supporter/code-supporter/internal/config"
	"github.com/code-supporter/code-supporter/internal/store/models"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	client := NewClient(&config.ChatConfig{
		BaseURL:     server.URL,
		APIKey:      "test-key",
		Model:       "test-model",
		MaxTokens:   1024,
		Temperature: 0.7,
		Timeout:     5 * time.Second,
	})
	return client, server
}

func TestComplete_ReturnsAssistantReply(t *testing.T) {
	var captured completionRequest
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"choices":[{"message":{"role":"assistant","content":"hello there"}}]}`)
	})

	reply, err := client.Complete(context.Background(), []Message{
		{Role: "system", Content: "be helpful"},
		{Role: "user", Content: "hi"},
	})
	require.NoError(t, err)
	assert.Equal(t, "hello there", reply)

	assert.Equal(t, "test-model", captured.Model)
	assert.Equal(t, 1024, captured.MaxTokens)
	assert.InDelta(t, 0.7, captured.Temperature, 0.001)
	assert.False(t, captured.Stream)
	require.Len(t, captured.Messages, 2)
}

func TestComplete_SurfacesProviderError(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error":{"message":"invalid api key","type":"auth_error"}}`)
	})

	_, err := client.Complete(context.Background(), []Message{{Role: "user", Content: "hi"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid api key")
	assert.Contains(t, err.Error(), "401")
}

func TestComplete_NoChoices(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"choices":[]}`)
	})

	_, err := client.Complete(context.Background(), []Message{{Role: "user", Content: "hi"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no choices")
}

func TestStreamComplete_AssemblesChunks(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req completionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.True(t, req.Stream)

		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"Hel\"}}]}\n\n")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"lo\"}}]}\n\n")
		fmt.Fprint(w, ": keep-alive comment\n\n")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"!\"}}]}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	})

	var chunks []string
	reply, err := client.StreamComplete(context.Background(), []Message{{Role: "user", Content: "hi"}}, func(chunk string) error {
		chunks = append(chunks, chunk)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "Hello!", reply)
	assert.Equal(t, []string{"Hel", "lo", "!"}, chunks)
}

func TestStreamComplete_CallbackErrorAborts(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"first\"}}]}\n\n")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"second\"}}]}\n\n")
	})

	abort := errors.New("client went away")
	reply, err := client.StreamComplete(context.Background(), []Message{{Role: "user", Content: "hi"}}, func(chunk string) error {
		return abort
	})
	require.ErrorIs(t, err, abort)
	assert.Equal(t, "first", reply)
}

func TestBuildPrompt(t *testing.T) {
	history := []*models.Message{
		{Role: "user", Content: "q1"},
		{Role: "assistant", Content: "a1"},
		{Role: "user", Content: "q2"},
		{Role: "assistant", Content: "a2"},
	}

	t.Run("system prompt first, user message last", func(t *testing.T) {
		prompt := BuildPrompt("be helpful", history, "q3", 0)
		require.Len(t, prompt, 6)
		assert.Equal(t, Message{Role: "system", Content: "be helpful"}, prompt[0])
		assert.Equal(t, Message{Role: "user", Content: "q3"}, prompt[5])
	})

	t.Run("history limit keeps the most recent turns", func(t *testing.T) {
		prompt := BuildPrompt("be helpful", history, "q3", 2)
		require.Len(t, prompt, 4)
		assert.Equal(t, "q2", prompt[1].Content)
		assert.Equal(t, "a2", prompt[2].Content)
	})

	t.Run("empty system prompt is omitted", func(t *testing.T) {
		prompt := BuildPrompt("", nil, "hi", 0)
		require.Len(t, prompt, 1)
		assert.Equal(t, "user", prompt[0].Role)
	})
}
