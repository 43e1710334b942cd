// Package chat implements the client for the OpenAI-compatible chat
// completion API (Together and similar providers). Handlers depend on the
// Completer interface, so tests can substitute a stub without any HTTP.
package chat

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/code-supporter/code-supporter/internal/config"
)

// Message is one turn of a model prompt.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Completer produces model completions for a prompt. StreamComplete invokes
// fn once per content chunk as it arrives and returns the assembled reply;
// a non-nil error from fn aborts the stream.
type Completer interface {
	Complete(ctx context.Context, messages []Message) (string, error)
	StreamComplete(ctx context.Context, messages []Message, fn func(chunk string) error) (string, error)
}

// Client talks to an OpenAI-compatible /chat/completions endpoint.
type Client struct {
	baseURL     string
	apiKey      string
	model       string
	maxTokens   int
	temperature float64
	httpClient  *http.Client
}

// NewClient builds a Client from configuration. The HTTP timeout covers the
// whole exchange including streaming, so it is generous.
func NewClient(cfg *config.ChatConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &Client{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:      cfg.APIKey,
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		httpClient:  &http.Client{Timeout: timeout},
	}
}

type completionRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature float64   `json:"temperature,omitempty"`
	Stream      bool      `json:"stream,omitempty"`
}

type completionResponse struct {
	Choices []struct {
		Message Message `json:"message"`
	} `json:"choices"`
	Error *apiError `json:"error"`
}

type streamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

type apiError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

func (c *Client) newRequest(ctx context.Context, body *completionRequest) (*http.Request, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode completion request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build completion request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	return req, nil
}

// Complete sends the prompt and returns the full assistant reply.
func (c *Client) Complete(ctx context.Context, messages []Message) (string, error) {
	req, err := c.newRequest(ctx, &completionRequest{
		Model:       c.model,
		Messages:    messages,
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
	})
	if err != nil {
		return "", err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("completion request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", c.statusError(resp)
	}

	var result completionResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decode completion response: %w", err)
	}
	if result.Error != nil {
		return "", fmt.Errorf("completion API: %s", result.Error.Message)
	}
	if len(result.Choices) == 0 {
		return "", fmt.Errorf("completion API returned no choices")
	}
	return result.Choices[0].Message.Content, nil
}

// StreamComplete sends the prompt with stream=true and parses the SSE reply
// line by line. fn receives each content delta; the assembled reply is
// returned so callers can persist it after the stream ends.
func (c *Client) StreamComplete(ctx context.Context, messages []Message, fn func(chunk string) error) (string, error) {
	req, err := c.newRequest(ctx, &completionRequest{
		Model:       c.model,
		Messages:    messages,
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
		Stream:      true,
	})
	if err != nil {
		return "", err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("completion stream request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", c.statusError(resp)
	}

	var reply strings.Builder
	scanner := bufio.NewScanner(resp.Body)
	// Model chunks are small but a single data: line can carry a long content
	// delta; give the scanner headroom over the 64 KiB default.
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "" || data == "[DONE]" {
			continue
		}

		var chunk streamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			// Providers interleave non-chunk events (e.g. usage reports) in
			// the same stream; skip anything that is not a delta.
			continue
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		content := chunk.Choices[0].Delta.Content
		if content == "" {
			continue
		}
		reply.WriteString(content)
		if err := fn(content); err != nil {
			return reply.String(), err
		}
	}
	if err := scanner.Err(); err != nil {
		return reply.String(), fmt.Errorf("read completion stream: %w", err)
	}
	return reply.String(), nil
}

// statusError extracts the provider's error message from a non-200 response.
func (c *Client) statusError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var payload struct {
		Error *apiError `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Error != nil {
		return fmt.Errorf("completion API: %s (status %d)", payload.Error.Message, resp.StatusCode)
	}
	return fmt.Errorf("completion API: status %d", resp.StatusCode)
}
