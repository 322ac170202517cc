// Package llm provides chat-completion clients for the extraction pipeline
// along with the resilience wrappers and tolerant response parsing they need.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Chat message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ErrEmptyResponse is returned when a provider answers without any content.
var ErrEmptyResponse = errors.New("llm: empty response")

// Message is a single chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is one blocking chat round-trip. Model overrides the client's
// configured model when non-empty.
type ChatRequest struct {
	Model       string
	Messages    []Message
	Temperature float64
}

// ChatResponse carries the assistant message returned by the provider.
type ChatResponse struct {
	Model   string
	Message Message
}

// ChatModel is the chat interface every backend satisfies.
type ChatModel interface {
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)
	GetModel() string
}

// Ask sends a single user message and returns the trimmed assistant text.
func Ask(ctx context.Context, model ChatModel, prompt string) (string, error) {
	resp, err := model.Chat(ctx, ChatRequest{
		Messages: []Message{{Role: RoleUser, Content: prompt}},
	})
	if err != nil {
		return "", err
	}
	text := strings.TrimSpace(resp.Message.Content)
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}

// Ping performs the connectivity check used at pipeline construction: a
// trivial "Hello" chat that must succeed.
func Ping(ctx context.Context, model ChatModel) error {
	if _, err := Ask(ctx, model, "Hello"); err != nil {
		return fmt.Errorf("llm: connectivity check against %s failed: %w", model.GetModel(), err)
	}
	return nil
}

// StatusError is returned when a provider answers with a non-200 status.
type StatusError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned status %d: %s", e.Provider, e.StatusCode, e.Body)
}

// Temporary reports whether the status is worth retrying.
func (e *StatusError) Temporary() bool {
	return e.StatusCode == 429 || e.StatusCode >= 500
}
