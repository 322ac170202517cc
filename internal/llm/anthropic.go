package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// AnthropicConfig holds configuration for the Anthropic client.
type AnthropicConfig struct {
	APIKey  string
	Model   string        // default: claude-3-5-haiku-latest
	BaseURL string        // default: https://api.anthropic.com
	Timeout time.Duration // default: 120s
	Breaker BreakerConfig
}

// AnthropicClient implements ChatModel using the Anthropic Messages API.
type AnthropicClient struct {
	cfg     AnthropicConfig
	client  *http.Client
	breaker *Breaker
}

// NewAnthropicClient creates a new Anthropic client with the given configuration.
func NewAnthropicClient(cfg AnthropicConfig) *AnthropicClient {
	if cfg.Model == "" {
		cfg.Model = "claude-3-5-haiku-latest"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.anthropic.com"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}
	return &AnthropicClient{
		cfg: cfg,
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
		breaker: NewBreaker("anthropic", cfg.Breaker),
	}
}

// anthropicMessagesRequest is the request body for POST /v1/messages.
type anthropicMessagesRequest struct {
	Model       string    `json:"model"`
	MaxTokens   int       `json:"max_tokens"`
	System      string    `json:"system,omitempty"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
}

// anthropicMessagesResponse is the response body from POST /v1/messages.
type anthropicMessagesResponse struct {
	Model   string `json:"model"`
	Content []struct {
		Text string `json:"text"`
	} `json:"content"`
}

// Chat sends the conversation to Anthropic. System messages are lifted into
// the top-level system field since the Messages API rejects them inline.
func (c *AnthropicClient) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	return c.breaker.Chat(ctx, func(ctx context.Context) (*ChatResponse, error) {
		return c.chat(ctx, req)
	})
}

func (c *AnthropicClient) chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	model := req.Model
	if model == "" {
		model = c.cfg.Model
	}
	var system []string
	messages := make([]Message, 0, len(req.Messages))
	for _, m := range req.Messages {
		if m.Role == RoleSystem {
			system = append(system, m.Content)
			continue
		}
		messages = append(messages, m)
	}

	reqBody := anthropicMessagesRequest{
		Model:       model,
		MaxTokens:   4096,
		System:      strings.Join(system, "\n\n"),
		Messages:    messages,
		Temperature: req.Temperature,
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.cfg.BaseURL+"/v1/messages", bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("content-type", "application/json")
	httpReq.Header.Set("x-api-key", c.cfg.APIKey)
	httpReq.Header.Set("anthropic-version", "2023-06-01")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, &StatusError{Provider: "anthropic", StatusCode: resp.StatusCode, Body: string(body)}
	}

	var respData anthropicMessagesResponse
	if err := json.NewDecoder(resp.Body).Decode(&respData); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	if len(respData.Content) == 0 {
		return nil, fmt.Errorf("anthropic returned empty content: %w", ErrEmptyResponse)
	}

	return &ChatResponse{
		Model:   respData.Model,
		Message: Message{Role: RoleAssistant, Content: respData.Content[0].Text},
	}, nil
}

// GetModel returns the configured model name.
func (c *AnthropicClient) GetModel() string {
	return c.cfg.Model
}

var _ ChatModel = (*AnthropicClient)(nil)
