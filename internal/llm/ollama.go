package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// OllamaClient talks to the Ollama chat API for local inference.
// Every HTTP call goes through a circuit breaker.
type OllamaClient struct {
	baseURL string
	client  *http.Client
	breaker *Breaker
	model   string
	timeout time.Duration
}

// OllamaConfig holds Ollama client configuration.
type OllamaConfig struct {
	// BaseURL is the base URL for the Ollama API (default: http://localhost:11434)
	BaseURL string

	// Model is the chat model name (default: llama3.2:3b)
	Model string

	// Timeout bounds a single chat call (default: 120s)
	Timeout time.Duration

	Breaker BreakerConfig
}

// ollamaChatRequest is the request body for the /api/chat endpoint.
type ollamaChatRequest struct {
	Model    string         `json:"model"`
	Messages []Message      `json:"messages"`
	Stream   bool           `json:"stream"`
	Options  map[string]any `json:"options,omitempty"`
}

// ollamaChatResponse is the non-streaming response from /api/chat.
type ollamaChatResponse struct {
	Model   string  `json:"model"`
	Message Message `json:"message"`
	Done    bool    `json:"done"`
}

// tagsResponse represents the response from /api/tags endpoint
type tagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// NewOllamaClient creates a new Ollama client. Zero config values fall back
// to the documented defaults.
func NewOllamaClient(config OllamaConfig) *OllamaClient {
	if config.BaseURL == "" {
		config.BaseURL = "http://localhost:11434"
	}
	if config.Model == "" {
		config.Model = "llama3.2:3b"
	}
	if config.Timeout == 0 {
		config.Timeout = 120 * time.Second
	}

	return &OllamaClient{
		baseURL: config.BaseURL,
		client: &http.Client{
			Timeout: config.Timeout,
		},
		breaker: NewBreaker("ollama", config.Breaker),
		model:   config.Model,
		timeout: config.Timeout,
	}
}

// Chat sends a chat request to Ollama and returns the assistant message.
func (c *OllamaClient) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	return c.breaker.Chat(ctx, func(ctx context.Context) (*ChatResponse, error) {
		return c.chat(ctx, req)
	})
}

// chat performs one unguarded HTTP call.
func (c *OllamaClient) chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	model := req.Model
	if model == "" {
		model = c.model
	}
	reqBody := ollamaChatRequest{
		Model:    model,
		Messages: req.Messages,
		Stream:   false,
		Options:  map[string]any{"temperature": req.Temperature},
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/api/chat", bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, &StatusError{Provider: "ollama", StatusCode: resp.StatusCode, Body: string(body)}
	}

	var respData ollamaChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&respData); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return &ChatResponse{Model: respData.Model, Message: respData.Message}, nil
}

// HealthCheck verifies that Ollama is reachable by checking the /api/version endpoint.
// It bypasses the circuit breaker.
func (c *OllamaClient) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/api/version", nil)
	if err != nil {
		return fmt.Errorf("failed to create health check request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("health check returned status %d: %s", resp.StatusCode, string(body))
	}

	return nil
}

// GetModel returns the configured model name.
func (c *OllamaClient) GetModel() string {
	return c.model
}

var _ ChatModel = (*OllamaClient)(nil)

// ListModels returns the names of the models installed in Ollama.
func (c *OllamaClient) ListModels(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/api/tags", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, &StatusError{Provider: "ollama", StatusCode: resp.StatusCode, Body: string(body)}
	}

	var respData tagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&respData); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	models := make([]string, len(respData.Models))
	for i, model := range respData.Models {
		models[i] = model.Name
	}

	return models, nil
}
