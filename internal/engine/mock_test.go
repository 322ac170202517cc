package engine

import (
	"context"
	"errors"
	"sync"

	"github.com/scrypster/mlkg/internal/llm"
)

// mockChatModel answers the connectivity ping itself and serves scripted
// responses, in order, for every other prompt.
type mockChatModel struct {
	mu        sync.Mutex
	responses []string
	errors    []error
	prompts   []string
	pingErr   error
	callCount int
	model     string
}

func newMockChatModel(responses ...string) *mockChatModel {
	return &mockChatModel{responses: responses, model: "mock-model"}
}

func (m *mockChatModel) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	prompt := req.Messages[len(req.Messages)-1].Content
	if prompt == "Hello" {
		if m.pingErr != nil {
			return nil, m.pingErr
		}
		return reply("Hi!"), nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	n := m.callCount
	m.callCount++
	m.prompts = append(m.prompts, prompt)

	if n < len(m.errors) && m.errors[n] != nil {
		return nil, m.errors[n]
	}
	if n < len(m.responses) {
		return reply(m.responses[n]), nil
	}
	return nil, errors.New("mock LLM: no more responses configured")
}

func (m *mockChatModel) GetModel() string {
	return m.model
}

func (m *mockChatModel) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callCount
}

func reply(content string) *llm.ChatResponse {
	return &llm.ChatResponse{Model: "mock-model", Message: llm.Message{Role: llm.RoleAssistant, Content: content}}
}
