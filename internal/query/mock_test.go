package query

import (
	"context"
	"errors"
	"sync"

	"github.com/scrypster/mlkg/internal/llm"
	"github.com/scrypster/mlkg/internal/sparql"
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
}

func (m *mockChatModel) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	prompt := req.Messages[len(req.Messages)-1].Content
	if prompt == "Hello" {
		if m.pingErr != nil {
			return nil, m.pingErr
		}
		return &llm.ChatResponse{Message: llm.Message{Role: llm.RoleAssistant, Content: "Hi!"}}, nil
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
		return &llm.ChatResponse{Message: llm.Message{Role: llm.RoleAssistant, Content: m.responses[n]}}, nil
	}
	return nil, errors.New("mock LLM: no more responses configured")
}

func (m *mockChatModel) GetModel() string { return "mock-model" }

// failingExecutor fails every query with err.
type failingExecutor struct{ err error }

func (f failingExecutor) Execute(context.Context, string) ([]Row, error) { return nil, f.err }

func (f failingExecutor) Run(context.Context, string) (*sparql.Result, error) { return nil, f.err }

func (f failingExecutor) TripleCount(context.Context) (int, error) { return 0, f.err }
