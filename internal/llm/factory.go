package llm

import (
	"fmt"

	"github.com/scrypster/mlkg/internal/config"
)

// NewChatModel creates the provider client selected by cfg and wraps it with
// the retry, timeout and rate-limit hardening.
func NewChatModel(cfg config.LLMConfig) (*ResilientClient, error) {
	breaker := BreakerConfig{Failures: cfg.BreakerFailures, Cooldown: cfg.BreakerCooldown}
	var base ChatModel
	switch cfg.Provider {
	case "openai":
		base = NewOpenAIClient(OpenAIConfig{
			APIKey:  cfg.OpenAIAPIKey,
			Model:   cfg.OpenAIModel,
			BaseURL: cfg.OpenAIBaseURL,
			Timeout: cfg.Timeout,
			Breaker: breaker,
		})
	case "anthropic":
		base = NewAnthropicClient(AnthropicConfig{
			APIKey:  cfg.AnthropicAPIKey,
			Model:   cfg.AnthropicModel,
			Timeout: cfg.Timeout,
			Breaker: breaker,
		})
	case "ollama", "":
		base = NewOllamaClient(OllamaConfig{
			BaseURL: cfg.OllamaURL,
			Model:   cfg.OllamaModel,
			Timeout: cfg.Timeout,
			Breaker: breaker,
		})
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %q", cfg.Provider)
	}

	return NewResilientClient(base, ResilientConfig{
		Timeout:       cfg.Timeout,
		Retries:       cfg.Retries,
		RatePerSecond: cfg.RatePerSecond,
	}), nil
}
