package query

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/scrypster/mlkg/internal/llm"
)

// enhancedPenalty scales the confidence of an answer the model failed to
// rewrite.
const enhancedPenalty = 0.8

// Enhancer rewrites formatted answers as natural prose with an LLM.
type Enhancer struct {
	model llm.ChatModel
}

// NewEnhancer checks that the model answers before returning.
func NewEnhancer(ctx context.Context, model llm.ChatModel) (*Enhancer, error) {
	if model == nil {
		return nil, fmt.Errorf("enhancer: chat model is required")
	}
	if err := llm.Ping(ctx, model); err != nil {
		return nil, fmt.Errorf("enhancer: %w", err)
	}
	log.Printf("enhancer: connected to %s", model.GetModel())
	return &Enhancer{model: model}, nil
}

// Enhance asks the model for a prose answer. On any failure the structured
// answer is returned with its confidence scaled down.
func (e *Enhancer) Enhance(ctx context.Context, resp FormattedResponse, question string, queryType QueryType) EnhancedResponse {
	start := time.Now()
	prompt := llm.EnhancementPrompt(question, string(queryType), resp.Answer, len(resp.RawResults), resp.Confidence)

	text, err := llm.Ask(ctx, e.model, prompt)
	if err != nil {
		log.Printf("enhancer: rewrite failed, keeping structured answer: %v", err)
		return EnhancedResponse{
			NaturalAnswer:  resp.Answer,
			StructuredData: resp.Answer,
			Confidence:     resp.Confidence * enhancedPenalty,
			ProcessingTime: time.Since(start).Seconds(),
		}
	}
	return EnhancedResponse{
		NaturalAnswer:  text,
		StructuredData: resp.Answer,
		Confidence:     resp.Confidence,
		ProcessingTime: time.Since(start).Seconds(),
	}
}
