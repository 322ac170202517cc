package query

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func structuredAnswer() FormattedResponse {
	return FormattedResponse{
		Answer:     "🎯 **Svm** is a type of:\n\n   🔗 Algorithm",
		RawResults: []Row{{"parent": "http://ml-kg.org/entity/algorithm"}},
		Confidence: 0.8,
	}
}

func TestNewEnhancer_RequiresReachableModel(t *testing.T) {
	_, err := NewEnhancer(context.Background(), nil)
	assert.Error(t, err)

	_, err = NewEnhancer(context.Background(), &mockChatModel{pingErr: errors.New("connection refused")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestEnhance_Success(t *testing.T) {
	model := &mockChatModel{responses: []string{"  SVM is an algorithm.  "}}
	e, err := NewEnhancer(context.Background(), model)
	require.NoError(t, err)

	resp := structuredAnswer()
	got := e.Enhance(context.Background(), resp, "svm is a type of what?", WhatIsTypeOf)

	assert.Equal(t, "SVM is an algorithm.", got.NaturalAnswer)
	assert.Equal(t, resp.Answer, got.StructuredData)
	assert.InDelta(t, 0.8, got.Confidence, 1e-9)
	assert.GreaterOrEqual(t, got.ProcessingTime, 0.0)

	require.Len(t, model.prompts, 1)
	assert.Contains(t, model.prompts[0], `USER QUESTION: "svm is a type of what?"`)
	assert.Contains(t, model.prompts[0], "QUERY TYPE: what_is_type_of")
	assert.Contains(t, model.prompts[0], "1 results found, confidence: 80%")
}

func TestEnhance_FailureKeepsStructuredAnswer(t *testing.T) {
	tests := []struct {
		name  string
		model *mockChatModel
	}{
		{"model error", &mockChatModel{errors: []error{errors.New("timeout")}}},
		{"empty reply", &mockChatModel{responses: []string{"   "}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := NewEnhancer(context.Background(), tt.model)
			require.NoError(t, err)

			resp := structuredAnswer()
			got := e.Enhance(context.Background(), resp, "svm is a type of what?", WhatIsTypeOf)

			assert.Equal(t, resp.Answer, got.NaturalAnswer)
			assert.Equal(t, resp.Answer, got.StructuredData)
			assert.InDelta(t, 0.64, got.Confidence, 1e-9)
		})
	}
}
