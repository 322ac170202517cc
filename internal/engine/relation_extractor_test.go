package engine

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/scrypster/mlkg/internal/chunks"
	"github.com/scrypster/mlkg/internal/llm"
	"github.com/scrypster/mlkg/internal/metrics"
	"github.com/scrypster/mlkg/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newExtractor(t *testing.T, mock *mockChatModel, cfg ExtractorConfig) *RelationExtractor {
	t.Helper()
	e, err := NewRelationExtractor(context.Background(), mock, cfg, nil)
	require.NoError(t, err)
	return e
}

func TestValidateRelation(t *testing.T) {
	entities := []string{"Neural Network", "Backpropagation", "Gradient Descent"}

	tests := []struct {
		name    string
		in      llm.RelationResponse
		wantOK  bool
		wantRel types.Relation
	}{
		{
			name:   "exact names",
			in:     llm.RelationResponse{Subject: "Neural Network", Predicate: "uses", Object: "Backpropagation", Context: "nets use backprop"},
			wantOK: true,
			wantRel: types.Relation{Subject: "Neural Network", Predicate: "uses", Object: "Backpropagation",
				Confidence: 1.0, Context: "nets use backprop"},
		},
		{
			name:   "substring and case are repaired",
			in:     llm.RelationResponse{Subject: "deep neural network model", Predicate: "USES", Object: "gradient"},
			wantOK: true,
			wantRel: types.Relation{Subject: "Neural Network", Predicate: "uses", Object: "Gradient Descent",
				Confidence: 1.0, Context: types.DefaultRelationContext},
		},
		{
			name: "unknown subject",
			in:   llm.RelationResponse{Subject: "Deep Belief Network", Predicate: "uses", Object: "Neural Network"},
		},
		{
			name: "predicate outside vocabulary",
			in:   llm.RelationResponse{Subject: "Neural Network", Predicate: "loves", Object: "Backpropagation"},
		},
		{
			name: "missing object",
			in:   llm.RelationResponse{Subject: "Neural Network", Predicate: "uses"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ValidateRelation(tt.in, entities)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.wantRel, got)
			}
		})
	}
}

func TestMatchEntity_FirstMatchWins(t *testing.T) {
	got, ok := MatchEntity("network", []string{"Neural Network", "Network"})
	require.True(t, ok)
	assert.Equal(t, "Neural Network", got, "substring matching conflates shorter names with the first containing entity")

	_, ok = MatchEntity("  ", []string{"Network"})
	assert.False(t, ok)
}

func TestExtract_SkipsChunksWithFewerThanTwoEntities(t *testing.T) {
	mock := newMockChatModel()
	e := newExtractor(t, mock, ExtractorConfig{})

	got := e.Extract(context.Background(), types.Chunk{ChunkID: "c1", Content: "text"}, []string{"Neural Network"})
	assert.Empty(t, got)
	assert.Equal(t, 0, mock.calls(), "no model call is spent")
	assert.Equal(t, 1, e.Stats().ChunksSkipped)
}

func TestExtract_UnmatchedSubjectIsDropped(t *testing.T) {
	mock := newMockChatModel(`{"relations": [
		{"subject": "Deep Belief Network", "predicate": "uses", "object": "Neural Network", "context": "DBNs use nets"}
	]}`)
	e := newExtractor(t, mock, ExtractorConfig{})

	got := e.Extract(context.Background(),
		types.Chunk{ChunkID: "c1", Content: "A deep belief network uses a neural network."},
		[]string{"Neural Network", "Restricted Boltzmann Machine"})

	assert.Empty(t, got)
	stats := e.Stats()
	assert.Equal(t, 1, stats.RelationsRejected)
	assert.Equal(t, 0, stats.RelationsExtracted)
}

func TestExtract_AcceptedRelationsCarryChunk(t *testing.T) {
	mock := newMockChatModel("```json\n" + `{"relations": [
		{"subject": "Adam", "predicate": "optimizes", "object": "loss function", "context": "Adam minimizes the loss",},
		{"subject": "Adam", "predicate": "eats", "object": "loss function"},
	]}` + "\n```")
	e := newExtractor(t, mock, ExtractorConfig{})

	got := e.Extract(context.Background(),
		types.Chunk{ChunkID: "book_chunk_0007", Content: "Adam minimizes the loss function."},
		[]string{"Adam", "Loss Function"})

	require.Len(t, got, 1)
	assert.Equal(t, "book_chunk_0007", got[0].ChunkID)
	assert.Equal(t, "Loss Function", got[0].Object)
	assert.Equal(t, "optimizes", got[0].Predicate)
}

func TestExtract_FailureIsCountedAndIsolated(t *testing.T) {
	mock := newMockChatModel("", `{"relations": [{"subject": "CNN", "predicate": "part_of", "object": "Deep Learning"}]}`)
	mock.errors = []error{errors.New("model crashed")}
	e := newExtractor(t, mock, ExtractorConfig{})

	idx := chunks.NewIndex()
	idx.Add(
		types.Chunk{ChunkID: "a", Content: "first"},
		types.Chunk{ChunkID: "b", Content: "CNNs are part of deep learning"},
	)
	got := e.ExtractAll(context.Background(), idx, map[string][]string{
		"a":       {"CNN", "Deep Learning"},
		"b":       {"CNN", "Deep Learning"},
		"missing": {"CNN", "Deep Learning"},
	}, 0)

	require.Len(t, got, 1)
	assert.Equal(t, "b", got[0].ChunkID)
	stats := e.Stats()
	assert.Equal(t, 1, stats.FailedExtractions)
	assert.Equal(t, 2, stats.ChunksProcessed)
	assert.Equal(t, 2, stats.LLMCalls)
	assert.InDelta(t, 0.5, stats.AvgRelationsPerChunk, 1e-9)
}

func TestExtract_UnparseableReplyIsCounted(t *testing.T) {
	mock := newMockChatModel(
		"Sorry, I cannot find relations in this text.",
		`{"relations": [{"subject": "A", "predicate": "uses", "object": "B"}]}`,
	)
	m := metrics.New()
	e, err := NewRelationExtractor(context.Background(), mock, ExtractorConfig{}, m)
	require.NoError(t, err)

	idx := chunks.NewIndex()
	idx.Add(
		types.Chunk{ChunkID: "a", Content: "prose only"},
		types.Chunk{ChunkID: "b", Content: "A uses B"},
	)
	got := e.ExtractAll(context.Background(), idx, map[string][]string{
		"a": {"A", "B"},
		"b": {"A", "B"},
	}, 0)

	require.Len(t, got, 1)
	assert.Equal(t, "b", got[0].ChunkID)
	stats := e.Stats()
	assert.Equal(t, 1, stats.ParseFailures)
	assert.Zero(t, stats.FailedExtractions)
	assert.Zero(t, stats.FallbackParses)
	assert.Equal(t, 2, stats.ChunksProcessed)
	assert.Equal(t, 2, stats.LLMCalls)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, rec.Body.String(), `mlkg_extractor_chunks_total{status="parse_failed"} 1`)
}

func TestExtract_TruncatesChunkText(t *testing.T) {
	mock := newMockChatModel(`{"relations": []}`)
	e := newExtractor(t, mock, ExtractorConfig{ChunkTextLimit: 10})

	e.Extract(context.Background(), types.Chunk{ChunkID: "c", Content: "0123456789TAIL_SHOULD_NOT_APPEAR"}, []string{"A", "B"})
	require.Len(t, mock.prompts, 1)
	assert.True(t, strings.Contains(mock.prompts[0], "0123456789"))
	assert.False(t, strings.Contains(mock.prompts[0], "TAIL_SHOULD_NOT_APPEAR"))
}

func TestExtractAll_MaxChunksAndWorkers(t *testing.T) {
	resp := `{"relations": [{"subject": "A", "predicate": "uses", "object": "B"}]}`
	mock := newMockChatModel(resp, resp, resp, resp)
	e, err := NewRelationExtractor(context.Background(), mock, ExtractorConfig{Workers: 3}, metrics.New())
	require.NoError(t, err)

	idx := chunks.NewIndex()
	work := map[string][]string{}
	for _, id := range []string{"c1", "c2", "c3", "c4", "c5"} {
		idx.Add(types.Chunk{ChunkID: id, Content: "A uses B"})
		work[id] = []string{"A", "B"}
	}

	got := e.ExtractAll(context.Background(), idx, work, 4)
	assert.Len(t, got, 4)
	assert.Equal(t, 4, mock.calls())
}
