package engine

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/scrypster/mlkg/internal/llm"
	"github.com/scrypster/mlkg/internal/metrics"
	"github.com/scrypster/mlkg/pkg/types"
)

// DefaultChunkTextLimit is how many characters of a chunk go into the prompt.
const DefaultChunkTextLimit = 1500

// ExtractorConfig tunes the relation extractor.
type ExtractorConfig struct {
	ChunkTextLimit int
	Workers        int
}

// ExtractorStats are cumulative counters of an extractor.
type ExtractorStats struct {
	ChunksProcessed      int     `json:"chunks_processed"`
	ChunksSkipped        int     `json:"chunks_skipped"`
	RelationsExtracted   int     `json:"relations_extracted"`
	RelationsRejected    int     `json:"relations_rejected"`
	FailedExtractions    int     `json:"failed_extractions"`
	ParseFailures        int     `json:"parse_failures"`
	FallbackParses       int     `json:"fallback_parses"`
	LLMCalls             int     `json:"llm_calls"`
	AvgRelationsPerChunk float64 `json:"avg_relations_per_chunk"`
}

// ChunkSource resolves chunk ids to chunks. *chunks.Index satisfies it.
type ChunkSource interface {
	Get(id string) (types.Chunk, bool)
}

// RelationExtractor asks the model for relations inside a chunk and keeps
// only those that connect known entities through a known predicate.
type RelationExtractor struct {
	model   llm.ChatModel
	cfg     ExtractorConfig
	metrics *metrics.Metrics

	mu    sync.Mutex
	stats ExtractorStats
}

// NewRelationExtractor checks that the model answers before returning.
func NewRelationExtractor(ctx context.Context, model llm.ChatModel, cfg ExtractorConfig, m *metrics.Metrics) (*RelationExtractor, error) {
	if model == nil {
		return nil, fmt.Errorf("relation extractor: chat model is required")
	}
	if cfg.ChunkTextLimit < 1 {
		cfg.ChunkTextLimit = DefaultChunkTextLimit
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if err := llm.Ping(ctx, model); err != nil {
		return nil, fmt.Errorf("relation extractor: %w", err)
	}
	log.Printf("relation extractor: connected to %s (workers %d)", model.GetModel(), cfg.Workers)
	return &RelationExtractor{model: model, cfg: cfg, metrics: m}, nil
}

// Extract returns the validated relations of one chunk. Chunks with fewer
// than two entities are skipped without a model call. A failed call or an
// unparseable reply is counted and yields no relations.
func (e *RelationExtractor) Extract(ctx context.Context, chunk types.Chunk, entities []string) []types.Relation {
	if len(entities) < 2 {
		e.record(func(s *ExtractorStats) { s.ChunksSkipped++ })
		e.metrics.ChunkExtracted("skipped", 0, 0)
		return nil
	}

	text, err := llm.Ask(ctx, e.model, llm.RelationExtractionPrompt(truncate(chunk.Content, e.cfg.ChunkTextLimit), entities))
	if err != nil {
		log.Printf("relation extractor: chunk %s failed: %v", chunk.ChunkID, err)
		e.record(func(s *ExtractorStats) {
			s.LLMCalls++
			s.FailedExtractions++
			s.ChunksProcessed++
		})
		e.metrics.ChunkExtracted("failed", 0, 0)
		return nil
	}

	raw, mode := llm.ParseRelationResponse(text)
	if mode == llm.ParseFailed {
		log.Printf("relation extractor: chunk %s: unparseable response: %.200s", chunk.ChunkID, text)
		e.record(func(s *ExtractorStats) {
			s.LLMCalls++
			s.ParseFailures++
			s.ChunksProcessed++
		})
		e.metrics.ChunkExtracted("parse_failed", 0, 0)
		return nil
	}

	var out []types.Relation
	rejected := 0
	for _, r := range raw {
		rel, ok := ValidateRelation(r, entities)
		if !ok {
			rejected++
			continue
		}
		rel.ChunkID = chunk.ChunkID
		out = append(out, rel)
	}

	e.record(func(s *ExtractorStats) {
		s.LLMCalls++
		s.ChunksProcessed++
		s.RelationsExtracted += len(out)
		s.RelationsRejected += rejected
		if mode == llm.ParseFallback {
			s.FallbackParses++
		}
	})
	e.metrics.ChunkExtracted("ok", len(out), rejected)
	return out
}

// ExtractAll runs Extract over every chunk in chunkEntities, in chunk-id
// order, with up to Workers chunks in flight. Unknown chunk ids are skipped.
// maxChunks > 0 limits the run to the first maxChunks ids.
func (e *RelationExtractor) ExtractAll(ctx context.Context, source ChunkSource, chunkEntities map[string][]string, maxChunks int) []types.Relation {
	start := time.Now()
	ids := make([]string, 0, len(chunkEntities))
	for id := range chunkEntities {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	if maxChunks > 0 && len(ids) > maxChunks {
		log.Printf("relation extractor: limiting run to %d of %d chunks", maxChunks, len(ids))
		ids = ids[:maxChunks]
	}
	log.Printf("relation extractor: extracting relations from %d chunks", len(ids))

	results := make([][]types.Relation, len(ids))
	var done int
	var doneMu sync.Mutex
	runPool(ctx, e.cfg.Workers, len(ids), func(ctx context.Context, i int) {
		chunk, ok := source.Get(ids[i])
		if !ok {
			log.Printf("relation extractor: chunk %s not found, skipping", ids[i])
			return
		}
		results[i] = e.Extract(ctx, chunk, chunkEntities[ids[i]])

		doneMu.Lock()
		done++
		if done%50 == 0 {
			log.Printf("relation extractor: processed %d/%d chunks", done, len(ids))
		}
		doneMu.Unlock()
	})

	var all []types.Relation
	for _, r := range results {
		all = append(all, r...)
	}
	stats := e.Stats()
	log.Printf("relation extractor: done in %s: %d relations from %d chunks, %d failed extractions, %d unparseable responses",
		time.Since(start).Round(time.Millisecond), len(all), stats.ChunksProcessed, stats.FailedExtractions, stats.ParseFailures)
	return all
}

// Stats returns a snapshot of the counters.
func (e *RelationExtractor) Stats() ExtractorStats {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := e.stats
	if s.ChunksProcessed > 0 {
		s.AvgRelationsPerChunk = float64(s.RelationsExtracted) / float64(s.ChunksProcessed)
	}
	return s
}

func (e *RelationExtractor) record(fn func(s *ExtractorStats)) {
	e.mu.Lock()
	fn(&e.stats)
	e.mu.Unlock()
}

// ValidateRelation accepts r only when subject and object each fuzzy-match
// one of entities and the predicate is in the closed vocabulary. Accepted
// relations carry the entity list's and vocabulary's spelling.
func ValidateRelation(r llm.RelationResponse, entities []string) (types.Relation, bool) {
	subject := strings.TrimSpace(r.Subject)
	predicate := strings.TrimSpace(r.Predicate)
	object := strings.TrimSpace(r.Object)
	if subject == "" || predicate == "" || object == "" {
		return types.Relation{}, false
	}

	canonicalPredicate, ok := types.LookupPredicate(predicate)
	if !ok {
		return types.Relation{}, false
	}
	subjectMatch, ok := MatchEntity(subject, entities)
	if !ok {
		return types.Relation{}, false
	}
	objectMatch, ok := MatchEntity(object, entities)
	if !ok {
		return types.Relation{}, false
	}

	support := strings.TrimSpace(r.Context)
	if support == "" {
		support = types.DefaultRelationContext
	}
	return types.Relation{
		Subject:    subjectMatch,
		Predicate:  canonicalPredicate,
		Object:     objectMatch,
		Confidence: 1.0,
		Context:    support,
	}, true
}

// MatchEntity returns the first entity that contains name or is contained in
// it, ignoring case.
func MatchEntity(name string, entities []string) (string, bool) {
	needle := strings.ToLower(strings.TrimSpace(name))
	if needle == "" {
		return "", false
	}
	for _, e := range entities {
		hay := strings.ToLower(strings.TrimSpace(e))
		if hay == "" {
			continue
		}
		if strings.Contains(hay, needle) || strings.Contains(needle, hay) {
			return e, true
		}
	}
	return "", false
}

// truncate keeps the first limit characters of s.
func truncate(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit])
}
