// Package engine turns raw entity mentions into normalized entities and
// extracts validated relations between them, using an LLM for both steps.
package engine

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/scrypster/mlkg/internal/llm"
	"github.com/scrypster/mlkg/internal/metrics"
	"github.com/scrypster/mlkg/pkg/types"
)

// DefaultBatchSize is the number of distinct surface strings sent per prompt.
const DefaultBatchSize = 20

// NormalizerConfig tunes batching and parallelism.
type NormalizerConfig struct {
	BatchSize int
	Workers   int
}

// NormalizerStats are the counters of the last Normalize run.
type NormalizerStats struct {
	EntitiesInput       int     `json:"entities_input"`
	EntitiesFiltered    int     `json:"entities_filtered"`
	EntitiesOutput      int     `json:"entities_output"`
	Batches             int     `json:"batches"`
	BatchesProcessed    int     `json:"batches_processed"`
	FailedBatches       int     `json:"failed_batches"`
	FallbackBatches     int     `json:"fallback_batches"`
	LLMCalls            int     `json:"llm_calls"`
	Collisions          int     `json:"collisions"`
	ReductionPercentage float64 `json:"reduction_percentage"`
}

// Normalizer deduplicates raw entity candidates into canonical entities.
type Normalizer struct {
	model   llm.ChatModel
	cfg     NormalizerConfig
	metrics *metrics.Metrics
	stats   NormalizerStats
}

// NewNormalizer checks that the model answers before returning. An
// unreachable backend is a construction error.
func NewNormalizer(ctx context.Context, model llm.ChatModel, cfg NormalizerConfig, m *metrics.Metrics) (*Normalizer, error) {
	if model == nil {
		return nil, fmt.Errorf("normalizer: chat model is required")
	}
	if cfg.BatchSize < 1 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if err := llm.Ping(ctx, model); err != nil {
		return nil, fmt.Errorf("normalizer: %w", err)
	}
	log.Printf("normalizer: connected to %s (batch size %d, workers %d)", model.GetModel(), cfg.BatchSize, cfg.Workers)
	return &Normalizer{model: model, cfg: cfg, metrics: m}, nil
}

// FilterCandidates returns the distinct trimmed candidate texts worth sending
// to the model, in discovery order: those seen at least twice or longer than
// three characters.
func FilterCandidates(candidates []types.EntityCandidate) []string {
	counts := make(map[string]int)
	var order []string
	for _, c := range candidates {
		text := strings.TrimSpace(c.Text)
		if text == "" {
			continue
		}
		if counts[text] == 0 {
			order = append(order, text)
		}
		counts[text]++
	}

	out := make([]string, 0, len(order))
	for _, text := range order {
		if counts[text] >= 2 || len([]rune(text)) > 3 {
			out = append(out, text)
		}
	}
	return out
}

// Batches splits items into consecutive groups of at most size.
func Batches(items []string, size int) [][]string {
	if size < 1 {
		size = DefaultBatchSize
	}
	var out [][]string
	for i := 0; i < len(items); i += size {
		end := i + size
		if end > len(items) {
			end = len(items)
		}
		out = append(out, items[i:end])
	}
	return out
}

// batchResult is what one batch contributes; results are merged in batch
// order after the pool drains.
type batchResult struct {
	entities []*types.NormalizedEntity
	mode     llm.ParseMode
	called   bool
	err      error
}

// Normalize runs every batch through the model and merges the results. A
// canonical name produced by a later batch replaces the earlier entry; such
// collisions are counted and logged. Failed batches contribute nothing.
func (n *Normalizer) Normalize(ctx context.Context, candidates []types.EntityCandidate) types.EntitySet {
	start := time.Now()
	filtered := FilterCandidates(candidates)
	batches := Batches(filtered, n.cfg.BatchSize)
	index := newMentionIndex(candidates)

	n.stats = NormalizerStats{
		EntitiesInput:    len(candidates),
		EntitiesFiltered: len(filtered),
		Batches:          len(batches),
	}
	log.Printf("normalizer: normalizing %d candidates (%d distinct after filtering) in %d batches",
		len(candidates), len(filtered), len(batches))

	results := make([]batchResult, len(batches))
	runPool(ctx, n.cfg.Workers, len(batches), func(ctx context.Context, i int) {
		log.Printf("normalizer: processing batch %d/%d (%d entities)", i+1, len(batches), len(batches[i]))
		results[i] = n.normalizeBatch(ctx, batches[i], index)
		if results[i].err != nil {
			log.Printf("normalizer: batch %d/%d failed: %v", i+1, len(batches), results[i].err)
		}
	})

	out := make(types.EntitySet)
	for i, r := range results {
		if r.called {
			n.stats.LLMCalls++
		}
		if r.err != nil || r.mode == llm.ParseFailed {
			n.stats.FailedBatches++
			continue
		}
		n.stats.BatchesProcessed++
		if r.mode == llm.ParseFallback {
			n.stats.FallbackBatches++
		}
		for _, e := range r.entities {
			if prev, ok := out[e.CanonicalName]; ok {
				n.stats.Collisions++
				n.metrics.EntityCollision()
				log.Printf("normalizer: batch %d overwrites %q (aliases %v -> %v)",
					i+1, e.CanonicalName, prev.Aliases, e.Aliases)
			}
			out[e.CanonicalName] = e
		}
		n.metrics.NormalizationBatch(r.mode.String(), len(batches[i]), len(r.entities))
	}

	n.stats.EntitiesOutput = len(out)
	if n.stats.EntitiesInput > 0 {
		n.stats.ReductionPercentage = (1 - float64(n.stats.EntitiesOutput)/float64(n.stats.EntitiesInput)) * 100
	}
	log.Printf("normalizer: done in %s: %d -> %d entities (%.1f%% reduction), %d failed batches, %d fallback parses, %d collisions",
		time.Since(start).Round(time.Millisecond), n.stats.EntitiesInput, n.stats.EntitiesOutput,
		n.stats.ReductionPercentage, n.stats.FailedBatches, n.stats.FallbackBatches, n.stats.Collisions)
	return out
}

// Stats returns the counters of the last run.
func (n *Normalizer) Stats() NormalizerStats {
	return n.stats
}

func (n *Normalizer) normalizeBatch(ctx context.Context, batch []string, index mentionIndex) batchResult {
	if ctx.Err() != nil {
		return batchResult{err: ctx.Err()}
	}
	text, err := llm.Ask(ctx, n.model, llm.NormalizationPrompt(batch))
	if err != nil {
		return batchResult{called: true, err: err}
	}

	parsed, mode := llm.ParseNormalizationResponse(text)
	res := batchResult{called: true, mode: mode}
	for _, p := range parsed {
		if e := buildEntity(p, index); e != nil {
			res.entities = append(res.entities, e)
		}
	}
	return res
}

// buildEntity validates one parsed record and attaches frequency and
// provenance from the original mentions. Records without a name are dropped.
func buildEntity(p llm.NormalizedEntityResponse, index mentionIndex) *types.NormalizedEntity {
	name := strings.TrimSpace(p.CanonicalName)
	if name == "" {
		return nil
	}

	aliases := cleanAliases(name, p.Aliases)
	surfaces := append([]string{name}, aliases...)

	var chunks, labels []string
	freq := 0
	for _, s := range surfaces {
		for _, c := range index[strings.ToLower(s)] {
			freq++
			chunks = append(chunks, c.ChunkID)
			labels = append(labels, c.Label)
		}
	}
	if freq < 1 {
		freq = 1
	}

	return &types.NormalizedEntity{
		CanonicalName:  name,
		EntityType:     types.ParseEntityType(p.Type),
		Aliases:        aliases,
		Frequency:      freq,
		Confidence:     1.0,
		SourceChunks:   types.SortedSet(chunks),
		OriginalLabels: types.SortedSet(labels),
	}
}

// cleanAliases trims aliases, dropping empties, case-insensitive duplicates
// and anything equal to the canonical name.
func cleanAliases(name string, raw []string) []string {
	seen := map[string]bool{strings.ToLower(name): true}
	out := make([]string, 0, len(raw))
	for _, a := range raw {
		a = strings.TrimSpace(a)
		key := strings.ToLower(a)
		if a == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, a)
	}
	return out
}

// mentionIndex groups candidates by lowercased trimmed text.
type mentionIndex map[string][]types.EntityCandidate

func newMentionIndex(candidates []types.EntityCandidate) mentionIndex {
	idx := make(mentionIndex)
	for _, c := range candidates {
		key := strings.ToLower(strings.TrimSpace(c.Text))
		if key == "" {
			continue
		}
		idx[key] = append(idx[key], c)
	}
	return idx
}
