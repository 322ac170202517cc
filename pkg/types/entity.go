package types

import "sort"

// CandidateSource tells which extraction stage produced a candidate.
type CandidateSource string

const (
	SourceNER     CandidateSource = "ner"
	SourcePattern CandidateSource = "pattern"
)

// EntityCandidate is a raw mention produced by the upstream NER and pattern
// extraction stage. Candidates are read-only once produced.
type EntityCandidate struct {
	Text       string          `json:"text"`
	Label      string          `json:"label"`                // NER tag or pattern id
	Start      int             `json:"start"`                // character span start
	End        int             `json:"end"`                  // character span end
	ChunkID    string          `json:"chunk_id"`
	Source     CandidateSource `json:"source"`
	Confidence float64         `json:"confidence,omitempty"`
}

// MaxStoredSourceChunks caps the provenance chunk ids written to the graph
// for a single entity.
const MaxStoredSourceChunks = 5

// NormalizedEntity is the canonical representative of a cluster of raw
// mentions. CanonicalName is the unique key of a normalized set.
type NormalizedEntity struct {
	CanonicalName  string     `json:"canonical_name"`
	EntityType     EntityType `json:"entity_type"`
	Aliases        []string   `json:"aliases"`
	Frequency      int        `json:"frequency"`
	Confidence     float64    `json:"confidence"`
	SourceChunks   []string   `json:"source_chunks"`
	OriginalLabels []string   `json:"original_labels"`
}

// EntitySet maps canonical name to normalized entity.
type EntitySet map[string]*NormalizedEntity

// Names returns the canonical names of the set in sorted order.
func (s EntitySet) Names() []string {
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SortedSet returns the distinct values of in, sorted. Empty strings are dropped.
func SortedSet(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, v := range in {
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
