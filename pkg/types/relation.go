package types

import "strings"

// DefaultRelationContext is recorded when the model gives no supporting text.
const DefaultRelationContext = "Extracted from text"

// Relation is a validated (subject, predicate, object) triple between two
// canonical entities, with provenance.
type Relation struct {
	Subject    string  `json:"subject"`
	Predicate  string  `json:"predicate"`
	Object     string  `json:"object"`
	ChunkID    string  `json:"chunk_id"`
	Confidence float64 `json:"confidence"`
	Context    string  `json:"context"`
}

// Predicate is one entry of the closed relation vocabulary.
type Predicate struct {
	Name  string
	Gloss string
}

// Predicates is the closed relation vocabulary in prompt order. Nothing
// outside this list is ever extracted or queried.
var Predicates = []Predicate{
	{"is_a", "X is a type of Y"},
	{"part_of", "X is part of Y"},
	{"subclass_of", "X is a subclass of Y"},
	{"uses", "X uses Y"},
	{"implements", "X implements Y"},
	{"optimizes", "X optimizes Y"},
	{"applies_to", "X applies to Y"},
	{"solves", "X solves problem Y"},
	{"requires", "X requires Y"},
	{"depends_on", "X depends on Y"},
	{"based_on", "X is based on Y"},
	{"extends", "X extends Y"},
	{"outperforms", "X outperforms Y"},
	{"compared_to", "X is compared to Y"},
	{"equivalent_to", "X is equivalent to Y"},
	{"precedes", "X comes before Y"},
	{"evolved_from", "X evolved from Y"},
	{"trained_on", "X is trained on Y"},
	{"evaluated_on", "X is evaluated on Y"},
	{"measures", "X measures Y"},
	{"predicts", "X predicts Y"},
	{"created_by", "X was created by Y"},
	{"proposed_by", "X was proposed by Y"},
	{"developed_by", "X was developed by Y"},
}

// PredicateNames returns the vocabulary names in order.
func PredicateNames() []string {
	names := make([]string, len(Predicates))
	for i, p := range Predicates {
		names[i] = p.Name
	}
	return names
}

// LookupPredicate returns the vocabulary spelling of name, compared
// case-insensitively after trimming.
func LookupPredicate(name string) (string, bool) {
	needle := strings.ToLower(strings.TrimSpace(name))
	for _, p := range Predicates {
		if p.Name == needle {
			return p.Name, true
		}
	}
	return "", false
}
