// Package query answers natural-language questions about the ML knowledge
// graph: it maps a question onto one of a fixed set of intents, renders the
// matching SPARQL template, runs it and formats the rows into an answer.
package query

import "errors"

var (
	// ErrNotEnoughEntities is returned when HOW_RELATED lacks a second entity.
	ErrNotEnoughEntities = errors.New("query: relation queries need two entities")

	// ErrGraphNotFound is returned when the graph file to serve does not exist.
	ErrGraphNotFound = errors.New("query: knowledge graph file not found")

	// ErrUnknownQueryType is returned for a QueryType without a template.
	ErrUnknownQueryType = errors.New("query: unknown query type")

	// ErrUnknownRelation is returned when a relation filter names no
	// predicate of the vocabulary.
	ErrUnknownRelation = errors.New("query: unknown relation")
)

// QueryType is the intent of a question.
type QueryType string

const (
	WhatIs       QueryType = "what_is"
	WhatUses     QueryType = "what_uses"
	WhatIsTypeOf QueryType = "what_is_type_of"
	WhoCreated   QueryType = "who_created"
	HowRelated   QueryType = "how_related"
	ListByType   QueryType = "list_by_type"
	FindSimilar  QueryType = "find_similar"
)

// QueryTypes lists every intent in matching priority order.
var QueryTypes = []QueryType{WhatIs, WhatUses, WhatIsTypeOf, WhoCreated, HowRelated, ListByType, FindSimilar}

// ParseQueryType accepts the string form of a QueryType.
func ParseQueryType(s string) (QueryType, bool) {
	for _, t := range QueryTypes {
		if string(t) == s {
			return t, true
		}
	}
	return "", false
}

// QueryIntent is the interpretation of one question.
type QueryIntent struct {
	QueryType   QueryType `json:"query_type"`
	Entities    []string  `json:"entities"`
	Confidence  float64   `json:"confidence"`
	RawQuestion string    `json:"raw_question"`
}

// Row is one result row: variable name to native value. Unbound variables
// are absent.
type Row map[string]any

// FormattedResponse is the answer shown to the user.
type FormattedResponse struct {
	Answer     string         `json:"answer"`
	Metadata   map[string]any `json:"metadata"`
	RawResults []Row          `json:"raw_results"`
	Confidence float64        `json:"confidence"`
}

// EnhancedResponse is a FormattedResponse rewritten as prose.
type EnhancedResponse struct {
	NaturalAnswer  string  `json:"natural_answer"`
	StructuredData string  `json:"structured_data"`
	Confidence     float64 `json:"confidence"`
	ProcessingTime float64 `json:"processing_time_seconds"`
}
