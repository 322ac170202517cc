package engine

import (
	"fmt"
	"sort"

	"github.com/scrypster/mlkg/pkg/types"
)

// MapEntitiesToChunks inverts the entities' source chunks into
// chunk id -> entity names, keeping only chunks that mention at least two
// entities. Names within a chunk are sorted.
func MapEntitiesToChunks(entities types.EntitySet) map[string][]string {
	byChunk := make(map[string][]string)
	for _, name := range entities.Names() {
		for _, chunkID := range entities[name].SourceChunks {
			byChunk[chunkID] = append(byChunk[chunkID], name)
		}
	}
	for id, names := range byChunk {
		if len(names) < 2 {
			delete(byChunk, id)
		}
	}
	return byChunk
}

// EntityRank is one row of a top-N entity table.
type EntityRank struct {
	Name         string           `json:"name"`
	Type         types.EntityType `json:"type"`
	Frequency    int              `json:"frequency"`
	AliasesCount int              `json:"aliases_count"`
}

// NormalizationSummary describes a normalized entity set.
type NormalizationSummary struct {
	TotalNormalized     int                      `json:"total_normalized"`
	TypeDistribution    map[types.EntityType]int `json:"type_distribution"`
	TotalAliases        int                      `json:"total_aliases"`
	AvgAliasesPerEntity float64                  `json:"avg_aliases_per_entity"`
	TopEntities         []EntityRank             `json:"top_entities"`
}

// SummarizeEntities builds the summary, with the 20 most frequent entities.
// Ties are broken by name.
func SummarizeEntities(entities types.EntitySet) NormalizationSummary {
	s := NormalizationSummary{TypeDistribution: make(map[types.EntityType]int)}
	if len(entities) == 0 {
		return s
	}

	ranked := make([]EntityRank, 0, len(entities))
	for _, e := range entities {
		s.TypeDistribution[e.EntityType]++
		s.TotalAliases += len(e.Aliases)
		ranked = append(ranked, EntityRank{
			Name:         e.CanonicalName,
			Type:         e.EntityType,
			Frequency:    e.Frequency,
			AliasesCount: len(e.Aliases),
		})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Frequency != ranked[j].Frequency {
			return ranked[i].Frequency > ranked[j].Frequency
		}
		return ranked[i].Name < ranked[j].Name
	})
	if len(ranked) > 20 {
		ranked = ranked[:20]
	}

	s.TotalNormalized = len(entities)
	s.AvgAliasesPerEntity = float64(s.TotalAliases) / float64(len(entities))
	s.TopEntities = ranked
	return s
}

// NameCount pairs a name with how often it occurs.
type NameCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// ExtractionSummary describes an extracted relation list.
type ExtractionSummary struct {
	TotalRelations    int                 `json:"total_relations"`
	UniquePredicates  int                 `json:"unique_predicates"`
	UniqueSubjects    int                 `json:"unique_subjects"`
	UniqueObjects     int                 `json:"unique_objects"`
	PredicateCounts   []NameCount         `json:"predicate_counts"`
	TopSubjects       []NameCount         `json:"top_subjects"`
	TopObjects        []NameCount         `json:"top_objects"`
	PredicateExamples map[string][]string `json:"predicate_examples"`
}

// SummarizeRelations counts predicates, subjects and objects and keeps up to
// three examples for each of the ten most common predicates.
func SummarizeRelations(relations []types.Relation) ExtractionSummary {
	s := ExtractionSummary{PredicateExamples: make(map[string][]string)}
	if len(relations) == 0 {
		return s
	}

	predicates := make(map[string]int)
	subjects := make(map[string]int)
	objects := make(map[string]int)
	for _, r := range relations {
		predicates[r.Predicate]++
		subjects[r.Subject]++
		objects[r.Object]++
	}

	s.TotalRelations = len(relations)
	s.UniquePredicates = len(predicates)
	s.UniqueSubjects = len(subjects)
	s.UniqueObjects = len(objects)
	s.PredicateCounts = rank(predicates, 0)
	s.TopSubjects = rank(subjects, 10)
	s.TopObjects = rank(objects, 10)

	for i, pc := range s.PredicateCounts {
		if i == 10 {
			break
		}
		for _, r := range relations {
			if r.Predicate != pc.Name {
				continue
			}
			s.PredicateExamples[pc.Name] = append(s.PredicateExamples[pc.Name],
				fmt.Sprintf("%s %s %s", r.Subject, r.Predicate, r.Object))
			if len(s.PredicateExamples[pc.Name]) == 3 {
				break
			}
		}
	}
	return s
}

// rank sorts counts descending, ties by name; limit <= 0 keeps all.
func rank(counts map[string]int, limit int) []NameCount {
	out := make([]NameCount, 0, len(counts))
	for name, c := range counts {
		out = append(out, NameCount{Name: name, Count: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Name < out[j].Name
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
