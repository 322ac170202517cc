package engine

import (
	"testing"

	"github.com/scrypster/mlkg/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapEntitiesToChunks(t *testing.T) {
	set := types.EntitySet{
		"SVM":    {CanonicalName: "SVM", SourceChunks: []string{"c1", "c2"}},
		"Kernel": {CanonicalName: "Kernel", SourceChunks: []string{"c1"}},
		"Margin": {CanonicalName: "Margin", SourceChunks: []string{"c1", "c3"}},
	}
	got := MapEntitiesToChunks(set)
	assert.Equal(t, map[string][]string{"c1": {"Kernel", "Margin", "SVM"}}, got)
}

func TestSummarizeEntities(t *testing.T) {
	set := types.EntitySet{
		"A": {CanonicalName: "A", EntityType: types.EntityTypeAlgorithm, Frequency: 3, Aliases: []string{"a1", "a2"}},
		"B": {CanonicalName: "B", EntityType: types.EntityTypeAlgorithm, Frequency: 9},
		"C": {CanonicalName: "C", EntityType: types.EntityTypeMetric, Frequency: 3},
	}
	s := SummarizeEntities(set)

	assert.Equal(t, 3, s.TotalNormalized)
	assert.Equal(t, 2, s.TypeDistribution[types.EntityTypeAlgorithm])
	assert.Equal(t, 2, s.TotalAliases)
	assert.InDelta(t, 2.0/3.0, s.AvgAliasesPerEntity, 1e-9)
	require.Len(t, s.TopEntities, 3)
	assert.Equal(t, "B", s.TopEntities[0].Name)
	assert.Equal(t, "A", s.TopEntities[1].Name, "ties ordered by name")

	assert.Zero(t, SummarizeEntities(nil).TotalNormalized)
}

func TestSummarizeRelations(t *testing.T) {
	rels := []types.Relation{
		{Subject: "CNN", Predicate: "uses", Object: "Convolution"},
		{Subject: "CNN", Predicate: "uses", Object: "Pooling"},
		{Subject: "RNN", Predicate: "uses", Object: "Recurrence"},
		{Subject: "RNN", Predicate: "uses", Object: "Gates"},
		{Subject: "LSTM", Predicate: "extends", Object: "RNN"},
	}
	s := SummarizeRelations(rels)

	assert.Equal(t, 5, s.TotalRelations)
	assert.Equal(t, 2, s.UniquePredicates)
	assert.Equal(t, []NameCount{{"uses", 4}, {"extends", 1}}, s.PredicateCounts)
	assert.Equal(t, NameCount{"CNN", 2}, s.TopSubjects[0])
	assert.Len(t, s.PredicateExamples["uses"], 3)
	assert.Equal(t, []string{"LSTM extends RNN"}, s.PredicateExamples["extends"])
}
