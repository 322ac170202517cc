package query

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testEntityNS = "http://ml-kg.org/entity/"

func TestFormat_EmptyResults(t *testing.T) {
	f := NewFormatter()
	for _, qt := range QueryTypes {
		resp := f.Format(nil, qt, "what is nothing", []string{"nothing"})
		assert.Zero(t, resp.Confidence)
		assert.Equal(t, `❌ No results found for: "what is nothing"`, resp.Answer)
		assert.NotNil(t, resp.RawResults)
		assert.Equal(t, 0, resp.Metadata["result_count"])
	}
}

func TestFormat_WhatIs(t *testing.T) {
	rows := []Row{
		{"type": "http://ml-kg.org/ontology/algorithm", "label": "Support Vector Machine", "property": "http://ml-kg.org/ontology/alias", "value": "SVM"},
		{"type": "http://ml-kg.org/ontology/algorithm", "label": "Support Vector Machine", "property": "http://ml-kg.org/ontology/alias", "value": "SVM"},
		{"type": "http://ml-kg.org/ontology/algorithm", "label": "Support Vector Machine", "property": "http://ml-kg.org/relation/uses", "value": testEntityNS + "kernel_trick"},
		{"type": "http://ml-kg.org/ontology/algorithm", "label": "Support Vector Machine", "property": "http://www.w3.org/1999/02/22-rdf-syntax-ns#type", "value": "http://ml-kg.org/ontology/algorithm"},
		{"type": "http://ml-kg.org/ontology/algorithm", "label": "Support Vector Machine", "property": "http://ml-kg.org/ontology/frequency", "value": int64(9)},
	}
	resp := NewFormatter().Format(rows, WhatIs, "what is svm", []string{"svm"})

	assert.InDelta(t, 0.9, resp.Confidence, 1e-9)
	assert.Equal(t, "algorithm", resp.Metadata["entity_type"])
	want := strings.Join([]string{
		"📋 **Support Vector Machine**",
		"🏷️ **Type**: Algorithm",
		"📊 **Properties**:",
		"   • **Alias**: SVM",
		"   • **Frequency**: 9",
		"   • **Uses**: kernel_trick",
	}, "\n")
	assert.Equal(t, want, resp.Answer)
}

func TestFormat_WhatIsWithoutLabel(t *testing.T) {
	rows := []Row{{"type": "http://ml-kg.org/ontology/concept"}}
	resp := NewFormatter().Format(rows, WhatIs, "what is dropout", []string{"dropout"})
	assert.InDelta(t, 0.6, resp.Confidence, 1e-9)
	assert.True(t, strings.HasPrefix(resp.Answer, "📋 **Dropout**"))
}

func TestFormat_WhatUsesGroupsByType(t *testing.T) {
	rows := []Row{
		{"user": testEntityNS + "svm", "userLabel": "SVM", "userType": "http://ml-kg.org/ontology/algorithm", "relation": "http://ml-kg.org/relation/uses"},
		{"user": testEntityNS + "svm", "userLabel": "SVM", "userType": "http://ml-kg.org/ontology/algorithm", "relation": "http://ml-kg.org/relation/implements"},
		{"user": testEntityNS + "libsvm", "userLabel": "LIBSVM", "userType": "http://ml-kg.org/ontology/software", "relation": "http://ml-kg.org/relation/implements"},
	}
	resp := NewFormatter().Format(rows, WhatUses, "what uses kernel trick", []string{"kernel_trick"})

	assert.InDelta(t, 0.8, resp.Confidence, 1e-9)
	assert.Equal(t, 2, resp.Metadata["total_users"])
	want := strings.Join([]string{
		"🔍 **Entities that use Kernel Trick:**",
		"",
		"📂 **Algorithms:**",
		"   🔧 SVM",
		"📂 **Softwares:**",
		"   ⚙️ LIBSVM",
	}, "\n")
	assert.Equal(t, want, resp.Answer)
}

func TestFormat_HowRelated(t *testing.T) {
	rows := []Row{
		{"relation": "http://ml-kg.org/relation/uses"},
		{"relation": "http://ml-kg.org/relation/uses"},
		{"relation": "http://ml-kg.org/relation/part_of"},
	}
	resp := NewFormatter().Format(rows, HowRelated, "q", []string{"neural_network", "deep_learning"})

	assert.InDelta(t, 0.8, resp.Confidence, 1e-9)
	assert.Equal(t, 2, resp.Metadata["relation_count"])
	assert.Contains(t, resp.Answer, "🔗 **Neural Network** and **Deep Learning** are related through:")
	assert.Contains(t, resp.Answer, "   🧩 Part Of")
	assert.Contains(t, resp.Answer, "   🔧 Uses")
}

func TestFormat_ListOverflow(t *testing.T) {
	var rows []Row
	for i := 0; i < 25; i++ {
		rows = append(rows, Row{"entity": fmt.Sprintf("%salgo_%02d", testEntityNS, i), "label": fmt.Sprintf("Algo %02d", i)})
	}
	resp := NewFormatter().Format(rows, ListByType, "list all algorithms", []string{"algorithm"})

	assert.InDelta(t, 0.9, resp.Confidence, 1e-9)
	assert.Equal(t, 25, resp.Metadata["total_entities"])
	lines := strings.Split(resp.Answer, "\n")
	assert.Equal(t, "📂 **Algorithms** in the Knowledge Graph:", lines[0])
	assert.Equal(t, "    1. Algo 00", lines[2])
	assert.Equal(t, "   20. Algo 19", lines[21])
	assert.Equal(t, "   ... and 5 more algorithms", lines[len(lines)-1])
}

func TestFormat_FindSimilarCapped(t *testing.T) {
	var rows []Row
	for i := 0; i < 18; i++ {
		rows = append(rows, Row{"similar": fmt.Sprintf("%sx%02d", testEntityNS, i), "similarLabel": fmt.Sprintf("X%02d", i)})
	}
	resp := NewFormatter().Format(rows, FindSimilar, "q", []string{"svm"})

	assert.InDelta(t, 0.7, resp.Confidence, 1e-9)
	assert.Contains(t, resp.Answer, "🔍 **Entities similar to Svm**:")
	assert.Contains(t, resp.Answer, "X14")
	assert.NotContains(t, resp.Answer, "X15")
}

func TestFormat_WhoCreatedUsesURIWhenUnlabelled(t *testing.T) {
	rows := []Row{{"creator": testEntityNS + "geoffrey_hinton"}}
	resp := NewFormatter().Format(rows, WhoCreated, "q", []string{"backpropagation"})

	assert.InDelta(t, 0.9, resp.Confidence, 1e-9)
	assert.Contains(t, resp.Answer, "👤 **Backpropagation** was created/developed by:")
	assert.Contains(t, resp.Answer, "   📝 Geoffrey Hinton")
}

func TestFormat_GenericForUnknownType(t *testing.T) {
	var rows []Row
	for i := 0; i < 12; i++ {
		rows = append(rows, Row{"b": i, "a": "x"})
	}
	resp := NewFormatter().Format(rows, QueryType("custom"), "q", nil)

	assert.InDelta(t, 0.5, resp.Confidence, 1e-9)
	lines := strings.Split(resp.Answer, "\n")
	require.Len(t, lines, 12)
	assert.Equal(t, "📊 Results for custom:", lines[0])
	assert.Equal(t, "   1. a: x, b: 0", lines[2])
}

func TestFormatter_Error(t *testing.T) {
	resp := NewFormatter().Error(errors.New("syntax error"), nil)
	assert.Zero(t, resp.Confidence)
	assert.Equal(t, "syntax error", resp.Metadata["error"])
	assert.NotNil(t, resp.RawResults)
	assert.Contains(t, resp.Answer, "syntax error")
}

func TestTitleCase(t *testing.T) {
	tests := map[string]string{
		"support_vector_machine": "Support Vector Machine",
		"k-means":                "K-Means",
		"ALGORITHM":              "Algorithm",
		"word2vec":               "Word2Vec",
		"":                       "",
	}
	for in, want := range tests {
		assert.Equal(t, want, titleCase(in), in)
	}
}

func TestCleanURI(t *testing.T) {
	assert.Equal(t, "label", cleanURI("http://www.w3.org/2000/01/rdf-schema#label"))
	assert.Equal(t, "svm", cleanURI(testEntityNS+"svm"))
	assert.Equal(t, "plain", cleanURI("plain"))
}

func TestRelationEmoji(t *testing.T) {
	assert.Equal(t, "🔧", RelationEmoji("USES"))
	assert.Equal(t, "🔗", RelationEmoji("cites"))
}
