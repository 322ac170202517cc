package kg

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/scrypster/mlkg/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleEntities() types.EntitySet {
	return types.EntitySet{
		"Support Vector Machine": {
			CanonicalName: "Support Vector Machine",
			EntityType:    types.EntityTypeAlgorithm,
			Aliases:       []string{"SVM", "Support Vector Machine", ""},
			Frequency:     12,
			Confidence:    1.0,
			SourceChunks:  []string{"b_chunk_0001", "b_chunk_0002", "b_chunk_0003", "b_chunk_0004", "b_chunk_0005", "b_chunk_0006"},
		},
		"Vladimir Vapnik": {
			CanonicalName: "Vladimir Vapnik",
			EntityType:    types.EntityTypePerson,
			Frequency:     2,
			Confidence:    0.9,
			SourceChunks:  []string{"b_chunk_0002"},
		},
	}
}

func sampleRelations() []types.Relation {
	return []types.Relation{
		{Subject: "Support Vector Machine", Predicate: "is_a", Object: "Algorithm", ChunkID: "b_chunk_0001", Confidence: 1.0, Context: "SVM is an algorithm"},
		{Subject: "Support Vector Machine", Predicate: "developed_by", Object: "Vladimir Vapnik", ChunkID: "b_chunk_0002", Confidence: 1.0, Context: "Vapnik developed SVMs & kernels <1995>"},
	}
}

func buildSample(t *testing.T) *Builder {
	t.Helper()
	b := NewBuilder(DefaultNamespaces())
	b.now = func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }
	b.AddOntologySchema()
	b.AddEntities(sampleEntities())
	b.AddRelations(sampleRelations())
	b.AddMetadata()
	return b
}

func TestNormalizeName(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Support Vector Machine", "support_vector_machine"},
		{"  k-Means  ", "k-means"},
		{"Naïve Bayes (classifier)", "nave_bayes_classifier"},
		{"__LSTM__", "lstm"},
		{"t-SNE\tembedding", "t-sne_embedding"},
		{"???", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := NormalizeName(tt.in)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, got, NormalizeName(tt.in), "derivation is deterministic")
		})
	}
}

func TestNormalizeName_DistinctNamesCanCollide(t *testing.T) {
	// Known limitation: the URI scheme does not disambiguate these.
	assert.Equal(t, NormalizeName("K-Means"), NormalizeName("k-means"))
	assert.Equal(t, NormalizeName("Deep Learning!"), NormalizeName("deep   learning"))
	assert.NotEqual(t, NormalizeName("k-Means"), NormalizeName("k Means"))

	b := NewBuilder(DefaultNamespaces())
	b.AddEntities(types.EntitySet{
		"K-Means": {CanonicalName: "K-Means", EntityType: types.EntityTypeAlgorithm, Frequency: 1},
		"k-means": {CanonicalName: "k-means", EntityType: types.EntityTypeAlgorithm, Frequency: 1},
	})
	labels := b.Graph().Match(DefaultNamespaces().EntityTerm("k-means"), RDFSLabel, Term{})
	assert.Len(t, labels, 2, "both entities land on the same node")
}

func TestNamespaces(t *testing.T) {
	ns := DefaultNamespaces()
	assert.Equal(t, "http://ml-kg.org/entity/support_vector_machine", ns.EntityTerm("Support Vector Machine").Value)
	assert.Equal(t, "http://ml-kg.org/ontology/algorithm", ns.ClassTerm(types.EntityTypeAlgorithm).Value)
	assert.Equal(t, "http://ml-kg.org/relation/is_a", ns.RelationTerm("IS_A").Value)
	assert.Equal(t, "support_vector_machine", ns.LocalName("http://ml-kg.org/entity/support_vector_machine"))
	assert.Equal(t, "label", ns.LocalName(RDFSNS+"label"))
	assert.Equal(t, "thing", Fragment("http://example.org/a#thing"))

	prologue := ns.SPARQLPrologue()
	for _, p := range []string{"ml:", "entity:", "relation:", "rdfs:", "rdf:"} {
		assert.Contains(t, prologue, "PREFIX "+p)
	}

	assert.NoError(t, ns.Validate())
	assert.Error(t, Namespaces{Ontology: "http://x", Entity: "http://y/", Relation: "http://z/"}.Validate())
	assert.Equal(t, ns, Namespaces{}.WithDefaults())
}

func TestTerm_Native(t *testing.T) {
	assert.Equal(t, int64(12), IntLiteral(12).Native())
	assert.Equal(t, 1.0, FloatLiteral(1).Native())
	assert.Equal(t, "1.0", FloatLiteral(1).Value)
	assert.Equal(t, true, BoolLiteral(true).Native())
	assert.Equal(t, "http://x/y", NewIRI("http://x/y").Native())
	assert.Equal(t, "abc", NewTypedLiteral("abc", XSDString).Native())
	assert.Equal(t, "oops", NewTypedLiteral("oops", XSDInteger).Native())
	assert.Equal(t, NewLiteral("a"), NewTypedLiteral("a", XSDString))
	assert.Equal(t, `"a\"b"@en`, NewLangLiteral(`a"b`, "EN").String())
}

func TestGraph_AddMatch(t *testing.T) {
	g := NewGraph()
	s := NewIRI("http://x/s")
	p := NewIRI("http://x/p")
	assert.True(t, g.Add(Triple{s, p, NewLiteral("a")}))
	assert.False(t, g.Add(Triple{s, p, NewLiteral("a")}), "duplicates are ignored")
	g.Add(Triple{s, p, NewLiteral("b")})
	g.Add(Triple{NewIRI("http://x/other"), p, NewLiteral("a")})

	assert.Equal(t, 3, g.Len())
	assert.Len(t, g.Match(s, Term{}, Term{}), 2)
	assert.Len(t, g.Match(Term{}, p, NewLiteral("a")), 2)
	assert.Len(t, g.Match(Term{}, Term{}, Term{}), 3)
	assert.Empty(t, g.Match(NewIRI("http://x/none"), p, Term{}))

	o, ok := g.Object(s, p)
	require.True(t, ok)
	assert.Equal(t, "a", o.Value)
}

func TestBuilder_SchemaIsIdempotent(t *testing.T) {
	b := NewBuilder(DefaultNamespaces())
	b.AddOntologySchema()
	n := b.Graph().Len()
	b.AddOntologySchema()
	assert.Equal(t, n, b.Graph().Len())

	classes := b.Graph().Match(Term{}, RDFSSubClassOf, DefaultNamespaces().OntologyTerm(ClassEntity))
	assert.Len(t, classes, 8)
}

func TestBuilder_Entities(t *testing.T) {
	b := buildSample(t)
	g := b.Graph()
	ns := DefaultNamespaces()
	svm := ns.EntityTerm("Support Vector Machine")

	assert.True(t, g.Has(Triple{svm, RDFType, ns.ClassTerm(types.EntityTypeAlgorithm)}))
	assert.True(t, g.Has(Triple{svm, RDFSLabel, NewLiteral("Support Vector Machine")}))
	assert.True(t, g.Has(Triple{svm, ns.OntologyTerm(PropFrequency), IntLiteral(12)}))

	aliases := g.Match(svm, ns.OntologyTerm(PropAlias), Term{})
	require.Len(t, aliases, 1)
	assert.Equal(t, "SVM", aliases[0].Object.Value)

	assert.Len(t, g.Match(svm, ns.OntologyTerm(PropSourceChunk), Term{}), types.MaxStoredSourceChunks)

	stats := b.Stats()
	assert.Equal(t, 2, stats.EntitiesAdded)
	assert.Equal(t, 1, stats.EntityTypes["PERSON"])
}

func TestBuilder_Relations(t *testing.T) {
	b := buildSample(t)
	g := b.Graph()
	ns := DefaultNamespaces()

	svm := ns.EntityTerm("Support Vector Machine")
	assert.True(t, g.Has(Triple{svm, ns.RelationTerm("is_a"), ns.EntityTerm("Algorithm")}))

	node := NewIRI(ns.Entity + "rel_1")
	assert.True(t, g.Has(Triple{node, RDFType, ns.OntologyTerm(ClassRelation)}))
	assert.True(t, g.Has(Triple{node, ns.OntologyTerm(PropPredicate), ns.RelationTerm("developed_by")}))
	assert.True(t, g.Has(Triple{node, ns.OntologyTerm(PropSourceChunk), NewLiteral("b_chunk_0002")}))

	// developed_by is not part of the core schema and is declared on first use.
	assert.True(t, g.Has(Triple{ns.RelationTerm("developed_by"), RDFSLabel, NewLiteral("developed by")}))

	stats := b.Stats()
	assert.Equal(t, 2, stats.RelationsAdded)
	assert.Equal(t, 1, stats.RelationTypes["is_a"])
}

func TestBuilder_BadInputIsSkipped(t *testing.T) {
	b := NewBuilder(DefaultNamespaces())
	b.AddEntities(types.EntitySet{"***": {CanonicalName: "***"}, "ok": {CanonicalName: "ok", Frequency: 1}})
	b.AddRelations([]types.Relation{{Subject: "!!", Predicate: "uses", Object: "ok"}})

	stats := b.Stats()
	assert.Equal(t, 1, stats.EntitiesAdded)
	assert.Equal(t, 1, stats.FailedEntities)
	assert.Equal(t, 1, stats.FailedRelations)
	assert.Empty(t, b.Graph().Match(NewIRI(DefaultEntityNS), Term{}, Term{}))
}

func TestBuilder_Metadata(t *testing.T) {
	b := buildSample(t)
	ns := DefaultNamespaces()
	node := ns.OntologyTerm(GraphNode)

	created, ok := b.Graph().Object(node, DCTermsCreated)
	require.True(t, ok)
	assert.Equal(t, "2024-05-01T12:00:00Z", created.Value)
	total, ok := b.Graph().Object(node, ns.OntologyTerm(PropTotalEntities))
	require.True(t, ok)
	assert.Equal(t, int64(2), total.Native())

	report := b.Report()
	assert.Contains(t, report, "Entities added:   2")
	assert.Contains(t, report, "ml: http://ml-kg.org/ontology/")
}

func TestCodec_RoundTrip(t *testing.T) {
	g := buildSample(t).Graph()

	for _, f := range Formats {
		t.Run(string(f), func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, Encode(&buf, g, f))

			back, err := Decode(&buf, f)
			require.NoError(t, err)
			assert.Equal(t, g.Len(), back.Len())
			assert.True(t, back.Equal(g), "re-parsed graph holds the same triples")
		})
	}
}

func TestCodec_TurtleUsesPrefixes(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, buildSample(t).Graph(), FormatTurtle))
	assert.True(t, strings.Contains(buf.String(), "http://ml-kg.org/entity/"))
}

func TestSaveAndLoad(t *testing.T) {
	b := buildSample(t)
	dir := t.TempDir()

	for _, f := range Formats {
		path := filepath.Join(dir, "out", "ml_kg."+f.Extension())
		require.NoError(t, b.Save(path, f))

		g, err := Load(path)
		require.NoError(t, err, f)
		assert.Equal(t, b.Graph().Len(), g.Len(), f)
	}

	_, err := Load(filepath.Join(dir, "missing.ttl"))
	assert.True(t, os.IsNotExist(err))

	_, err = Load(filepath.Join(dir, "graph.csv"))
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]Format{
		"ttl": FormatTurtle, "turtle": FormatTurtle, "nt": FormatNTriples, "n3": FormatN3,
		"xml": FormatRDFXML, "rdf": FormatRDFXML, "json-ld": FormatJSONLD, "jsonld": FormatJSONLD,
	} {
		got, err := ParseFormat(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseFormat("csv")
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}
