package sparql

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/scrypster/mlkg/internal/kg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const prologue = `PREFIX ml: <http://ml-kg.org/ontology/>
PREFIX entity: <http://ml-kg.org/entity/>
PREFIX relation: <http://ml-kg.org/relation/>
PREFIX rdfs: <http://www.w3.org/2000/01/rdf-schema#>
PREFIX rdf: <http://www.w3.org/1999/02/22-rdf-syntax-ns#>
`

func testGraph() *kg.Graph {
	ns := kg.DefaultNamespaces()
	g := kg.NewGraph()
	add := func(s, p, o kg.Term) { g.Add(kg.Triple{Subject: s, Predicate: p, Object: o}) }
	label := func(name, l string) { add(ns.EntityTerm(name), kg.RDFSLabel, kg.NewLiteral(l)) }
	typ := func(name, class string) { add(ns.EntityTerm(name), kg.RDFType, ns.OntologyTerm(class)) }

	typ("svm", "algorithm")
	label("svm", "Support Vector Machine")
	typ("kmeans", "algorithm")
	label("kmeans", "K-Means")
	typ("pca", "algorithm")
	label("pca", "PCA")
	typ("kernel_trick", "concept")
	label("kernel_trick", "Kernel Trick")
	typ("vapnik", "person")
	label("vapnik", "Vladimir Vapnik")

	add(ns.EntityTerm("svm"), ns.RelationTerm("uses"), ns.EntityTerm("kernel_trick"))
	add(ns.EntityTerm("pca"), ns.RelationTerm("applies_to"), ns.EntityTerm("kernel_trick"))
	add(ns.EntityTerm("svm"), ns.RelationTerm("developed_by"), ns.EntityTerm("vapnik"))
	add(ns.EntityTerm("svm"), ns.OntologyTerm("frequency"), kg.IntLiteral(12))
	add(ns.EntityTerm("kmeans"), ns.OntologyTerm("frequency"), kg.IntLiteral(3))
	return g
}

func run(t *testing.T, g *kg.Graph, body string) *Result {
	t.Helper()
	res, err := Run(context.Background(), g, prologue+body)
	require.NoError(t, err)
	return res
}

func labels(res *Result, v string) []string {
	var out []string
	for _, row := range res.Rows {
		if t, ok := row[v]; ok {
			out = append(out, t.Value)
		}
	}
	return out
}

func TestTokenize(t *testing.T) {
	toks, err := tokenize(`SELECT ?x WHERE { entity:svm relation: <http://a/b#c> "hi"@en 3.5 } # trailing`)
	require.NoError(t, err)

	kinds := make([]tokenKind, len(toks))
	for i, tk := range toks {
		kinds[i] = tk.kind
	}
	assert.Equal(t, []tokenKind{
		tokIdent, tokVar, tokIdent, tokPunct, tokPName, tokPName, tokIRI, tokString, tokLangTag, tokNumber, tokPunct, tokEOF,
	}, kinds)
	assert.Equal(t, "relation:", toks[5].text)
	assert.Equal(t, "http://a/b#c", toks[6].text)
}

func TestTokenize_LessThanIsOperator(t *testing.T) {
	toks, err := tokenize(`FILTER(?n < 5 && ?n <= 3)`)
	require.NoError(t, err)
	assert.Equal(t, "<", toks[3].text)
	assert.Equal(t, "<=", toks[7].text)
}

func TestTokenize_PrefixedNameDropsTrailingDot(t *testing.T) {
	toks, err := tokenize(`?s a ml:algorithm.`)
	require.NoError(t, err)
	assert.Equal(t, "ml:algorithm", toks[2].text)
	assert.True(t, toks[3].is("."))
}

func TestParse_SyntaxErrors(t *testing.T) {
	tests := []struct {
		name  string
		query string
	}{
		{"missing select", "WHERE { ?s ?p ?o }"},
		{"unclosed group", "SELECT ?s WHERE { ?s ?p ?o "},
		{"undeclared prefix", "SELECT ?s WHERE { ?s foo:bar ?o }"},
		{"unsupported function", "SELECT ?s WHERE { ?s ?p ?o FILTER(NOW()) }"},
		{"ungrouped variable", "SELECT ?s (COUNT(?o) AS ?n) WHERE { ?s ?p ?o }"},
		{"literal subject", `SELECT ?s WHERE { "x" ?p ?o }`},
		{"trailing garbage", "SELECT ?s WHERE { ?s ?p ?o } garbage"},
		{"bad escape", `SELECT ?s WHERE { ?s ?p "a\q" }`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.query)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrSyntax))
			var se *SyntaxError
			assert.True(t, errors.As(err, &se))
		})
	}
}

func TestParse_Shorthands(t *testing.T) {
	q, err := Parse(prologue + `SELECT * WHERE { ?s a ml:algorithm ; rdfs:label ?l , ?m . }`)
	require.NoError(t, err)

	require.Len(t, q.Where.Elements, 1)
	block := q.Where.Elements[0].(*Triples)
	require.Len(t, block.Patterns, 3)
	assert.Equal(t, kg.RDFType, block.Patterns[0].Predicate.Term)
	assert.Equal(t, "l", block.Patterns[1].Object.Var)
	assert.Equal(t, "m", block.Patterns[2].Object.Var)
	assert.Equal(t, []string{"s", "l", "m"}, q.Variables())
}

func TestExecute_ListByTypeOrderedAndLimited(t *testing.T) {
	res := run(t, testGraph(), `SELECT ?entity ?label WHERE {
		?entity rdf:type ml:algorithm .
		?entity rdfs:label ?label .
	} ORDER BY ?label LIMIT 2`)

	assert.Equal(t, []string{"entity", "label"}, res.Vars)
	assert.Equal(t, []string{"K-Means", "PCA"}, labels(res, "label"))
}

func TestExecute_OffsetAndDesc(t *testing.T) {
	res := run(t, testGraph(), `SELECT ?label WHERE { ?e a ml:algorithm ; rdfs:label ?label } ORDER BY DESC(?label) OFFSET 1`)
	assert.Equal(t, []string{"PCA", "K-Means"}, labels(res, "label"))
}

func TestExecute_FilterIn(t *testing.T) {
	res := run(t, testGraph(), `SELECT ?user ?userLabel ?relation WHERE {
		?user ?relation entity:kernel_trick .
		?user rdfs:label ?userLabel .
		FILTER(?relation IN (relation:uses, relation:implements, relation:applies_to))
	} ORDER BY ?userLabel`)

	assert.Equal(t, []string{"PCA", "Support Vector Machine"}, labels(res, "userLabel"))
}

func TestExecute_NotIn(t *testing.T) {
	res := run(t, testGraph(), `SELECT ?o WHERE { entity:svm ?p ?o FILTER(?p NOT IN (rdf:type, rdfs:label)) FILTER(isIRI(?o)) } ORDER BY ?o`)
	assert.Len(t, res.Rows, 2)
}

func TestExecute_OptionalLeavesUnbound(t *testing.T) {
	g := testGraph()
	ns := kg.DefaultNamespaces()
	g.Add(kg.Triple{Subject: ns.EntityTerm("svm"), Predicate: ns.RelationTerm("is_a"), Object: ns.OntologyTerm("algorithm")})

	res := run(t, g, `SELECT ?parent ?parentLabel WHERE {
		entity:svm relation:is_a ?parent .
		OPTIONAL { ?parent rdfs:label ?parentLabel . }
	}`)

	require.Len(t, res.Rows, 1)
	assert.Equal(t, "http://ml-kg.org/ontology/algorithm", res.Rows[0]["parent"].Value)
	_, bound := res.Rows[0]["parentLabel"]
	assert.False(t, bound)
}

func TestExecute_Union(t *testing.T) {
	res := run(t, testGraph(), `SELECT ?relation WHERE {
		{ entity:svm ?relation entity:kernel_trick . }
		UNION
		{ entity:kernel_trick ?relation entity:svm . }
	}`)
	require.Len(t, res.Rows, 1)
	assert.Equal(t, "http://ml-kg.org/relation/uses", res.Rows[0]["relation"].Value)
}

func TestExecute_StrStartsOnEmptyLocalName(t *testing.T) {
	res := run(t, testGraph(), `SELECT ?relation ?target WHERE {
		{ entity:svm ?relation ?target . } UNION { ?target ?relation entity:svm . }
		FILTER(STRSTARTS(STR(?relation), STR(relation:)))
	} ORDER BY ?relation`)

	assert.Equal(t, []string{
		"http://ml-kg.org/relation/developed_by",
		"http://ml-kg.org/relation/uses",
	}, labels(res, "relation"))
}

func TestExecute_CountDistinct(t *testing.T) {
	res := run(t, testGraph(), `SELECT (COUNT(DISTINCT ?entity) as ?count) WHERE {
		?entity ?p ?o .
		FILTER(STRSTARTS(STR(?entity), STR(entity:)))
	}`)
	require.Len(t, res.Rows, 1)
	assert.Equal(t, int64(5), res.Rows[0]["count"].Native())
}

func TestExecute_CountOverEmptyMatch(t *testing.T) {
	res := run(t, testGraph(), `SELECT (COUNT(*) AS ?n) WHERE { ?s relation:nothing ?o }`)
	require.Len(t, res.Rows, 1)
	assert.Equal(t, int64(0), res.Rows[0]["n"].Native())
}

func TestExecute_GroupBy(t *testing.T) {
	res := run(t, testGraph(), `SELECT ?type (COUNT(?e) AS ?n) WHERE { ?e rdf:type ?type } GROUP BY ?type ORDER BY DESC(?n)`)
	require.Len(t, res.Rows, 3)
	assert.Equal(t, "http://ml-kg.org/ontology/algorithm", res.Rows[0]["type"].Value)
	assert.Equal(t, int64(3), res.Rows[0]["n"].Native())
}

func TestExecute_NumericAndStringFilters(t *testing.T) {
	g := testGraph()
	tests := []struct {
		name   string
		filter string
		want   []string
	}{
		{"greater than", `?f > 5`, []string{"Support Vector Machine"}},
		{"not and", `!(?f > 5) && BOUND(?f)`, []string{"K-Means"}},
		{"regex case insensitive", `REGEX(?l, "^k-", "i")`, []string{"K-Means"}},
		{"contains lcase", `CONTAINS(LCASE(?l), "vector")`, []string{"Support Vector Machine"}},
		{"strends", `STRENDS(?l, "Means")`, []string{"K-Means"}},
		{"or with error", `?missing = 1 || ?f = 3`, []string{"K-Means"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := run(t, g, `SELECT ?l WHERE { ?e ml:frequency ?f ; rdfs:label ?l FILTER(`+tt.filter+`) } ORDER BY ?l`)
			assert.Equal(t, tt.want, labels(res, "l"))
		})
	}
}

func TestExecute_Distinct(t *testing.T) {
	res := run(t, testGraph(), `SELECT DISTINCT ?type WHERE { ?e rdf:type ?type }`)
	assert.Len(t, res.Rows, 3)
}

func TestExecute_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Run(ctx, testGraph(), prologue+`SELECT * WHERE { ?s ?p ?o }`)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestResultNative(t *testing.T) {
	res := run(t, testGraph(), `SELECT ?l ?f WHERE { entity:svm rdfs:label ?l ; ml:frequency ?f }`)
	rows := res.Native()
	require.Len(t, rows, 1)
	assert.Equal(t, "Support Vector Machine", rows[0]["l"])
	assert.Equal(t, int64(12), rows[0]["f"])
}

func TestJSONRoundTrip(t *testing.T) {
	res := run(t, testGraph(), `SELECT ?e ?l ?f WHERE { ?e rdfs:label ?l OPTIONAL { ?e ml:frequency ?f } } ORDER BY ?l`)

	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, res))
	assert.Contains(t, buf.String(), `"type":"uri"`)

	back, err := ReadJSON(&buf)
	require.NoError(t, err)
	assert.Equal(t, res.Vars, back.Vars)
	assert.Equal(t, res.Rows, back.Rows)
}

func TestReadJSON_UnknownBinding(t *testing.T) {
	_, err := ReadJSON(bytes.NewBufferString(`{"head":{"vars":["x"]},"results":{"bindings":[{"x":{"type":"triple","value":"?"}}]}}`))
	assert.Error(t, err)
}
