package query

import (
	"fmt"
	"regexp"

	"github.com/scrypster/mlkg/internal/kg"
	"github.com/scrypster/mlkg/pkg/types"
)

// Default row limits of the listing templates.
const (
	DefaultListLimit    = 15
	DefaultSimilarLimit = 10
)

var pnLocal = regexp.MustCompile(`^[A-Za-z0-9_][A-Za-z0-9_-]*$`)

// Templates renders the fixed SPARQL queries. All of them share the
// prologue of the namespaces the graph was built with.
type Templates struct {
	ns       kg.Namespaces
	prologue string
}

// NewTemplates binds the templates to ns.
func NewTemplates(ns kg.Namespaces) *Templates {
	ns = ns.WithDefaults()
	return &Templates{ns: ns, prologue: ns.SPARQLPrologue()}
}

// Namespaces returns the namespaces the templates use.
func (t *Templates) Namespaces() kg.Namespaces { return t.ns }

// Prologue returns the PREFIX block.
func (t *Templates) Prologue() string { return t.prologue }

// entity renders the reference to an entity token: entity:<token> when the
// token is a valid local name, the full IRI otherwise.
func (t *Templates) entity(token string) string {
	if pnLocal.MatchString(token) {
		return "entity:" + token
	}
	return "<" + t.ns.Entity + token + ">"
}

func (t *Templates) class(name string) string {
	local := kg.ClassLocalName(name)
	if pnLocal.MatchString(local) {
		return "ml:" + local
	}
	return "<" + t.ns.Ontology + local + ">"
}

// WhatIs selects the type, label and every property of an entity.
func (t *Templates) WhatIs(entity string) string {
	e := t.entity(entity)
	return fmt.Sprintf(`%s
SELECT ?type ?label ?property ?value WHERE {
    %[2]s rdf:type ?type .
    OPTIONAL { %[2]s rdfs:label ?label . }
    OPTIONAL { %[2]s ?property ?value . }
}
`, t.prologue, e)
}

// WhatUses selects entities that use, implement or apply to an entity.
func (t *Templates) WhatUses(entity string) string {
	return fmt.Sprintf(`%s
SELECT ?user ?userLabel ?userType ?relation WHERE {
    ?user ?relation %s .
    ?user rdf:type ?userType .
    ?user rdfs:label ?userLabel .

    FILTER(?relation IN (relation:uses, relation:implements, relation:applies_to))
}
ORDER BY ?userType ?userLabel
`, t.prologue, t.entity(entity))
}

// TypeOf selects the objects of an entity's is_a edges.
func (t *Templates) TypeOf(entity string) string {
	return fmt.Sprintf(`%s
SELECT ?parent ?parentLabel WHERE {
    %s relation:is_a ?parent .
    OPTIONAL { ?parent rdfs:label ?parentLabel . }
}
`, t.prologue, t.entity(entity))
}

// WhoCreated selects developed_by and proposed_by targets.
func (t *Templates) WhoCreated(entity string) string {
	e := t.entity(entity)
	return fmt.Sprintf(`%s
SELECT ?creator ?creatorLabel WHERE {
    {
        %[2]s relation:developed_by ?creator .
        OPTIONAL { ?creator rdfs:label ?creatorLabel . }
    }
    UNION
    {
        %[2]s relation:proposed_by ?creator .
        OPTIONAL { ?creator rdfs:label ?creatorLabel . }
    }
}
`, t.prologue, e)
}

// HowRelated selects every predicate linking two entities either way.
func (t *Templates) HowRelated(a, b string) string {
	ea, eb := t.entity(a), t.entity(b)
	return fmt.Sprintf(`%s
SELECT ?relation WHERE {
    { %[2]s ?relation %[3]s . }
    UNION
    { %[3]s ?relation %[2]s . }
}
`, t.prologue, ea, eb)
}

// ListByType lists entities of an ontology class sorted by label.
func (t *Templates) ListByType(class string, limit int) string {
	return fmt.Sprintf(`%s
SELECT ?entity ?label WHERE {
    ?entity rdf:type %s .
    ?entity rdfs:label ?label .
}
ORDER BY ?label
LIMIT %d
`, t.prologue, t.class(class), limit)
}

// FindSimilar selects entities sharing a type with the target.
func (t *Templates) FindSimilar(entity string, limit int) string {
	e := t.entity(entity)
	return fmt.Sprintf(`%s
SELECT ?similar ?similarLabel ?commonType WHERE {
    %[2]s rdf:type ?commonType .
    ?similar rdf:type ?commonType .
    ?similar rdfs:label ?similarLabel .

    FILTER(?similar != %[2]s)
}
ORDER BY ?similarLabel
LIMIT %[3]d
`, t.prologue, e, limit)
}

// EntityRelations selects the domain relations of an entity in both
// directions.
func (t *Templates) EntityRelations(entity string) string {
	e := t.entity(entity)
	return fmt.Sprintf(`%s
SELECT ?relation ?target ?targetLabel WHERE {
    { %[2]s ?relation ?target . }
    UNION
    { ?target ?relation %[2]s . }

    OPTIONAL { ?target rdfs:label ?targetLabel . }

    # only predicates of the relation namespace
    FILTER(STRSTARTS(STR(?relation), STR(relation:)))
}
ORDER BY ?relation
`, t.prologue, e)
}

// EntityInfo selects every property of an entity.
func (t *Templates) EntityInfo(entity string) string {
	return fmt.Sprintf(`%s
SELECT ?property ?value WHERE {
    %s ?property ?value .
}
`, t.prologue, t.entity(entity))
}

// Related selects neighbours of an entity, optionally through one relation.
// A relation outside the vocabulary renders no filter; callers resolve it
// with types.LookupPredicate first.
func (t *Templates) Related(entity, relation string) string {
	e := t.entity(entity)
	filter := ""
	if canonical, ok := types.LookupPredicate(relation); ok {
		filter = fmt.Sprintf("FILTER(?relation = <%s>)", t.ns.RelationTerm(canonical).Value)
	}
	return fmt.Sprintf(`%s
SELECT ?related ?relation ?label WHERE {
    { %[2]s ?relation ?related . }
    UNION
    { ?related ?relation %[2]s . }

    OPTIONAL { ?related rdfs:label ?label . }
    %[3]s
}
`, t.prologue, e, filter)
}

// EntityCount counts distinct subjects under the entity namespace.
func (t *Templates) EntityCount() string {
	return fmt.Sprintf(`%s
SELECT (COUNT(DISTINCT ?entity) as ?count) WHERE {
    ?entity ?p ?o .
    FILTER(STRSTARTS(STR(?entity), STR(entity:)))
}
`, t.prologue)
}

// RelationCount counts reified relation nodes.
func (t *Templates) RelationCount() string {
	return fmt.Sprintf(`%s
SELECT (COUNT(DISTINCT ?rel) AS ?count) WHERE {
    ?rel rdf:type ml:%s .
}
`, t.prologue, kg.ClassRelation)
}

// ForIntent renders the template of intent.
func (t *Templates) ForIntent(intent QueryIntent, listLimit, similarLimit int) (string, error) {
	if len(intent.Entities) == 0 {
		return "", fmt.Errorf("query: intent %s has no entities", intent.QueryType)
	}
	first := intent.Entities[0]
	switch intent.QueryType {
	case WhatIs:
		return t.WhatIs(first), nil
	case WhatUses:
		return t.WhatUses(first), nil
	case WhatIsTypeOf:
		return t.TypeOf(first), nil
	case WhoCreated:
		return t.WhoCreated(first), nil
	case HowRelated:
		if len(intent.Entities) < 2 {
			return "", ErrNotEnoughEntities
		}
		return t.HowRelated(first, intent.Entities[1]), nil
	case ListByType:
		return t.ListByType(first, listLimit), nil
	case FindSimilar:
		return t.FindSimilar(first, similarLimit), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownQueryType, intent.QueryType)
}
