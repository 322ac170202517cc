// Package kg holds the RDF side of the knowledge graph: namespaces, terms,
// an in-memory triple store, the ontology, the graph builder and the codecs
// for every supported serialization.
package kg

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/scrypster/mlkg/pkg/types"
)

// Well-known vocabularies.
const (
	RDFNS     = "http://www.w3.org/1999/02/22-rdf-syntax-ns#"
	RDFSNS    = "http://www.w3.org/2000/01/rdf-schema#"
	OWLNS     = "http://www.w3.org/2002/07/owl#"
	XSDNS     = "http://www.w3.org/2001/XMLSchema#"
	DCTermsNS = "http://purl.org/dc/terms/"
	FOAFNS    = "http://xmlns.com/foaf/0.1/"
)

// Default namespaces of the ML knowledge graph.
const (
	DefaultOntologyNS = "http://ml-kg.org/ontology/"
	DefaultEntityNS   = "http://ml-kg.org/entity/"
	DefaultRelationNS = "http://ml-kg.org/relation/"
)

// Namespaces is the namespace configuration shared by the builder, the
// executor, the query processor and the SPARQL templates.
type Namespaces struct {
	Ontology string
	Entity   string
	Relation string
}

// DefaultNamespaces returns the http://ml-kg.org namespaces.
func DefaultNamespaces() Namespaces {
	return Namespaces{
		Ontology: DefaultOntologyNS,
		Entity:   DefaultEntityNS,
		Relation: DefaultRelationNS,
	}
}

// WithDefaults fills empty fields from DefaultNamespaces.
func (ns Namespaces) WithDefaults() Namespaces {
	d := DefaultNamespaces()
	if ns.Ontology == "" {
		ns.Ontology = d.Ontology
	}
	if ns.Entity == "" {
		ns.Entity = d.Entity
	}
	if ns.Relation == "" {
		ns.Relation = d.Relation
	}
	return ns
}

// Validate checks that every namespace ends with '/' or '#'.
func (ns Namespaces) Validate() error {
	for name, iri := range map[string]string{"ontology": ns.Ontology, "entity": ns.Entity, "relation": ns.Relation} {
		if !strings.HasSuffix(iri, "/") && !strings.HasSuffix(iri, "#") {
			return fmt.Errorf("kg: %s namespace %q must end with '/' or '#'", name, iri)
		}
	}
	return nil
}

// Prefixes returns every prefix bound on a built graph, prefix -> IRI.
func (ns Namespaces) Prefixes() map[string]string {
	return map[string]string{
		"ml":       ns.Ontology,
		"entity":   ns.Entity,
		"relation": ns.Relation,
		"rdf":      RDFNS,
		"rdfs":     RDFSNS,
		"owl":      OWLNS,
		"xsd":      XSDNS,
		"dcterms":  DCTermsNS,
		"foaf":     FOAFNS,
	}
}

// QueryPrefixes returns the prefixes declared by every SPARQL template.
func (ns Namespaces) QueryPrefixes() map[string]string {
	return map[string]string{
		"ml":       ns.Ontology,
		"entity":   ns.Entity,
		"relation": ns.Relation,
		"rdfs":     RDFSNS,
		"rdf":      RDFNS,
	}
}

// SPARQLPrologue renders QueryPrefixes as PREFIX declarations.
func (ns Namespaces) SPARQLPrologue() string {
	p := ns.QueryPrefixes()
	order := []string{"ml", "entity", "relation", "rdfs", "rdf"}
	var b strings.Builder
	for _, prefix := range order {
		fmt.Fprintf(&b, "PREFIX %s: <%s>\n", prefix, p[prefix])
	}
	return b.String()
}

// OntologyTerm returns ml:<local>.
func (ns Namespaces) OntologyTerm(local string) Term {
	return NewIRI(ns.Ontology + local)
}

// EntityTerm returns the entity IRI of a canonical name.
func (ns Namespaces) EntityTerm(name string) Term {
	return NewIRI(ns.Entity + NormalizeName(name))
}

// ClassTerm returns the ontology class for an entity type.
func (ns Namespaces) ClassTerm(t types.EntityType) Term {
	return NewIRI(ns.Ontology + ClassLocalName(string(t)))
}

// RelationTerm returns the property IRI for a predicate.
func (ns Namespaces) RelationTerm(predicate string) Term {
	return NewIRI(ns.Relation + strings.ToLower(predicate))
}

// LocalName strips the longest matching namespace from iri, or returns the
// text after the last '/' or '#'.
func (ns Namespaces) LocalName(iri string) string {
	candidates := []string{ns.Entity, ns.Relation, ns.Ontology, RDFNS, RDFSNS, OWLNS, XSDNS}
	sort.Slice(candidates, func(i, j int) bool { return len(candidates[i]) > len(candidates[j]) })
	for _, c := range candidates {
		if c != "" && strings.HasPrefix(iri, c) && len(iri) > len(c) {
			return iri[len(c):]
		}
	}
	return Fragment(iri)
}

// Fragment returns the text after the last '/' or '#' of iri.
func Fragment(iri string) string {
	if i := strings.LastIndexAny(iri, "/#"); i >= 0 && i < len(iri)-1 {
		return iri[i+1:]
	}
	return iri
}

var (
	nonNameChars = regexp.MustCompile(`[^\w\s-]`)
	whitespace   = regexp.MustCompile(`\s+`)
)

// NormalizeName derives the URI token of an entity name: characters outside
// [A-Za-z0-9_ -] are removed, whitespace runs become one underscore, the
// result is lowercased and leading/trailing underscores are trimmed.
// Distinct names may map to the same token ("k-Means" and "k Means" do not,
// but "k-Means" and "K-means" do).
func NormalizeName(name string) string {
	clean := nonNameChars.ReplaceAllString(name, "")
	clean = whitespace.ReplaceAllString(clean, "_")
	return strings.Trim(strings.ToLower(clean), "_")
}

// ClassLocalName maps an entity type onto its ontology class local name.
func ClassLocalName(entityType string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(entityType)), " ", "_")
}
