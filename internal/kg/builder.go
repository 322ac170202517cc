package kg

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/scrypster/mlkg/pkg/types"
)

// BuildStats are the builder's counters.
type BuildStats struct {
	EntitiesAdded   int            `json:"entities_added"`
	RelationsAdded  int            `json:"relations_added"`
	FailedEntities  int            `json:"failed_entities"`
	FailedRelations int            `json:"failed_relations"`
	TriplesTotal    int            `json:"triples_total"`
	EntityTypes     map[string]int `json:"entity_types"`
	RelationTypes   map[string]int `json:"relation_types"`
}

// Builder assembles normalized entities and relations into a graph.
type Builder struct {
	graph *Graph
	ns    Namespaces
	stats BuildStats
	now   func() time.Time
}

// NewBuilder returns a builder over an empty graph with every prefix bound.
func NewBuilder(ns Namespaces) *Builder {
	ns = ns.WithDefaults()
	g := NewGraph()
	for prefix, iri := range ns.Prefixes() {
		g.Bind(prefix, iri)
	}
	return &Builder{
		graph: g,
		ns:    ns,
		stats: BuildStats{EntityTypes: make(map[string]int), RelationTypes: make(map[string]int)},
		now:   time.Now,
	}
}

// Graph returns the graph under construction.
func (b *Builder) Graph() *Graph {
	return b.graph
}

// Stats returns the counters with the current triple count.
func (b *Builder) Stats() BuildStats {
	s := b.stats
	s.TriplesTotal = b.graph.Len()
	s.EntityTypes = copyCounts(b.stats.EntityTypes)
	s.RelationTypes = copyCounts(b.stats.RelationTypes)
	return s
}

// AddOntologySchema declares ml:Entity, the eight top-level classes and the
// core relation properties. Calling it again adds nothing.
func (b *Builder) AddOntologySchema() {
	log.Printf("kg: adding ontology schema")
	root := b.ns.OntologyTerm(ClassEntity)
	b.add(root, RDFType, OWLClass)
	b.add(root, RDFSLabel, NewLiteral("Machine Learning Entity"))

	for _, c := range OntologyClasses {
		class := b.ns.OntologyTerm(ClassLocalName(c.Name))
		b.add(class, RDFType, OWLClass)
		b.add(class, RDFSLabel, NewLiteral(c.Name))
		b.add(class, RDFSComment, NewLiteral(c.Description))
		b.add(class, RDFSSubClassOf, root)
	}
	for _, p := range OntologyProperties {
		prop := b.ns.RelationTerm(p.Name)
		b.add(prop, RDFType, OWLObjectProperty)
		b.add(prop, RDFSLabel, NewLiteral(PropertyLabel(p.Name)))
		b.add(prop, RDFSComment, NewLiteral(p.Description))
	}
}

// classFor returns the class node of an entity type, declaring it the first
// time a type outside the schema shows up.
func (b *Builder) classFor(entityType string) Term {
	class := b.ns.OntologyTerm(ClassLocalName(entityType))
	if !b.graph.Has(Triple{class, RDFType, OWLClass}) {
		b.add(class, RDFType, OWLClass)
		b.add(class, RDFSLabel, NewLiteral(entityType))
		b.add(class, RDFSSubClassOf, b.ns.OntologyTerm(ClassEntity))
	}
	return class
}

// propertyFor returns the property node of a predicate, declaring it once.
func (b *Builder) propertyFor(predicate string) Term {
	prop := b.ns.RelationTerm(predicate)
	if !b.graph.Has(Triple{prop, RDFType, OWLObjectProperty}) {
		b.add(prop, RDFType, OWLObjectProperty)
		b.add(prop, RDFSLabel, NewLiteral(PropertyLabel(strings.ToLower(predicate))))
	}
	return prop
}

// AddEntities adds every entity in name order. An entity that cannot be
// described is logged and skipped before any of its triples are written.
func (b *Builder) AddEntities(entities types.EntitySet) {
	log.Printf("kg: adding %d entities", len(entities))
	for _, name := range entities.Names() {
		if err := b.addEntity(name, entities[name]); err != nil {
			b.stats.FailedEntities++
			log.Printf("kg: skipping entity %q: %v", name, err)
		}
	}
	log.Printf("kg: %d entities added (%d failed)", b.stats.EntitiesAdded, b.stats.FailedEntities)
}

func (b *Builder) addEntity(name string, e *types.NormalizedEntity) error {
	if e == nil {
		return errors.New("nil entity")
	}
	if NormalizeName(name) == "" {
		return errors.New("name has no URI-safe characters")
	}
	entityType := string(e.EntityType)
	if entityType == "" {
		entityType = string(types.EntityTypeOther)
	}

	subject := b.ns.EntityTerm(name)
	b.add(subject, RDFType, b.classFor(entityType))
	b.add(subject, RDFSLabel, NewLiteral(name))
	b.add(subject, b.ns.OntologyTerm(PropCanonicalName), NewLiteral(name))
	for _, alias := range e.Aliases {
		if alias != "" && alias != name {
			b.add(subject, b.ns.OntologyTerm(PropAlias), NewLiteral(alias))
		}
	}
	b.add(subject, b.ns.OntologyTerm(PropFrequency), IntLiteral(e.Frequency))
	b.add(subject, b.ns.OntologyTerm(PropConfidence), FloatLiteral(e.Confidence))
	for i, chunk := range e.SourceChunks {
		if i == types.MaxStoredSourceChunks {
			break
		}
		b.add(subject, b.ns.OntologyTerm(PropSourceChunk), NewLiteral(chunk))
	}

	b.stats.EntitiesAdded++
	b.stats.EntityTypes[entityType]++
	return nil
}

// AddRelations adds one direct edge and one relation-instance node per
// relation. Instance nodes are numbered rel_0, rel_1, ... within this build.
func (b *Builder) AddRelations(relations []types.Relation) {
	log.Printf("kg: adding %d relations", len(relations))
	for _, r := range relations {
		if err := b.addRelation(r); err != nil {
			b.stats.FailedRelations++
			log.Printf("kg: skipping relation %s %s %s: %v", r.Subject, r.Predicate, r.Object, err)
		}
	}
	log.Printf("kg: %d relations added (%d failed)", b.stats.RelationsAdded, b.stats.FailedRelations)
}

func (b *Builder) addRelation(r types.Relation) error {
	if NormalizeName(r.Subject) == "" || NormalizeName(r.Object) == "" {
		return errors.New("subject or object has no URI-safe characters")
	}
	if strings.TrimSpace(r.Predicate) == "" {
		return errors.New("empty predicate")
	}

	subject := b.ns.EntityTerm(r.Subject)
	object := b.ns.EntityTerm(r.Object)
	predicate := b.propertyFor(r.Predicate)
	b.add(subject, predicate, object)

	node := NewIRI(fmt.Sprintf("%srel_%d", b.ns.Entity, b.stats.RelationsAdded))
	b.add(node, RDFType, b.ns.OntologyTerm(ClassRelation))
	b.add(node, b.ns.OntologyTerm(PropSubject), subject)
	b.add(node, b.ns.OntologyTerm(PropPredicate), predicate)
	b.add(node, b.ns.OntologyTerm(PropObject), object)
	b.add(node, b.ns.OntologyTerm(PropContext), NewLiteral(r.Context))
	b.add(node, b.ns.OntologyTerm(PropSourceChunk), NewLiteral(r.ChunkID))
	b.add(node, b.ns.OntologyTerm(PropConfidence), FloatLiteral(r.Confidence))

	b.stats.RelationsAdded++
	b.stats.RelationTypes[r.Predicate]++
	return nil
}

// AddMetadata describes the graph itself on ml:MLKnowledgeGraph.
func (b *Builder) AddMetadata() {
	node := b.ns.OntologyTerm(GraphNode)
	b.add(node, RDFType, b.ns.OntologyTerm(ClassKnowledgeGraph))
	b.add(node, RDFSLabel, NewLiteral("Machine Learning Knowledge Graph"))
	b.add(node, DCTermsTitle, NewLiteral("ML/DL Knowledge Graph from Academic Literature"))
	b.add(node, DCTermsDesc, NewLiteral("Knowledge graph extracted from machine learning and deep learning academic texts"))
	b.add(node, DCTermsCreated, NewTypedLiteral(b.now().UTC().Format(time.RFC3339), XSDDateTime))
	b.add(node, b.ns.OntologyTerm(PropTotalEntities), IntLiteral(b.stats.EntitiesAdded))
	b.add(node, b.ns.OntologyTerm(PropTotalRelations), IntLiteral(b.stats.RelationsAdded))
	b.add(node, b.ns.OntologyTerm(PropTotalTriples), IntLiteral(b.graph.Len()))
	log.Printf("kg: metadata added (%d triples)", b.graph.Len())
}

// Save writes the graph to path, creating parent directories.
func (b *Builder) Save(path string, format Format) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("kg: create output dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("kg: create %s: %w", path, err)
	}
	if err := Encode(f, b.graph, format); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("kg: close %s: %w", path, err)
	}
	if info, err := os.Stat(path); err == nil {
		log.Printf("kg: saved %d triples to %s (%.1f MB)", b.graph.Len(), path, float64(info.Size())/1024/1024)
	}
	return nil
}

// Report renders a human-readable build summary.
func (b *Builder) Report() string {
	s := b.Stats()
	var sb strings.Builder
	sb.WriteString("KNOWLEDGE GRAPH REPORT\n")
	sb.WriteString(strings.Repeat("=", 50) + "\n\n")
	fmt.Fprintf(&sb, "Triples:          %d\n", s.TriplesTotal)
	fmt.Fprintf(&sb, "Entities added:   %d\n", s.EntitiesAdded)
	fmt.Fprintf(&sb, "Relations added:  %d\n", s.RelationsAdded)
	if s.FailedEntities+s.FailedRelations > 0 {
		fmt.Fprintf(&sb, "Skipped:          %d entities, %d relations\n", s.FailedEntities, s.FailedRelations)
	}

	sb.WriteString("\nEntity types:\n")
	for _, kv := range sortedCounts(s.EntityTypes, 0) {
		fmt.Fprintf(&sb, "  - %s: %d\n", kv.key, kv.count)
	}
	sb.WriteString("\nRelation types:\n")
	for _, kv := range sortedCounts(s.RelationTypes, 10) {
		fmt.Fprintf(&sb, "  - %s: %d\n", kv.key, kv.count)
	}

	sb.WriteString("\nNamespaces:\n")
	prefixes := b.graph.Prefixes()
	names := make([]string, 0, len(prefixes))
	for p := range prefixes {
		names = append(names, p)
	}
	sort.Strings(names)
	for _, p := range names {
		fmt.Fprintf(&sb, "  - %s: %s\n", p, prefixes[p])
	}
	return sb.String()
}

func (b *Builder) add(s, p, o Term) {
	b.graph.Add(Triple{Subject: s, Predicate: p, Object: o})
}

type keyCount struct {
	key   string
	count int
}

func sortedCounts(m map[string]int, limit int) []keyCount {
	out := make([]keyCount, 0, len(m))
	for k, v := range m {
		out = append(out, keyCount{k, v})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].count != out[j].count {
			return out[i].count > out[j].count
		}
		return out[i].key < out[j].key
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func copyCounts(m map[string]int) map[string]int {
	out := make(map[string]int, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
