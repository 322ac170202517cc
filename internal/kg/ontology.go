package kg

import "strings"

// Ontology local names under the ml: namespace.
const (
	ClassEntity         = "Entity"
	ClassRelation       = "Relation"
	ClassKnowledgeGraph = "KnowledgeGraph"
	GraphNode           = "MLKnowledgeGraph"

	PropCanonicalName  = "canonicalName"
	PropAlias          = "alias"
	PropFrequency      = "frequency"
	PropConfidence     = "confidence"
	PropSourceChunk    = "sourceChunk"
	PropSubject        = "subject"
	PropPredicate      = "predicate"
	PropObject         = "object"
	PropContext        = "context"
	PropTotalEntities  = "totalEntities"
	PropTotalRelations = "totalRelations"
	PropTotalTriples   = "totalTriples"
)

// Common vocabulary terms.
var (
	RDFType           = NewIRI(RDFNS + "type")
	RDFSLabel         = NewIRI(RDFSNS + "label")
	RDFSComment       = NewIRI(RDFSNS + "comment")
	RDFSSubClassOf    = NewIRI(RDFSNS + "subClassOf")
	OWLClass          = NewIRI(OWLNS + "Class")
	OWLObjectProperty = NewIRI(OWLNS + "ObjectProperty")
	DCTermsTitle      = NewIRI(DCTermsNS + "title")
	DCTermsDesc       = NewIRI(DCTermsNS + "description")
	DCTermsCreated    = NewIRI(DCTermsNS + "created")
)

// OntologyClass is a top-level class of the schema.
type OntologyClass struct {
	Name        string
	Description string
}

// OntologyClasses are declared under ml:Entity by the schema.
var OntologyClasses = []OntologyClass{
	{"Algorithm", "Machine Learning Algorithm"},
	{"Concept", "Machine Learning Concept"},
	{"Person", "Person or Researcher"},
	{"Organization", "Organization or Institution"},
	{"Software", "Software or Tool"},
	{"Metric", "Evaluation Metric"},
	{"Dataset", "Dataset or Data Source"},
	{"Publication", "Academic Publication"},
}

// OntologyProperty is a relation property declared by the schema.
type OntologyProperty struct {
	Name        string
	Description string
}

// OntologyProperties are the relation properties declared up front. Other
// predicates are declared when the first relation using them is added.
var OntologyProperties = []OntologyProperty{
	{"is_a", "is a type of"},
	{"part_of", "is part of"},
	{"uses", "uses or utilizes"},
	{"implements", "implements"},
	{"optimizes", "optimizes"},
	{"measures", "measures or evaluates"},
	{"created_by", "was created by"},
	{"applies_to", "applies to"},
}

// PropertyLabel is the rdfs:label of a relation property.
func PropertyLabel(predicate string) string {
	return strings.ReplaceAll(predicate, "_", " ")
}
