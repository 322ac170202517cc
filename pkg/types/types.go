// Package types defines the core data structures of the ML knowledge graph:
// raw entity candidates, normalized entities, relations and text chunks,
// together with the closed vocabularies they are validated against.
package types

import "strings"

// EntityType is the classification assigned to a normalized entity.
type EntityType string

// Entity types emitted by the normalizer.
const (
	EntityTypeAlgorithm    EntityType = "ALGORITHM"
	EntityTypeConcept      EntityType = "CONCEPT"
	EntityTypePerson       EntityType = "PERSON"
	EntityTypeOrganization EntityType = "ORGANIZATION"
	EntityTypeSoftware     EntityType = "SOFTWARE"
	EntityTypeMetric       EntityType = "METRIC"
	EntityTypeOther        EntityType = "OTHER"
)

// Entity types that exist only as ontology classes. The normalizer never
// assigns them but the graph schema declares them.
const (
	EntityTypeDataset     EntityType = "DATASET"
	EntityTypePublication EntityType = "PUBLICATION"
)

// NormalizerEntityTypes lists the seven types the normalizer may assign, in
// prompt order.
var NormalizerEntityTypes = []EntityType{
	EntityTypeAlgorithm,
	EntityTypeConcept,
	EntityTypePerson,
	EntityTypeOrganization,
	EntityTypeSoftware,
	EntityTypeMetric,
	EntityTypeOther,
}

// ParseEntityType maps a free-form type string onto an EntityType.
// Unknown or empty values become EntityTypeOther.
func ParseEntityType(s string) EntityType {
	switch t := EntityType(strings.ToUpper(strings.TrimSpace(s))); t {
	case EntityTypeAlgorithm, EntityTypeConcept, EntityTypePerson, EntityTypeOrganization,
		EntityTypeSoftware, EntityTypeMetric, EntityTypeOther, EntityTypeDataset, EntityTypePublication:
		return t
	default:
		return EntityTypeOther
	}
}

// String implements fmt.Stringer.
func (t EntityType) String() string {
	return string(t)
}
