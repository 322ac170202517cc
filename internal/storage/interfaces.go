// Package storage persists the output of the pipeline stages: normalized
// entity sets and extracted relations, grouped into runs.
//
// Each stage writes a new run; later stages read the latest run of the stage
// before them unless a run id is given.
package storage

import (
	"context"

	"github.com/scrypster/mlkg/pkg/types"
)

// RunStore records pipeline runs.
type RunStore interface {
	// SaveRun creates or updates a run. A run without an ID or creation time
	// gets one.
	SaveRun(ctx context.Context, run *Run) error

	// GetRun returns ErrNotFound if the run doesn't exist.
	GetRun(ctx context.Context, id string) (*Run, error)

	// LatestRun returns the most recent run of stage, or ErrNotFound.
	LatestRun(ctx context.Context, stage Stage) (*Run, error)

	// ListRuns returns every run, newest first.
	ListRuns(ctx context.Context) ([]Run, error)

	// PruneRuns deletes all but the keep newest runs of stage together with
	// their records, returning the number of runs removed.
	PruneRuns(ctx context.Context, stage Stage, keep int) (int, error)
}

// EntityStore persists normalized entity sets.
type EntityStore interface {
	// SaveEntities replaces the entities of a run.
	SaveEntities(ctx context.Context, runID string, entities types.EntitySet) error

	// LoadEntities returns the entities of a run. An empty runID selects the
	// latest normalize run.
	LoadEntities(ctx context.Context, runID string) (types.EntitySet, error)

	// GetEntity returns one entity by canonical name, or ErrNotFound.
	GetEntity(ctx context.Context, runID, name string) (*types.NormalizedEntity, error)
}

// RelationStore persists extracted relations in extraction order.
type RelationStore interface {
	// SaveRelations replaces the relations of a run.
	SaveRelations(ctx context.Context, runID string, relations []types.Relation) error

	// LoadRelations returns the relations of a run. An empty runID selects
	// the latest extract run.
	LoadRelations(ctx context.Context, runID string) ([]types.Relation, error)
}

// KnowledgeStore is implemented by every storage backend.
type KnowledgeStore interface {
	RunStore
	EntityStore
	RelationStore

	// Close releases the underlying database.
	Close() error
}
