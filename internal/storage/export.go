package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/scrypster/mlkg/pkg/types"
)

// SnapshotVersion is the format version written by Export.
const SnapshotVersion = 1

// Snapshot is the JSON export of a store: every run with its records.
type Snapshot struct {
	Version    int           `json:"version"`
	ExportedAt time.Time     `json:"exported_at"`
	Runs       []RunSnapshot `json:"runs"`
}

// RunSnapshot is one run with the records it owns.
type RunSnapshot struct {
	Run       Run               `json:"run"`
	Entities  types.EntitySet  `json:"entities,omitempty"`
	Relations []types.Relation `json:"relations,omitempty"`
}

// Export writes every run of s, oldest first, as an indented JSON snapshot.
func Export(ctx context.Context, s KnowledgeStore, w io.Writer) error {
	runs, err := s.ListRuns(ctx)
	if err != nil {
		return err
	}
	snap := Snapshot{Version: SnapshotVersion, ExportedAt: time.Now().UTC()}
	for i := len(runs) - 1; i >= 0; i-- {
		rs := RunSnapshot{Run: runs[i]}
		switch runs[i].Stage {
		case StageNormalize:
			if rs.Entities, err = s.LoadEntities(ctx, runs[i].ID); err != nil {
				return err
			}
		case StageExtract:
			if rs.Relations, err = s.LoadRelations(ctx, runs[i].ID); err != nil {
				return err
			}
		}
		snap.Runs = append(snap.Runs, rs)
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(snap); err != nil {
		return fmt.Errorf("storage: failed to encode snapshot: %w", err)
	}
	log.Printf("storage: exported %d runs", len(snap.Runs))
	return nil
}

// Import reads a snapshot written by Export into s, oldest run first, so the
// latest run of each stage stays the latest. Runs that already exist are
// overwritten. It returns the number of runs imported.
func Import(ctx context.Context, s KnowledgeStore, r io.Reader) (int, error) {
	var snap Snapshot
	if err := json.NewDecoder(r).Decode(&snap); err != nil {
		return 0, fmt.Errorf("%w: failed to decode snapshot: %v", ErrInvalidInput, err)
	}
	if snap.Version != SnapshotVersion {
		return 0, fmt.Errorf("%w: unsupported snapshot version %d", ErrInvalidInput, snap.Version)
	}

	for i, rs := range snap.Runs {
		run := rs.Run
		if err := s.SaveRun(ctx, &run); err != nil {
			return i, err
		}
		if rs.Entities != nil {
			if err := s.SaveEntities(ctx, run.ID, rs.Entities); err != nil {
				return i, err
			}
		}
		if rs.Relations != nil {
			if err := s.SaveRelations(ctx, run.ID, rs.Relations); err != nil {
				return i, err
			}
		}
	}
	log.Printf("storage: imported %d runs", len(snap.Runs))
	return len(snap.Runs), nil
}
