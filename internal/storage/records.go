package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/scrypster/mlkg/pkg/types"
)

// ResolveRunID returns runID, or the ID of the latest run of stage when
// runID is empty.
func ResolveRunID(ctx context.Context, s RunStore, runID string, stage Stage) (string, error) {
	if runID != "" {
		return runID, nil
	}
	run, err := s.LatestRun(ctx, stage)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", fmt.Errorf("%w: no %s run", ErrNotFound, stage)
		}
		return "", err
	}
	return run.ID, nil
}

// ValidateEntities checks an entity set before it is written.
func ValidateEntities(entities types.EntitySet) error {
	for name, e := range entities {
		if e == nil {
			return fmt.Errorf("%w: entity %q is nil", ErrInvalidInput, name)
		}
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("%w: entity name is required", ErrInvalidInput)
		}
	}
	return nil
}

// ValidateRelations checks relations before they are written.
func ValidateRelations(relations []types.Relation) error {
	for i, r := range relations {
		if r.Subject == "" || r.Predicate == "" || r.Object == "" {
			return fmt.Errorf("%w: relation %d has an empty subject, predicate or object", ErrInvalidInput, i)
		}
	}
	return nil
}

// EncodeStrings serializes a string list column. A nil list encodes as [].
func EncodeStrings(list []string) (string, error) {
	if list == nil {
		list = []string{}
	}
	b, err := json.Marshal(list)
	if err != nil {
		return "", fmt.Errorf("failed to marshal string list: %w", err)
	}
	return string(b), nil
}

// DecodeStrings parses a column written by EncodeStrings.
func DecodeStrings(raw string) ([]string, error) {
	if raw == "" {
		return []string{}, nil
	}
	var list []string
	if err := json.Unmarshal([]byte(raw), &list); err != nil {
		return nil, fmt.Errorf("failed to unmarshal string list: %w", err)
	}
	if list == nil {
		list = []string{}
	}
	return list, nil
}

// EntityColumns holds the encoded list columns of an entity row.
type EntityColumns struct {
	Aliases, SourceChunks, OriginalLabels string
}

// EncodeEntity encodes the list columns of e.
func EncodeEntity(e *types.NormalizedEntity) (EntityColumns, error) {
	var c EntityColumns
	var err error
	if c.Aliases, err = EncodeStrings(e.Aliases); err != nil {
		return c, err
	}
	if c.SourceChunks, err = EncodeStrings(e.SourceChunks); err != nil {
		return c, err
	}
	if c.OriginalLabels, err = EncodeStrings(e.OriginalLabels); err != nil {
		return c, err
	}
	return c, nil
}

// DecodeInto fills the list fields of e from c.
func (c EntityColumns) DecodeInto(e *types.NormalizedEntity) error {
	var err error
	if e.Aliases, err = DecodeStrings(c.Aliases); err != nil {
		return err
	}
	if e.SourceChunks, err = DecodeStrings(c.SourceChunks); err != nil {
		return err
	}
	if e.OriginalLabels, err = DecodeStrings(c.OriginalLabels); err != nil {
		return err
	}
	return nil
}
