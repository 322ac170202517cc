package storage

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotFound indicates that the requested run or record was not found.
	ErrNotFound = errors.New("resource not found")

	// ErrInvalidInput indicates that the input parameters are invalid.
	ErrInvalidInput = errors.New("invalid input")
)

// Stage names the pipeline step that produced a run.
type Stage string

const (
	StageNormalize Stage = "normalize"
	StageExtract   Stage = "extract"
	StageImport    Stage = "import"
)

// ParseStage validates a stage name.
func ParseStage(s string) (Stage, error) {
	switch st := Stage(strings.ToLower(strings.TrimSpace(s))); st {
	case StageNormalize, StageExtract, StageImport:
		return st, nil
	}
	return "", fmt.Errorf("%w: unknown stage %q", ErrInvalidInput, s)
}

// Run is one execution of a pipeline stage.
type Run struct {
	ID        string    `json:"id"`
	Stage     Stage     `json:"stage"`
	Note      string    `json:"note,omitempty"`
	Items     int       `json:"items"`
	CreatedAt time.Time `json:"created_at"`
}

// NewRun returns a run of stage with a fresh ID.
func NewRun(stage Stage, note string) *Run {
	return &Run{ID: uuid.NewString(), Stage: stage, Note: note, CreatedAt: time.Now().UTC()}
}

// Prepare validates run and fills its ID and creation time when missing.
func (r *Run) Prepare() error {
	if r == nil {
		return ErrInvalidInput
	}
	if r.Stage == "" {
		return fmt.Errorf("%w: run stage is required", ErrInvalidInput)
	}
	if r.ID == "" {
		r.ID = uuid.NewString()
	} else if _, err := uuid.Parse(r.ID); err != nil {
		return fmt.Errorf("%w: run id %q is not a UUID", ErrInvalidInput, r.ID)
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	return nil
}
