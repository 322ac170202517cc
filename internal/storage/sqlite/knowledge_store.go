// Package sqlite implements storage.KnowledgeStore on SQLite through the
// CGO-free modernc.org/sqlite driver.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/scrypster/mlkg/internal/storage"
	"github.com/scrypster/mlkg/pkg/types"
)

// KnowledgeStore implements storage.KnowledgeStore using SQLite.
type KnowledgeStore struct {
	db *sql.DB
}

var _ storage.KnowledgeStore = (*KnowledgeStore)(nil)

// NewKnowledgeStore opens dsn and migrates it. If the first open fails on
// WAL files left by a crashed process, and nothing holds them, they are
// removed and the open is retried once.
func NewKnowledgeStore(dsn string) (*KnowledgeStore, error) {
	store, err := open(dsn)
	if err == nil {
		return store, nil
	}
	if !isRecoverableWALError(err) {
		return nil, err
	}
	dbPath := dbPathFromDSN(dsn)
	if dbPath == "" || !isWALStale(dbPath) {
		return nil, err
	}

	removeStaleWAL(dbPath)
	store, retryErr := open(dsn)
	if retryErr != nil {
		return nil, fmt.Errorf("sqlite: failed after WAL recovery: %w (original: %v)", retryErr, err)
	}
	log.Printf("sqlite: recovered from stale WAL files for %s", dbPath)
	return store, nil
}

func open(dsn string) (*KnowledgeStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to open database: %w", err)
	}

	// One connection serialises writers and keeps a :memory: database alive.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("sqlite: %s: %w", pragma, err)
		}
	}

	mgr, err := storage.NewMigrationManager(db, migrations, storage.QuestionPlaceholder)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: %w", err)
	}
	if n, err := mgr.Up(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: %w", err)
	} else if n > 0 {
		log.Printf("sqlite: applied %d migrations", n)
	}
	return &KnowledgeStore{db: db}, nil
}

// SaveRun creates or updates a run.
func (s *KnowledgeStore) SaveRun(ctx context.Context, run *storage.Run) error {
	if err := run.Prepare(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, seq, stage, note, items, created_at)
		VALUES (?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM runs), ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET note = excluded.note, items = excluded.items`,
		run.ID, string(run.Stage), run.Note, run.Items, run.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("sqlite: failed to save run %s: %w", run.ID, err)
	}
	return nil
}

const runColumns = `id, stage, note, items, created_at`

func scanRun(row interface{ Scan(...any) error }) (*storage.Run, error) {
	var (
		run   storage.Run
		stage string
	)
	if err := row.Scan(&run.ID, &stage, &run.Note, &run.Items, &run.CreatedAt); err != nil {
		return nil, err
	}
	run.Stage = storage.Stage(stage)
	return &run, nil
}

// GetRun returns one run by id.
func (s *KnowledgeStore) GetRun(ctx context.Context, id string) (*storage.Run, error) {
	run, err := scanRun(s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: run %s", storage.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to get run %s: %w", id, err)
	}
	return run, nil
}

// LatestRun returns the most recently created run of stage.
func (s *KnowledgeStore) LatestRun(ctx context.Context, stage storage.Stage) (*storage.Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+runColumns+` FROM runs WHERE stage = ? ORDER BY seq DESC LIMIT 1`, string(stage))
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: no %s run", storage.ErrNotFound, stage)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to get latest %s run: %w", stage, err)
	}
	return run, nil
}

// ListRuns returns every run, newest first.
func (s *KnowledgeStore) ListRuns(ctx context.Context) ([]storage.Run, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+runColumns+` FROM runs ORDER BY seq DESC`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []storage.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: failed to scan run: %w", err)
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// PruneRuns keeps the keep newest runs of stage.
func (s *KnowledgeStore) PruneRuns(ctx context.Context, stage storage.Stage, keep int) (int, error) {
	if keep < 0 {
		return 0, fmt.Errorf("%w: keep must not be negative", storage.ErrInvalidInput)
	}
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM runs WHERE stage = ? AND id NOT IN (
			SELECT id FROM runs WHERE stage = ? ORDER BY seq DESC LIMIT ?
		)`, string(stage), string(stage), keep)
	if err != nil {
		return 0, fmt.Errorf("sqlite: failed to prune %s runs: %w", stage, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sqlite: failed to get rows affected: %w", err)
	}
	if n > 0 {
		log.Printf("sqlite: pruned %d %s runs", n, stage)
	}
	return int(n), nil
}

// SaveEntities replaces the entities of runID in one transaction.
func (s *KnowledgeStore) SaveEntities(ctx context.Context, runID string, entities types.EntitySet) error {
	if err := storage.ValidateEntities(entities); err != nil {
		return err
	}
	start := time.Now()
	err := s.inTx(ctx, runID, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM entities WHERE run_id = ?`, runID); err != nil {
			return err
		}
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO entities (run_id, canonical_name, entity_type, aliases, frequency, confidence, source_chunks, original_labels)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, name := range entities.Names() {
			e := entities[name]
			cols, err := storage.EncodeEntity(e)
			if err != nil {
				return err
			}
			if _, err := stmt.ExecContext(ctx, runID, name, string(e.EntityType), cols.Aliases,
				e.Frequency, e.Confidence, cols.SourceChunks, cols.OriginalLabels); err != nil {
				return fmt.Errorf("entity %q: %w", name, err)
			}
		}
		_, err = tx.ExecContext(ctx, `UPDATE runs SET items = ? WHERE id = ?`, len(entities), runID)
		return err
	})
	if err != nil {
		return fmt.Errorf("sqlite: failed to save entities: %w", err)
	}
	log.Printf("sqlite: saved %d entities to run %s in %v", len(entities), runID, time.Since(start).Round(time.Millisecond))
	return nil
}

const entityColumns = `canonical_name, entity_type, aliases, frequency, confidence, source_chunks, original_labels`

func scanEntity(row interface{ Scan(...any) error }) (*types.NormalizedEntity, error) {
	var (
		e          types.NormalizedEntity
		entityType string
		cols       storage.EntityColumns
	)
	if err := row.Scan(&e.CanonicalName, &entityType, &cols.Aliases, &e.Frequency, &e.Confidence,
		&cols.SourceChunks, &cols.OriginalLabels); err != nil {
		return nil, err
	}
	e.EntityType = types.EntityType(entityType)
	if err := cols.DecodeInto(&e); err != nil {
		return nil, err
	}
	return &e, nil
}

// LoadEntities returns the entities of runID, or of the latest normalize
// run when runID is empty.
func (s *KnowledgeStore) LoadEntities(ctx context.Context, runID string) (types.EntitySet, error) {
	runID, err := storage.ResolveRunID(ctx, s, runID, storage.StageNormalize)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+entityColumns+` FROM entities WHERE run_id = ?`, runID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to load entities: %w", err)
	}
	defer rows.Close()

	set := types.EntitySet{}
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: failed to scan entity: %w", err)
		}
		set[e.CanonicalName] = e
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: failed to load entities: %w", err)
	}
	return set, nil
}

// GetEntity returns one entity of runID by canonical name.
func (s *KnowledgeStore) GetEntity(ctx context.Context, runID, name string) (*types.NormalizedEntity, error) {
	runID, err := storage.ResolveRunID(ctx, s, runID, storage.StageNormalize)
	if err != nil {
		return nil, err
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT `+entityColumns+` FROM entities WHERE run_id = ? AND canonical_name = ?`, runID, name)
	e, err := scanEntity(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: entity %q", storage.ErrNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to get entity %q: %w", name, err)
	}
	return e, nil
}

// SaveRelations replaces the relations of runID in one transaction.
func (s *KnowledgeStore) SaveRelations(ctx context.Context, runID string, relations []types.Relation) error {
	if err := storage.ValidateRelations(relations); err != nil {
		return err
	}
	err := s.inTx(ctx, runID, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM relations WHERE run_id = ?`, runID); err != nil {
			return err
		}
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO relations (run_id, seq, subject, predicate, object, chunk_id, confidence, context)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for i, r := range relations {
			if _, err := stmt.ExecContext(ctx, runID, i, r.Subject, r.Predicate, r.Object, r.ChunkID, r.Confidence, r.Context); err != nil {
				return fmt.Errorf("relation %d: %w", i, err)
			}
		}
		_, err = tx.ExecContext(ctx, `UPDATE runs SET items = ? WHERE id = ?`, len(relations), runID)
		return err
	})
	if err != nil {
		return fmt.Errorf("sqlite: failed to save relations: %w", err)
	}
	log.Printf("sqlite: saved %d relations to run %s", len(relations), runID)
	return nil
}

// LoadRelations returns the relations of runID in extraction order, or of
// the latest extract run when runID is empty.
func (s *KnowledgeStore) LoadRelations(ctx context.Context, runID string) ([]types.Relation, error) {
	runID, err := storage.ResolveRunID(ctx, s, runID, storage.StageExtract)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT subject, predicate, object, chunk_id, confidence, context
		FROM relations WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to load relations: %w", err)
	}
	defer rows.Close()

	relations := []types.Relation{}
	for rows.Next() {
		var r types.Relation
		if err := rows.Scan(&r.Subject, &r.Predicate, &r.Object, &r.ChunkID, &r.Confidence, &r.Context); err != nil {
			return nil, fmt.Errorf("sqlite: failed to scan relation: %w", err)
		}
		relations = append(relations, r)
	}
	return relations, rows.Err()
}

// inTx runs fn in a transaction after checking that runID exists.
func (s *KnowledgeStore) inTx(ctx context.Context, runID string, fn func(tx *sql.Tx) error) error {
	if runID == "" {
		return fmt.Errorf("%w: run id is required", storage.ErrInvalidInput)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	var exists int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM runs WHERE id = ?`, runID).Scan(&exists); err != nil {
		_ = tx.Rollback()
		return err
	}
	if exists == 0 {
		_ = tx.Rollback()
		return fmt.Errorf("%w: run %s", storage.ErrNotFound, runID)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// Close checkpoints the WAL into the main file and closes the database.
func (s *KnowledgeStore) Close() error {
	if s.db == nil {
		return nil
	}
	if _, err := s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		log.Printf("sqlite: WAL checkpoint on close failed (non-fatal): %v", err)
	}
	return s.db.Close()
}
