package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
)

// ErrNoMigration indicates no migration has been applied yet.
var ErrNoMigration = errors.New("no migration")

// Migration is one numbered schema change. Down may be empty for changes
// that cannot be rolled back.
type Migration struct {
	Version uint
	Name    string
	Up      string
	Down    string
}

// MigrationManager applies a backend's migrations in order, tracking the
// current version in a schema_migrations table.
type MigrationManager struct {
	db          *sql.DB
	migrations  []Migration
	placeholder func(n int) string
}

// QuestionPlaceholder renders "?" parameters (sqlite).
func QuestionPlaceholder(int) string { return "?" }

// DollarPlaceholder renders "$n" parameters (postgres).
func DollarPlaceholder(n int) string { return fmt.Sprintf("$%d", n) }

// NewMigrationManager creates a MigrationManager for db. placeholder renders
// the n-th bind parameter of the backend's SQL dialect.
func NewMigrationManager(db *sql.DB, migrations []Migration, placeholder func(int) string) (*MigrationManager, error) {
	if db == nil {
		return nil, fmt.Errorf("migrations: database connection is required")
	}
	if placeholder == nil {
		placeholder = QuestionPlaceholder
	}

	sorted := append([]Migration(nil), migrations...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Version < sorted[j].Version })
	for i := 1; i < len(sorted); i++ {
		if sorted[i].Version == sorted[i-1].Version {
			return nil, fmt.Errorf("migrations: duplicate version %d", sorted[i].Version)
		}
	}

	mgr := &MigrationManager{db: db, migrations: sorted, placeholder: placeholder}
	if err := mgr.ensureSchemaTable(); err != nil {
		return nil, fmt.Errorf("migrations: failed to create schema table: %w", err)
	}
	return mgr, nil
}

func (mgr *MigrationManager) ensureSchemaTable() error {
	_, err := mgr.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`)
	return err
}

// Up applies all pending migrations in ascending version order, each in its
// own transaction. It returns the number applied.
func (mgr *MigrationManager) Up(ctx context.Context) (int, error) {
	current, err := mgr.Version(ctx)
	if err != nil && !errors.Is(err, ErrNoMigration) {
		return 0, fmt.Errorf("migrations: failed to get current version: %w", err)
	}

	applied := 0
	for _, m := range mgr.migrations {
		if m.Version <= current {
			continue
		}
		err := mgr.inTx(ctx, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, m.Up); err != nil {
				return fmt.Errorf("migrations: failed to apply version %d (%s): %w", m.Version, m.Name, err)
			}
			insert := "INSERT INTO schema_migrations (version) VALUES (" + mgr.placeholder(1) + ")"
			if _, err := tx.ExecContext(ctx, insert, m.Version); err != nil {
				return fmt.Errorf("migrations: failed to record version %d: %w", m.Version, err)
			}
			return nil
		})
		if err != nil {
			return applied, err
		}
		applied++
	}
	return applied, nil
}

// Down rolls back all applied migrations in descending version order.
func (mgr *MigrationManager) Down(ctx context.Context) error {
	current, err := mgr.Version(ctx)
	if errors.Is(err, ErrNoMigration) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("migrations: failed to get current version: %w", err)
	}

	for i := len(mgr.migrations) - 1; i >= 0; i-- {
		m := mgr.migrations[i]
		if m.Version > current {
			continue
		}
		if m.Down == "" {
			return fmt.Errorf("migrations: version %d (%s) cannot be rolled back", m.Version, m.Name)
		}
		err := mgr.inTx(ctx, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, m.Down); err != nil {
				return fmt.Errorf("migrations: failed to roll back version %d (%s): %w", m.Version, m.Name, err)
			}
			del := "DELETE FROM schema_migrations WHERE version = " + mgr.placeholder(1)
			if _, err := tx.ExecContext(ctx, del, m.Version); err != nil {
				return fmt.Errorf("migrations: failed to remove version %d: %w", m.Version, err)
			}
			return nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// Version returns the highest applied migration version, or ErrNoMigration.
func (mgr *MigrationManager) Version(ctx context.Context) (uint, error) {
	var version uint
	err := mgr.db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("migrations: failed to query version: %w", err)
	}
	if version == 0 {
		return 0, ErrNoMigration
	}
	return version, nil
}

func (mgr *MigrationManager) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := mgr.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("migrations: failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}
