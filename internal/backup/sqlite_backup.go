package backup

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// Create copies the database at dbPath into a timestamped file under dir,
// verifies it when verify is set and applies policy to dir afterwards.
// Retention failures are logged, not returned.
func Create(ctx context.Context, dbPath, dir string, verify bool, policy RetentionPolicy) (*Result, error) {
	start := time.Now()
	if _, err := os.Stat(dbPath); err != nil {
		return nil, fmt.Errorf("backup: database not found: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("backup: failed to create backup directory: %w", err)
	}

	// microseconds keep names unique across quick successive runs
	name := FilePrefix + start.UTC().Format("20060102-150405.000000") + ".db"
	path := filepath.Join(dir, name)
	if err := backupSQLite(ctx, dbPath, path); err != nil {
		return nil, err
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("backup: failed to stat backup: %w", err)
	}
	res := &Result{Path: path, Size: info.Size()}

	if verify {
		if err := Verify(path); err != nil {
			return res, fmt.Errorf("backup: verification failed: %w", err)
		}
		res.Verified = true
	}

	pruned, err := ApplyRetention(dir, policy, time.Now())
	if err != nil {
		log.Printf("backup: failed to apply retention policy: %v", err)
	}
	res.Pruned = pruned
	res.Duration = time.Since(start)
	log.Printf("backup: wrote %s (%d bytes) in %v", path, res.Size, res.Duration.Round(time.Millisecond))
	return res, nil
}

// backupSQLite uses VACUUM INTO, which yields a consistent copy even while
// the source is in WAL mode. The source is only read.
func backupSQLite(ctx context.Context, sourcePath, destPath string) error {
	sourceDB, err := sql.Open("sqlite", sourcePath)
	if err != nil {
		return fmt.Errorf("backup: failed to open source database: %w", err)
	}
	defer func() { _ = sourceDB.Close() }()

	if err := sourceDB.PingContext(ctx); err != nil {
		return fmt.Errorf("backup: failed to ping source database: %w", err)
	}

	quoted := strings.ReplaceAll(destPath, "'", "''")
	if _, err := sourceDB.ExecContext(ctx, fmt.Sprintf("VACUUM INTO '%s'", quoted)); err != nil {
		return fmt.Errorf("backup: failed to back up database: %w", err)
	}
	return nil
}

// Verify runs SQLite's integrity check against a backup file.
func Verify(path string) error {
	// sql.Open would create a missing file
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("backup not found: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("failed to open backup: %w", err)
	}
	defer func() { _ = db.Close() }()

	var result string
	if err := db.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("failed to run integrity check: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("integrity check failed: %s", result)
	}
	return nil
}

// Restore verifies backupPath and copies it over targetPath. The target
// database must not be open.
func Restore(backupPath, targetPath string) error {
	if err := Verify(backupPath); err != nil {
		return fmt.Errorf("backup: verification failed: %w", err)
	}

	src, err := os.Open(backupPath)
	if err != nil {
		return fmt.Errorf("backup: failed to open backup: %w", err)
	}
	defer func() { _ = src.Close() }()

	// stale WAL files would be replayed over the restored pages
	for _, suffix := range []string{"-wal", "-shm"} {
		if err := os.Remove(targetPath + suffix); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("backup: failed to remove %s: %w", targetPath+suffix, err)
		}
	}

	dst, err := os.Create(targetPath)
	if err != nil {
		return fmt.Errorf("backup: failed to create target file: %w", err)
	}
	defer func() { _ = dst.Close() }()

	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("backup: failed to copy backup: %w", err)
	}
	if err := dst.Sync(); err != nil {
		return fmt.Errorf("backup: failed to sync target file: %w", err)
	}

	if err := Verify(targetPath); err != nil {
		return fmt.Errorf("backup: restored database verification failed: %w", err)
	}
	log.Printf("backup: restored %s from %s", targetPath, backupPath)
	return nil
}
