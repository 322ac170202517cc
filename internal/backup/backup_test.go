package backup_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/scrypster/mlkg/internal/backup"
	"github.com/scrypster/mlkg/internal/storage"
	"github.com/scrypster/mlkg/internal/storage/sqlite"
	"github.com/scrypster/mlkg/pkg/types"
)

func createTestBackup(t *testing.T, dir string, age time.Duration, now time.Time) string {
	t.Helper()
	ts := now.Add(-age)
	path := filepath.Join(dir, backup.FilePrefix+ts.Format("20060102-150405.000000")+".db")
	if err := os.WriteFile(path, []byte("backup"), 0o644); err != nil {
		t.Fatalf("failed to create backup file: %v", err)
	}
	if err := os.Chtimes(path, ts, ts); err != nil {
		t.Fatalf("failed to set modtime: %v", err)
	}
	return path
}

func TestList_IgnoresForeignFiles(t *testing.T) {
	dir := t.TempDir()
	now := time.Now()
	createTestBackup(t, dir, 2*time.Hour, now)
	newest := createTestBackup(t, dir, time.Hour, now)
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "other.db"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	backups, err := backup.List(dir)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(backups) != 2 {
		t.Fatalf("expected 2 backups, got %d", len(backups))
	}
	if backups[0].Path != newest {
		t.Errorf("expected newest first, got %s", backups[0].Path)
	}

	usage, err := backup.DiskUsage(dir)
	if err != nil {
		t.Fatalf("DiskUsage failed: %v", err)
	}
	if usage != int64(2*len("backup")) {
		t.Errorf("expected %d bytes, got %d", 2*len("backup"), usage)
	}
}

func TestList_MissingDirectory(t *testing.T) {
	backups, err := backup.List(filepath.Join(t.TempDir(), "absent"))
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(backups) != 0 {
		t.Errorf("expected no backups, got %d", len(backups))
	}
}

func TestApplyRetention_Tiers(t *testing.T) {
	dir := t.TempDir()
	now := time.Now()

	// three hourly, two daily, one weekly, one monthly, one ancient
	for _, age := range []time.Duration{
		1 * time.Hour, 2 * time.Hour, 3 * time.Hour,
		2 * 24 * time.Hour, 3 * 24 * time.Hour,
		10 * 24 * time.Hour,
		60 * 24 * time.Hour,
		400 * 24 * time.Hour,
	} {
		createTestBackup(t, dir, age, now)
	}

	policy := backup.RetentionPolicy{Hourly: 2, Daily: 1, Weekly: 1, Monthly: 1}
	removed, err := backup.ApplyRetention(dir, policy, now)
	if err != nil {
		t.Fatalf("ApplyRetention failed: %v", err)
	}
	if removed != 3 {
		t.Errorf("expected 3 removed, got %d", removed)
	}

	backups, err := backup.List(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(backups) != 5 {
		t.Fatalf("expected 5 remaining, got %d", len(backups))
	}
	for _, b := range backups {
		if now.Sub(b.Timestamp) > 365*24*time.Hour {
			t.Errorf("backup older than a year survived: %s", b.Path)
		}
	}
}

func TestApplyRetention_DefaultKeepsRecent(t *testing.T) {
	dir := t.TempDir()
	now := time.Now()
	for i := 1; i <= 5; i++ {
		createTestBackup(t, dir, time.Duration(i)*time.Hour, now)
	}
	removed, err := backup.ApplyRetention(dir, backup.DefaultRetention(), now)
	if err != nil {
		t.Fatal(err)
	}
	if removed != 0 {
		t.Errorf("expected nothing removed, got %d", removed)
	}
}

func TestCreateVerifyRestore(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "mlkg.db")

	store, err := sqlite.NewKnowledgeStore(dbPath)
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	run := storage.NewRun(storage.StageNormalize, "before backup")
	if err := store.SaveRun(ctx, run); err != nil {
		t.Fatal(err)
	}
	entities := types.EntitySet{"Dropout": {CanonicalName: "Dropout", EntityType: types.EntityTypeConcept, Frequency: 1}}
	if err := store.SaveEntities(ctx, run.ID, entities); err != nil {
		t.Fatal(err)
	}
	if err := store.Close(); err != nil {
		t.Fatal(err)
	}

	backupDir := filepath.Join(dir, "backups")
	res, err := backup.Create(ctx, dbPath, backupDir, true, backup.DefaultRetention())
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if !res.Verified {
		t.Error("expected verified backup")
	}
	if res.Size == 0 {
		t.Error("expected non-empty backup")
	}
	if err := backup.Verify(res.Path); err != nil {
		t.Errorf("Verify failed: %v", err)
	}

	// diverge from the backup, then roll back
	store, err = sqlite.NewKnowledgeStore(dbPath)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := store.PruneRuns(ctx, storage.StageNormalize, 0); err != nil {
		t.Fatal(err)
	}
	if err := store.Close(); err != nil {
		t.Fatal(err)
	}

	if err := backup.Restore(res.Path, dbPath); err != nil {
		t.Fatalf("Restore failed: %v", err)
	}

	store, err = sqlite.NewKnowledgeStore(dbPath)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = store.Close() }()
	restored, err := store.LoadEntities(ctx, "")
	if err != nil {
		t.Fatalf("LoadEntities after restore: %v", err)
	}
	if _, ok := restored["Dropout"]; !ok {
		t.Errorf("restored database lost entity Dropout: %v", restored.Names())
	}
}

func TestCreate_MissingDatabase(t *testing.T) {
	dir := t.TempDir()
	if _, err := backup.Create(context.Background(), filepath.Join(dir, "absent.db"), dir, false, backup.DefaultRetention()); err == nil {
		t.Error("expected error for missing database")
	}
}

func TestVerify_RejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "garbage.db")
	if err := os.WriteFile(path, []byte("not a database at all, just some bytes"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := backup.Verify(path); err == nil {
		t.Error("expected verification failure")
	}
}
