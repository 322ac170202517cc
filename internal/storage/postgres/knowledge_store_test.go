package postgres_test

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/mlkg/internal/storage"
	"github.com/scrypster/mlkg/internal/storage/postgres"
	"github.com/scrypster/mlkg/pkg/types"
)

// newTestStore connects to MLKG_TEST_POSTGRES_DSN and empties the tables.
// Without the variable the tests are skipped.
func newTestStore(t *testing.T) *postgres.KnowledgeStore {
	t.Helper()
	dsn := os.Getenv("MLKG_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("MLKG_TEST_POSTGRES_DSN not set; skipping PostgreSQL integration tests")
	}
	store, err := postgres.NewKnowledgeStore(dsn)
	require.NoError(t, err, "NewKnowledgeStore should succeed")
	require.NoError(t, store.TruncateForTest(context.Background()))
	t.Cleanup(func() { store.Close() })
	return store
}

func TestEntitiesAndRelations(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	norm := storage.NewRun(storage.StageNormalize, "pg")
	require.NoError(t, store.SaveRun(ctx, norm))
	entities := types.EntitySet{
		"Gradient Descent": {CanonicalName: "Gradient Descent", EntityType: types.EntityTypeAlgorithm, Aliases: []string{"GD"}, Frequency: 7, Confidence: 0.9, SourceChunks: []string{"c1"}, OriginalLabels: []string{}},
	}
	require.NoError(t, store.SaveEntities(ctx, norm.ID, entities))

	got, err := store.LoadEntities(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, entities, got)

	_, err = store.GetEntity(ctx, norm.ID, "Adam")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	extract := storage.NewRun(storage.StageExtract, "")
	require.NoError(t, store.SaveRun(ctx, extract))
	relations := []types.Relation{
		{Subject: "Gradient Descent", Predicate: "optimizes", Object: "Loss Function", ChunkID: "c1", Confidence: 1, Context: "GD minimizes the loss"},
		{Subject: "Adam", Predicate: "extends", Object: "Gradient Descent", ChunkID: "c2", Confidence: 0.8, Context: "Extracted from text"},
	}
	require.NoError(t, store.SaveRelations(ctx, extract.ID, relations))
	gotRelations, err := store.LoadRelations(ctx, extract.ID)
	require.NoError(t, err)
	assert.Equal(t, relations, gotRelations)

	saved, err := store.GetRun(ctx, extract.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, saved.Items)
}

func TestPruneRuns(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	var last string
	for i := 0; i < 3; i++ {
		run := storage.NewRun(storage.StageNormalize, "")
		require.NoError(t, store.SaveRun(ctx, run))
		last = run.ID
	}
	n, err := store.PruneRuns(ctx, storage.StageNormalize, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	runs, err := store.ListRuns(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, last, runs[0].ID)
}
