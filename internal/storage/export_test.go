package storage_test

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/mlkg/internal/storage"
	"github.com/scrypster/mlkg/internal/storage/sqlite"
	"github.com/scrypster/mlkg/pkg/types"
)

func newStore(t *testing.T) storage.KnowledgeStore {
	t.Helper()
	store, err := sqlite.NewKnowledgeStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestExportImport(t *testing.T) {
	ctx := context.Background()
	src := newStore(t)

	norm := storage.NewRun(storage.StageNormalize, "islr")
	require.NoError(t, src.SaveRun(ctx, norm))
	entities := types.EntitySet{
		"Dropout": {CanonicalName: "Dropout", EntityType: types.EntityTypeConcept, Aliases: []string{"dropout"}, Frequency: 4, Confidence: 1, SourceChunks: []string{"dl_chunk_0003"}, OriginalLabels: []string{"CONCEPT_PATTERN"}},
	}
	require.NoError(t, src.SaveEntities(ctx, norm.ID, entities))

	extract := storage.NewRun(storage.StageExtract, "")
	require.NoError(t, src.SaveRun(ctx, extract))
	relations := []types.Relation{{Subject: "Dropout", Predicate: "applies_to", Object: "Neural Network", ChunkID: "dl_chunk_0003", Confidence: 1, Context: "Extracted from text"}}
	require.NoError(t, src.SaveRelations(ctx, extract.ID, relations))

	var buf bytes.Buffer
	require.NoError(t, storage.Export(ctx, src, &buf))
	assert.Contains(t, buf.String(), `"canonical_name": "Dropout"`)

	dst := newStore(t)
	n, err := storage.Import(ctx, dst, &buf)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	gotEntities, err := dst.LoadEntities(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, entities, gotEntities)

	gotRelations, err := dst.LoadRelations(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, relations, gotRelations)

	latest, err := dst.LatestRun(ctx, storage.StageNormalize)
	require.NoError(t, err)
	assert.Equal(t, norm.ID, latest.ID)
	assert.Equal(t, "islr", latest.Note)
}

func TestImport_RejectsBadSnapshots(t *testing.T) {
	ctx := context.Background()
	for name, body := range map[string]string{
		"not json":    "{",
		"bad version": `{"version": 7, "runs": []}`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := storage.Import(ctx, newStore(t), strings.NewReader(body))
			assert.ErrorIs(t, err, storage.ErrInvalidInput)
		})
	}
}

func TestParseStage(t *testing.T) {
	st, err := storage.ParseStage(" Extract ")
	require.NoError(t, err)
	assert.Equal(t, storage.StageExtract, st)

	_, err = storage.ParseStage("build")
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}

func TestEncodeStrings(t *testing.T) {
	raw, err := storage.EncodeStrings(nil)
	require.NoError(t, err)
	assert.Equal(t, "[]", raw)

	list, err := storage.DecodeStrings(`["a","b"]`)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, list)

	list, err = storage.DecodeStrings("null")
	require.NoError(t, err)
	assert.Equal(t, []string{}, list)

	_, err = storage.DecodeStrings("[")
	assert.Error(t, err)
}
