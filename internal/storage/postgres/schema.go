// Package postgres implements storage.KnowledgeStore on PostgreSQL through
// lib/pq.
package postgres

import "github.com/scrypster/mlkg/internal/storage"

// migrations is the postgres schema history. List columns are JSONB arrays.
var migrations = []storage.Migration{
	{
		Version: 1,
		Name:    "runs_entities_relations",
		Up: `
CREATE TABLE IF NOT EXISTS runs (
    id TEXT PRIMARY KEY,
    seq BIGINT NOT NULL,
    stage TEXT NOT NULL,
    note TEXT NOT NULL DEFAULT '',
    items INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_runs_stage_seq ON runs(stage, seq);

CREATE TABLE IF NOT EXISTS entities (
    run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
    canonical_name TEXT NOT NULL,
    entity_type TEXT NOT NULL,
    aliases JSONB NOT NULL DEFAULT '[]',
    frequency INTEGER NOT NULL DEFAULT 0,
    confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
    source_chunks JSONB NOT NULL DEFAULT '[]',
    original_labels JSONB NOT NULL DEFAULT '[]',
    PRIMARY KEY (run_id, canonical_name)
);
CREATE INDEX IF NOT EXISTS idx_entities_type ON entities(run_id, entity_type);

CREATE TABLE IF NOT EXISTS relations (
    run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
    seq INTEGER NOT NULL,
    subject TEXT NOT NULL,
    predicate TEXT NOT NULL,
    object TEXT NOT NULL,
    chunk_id TEXT NOT NULL DEFAULT '',
    confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
    context TEXT NOT NULL DEFAULT '',
    PRIMARY KEY (run_id, seq)
);
CREATE INDEX IF NOT EXISTS idx_relations_predicate ON relations(run_id, predicate);
`,
		Down: `
DROP TABLE IF EXISTS relations;
DROP TABLE IF EXISTS entities;
DROP TABLE IF EXISTS runs;
`,
	},
}
