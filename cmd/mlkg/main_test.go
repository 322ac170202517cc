package main

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/mlkg/internal/query"
	"github.com/scrypster/mlkg/internal/sparql"
)

const sampleChunks = `Source: sample.pdf

=== CHUNK 1 ===
Pages: 1
--------------------------------------------------
The support vector machine (SVM), developed by Vladimir Vapnik, uses the kernel trick.
`

const sampleCandidates = `[
  {"text": "Support Vector Machine", "label": "ALGORITHM", "chunk_id": "sample_chunk_0001", "source": "pattern"},
  {"text": "SVM", "label": "ORG", "chunk_id": "sample_chunk_0001", "source": "ner"},
  {"text": "Kernel Trick", "label": "CONCEPT", "chunk_id": "sample_chunk_0001", "source": "pattern"},
  {"text": "Vladimir Vapnik", "label": "PERSON", "chunk_id": "sample_chunk_0001", "source": "ner"}
]`

const normalizationReply = `{"normalized_entities": [
  {"canonical_name": "Support Vector Machine", "type": "ALGORITHM", "aliases": ["SVM"]},
  {"canonical_name": "Kernel Trick", "type": "CONCEPT", "aliases": []},
  {"canonical_name": "Vladimir Vapnik", "type": "PERSON", "aliases": []}
]}`

const extractionReply = `Here are the relations:
{"relations": [
  {"subject": "Support Vector Machine", "predicate": "uses", "object": "Kernel Trick", "context": "uses the kernel trick"},
  {"subject": "Support Vector Machine", "predicate": "developed_by", "object": "Vladimir Vapnik", "context": "developed by Vladimir Vapnik"},
  {"subject": "Support Vector Machine", "predicate": "loves", "object": "Kernel Trick", "context": "not a known predicate"}
]}`

// fakeOllama answers /api/chat by recognizing the prompt.
func fakeOllama(t *testing.T) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Model    string `json:"model"`
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Messages) == 0 {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		calls.Add(1)
		prompt := req.Messages[len(req.Messages)-1].Content

		reply := "Hi!"
		switch {
		case strings.Contains(prompt, "ENTITIES TO NORMALIZE"):
			reply = normalizationReply
		case strings.Contains(prompt, "Extract semantic relations"):
			reply = extractionReply
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"model":   req.Model,
			"message": map[string]string{"role": "assistant", "content": reply},
			"done":    true,
		})
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

type testEnv struct {
	dir       string
	graphPath string
	chunksDir string
	candPath  string
}

func setupEnv(t *testing.T, ollamaURL string) testEnv {
	t.Helper()
	dir := t.TempDir()
	env := testEnv{
		dir:       dir,
		graphPath: filepath.Join(dir, "graph", "ml_kg.ttl"),
		chunksDir: filepath.Join(dir, "chunks"),
		candPath:  filepath.Join(dir, "entities.json"),
	}
	require.NoError(t, os.MkdirAll(env.chunksDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(env.chunksDir, "sample_chunks.txt"), []byte(sampleChunks), 0o644))
	require.NoError(t, os.WriteFile(env.candPath, []byte(sampleCandidates), 0o644))

	t.Setenv("MLKG_STORAGE_ENGINE", "sqlite")
	t.Setenv("MLKG_DATA_PATH", filepath.Join(dir, "data"))
	t.Setenv("MLKG_GRAPH_PATH", env.graphPath)
	t.Setenv("MLKG_SPARQL_ENDPOINT", "")
	t.Setenv("MLKG_LLM_PROVIDER", "ollama")
	t.Setenv("MLKG_OLLAMA_URL", ollamaURL)
	t.Setenv("MLKG_LLM_RETRIES", "0")
	t.Setenv("MLKG_ENHANCE_RESPONSES", "false")
	return env
}

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestVersion(t *testing.T) {
	out, err := run(t, "", "version")
	require.NoError(t, err)
	assert.Contains(t, out, "mlkg v"+version)
}

func TestChunks(t *testing.T) {
	env := setupEnv(t, "http://127.0.0.1:1")

	out, err := run(t, "", "chunks", "--dir", env.chunksDir)
	require.NoError(t, err)

	var stats struct {
		TotalChunks int      `json:"total_chunks"`
		Books       []string `json:"books"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &stats))
	assert.Equal(t, 1, stats.TotalChunks)
	assert.Equal(t, []string{"sample"}, stats.Books)
}

func TestPipelineEndToEnd(t *testing.T) {
	ollama, calls := fakeOllama(t)
	env := setupEnv(t, ollama.URL)

	out, err := run(t, "", "normalize", "--candidates", env.candPath, "--note", "first pass")
	require.NoError(t, err)
	var normalized struct {
		RunID string `json:"run_id"`
		Stats struct {
			EntitiesOutput int `json:"entities_output"`
		} `json:"stats"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &normalized))
	assert.NotEmpty(t, normalized.RunID)
	assert.Equal(t, 3, normalized.Stats.EntitiesOutput)

	out, err = run(t, "", "extract", "--chunks", env.chunksDir)
	require.NoError(t, err)
	var extracted struct {
		Stats struct {
			RelationsExtracted int `json:"relations_extracted"`
			RelationsRejected  int `json:"relations_rejected"`
		} `json:"stats"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &extracted))
	assert.Equal(t, 2, extracted.Stats.RelationsExtracted)
	assert.Equal(t, 1, extracted.Stats.RelationsRejected)

	// ping + one batch for normalize, ping + one chunk for extract
	assert.Equal(t, int32(4), calls.Load())

	out, err = run(t, "", "build", "--formats", "xml,json-ld")
	require.NoError(t, err)
	assert.Contains(t, out, "KNOWLEDGE GRAPH REPORT")
	assert.FileExists(t, env.graphPath)
	assert.FileExists(t, strings.TrimSuffix(env.graphPath, ".ttl")+".rdf")
	assert.FileExists(t, strings.TrimSuffix(env.graphPath, ".ttl")+".jsonld")

	out, err = run(t, "", "query", "who", "developed", "support", "vector", "machine")
	require.NoError(t, err)
	assert.Contains(t, out, "Vladimir Vapnik")
	assert.Contains(t, out, string(query.WhoCreated))

	out, err = run(t, "what uses kernel trick", "query", "--json")
	require.NoError(t, err)
	var answer query.Answer
	require.NoError(t, json.Unmarshal([]byte(out), &answer))
	assert.Equal(t, query.WhatUses, answer.Intent.QueryType)
	assert.Contains(t, answer.Response.Answer, "Support Vector Machine")

	out, err = run(t, "", "sparql", `SELECT ?label WHERE { entity:kernel_trick rdfs:label ?label }`)
	require.NoError(t, err)
	res, err := sparql.ReadJSON(strings.NewReader(out))
	require.NoError(t, err)
	require.Len(t, res.Rows, 1)
	assert.Equal(t, "Kernel Trick", res.Rows[0]["label"].Value)

	out, err = run(t, "", "stats")
	require.NoError(t, err)
	var stats query.GraphStats
	require.NoError(t, json.Unmarshal([]byte(out), &stats))
	assert.Equal(t, 2, stats.TotalRelations)

	out, err = run(t, "", "runs")
	require.NoError(t, err)
	assert.Contains(t, out, "normalize")
	assert.Contains(t, out, "extract")
	assert.Contains(t, out, "first pass")
}

func TestNormalize_UnreachableModelFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer srv.Close()
	env := setupEnv(t, srv.URL)

	_, err := run(t, "", "normalize", "--candidates", env.candPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connectivity check")

	// nothing was stored
	out, err := run(t, "", "runs")
	require.NoError(t, err)
	assert.NotContains(t, out, "normalize")
}

func TestBuild_WithoutRunsFails(t *testing.T) {
	setupEnv(t, "http://127.0.0.1:1")

	_, err := run(t, "", "build")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load normalized entities")
}

func TestQuery_MissingGraph(t *testing.T) {
	setupEnv(t, "http://127.0.0.1:1")

	_, err := run(t, "", "query", "what is dropout")
	require.Error(t, err)
	assert.ErrorIs(t, err, query.ErrGraphNotFound)
}

func TestExportImport(t *testing.T) {
	ollama, _ := fakeOllama(t)
	env := setupEnv(t, ollama.URL)

	_, err := run(t, "", "normalize", "--candidates", env.candPath)
	require.NoError(t, err)

	snapshot := filepath.Join(env.dir, "snapshot.json")
	_, err = run(t, "", "export", snapshot)
	require.NoError(t, err)
	assert.FileExists(t, snapshot)

	t.Setenv("MLKG_DATA_PATH", filepath.Join(env.dir, "other"))
	out, err := run(t, "", "import", snapshot)
	require.NoError(t, err)
	assert.Contains(t, out, "imported 1 runs")

	out, err = run(t, "", "runs")
	require.NoError(t, err)
	assert.Contains(t, out, "normalize")

	out, err = run(t, "", "runs", "prune", "--stage", "normalize", "--keep", "0")
	require.NoError(t, err)
	assert.Contains(t, out, "removed 1 normalize runs")
}

func TestConfigFileOverlay(t *testing.T) {
	env := setupEnv(t, "http://127.0.0.1:1")
	other := filepath.Join(env.dir, "elsewhere.ttl")
	cfgPath := filepath.Join(env.dir, "mlkg.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("graph:\n  path: "+other+"\n"), 0o644))

	_, err := run(t, "", "--config", cfgPath, "stats")
	require.Error(t, err)
	assert.ErrorIs(t, err, query.ErrGraphNotFound)
	assert.Contains(t, err.Error(), "elsewhere.ttl")

	_, err = run(t, "", "--config", filepath.Join(env.dir, "missing.yaml"), "stats")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load config")
}

func TestBackupRestore(t *testing.T) {
	ollama, _ := fakeOllama(t)
	env := setupEnv(t, ollama.URL)

	_, err := run(t, "", "normalize", "--candidates", env.candPath, "--note", "kept")
	require.NoError(t, err)

	out, err := run(t, "", "backup")
	require.NoError(t, err)
	var res struct {
		Path     string `json:"path"`
		Verified bool   `json:"verified"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.True(t, res.Verified)
	assert.FileExists(t, res.Path)

	out, err = run(t, "", "backup", "list")
	require.NoError(t, err)
	assert.Contains(t, out, filepath.Base(res.Path))

	_, err = run(t, "", "runs", "prune", "--stage", "normalize", "--keep", "0")
	require.NoError(t, err)

	out, err = run(t, "", "backup", "restore", res.Path)
	require.NoError(t, err)
	assert.Contains(t, out, "restored")

	out, err = run(t, "", "runs")
	require.NoError(t, err)
	assert.Contains(t, out, "kept")
}

func TestBackup_PostgresUnsupported(t *testing.T) {
	setupEnv(t, "http://127.0.0.1:1")
	t.Setenv("MLKG_STORAGE_ENGINE", "postgres")
	t.Setenv("MLKG_POSTGRES_DSN", "postgres://localhost/mlkg")

	_, err := run(t, "", "backup")
	require.Error(t, err)
	assert.ErrorIs(t, err, errBackupEngine)
}
