package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/scrypster/mlkg/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	for _, key := range []string{"MLKG_HOST", "MLKG_OLLAMA_MODEL", "MLKG_BATCH_SIZE", "MLKG_LLM_RETRIES", "MLKG_ENTITY_NS"} {
		_ = os.Unsetenv(key)
	}

	cfg, err := config.LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1", cfg.Server.Host, "default host must be loopback")
	assert.Equal(t, "llama3.2:3b", cfg.LLM.OllamaModel)
	assert.Equal(t, 20, cfg.Pipeline.BatchSize)
	assert.Equal(t, 1500, cfg.Pipeline.ChunkTextLimit)
	assert.Equal(t, 1, cfg.LLM.Retries)
	assert.Equal(t, 120*time.Second, cfg.LLM.Timeout)
	assert.Equal(t, "http://ml-kg.org/entity/", cfg.Graph.EntityNS)
	assert.Equal(t, 15, cfg.Query.ListLimit)
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("MLKG_HOST", "0.0.0.0")
	t.Setenv("MLKG_WORKERS", "4")
	t.Setenv("MLKG_LLM_TIMEOUT", "30s")
	t.Setenv("MLKG_LLM_RATE", "2.5")
	t.Setenv("MLKG_ENHANCE_RESPONSES", "yes")
	t.Setenv("MLKG_LLM_BREAKER_FAILURES", "5")
	t.Setenv("MLKG_LLM_BREAKER_COOLDOWN", "1m")

	cfg, err := config.LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 4, cfg.Pipeline.Workers)
	assert.Equal(t, 30*time.Second, cfg.LLM.Timeout)
	assert.InDelta(t, 2.5, cfg.LLM.RatePerSecond, 1e-9)
	assert.True(t, cfg.Query.EnhanceResponse)
	assert.Equal(t, uint32(5), cfg.LLM.BreakerFailures)
	assert.Equal(t, time.Minute, cfg.LLM.BreakerCooldown)
}

func TestLoadConfig_InvalidNumbersFallBack(t *testing.T) {
	t.Setenv("MLKG_BATCH_SIZE", "twenty")
	t.Setenv("MLKG_LLM_TIMEOUT", "soon")

	cfg, err := config.LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, 20, cfg.Pipeline.BatchSize)
	assert.Equal(t, 120*time.Second, cfg.LLM.Timeout)
}

func TestLoadConfig_Validation(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"zero batch size", map[string]string{"MLKG_BATCH_SIZE": "0"}},
		{"zero workers", map[string]string{"MLKG_WORKERS": "0"}},
		{"unknown engine", map[string]string{"MLKG_STORAGE_ENGINE": "mysql"}},
		{"postgres without dsn", map[string]string{"MLKG_STORAGE_ENGINE": "postgres", "MLKG_POSTGRES_DSN": ""}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := config.LoadConfig()
			assert.Error(t, err)
		})
	}
}

func TestLoadFile_OverlaysYAML(t *testing.T) {
	t.Setenv("MLKG_OLLAMA_URL", "http://gpu-box:11434")

	path := filepath.Join(t.TempDir(), "mlkg.yaml")
	yamlDoc := `
llm:
  ollama_model: qwen2.5:7b
  timeout: 45s
pipeline:
  workers: 3
graph:
  path: /tmp/graph.ttl
query:
  list_limit: 5
`
	require.NoError(t, os.WriteFile(path, []byte(yamlDoc), 0o600))

	cfg, err := config.LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, "qwen2.5:7b", cfg.LLM.OllamaModel)
	assert.Equal(t, 45*time.Second, cfg.LLM.Timeout)
	assert.Equal(t, 3, cfg.Pipeline.Workers)
	assert.Equal(t, "/tmp/graph.ttl", cfg.Graph.Path)
	assert.Equal(t, 5, cfg.Query.ListLimit)
	assert.Equal(t, "http://gpu-box:11434", cfg.LLM.OllamaURL, "keys absent from the file keep env values")
	assert.Equal(t, 20, cfg.Pipeline.BatchSize)
}

func TestLoadFile_Errors(t *testing.T) {
	_, err := config.LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("pipeline: [unclosed"), 0o600))
	_, err = config.LoadFile(path)
	assert.Error(t, err)
}
