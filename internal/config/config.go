// Package config provides configuration management for the ML knowledge graph
// tools. Settings come from environment variables with the MLKG_ prefix and
// sensible defaults; an optional YAML file can override any of them.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration settings.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Storage  StorageConfig  `yaml:"storage"`
	LLM      LLMConfig      `yaml:"llm"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Graph    GraphConfig    `yaml:"graph"`
	Query    QueryConfig    `yaml:"query"`
	Security SecurityConfig `yaml:"security"`
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	Port      int     `yaml:"port"`       // Server port (default: 7373)
	Host      string  `yaml:"host"`       // Server host (default: 127.0.0.1)
	RateLimit float64 `yaml:"rate_limit"` // Requests per second (default: 10)
	RateBurst int     `yaml:"rate_burst"` // Burst size (default: 20)
}

// StorageConfig contains database and storage configuration.
type StorageConfig struct {
	StorageEngine string `yaml:"engine"`       // sqlite or postgres (default: sqlite)
	DataPath      string `yaml:"data_path"`    // Data directory (default: ./data)
	PostgresDSN   string `yaml:"postgres_dsn"` // Required when engine is postgres
}

// LLMConfig contains LLM provider configuration.
type LLMConfig struct {
	Provider        string        `yaml:"provider"` // ollama, openai, anthropic (default: ollama)
	OllamaURL       string        `yaml:"ollama_url"`
	OllamaModel     string        `yaml:"ollama_model"` // default: llama3.2:3b
	OpenAIAPIKey    string        `yaml:"openai_api_key"`
	OpenAIModel     string        `yaml:"openai_model"`
	OpenAIBaseURL   string        `yaml:"openai_base_url"`
	AnthropicAPIKey string        `yaml:"anthropic_api_key"`
	AnthropicModel  string        `yaml:"anthropic_model"`
	Timeout         time.Duration `yaml:"timeout"`         // Per-call timeout (default: 120s)
	Retries         int           `yaml:"retries"`         // Extra attempts on transient failure (default: 1)
	RatePerSecond   float64       `yaml:"rate_per_second"` // 0 disables limiting
	BreakerFailures uint32        `yaml:"breaker_failures"` // Consecutive failures that open the circuit (default: 3)
	BreakerCooldown time.Duration `yaml:"breaker_cooldown"` // Time the circuit stays open (default: 30s)
}

// PipelineConfig tunes the normalization and extraction passes.
type PipelineConfig struct {
	Workers        int `yaml:"workers"`          // Concurrent LLM calls (default: 1)
	BatchSize      int `yaml:"batch_size"`       // Candidates per normalization batch (default: 20)
	ChunkTextLimit int `yaml:"chunk_text_limit"` // Characters of chunk text sent to the model (default: 1500)
}

// GraphConfig names the RDF graph file and its namespaces.
type GraphConfig struct {
	Path           string `yaml:"path"`            // Primary Turtle file (default: ./data/ml_kg.ttl)
	OntologyNS     string `yaml:"ontology_ns"`     // default: http://ml-kg.org/ontology/
	EntityNS       string `yaml:"entity_ns"`       // default: http://ml-kg.org/entity/
	RelationNS     string `yaml:"relation_ns"`     // default: http://ml-kg.org/relation/
	SPARQLEndpoint string `yaml:"sparql_endpoint"` // Remote endpoint; empty uses the local graph
}

// QueryConfig tunes the question-answering path.
type QueryConfig struct {
	ListLimit       int  `yaml:"list_limit"`       // LIST_BY_TYPE row limit (default: 15)
	SimilarLimit    int  `yaml:"similar_limit"`    // FIND_SIMILAR row limit (default: 10)
	EnhanceResponse bool `yaml:"enhance_response"` // Rewrite answers with the LLM (default: false)
}

// SecurityConfig contains API authentication settings.
type SecurityConfig struct {
	SecurityMode string `yaml:"mode"`      // development or production (default: development)
	APIToken     string `yaml:"api_token"` // Bearer token required in production
}

// LoadConfig loads configuration from environment variables with defaults.
func LoadConfig() (*Config, error) {
	cfg := buildBaseConfig()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile loads the environment configuration and then overlays the YAML
// file at path. Keys absent from the file keep their environment value.
func LoadFile(path string) (*Config, error) {
	cfg := buildBaseConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: failed to read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: failed to parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the pipeline cannot run with.
func (c *Config) Validate() error {
	if c.Pipeline.BatchSize < 1 {
		return fmt.Errorf("config: batch size must be positive, got %d", c.Pipeline.BatchSize)
	}
	if c.Pipeline.Workers < 1 {
		return fmt.Errorf("config: workers must be positive, got %d", c.Pipeline.Workers)
	}
	if c.LLM.Retries < 0 {
		return fmt.Errorf("config: retries must not be negative, got %d", c.LLM.Retries)
	}
	switch c.Storage.StorageEngine {
	case "sqlite":
	case "postgres":
		if c.Storage.PostgresDSN == "" {
			return fmt.Errorf("config: postgres storage requires MLKG_POSTGRES_DSN")
		}
	default:
		return fmt.Errorf("config: unsupported storage engine %q", c.Storage.StorageEngine)
	}
	return nil
}

// buildBaseConfig constructs a Config from environment variables and defaults.
func buildBaseConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:      getEnvInt("MLKG_PORT", 7373),
			Host:      getEnv("MLKG_HOST", "127.0.0.1"),
			RateLimit: getEnvFloat("MLKG_RATE_LIMIT", 10),
			RateBurst: getEnvInt("MLKG_RATE_BURST", 20),
		},
		Storage: StorageConfig{
			StorageEngine: getEnv("MLKG_STORAGE_ENGINE", "sqlite"),
			DataPath:      getEnv("MLKG_DATA_PATH", "./data"),
			PostgresDSN:   getEnv("MLKG_POSTGRES_DSN", ""),
		},
		LLM: LLMConfig{
			Provider:        getEnv("MLKG_LLM_PROVIDER", "ollama"),
			OllamaURL:       getEnv("MLKG_OLLAMA_URL", "http://localhost:11434"),
			OllamaModel:     getEnv("MLKG_OLLAMA_MODEL", "llama3.2:3b"),
			OpenAIAPIKey:    getEnv("MLKG_OPENAI_API_KEY", ""),
			OpenAIModel:     getEnv("MLKG_OPENAI_MODEL", "gpt-4o-mini"),
			OpenAIBaseURL:   getEnv("MLKG_OPENAI_BASE_URL", ""),
			AnthropicAPIKey: getEnv("MLKG_ANTHROPIC_API_KEY", ""),
			AnthropicModel:  getEnv("MLKG_ANTHROPIC_MODEL", "claude-3-5-haiku-latest"),
			Timeout:         getEnvDuration("MLKG_LLM_TIMEOUT", 120*time.Second),
			Retries:         getEnvInt("MLKG_LLM_RETRIES", 1),
			RatePerSecond:   getEnvFloat("MLKG_LLM_RATE", 0),
			BreakerFailures: uint32(getEnvInt("MLKG_LLM_BREAKER_FAILURES", 3)),
			BreakerCooldown: getEnvDuration("MLKG_LLM_BREAKER_COOLDOWN", 30*time.Second),
		},
		Pipeline: PipelineConfig{
			Workers:        getEnvInt("MLKG_WORKERS", 1),
			BatchSize:      getEnvInt("MLKG_BATCH_SIZE", 20),
			ChunkTextLimit: getEnvInt("MLKG_CHUNK_TEXT_LIMIT", 1500),
		},
		Graph: GraphConfig{
			Path:           getEnv("MLKG_GRAPH_PATH", "./data/ml_kg.ttl"),
			OntologyNS:     getEnv("MLKG_ONTOLOGY_NS", "http://ml-kg.org/ontology/"),
			EntityNS:       getEnv("MLKG_ENTITY_NS", "http://ml-kg.org/entity/"),
			RelationNS:     getEnv("MLKG_RELATION_NS", "http://ml-kg.org/relation/"),
			SPARQLEndpoint: getEnv("MLKG_SPARQL_ENDPOINT", ""),
		},
		Query: QueryConfig{
			ListLimit:       getEnvInt("MLKG_LIST_LIMIT", 15),
			SimilarLimit:    getEnvInt("MLKG_SIMILAR_LIMIT", 10),
			EnhanceResponse: getEnvBool("MLKG_ENHANCE_RESPONSES", false),
		},
		Security: SecurityConfig{
			SecurityMode: getEnv("MLKG_SECURITY_MODE", "development"),
			APIToken:     getEnv("MLKG_API_TOKEN", ""),
		},
	}
}

// getEnv retrieves a string environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves an integer environment variable or returns a default value.
// Unparseable values fall back to the default.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvDuration parses values such as "90s" or "2m".
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// getEnvBool retrieves a boolean environment variable or returns a default value.
// It recognizes "true", "1", "yes" as true and "false", "0", "no" as false (case-insensitive).
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		switch value {
		case "true", "1", "yes", "True", "TRUE", "Yes", "YES":
			return true
		case "false", "0", "no", "False", "FALSE", "No", "NO":
			return false
		}
	}
	return defaultValue
}
