// Package config provides YAML-based configuration for tutor-rag.
// Configuration is loaded with a layered precedence: defaults → YAML file → env vars.
// Environment variables always win, so existing workflows are unaffected.
//
// File search order:
//  1. --config CLI flag (explicit path)
//  2. TUTOR_CONFIG environment variable
//  3. ~/.tutor-rag/config.yaml
//  4. ./tutor-rag.yaml
//
// If no file is found the system runs entirely from env vars.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the top-level YAML configuration structure.
// Field names use yaml tags that mirror the env var naming (lowercase, underscored).
type Config struct {
	// Retrieval configures chunking, ranking, and caching.
	Retrieval RetrievalConfig `yaml:"retrieval"`

	// Embedding configures the embedding provider.
	Embedding EmbeddingConfig `yaml:"embedding"`

	// Qdrant configures the optional primary vector index.
	Qdrant QdrantConfig `yaml:"qdrant"`

	// Library configures course material and annotation storage.
	Library LibraryConfig `yaml:"library"`

	// Logging configures structured logging.
	Logging LoggingConfig `yaml:"logging"`
}

// RetrievalConfig holds chunking and cache tuning knobs.
type RetrievalConfig struct {
	// ChunkSize is the target number of characters per chunk.
	ChunkSize int `yaml:"chunk_size"`
	// OverlapRatio is the fraction of each chunk repeated at the start of the next.
	OverlapRatio float64 `yaml:"overlap_ratio"`
	// TopK is the default number of passages returned per query.
	TopK int `yaml:"top_k"`
	// MaxCachedScopes bounds the number of scopes held in the chunk cache.
	MaxCachedScopes int `yaml:"max_cached_scopes"`
	// MaxChunksPerScope caps the chunks built for a single scope.
	MaxChunksPerScope int `yaml:"max_chunks_per_scope"`
	// QueryCacheTTL is the query result cache lifetime (e.g. "10m").
	QueryCacheTTL string `yaml:"query_cache_ttl"`
	// EmbedTimeout bounds a scope's batch-embedding call (e.g. "30s").
	EmbedTimeout string `yaml:"embed_timeout"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	// Provider selects the embedding backend (ollama, openai, azure, none).
	Provider string `yaml:"provider"`
	// Model is the embedding model name.
	Model string `yaml:"model"`
	// Dimensions overrides the embedding vector size.
	Dimensions int `yaml:"dimensions"`
	// APIKey is the embedding API key. Prefer env var EMBEDDING_API_KEY.
	APIKey string `yaml:"api_key"`
	// Endpoint is the embedding API endpoint.
	Endpoint string `yaml:"endpoint"`
	// RPS is the client-side request rate limit (0 = unlimited).
	RPS int `yaml:"rps"`
}

// QdrantConfig holds Qdrant vector index settings.
type QdrantConfig struct {
	// Host is the Qdrant server hostname.
	Host string `yaml:"host"`
	// Port is the Qdrant gRPC port.
	Port int `yaml:"port"`
	// Collection is the Qdrant collection name.
	Collection string `yaml:"collection"`
	// APIKey is the Qdrant API key. Prefer env var QDRANT_API_KEY.
	APIKey string `yaml:"api_key"`
	// TLS enables TLS for the Qdrant connection.
	TLS bool `yaml:"tls"`
}

// LibraryConfig holds course material and annotation storage settings.
type LibraryConfig struct {
	// MaterialsRoot is the directory holding extracted course material.
	MaterialsRoot string `yaml:"materials_root"`
	// AnnotationsDB is the SQLite database path for personal annotations.
	AnnotationsDB string `yaml:"annotations_db"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error.
	Level string `yaml:"level"`
	// Format is the log output format: json, text.
	Format string `yaml:"format"`
}

// envMapping maps YAML config fields to their corresponding env var names.
// Only non-empty YAML values are applied; env vars always take precedence.
var envMapping = []struct {
	envKey string
	value  func(*Config) string
}{
	{"RETRIEVAL_CHUNK_SIZE", func(c *Config) string { return intStr(c.Retrieval.ChunkSize) }},
	{"RETRIEVAL_OVERLAP_RATIO", func(c *Config) string { return floatStr(c.Retrieval.OverlapRatio) }},
	{"RETRIEVAL_TOP_K", func(c *Config) string { return intStr(c.Retrieval.TopK) }},
	{"RETRIEVAL_MAX_CACHED_SCOPES", func(c *Config) string { return intStr(c.Retrieval.MaxCachedScopes) }},
	{"RETRIEVAL_MAX_CHUNKS_PER_SCOPE", func(c *Config) string { return intStr(c.Retrieval.MaxChunksPerScope) }},
	{"RETRIEVAL_QUERY_CACHE_TTL", func(c *Config) string { return c.Retrieval.QueryCacheTTL }},
	{"RETRIEVAL_EMBED_TIMEOUT", func(c *Config) string { return c.Retrieval.EmbedTimeout }},
	{"EMBEDDING_PROVIDER", func(c *Config) string { return c.Embedding.Provider }},
	{"EMBEDDING_MODEL", func(c *Config) string { return c.Embedding.Model }},
	{"EMBEDDING_DIMENSIONS", func(c *Config) string { return intStr(c.Embedding.Dimensions) }},
	{"EMBEDDING_API_KEY", func(c *Config) string { return c.Embedding.APIKey }},
	{"EMBEDDING_ENDPOINT", func(c *Config) string { return c.Embedding.Endpoint }},
	{"EMBEDDING_RPS", func(c *Config) string { return intStr(c.Embedding.RPS) }},
	{"QDRANT_HOST", func(c *Config) string { return c.Qdrant.Host }},
	{"QDRANT_PORT", func(c *Config) string { return intStr(c.Qdrant.Port) }},
	{"QDRANT_COLLECTION", func(c *Config) string { return c.Qdrant.Collection }},
	{"QDRANT_API_KEY", func(c *Config) string { return c.Qdrant.APIKey }},
	{"QDRANT_TLS", func(c *Config) string { return boolStr(c.Qdrant.TLS) }},
	{"TUTOR_MATERIALS_ROOT", func(c *Config) string { return c.Library.MaterialsRoot }},
	{"TUTOR_ANNOTATIONS_DB", func(c *Config) string { return c.Library.AnnotationsDB }},
	{"LOG_LEVEL", func(c *Config) string { return c.Logging.Level }},
	{"LOG_FORMAT", func(c *Config) string { return c.Logging.Format }},
}

// Load reads a YAML config file and applies non-empty values as environment
// variables. Existing env vars are never overwritten (env always wins).
// Returns the path that was loaded, or empty string if no file was found.
func Load(explicitPath string, log *slog.Logger) (string, error) {
	path := resolveConfigPath(explicitPath)
	if path == "" {
		log.Debug("config: no YAML config file found, using env vars only")
		return "", nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("config: failed to read %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return "", fmt.Errorf("config: failed to parse %s: %w", path, err)
	}

	applied := 0
	for _, m := range envMapping {
		yamlVal := m.value(&cfg)
		if yamlVal == "" || yamlVal == "0" || yamlVal == "false" {
			continue
		}
		if os.Getenv(m.envKey) != "" {
			continue // env var already set — do not override
		}
		os.Setenv(m.envKey, yamlVal)
		applied++
	}

	log.Info("config: loaded YAML config",
		slog.String("path", path),
		slog.Int("keys_applied", applied),
	)

	return path, nil
}

// resolveConfigPath returns the first config file path that exists.
func resolveConfigPath(explicit string) string {
	if explicit != "" {
		if _, err := os.Stat(explicit); err == nil {
			return explicit
		}
		return ""
	}

	if envPath := os.Getenv("TUTOR_CONFIG"); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	home, err := os.UserHomeDir()
	if err == nil {
		p := filepath.Join(home, ".tutor-rag", "config.yaml")
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	if _, err := os.Stat("tutor-rag.yaml"); err == nil {
		return "tutor-rag.yaml"
	}

	return ""
}

// intStr converts an int to string, returning "" for zero values.
func intStr(v int) string {
	if v == 0 {
		return ""
	}
	return fmt.Sprintf("%d", v)
}

// floatStr converts a float64 to string, returning "" for zero values.
func floatStr(v float64) string {
	if v == 0 {
		return ""
	}
	return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.4f", v), "0"), ".")
}

// boolStr converts a bool to string, returning "" for false.
func boolStr(v bool) string {
	if !v {
		return ""
	}
	return "true"
}
