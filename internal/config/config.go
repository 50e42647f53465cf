// Package config provides configuration loading and structs for the kotae server.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug      bool             `yaml:"debug"`
	Server     ServerConfig     `yaml:"server"`
	Storage    StorageConfig    `yaml:"storage"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Completion CompletionConfig `yaml:"completion"`
	Vector     VectorConfig     `yaml:"vector"`
	Ingest     IngestConfig     `yaml:"ingest"`
	Retrieval  RetrievalConfig  `yaml:"retrieval"`
	Chat       ChatConfig       `yaml:"chat"`
	Watch      WatchConfig      `yaml:"watch"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	CORSOrigins    []string      `yaml:"cors_origins"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// StorageConfig holds paths for the metadata database and the local vector index.
type StorageConfig struct {
	DatabasePath string `yaml:"database_path"`
	VectorPath   string `yaml:"vector_path"`
}

// EmbeddingConfig selects and configures the embedding provider.
type EmbeddingConfig struct {
	Provider          string        `yaml:"provider"`
	Model             string        `yaml:"model"`
	Dimensions        int           `yaml:"dimensions"`
	BaseURL           string        `yaml:"base_url"`
	APIKey            string        `yaml:"api_key,omitempty"`
	BatchSize         int           `yaml:"batch_size"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	Timeout           time.Duration `yaml:"timeout"`
	// ONNX only.
	ModelPath string `yaml:"model_path,omitempty"`
	MaxTokens int    `yaml:"max_tokens,omitempty"`
}

// CompletionConfig selects and configures the text-completion provider.
type CompletionConfig struct {
	Provider    string        `yaml:"provider"`
	Model       string        `yaml:"model"`
	BaseURL     string        `yaml:"base_url"`
	APIKey      string        `yaml:"api_key,omitempty"`
	MaxTokens   int           `yaml:"max_tokens"`
	Temperature *float64      `yaml:"temperature"`
	Timeout     time.Duration `yaml:"timeout"`
}

// TemperatureOrDefault returns the sampling temperature; 0.7 when unset.
func (c *CompletionConfig) TemperatureOrDefault() float64 {
	if c.Temperature != nil {
		return *c.Temperature
	}
	return defaultTemperature
}

// VectorConfig selects the vector index backend.
type VectorConfig struct {
	Type     string         `yaml:"type"`
	Timeout  time.Duration  `yaml:"timeout"`
	Pinecone PineconeConfig `yaml:"pinecone"`
	Qdrant   QdrantConfig   `yaml:"qdrant"`
}

// PineconeConfig holds Pinecone index settings. Host is resolved from IndexName when empty.
type PineconeConfig struct {
	APIKey          string `yaml:"api_key,omitempty"`
	IndexName       string `yaml:"index_name"`
	Host            string `yaml:"host,omitempty"`
	Namespace       string `yaml:"namespace,omitempty"`
	APIVersion      string `yaml:"api_version"`
	ControlPlaneURL string `yaml:"control_plane_url"`
}

// QdrantConfig holds Qdrant collection settings.
type QdrantConfig struct {
	URL        string `yaml:"url"`
	APIKey     string `yaml:"api_key,omitempty"`
	Collection string `yaml:"collection"`
}

// IngestConfig holds upload limits and chunking settings. Sizes are in characters except MaxFileBytes.
type IngestConfig struct {
	ChunkSize         int      `yaml:"chunk_size"`
	ChunkOverlap      int      `yaml:"chunk_overlap"`
	MaxFileBytes      int64    `yaml:"max_file_bytes"`
	MaxTitleLength    int      `yaml:"max_title_length"`
	MaxChunks         int      `yaml:"max_chunks"`
	AllowedExtensions []string `yaml:"allowed_extensions"`
}

// RetrievalConfig holds the top-k values of the retrieval pipeline.
type RetrievalConfig struct {
	TargetedTopK        int   `yaml:"targeted_top_k"`
	DiscoveryTopK       int   `yaml:"discovery_top_k"`
	ExpansionTopK       int   `yaml:"expansion_top_k"`
	ContextSize         int   `yaml:"context_size"`
	ConcurrentExpansion *bool `yaml:"concurrent_expansion"`
	MaxConcurrency      int   `yaml:"max_concurrency"`
}

// ConcurrentOrDefault returns whether per-document expansion queries run concurrently; true when unset.
func (r *RetrievalConfig) ConcurrentOrDefault() bool {
	if r.ConcurrentExpansion != nil {
		return *r.ConcurrentExpansion
	}
	return true
}

// ChatConfig holds chat request limits.
type ChatConfig struct {
	MaxMessageLength int `yaml:"max_message_length"`
	HistoryLimit     int `yaml:"history_limit"`
}

// WatchConfig holds inbox directory watch settings.
type WatchConfig struct {
	Directories []string `yaml:"directories"`
	Extensions  []string `yaml:"extensions"`
	Recursive   *bool    `yaml:"recursive"`
}

// RecursiveOrDefault returns whether to watch recursively; defaults to true when unset.
func (w *WatchConfig) RecursiveOrDefault() bool {
	if w.Recursive != nil {
		return *w.Recursive
	}
	return true
}

// Load reads and parses the config file at path, applies defaults and environment
// overrides, and expands paths. Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)
	ApplyEnv(&cfg)
	cfg.resolvePaths(filepath.Dir(path))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a config built only from defaults and the environment.
// Relative storage paths are resolved against the home directory.
func Default() *Config {
	var cfg Config
	ApplyDefaults(&cfg)
	ApplyEnv(&cfg)
	cfg.resolvePaths("")
	return &cfg
}

// Save writes the config to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// LoadEnvFile loads KEY=VALUE pairs from a .env file into the process environment.
// Variables already set are kept. A missing file is not an error.
func LoadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load env file: %w", err)
	}
	return nil
}

// ApplyEnv overrides secrets and endpoints from the environment.
func ApplyEnv(cfg *Config) {
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		if cfg.Embedding.APIKey == "" {
			cfg.Embedding.APIKey = v
		}
		if cfg.Completion.APIKey == "" {
			cfg.Completion.APIKey = v
		}
	}
	if v := os.Getenv("OPENAI_BASE_URL"); v != "" {
		cfg.Embedding.BaseURL = v
		cfg.Completion.BaseURL = v
	}
	if v := os.Getenv("PINECONE_API_KEY"); v != "" && cfg.Vector.Pinecone.APIKey == "" {
		cfg.Vector.Pinecone.APIKey = v
	}
	if v := os.Getenv("PINECONE_INDEX_NAME"); v != "" {
		cfg.Vector.Pinecone.IndexName = v
	}
	if v := os.Getenv("PINECONE_HOST"); v != "" {
		cfg.Vector.Pinecone.Host = v
	}
	if v := os.Getenv("QDRANT_URL"); v != "" {
		cfg.Vector.Qdrant.URL = v
	}
	if v := os.Getenv("QDRANT_API_KEY"); v != "" && cfg.Vector.Qdrant.APIKey == "" {
		cfg.Vector.Qdrant.APIKey = v
	}
	if v := os.Getenv("CORS_ORIGINS"); v != "" {
		cfg.Server.CORSOrigins = splitList(v)
	}
}

// Validate reports settings that would make ingestion or retrieval misbehave.
func (c *Config) Validate() error {
	if c.Ingest.ChunkOverlap >= c.Ingest.ChunkSize {
		return fmt.Errorf("invalid config: chunk_overlap (%d) must be less than chunk_size (%d)",
			c.Ingest.ChunkOverlap, c.Ingest.ChunkSize)
	}
	switch c.Embedding.Provider {
	case ProviderOpenAI, ProviderONNX, ProviderMock:
	default:
		return fmt.Errorf("invalid config: unknown embedding provider %q", c.Embedding.Provider)
	}
	switch c.Completion.Provider {
	case ProviderOpenAI, ProviderMock:
	default:
		return fmt.Errorf("invalid config: unknown completion provider %q", c.Completion.Provider)
	}
	switch c.Vector.Type {
	case "memory", "bolt", "pinecone", "qdrant":
	default:
		return fmt.Errorf("invalid config: unknown vector index type %q", c.Vector.Type)
	}
	if c.Embedding.Dimensions <= 0 {
		return fmt.Errorf("invalid config: embedding dimensions must be positive")
	}
	if c.Retrieval.TargetedTopK <= 0 || c.Retrieval.DiscoveryTopK <= 0 ||
		c.Retrieval.ExpansionTopK <= 0 || c.Retrieval.ContextSize <= 0 {
		return fmt.Errorf("invalid config: retrieval top-k values must be positive")
	}
	return nil
}

// Addr returns host:port for the HTTP listener.
func (s *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

func (c *Config) resolvePaths(configDir string) {
	c.Storage.DatabasePath = expandPath(c.Storage.DatabasePath, configDir)
	c.Storage.VectorPath = expandPath(c.Storage.VectorPath, configDir)
	if c.Embedding.ModelPath != "" {
		c.Embedding.ModelPath = expandPath(c.Embedding.ModelPath, configDir)
	}
	for i := range c.Watch.Directories {
		c.Watch.Directories[i] = expandPath(c.Watch.Directories[i], configDir)
	}
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	if configDir != "" && (strings.HasPrefix(path, "./") || path == ".") {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
