// Package config loads and validates OpenContext configuration.
//
// Configuration lives at <corpus>/.oc/config.yaml and can be overridden
// by OC_* environment variables (highest priority). Nothing here is
// hardcoded into the core packages: the embedding endpoint, model, batch
// sizes and search weights all flow in through this struct.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DataDirName is the per-corpus directory holding config, manifest and index.
const DataDirName = ".oc"

// Config represents the complete OpenContext configuration.
type Config struct {
	Version    int              `yaml:"version" json:"version"`
	Embeddings EmbeddingsConfig `yaml:"embeddings" json:"embeddings"`
	Chunking   ChunkingConfig   `yaml:"chunking" json:"chunking"`
	Search     SearchConfig     `yaml:"search" json:"search"`
	Watcher    WatcherConfig    `yaml:"watcher" json:"watcher"`
	Server     ServerConfig     `yaml:"server" json:"server"`
}

// EmbeddingsConfig configures the external embedding API.
type EmbeddingsConfig struct {
	// BaseURL is the API base, e.g. https://api.openai.com/v1.
	BaseURL string `yaml:"base_url" json:"base_url"`
	// APIKey authenticates requests. Usually supplied via OC_API_KEY.
	APIKey string `yaml:"api_key" json:"api_key"`
	// Model is the embedding model name.
	Model string `yaml:"model" json:"model"`
	// Dimensions is the expected vector dimensionality (0 = whatever the model returns).
	Dimensions int `yaml:"dimensions" json:"dimensions"`
	// BatchSize is the maximum texts per API request.
	BatchSize int `yaml:"batch_size" json:"batch_size"`
	// Concurrency is the maximum in-flight batches.
	Concurrency int `yaml:"concurrency" json:"concurrency"`
	// Timeout is the per-request timeout.
	Timeout time.Duration `yaml:"timeout" json:"timeout"`
	// MaxRetries is the retry budget per batch for transient failures.
	MaxRetries int `yaml:"max_retries" json:"max_retries"`
	// RequestsPerSecond rate-limits outbound API calls (0 = unlimited).
	RequestsPerSecond float64 `yaml:"requests_per_second" json:"requests_per_second"`
}

// ChunkingConfig configures the Markdown chunker.
type ChunkingConfig struct {
	// MaxChunkChars is the maximum chunk size before paragraph splitting.
	MaxChunkChars int `yaml:"max_chunk_chars" json:"max_chunk_chars"`
	// OverlapChars is the tail of the previous sub-chunk carried into the
	// next one, so content straddling a split point stays findable.
	OverlapChars int `yaml:"overlap_chars" json:"overlap_chars"`
}

// SearchConfig configures hybrid search fusion.
type SearchConfig struct {
	// VectorWeight is the RRF weight for vector results.
	VectorWeight float64 `yaml:"vector_weight" json:"vector_weight"`
	// KeywordWeight is the RRF weight for keyword results.
	KeywordWeight float64 `yaml:"keyword_weight" json:"keyword_weight"`
	// RRFConstant is the RRF smoothing parameter (k).
	RRFConstant int `yaml:"rrf_constant" json:"rrf_constant"`
	// DefaultLimit is the result limit when the caller passes none.
	DefaultLimit int `yaml:"default_limit" json:"default_limit"`
}

// WatcherConfig configures the filesystem auto-sync watcher.
type WatcherConfig struct {
	// Enabled turns on fsnotify-based rebuilds under `oc serve --watch`.
	Enabled bool `yaml:"enabled" json:"enabled"`
	// Debounce is how long to coalesce bursts of file events.
	Debounce time.Duration `yaml:"debounce" json:"debounce"`
}

// ServerConfig configures the MCP server.
type ServerConfig struct {
	LogLevel string `yaml:"log_level" json:"log_level"`
	LogFile  string `yaml:"log_file" json:"log_file"`
}

// NewConfig returns a config populated with defaults.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Embeddings: EmbeddingsConfig{
			BaseURL:           "https://api.openai.com/v1",
			Model:             "text-embedding-3-small",
			BatchSize:         32,
			Concurrency:       4,
			Timeout:           30 * time.Second,
			MaxRetries:        3,
			RequestsPerSecond: 10,
		},
		Chunking: ChunkingConfig{
			MaxChunkChars: 2000,
			OverlapChars:  200,
		},
		Search: SearchConfig{
			VectorWeight:  0.7,
			KeywordWeight: 0.3,
			RRFConstant:   60,
			DefaultLimit:  10,
		},
		Watcher: WatcherConfig{
			Enabled:  false,
			Debounce: 500 * time.Millisecond,
		},
		Server: ServerConfig{
			LogLevel: "info",
		},
	}
}

// Load reads the config for a corpus root, applies defaults for missing
// fields and environment overrides on top. A missing config file is not
// an error; defaults are returned.
func Load(root string) (*Config, error) {
	cfg := NewConfig()

	path := filepath.Join(root, DataDirName, "config.yaml")
	data, err := os.ReadFile(path)
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	cfg.applyEnv()
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the config to <root>/.oc/config.yaml.
func (c *Config) Save(root string) error {
	dir := filepath.Join(root, DataDirName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	return os.WriteFile(filepath.Join(dir, "config.yaml"), data, 0o644)
}

// applyEnv applies OC_* environment variable overrides.
func (c *Config) applyEnv() {
	if v := os.Getenv("OC_API_BASE"); v != "" {
		c.Embeddings.BaseURL = v
	}
	if v := os.Getenv("OC_API_KEY"); v != "" {
		c.Embeddings.APIKey = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" && c.Embeddings.APIKey == "" {
		c.Embeddings.APIKey = v
	}
	if v := os.Getenv("OC_EMBED_MODEL"); v != "" {
		c.Embeddings.Model = v
	}
	if v := os.Getenv("OC_EMBED_BATCH_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Embeddings.BatchSize = n
		}
	}
	if v := os.Getenv("OC_EMBED_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Embeddings.Concurrency = n
		}
	}
	if v := os.Getenv("OC_LOG_LEVEL"); v != "" {
		c.Server.LogLevel = v
	}
}

// applyDefaults fills zero values left by a sparse config file.
func (c *Config) applyDefaults() {
	def := NewConfig()
	if c.Embeddings.BaseURL == "" {
		c.Embeddings.BaseURL = def.Embeddings.BaseURL
	}
	if c.Embeddings.Model == "" {
		c.Embeddings.Model = def.Embeddings.Model
	}
	if c.Embeddings.BatchSize <= 0 {
		c.Embeddings.BatchSize = def.Embeddings.BatchSize
	}
	if c.Embeddings.Concurrency <= 0 {
		c.Embeddings.Concurrency = def.Embeddings.Concurrency
	}
	if c.Embeddings.Timeout <= 0 {
		c.Embeddings.Timeout = def.Embeddings.Timeout
	}
	if c.Embeddings.MaxRetries <= 0 {
		c.Embeddings.MaxRetries = def.Embeddings.MaxRetries
	}
	if c.Chunking.MaxChunkChars <= 0 {
		c.Chunking.MaxChunkChars = def.Chunking.MaxChunkChars
	}
	if c.Chunking.OverlapChars < 0 {
		c.Chunking.OverlapChars = def.Chunking.OverlapChars
	}
	if c.Search.VectorWeight == 0 && c.Search.KeywordWeight == 0 {
		c.Search.VectorWeight = def.Search.VectorWeight
		c.Search.KeywordWeight = def.Search.KeywordWeight
	}
	if c.Search.RRFConstant <= 0 {
		c.Search.RRFConstant = def.Search.RRFConstant
	}
	if c.Search.DefaultLimit <= 0 {
		c.Search.DefaultLimit = def.Search.DefaultLimit
	}
	if c.Watcher.Debounce <= 0 {
		c.Watcher.Debounce = def.Watcher.Debounce
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = def.Server.LogLevel
	}
}

// Validate checks invariants that would break downstream components.
func (c *Config) Validate() error {
	if c.Embeddings.BatchSize < 1 || c.Embeddings.BatchSize > 512 {
		return fmt.Errorf("embeddings.batch_size must be in [1, 512], got %d", c.Embeddings.BatchSize)
	}
	if c.Embeddings.Concurrency < 1 || c.Embeddings.Concurrency > 64 {
		return fmt.Errorf("embeddings.concurrency must be in [1, 64], got %d", c.Embeddings.Concurrency)
	}
	if c.Search.VectorWeight < 0 || c.Search.KeywordWeight < 0 {
		return fmt.Errorf("search weights must be non-negative")
	}
	if c.Search.VectorWeight+c.Search.KeywordWeight == 0 {
		return fmt.Errorf("at least one search weight must be positive")
	}
	if c.Chunking.OverlapChars >= c.Chunking.MaxChunkChars {
		return fmt.Errorf("chunking.overlap_chars (%d) must be smaller than max_chunk_chars (%d)",
			c.Chunking.OverlapChars, c.Chunking.MaxChunkChars)
	}
	return nil
}

// DataDir returns the per-corpus data directory for a corpus root.
func DataDir(root string) string {
	return filepath.Join(root, DataDirName)
}

// IndexDir returns the index directory for a corpus root.
func IndexDir(root string) string {
	return filepath.Join(root, DataDirName, "index")
}
