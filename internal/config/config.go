// Package config loads engine configuration from a YAML file with
// environment overrides for secrets.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the engine
type Config struct {
	Source    SourceConfig    `yaml:"source"`
	Chunker   ChunkerConfig   `yaml:"chunker"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Generator GeneratorConfig `yaml:"generator"`
	Store     StoreConfig     `yaml:"store"`
	Indexer   IndexerConfig   `yaml:"indexer"`
	Query     QueryConfig     `yaml:"query"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// SourceConfig configures the repository content source
type SourceConfig struct {
	Root         string   `yaml:"root"` // Repositories live at <root>/<owner>/<repo>
	Includes     []string `yaml:"includes"`
	Excludes     []string `yaml:"excludes"`
	MaxFileBytes int64    `yaml:"max_file_bytes"`
}

// ChunkerConfig configures token-bounded chunking
type ChunkerConfig struct {
	TargetTokens  int `yaml:"target_tokens"`  // Soft chunk size target
	OverlapTokens int `yaml:"overlap_tokens"` // Window overlap for fallback chunking
	MaxFileTokens int `yaml:"max_file_tokens"`
}

// EmbeddingConfig configures the embedding provider adapter
type EmbeddingConfig struct {
	Provider     string `yaml:"provider"` // "openai" or "local"
	BaseURL      string `yaml:"base_url"`
	Model        string `yaml:"model"`
	APIKeyEnv    string `yaml:"api_key_env"` // Environment variable holding the key
	Dimension    int    `yaml:"dimension"`
	BatchSize    int    `yaml:"batch_size"`
	MaxTokens    int    `yaml:"max_tokens"`    // Provider hard token ceiling per input
	CacheEntries int    `yaml:"cache_entries"` // LRU embedding cache size
	TimeoutSecs  int    `yaml:"timeout_secs"`
}

// GeneratorConfig configures the answer generator
type GeneratorConfig struct {
	BaseURL       string `yaml:"base_url"`
	Model         string `yaml:"model"`
	APIKeyEnv     string `yaml:"api_key_env"`
	MaxTokens     int    `yaml:"max_tokens"`     // Completion budget
	ContextTokens int    `yaml:"context_tokens"` // Retrieved-context budget in the prompt
	TimeoutSecs   int    `yaml:"timeout_secs"`
}

// StoreConfig configures the vector store
type StoreConfig struct {
	Path string `yaml:"path"` // SQLite database file, ":memory:" for ephemeral
}

// IndexerConfig configures the indexing pipeline
type IndexerConfig struct {
	Workers int `yaml:"workers"` // Concurrent embedding batches
}

// QueryConfig configures retrieval defaults
type QueryConfig struct {
	TopK                int     `yaml:"top_k"`
	SimilarityThreshold float64 `yaml:"similarity_threshold"`
	CacheEntries        int     `yaml:"cache_entries"`
	CacheTTLSecs        int     `yaml:"cache_ttl_secs"`
}

// LoggingConfig configures log output
type LoggingConfig struct {
	Level string `yaml:"level"` // trace, debug, info, warn, error
}

// Default returns the default configuration
func Default() *Config {
	return &Config{
		Source: SourceConfig{
			Root:     "./repos",
			Includes: []string{"**/*"},
			Excludes: []string{
				"**/node_modules/**", "**/vendor/**", "**/.git/**",
				"**/dist/**", "**/build/**", "**/__pycache__/**",
				"**/*.min.js", "**/*.lock",
			},
			MaxFileBytes: 1 << 20, // 1 MiB
		},
		Chunker: ChunkerConfig{
			TargetTokens:  500,
			OverlapTokens: 50,
			MaxFileTokens: 200000,
		},
		Embedding: EmbeddingConfig{
			Provider:     "local",
			BaseURL:      "https://api.openai.com/v1",
			Model:        "text-embedding-3-small",
			APIKeyEnv:    "OPENAI_API_KEY",
			Dimension:    1536,
			BatchSize:    50,
			MaxTokens:    8192,
			CacheEntries: 10000,
			TimeoutSecs:  30,
		},
		Generator: GeneratorConfig{
			BaseURL:       "https://api.openai.com/v1",
			Model:         "gpt-4o-mini",
			APIKeyEnv:     "OPENAI_API_KEY",
			MaxTokens:     1024,
			ContextTokens: 6000,
			TimeoutSecs:   60,
		},
		Store: StoreConfig{
			Path: "./codeseek.db",
		},
		Indexer: IndexerConfig{
			Workers: 4,
		},
		Query: QueryConfig{
			TopK:                8,
			SimilarityThreshold: 0.25,
			CacheEntries:        256,
			CacheTTLSecs:        300,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from path, merging over defaults. A missing file
// is not an error; defaults are returned.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				cfg.applyEnv()
				return cfg, nil
			}
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv applies environment variable overrides
func (c *Config) applyEnv() {
	if v := os.Getenv("CODESEEK_SOURCE_ROOT"); v != "" {
		c.Source.Root = v
	}
	if v := os.Getenv("CODESEEK_DB_PATH"); v != "" {
		c.Store.Path = v
	}
	if v := os.Getenv("CODESEEK_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("CODESEEK_EMBEDDING_PROVIDER"); v != "" {
		c.Embedding.Provider = v
	}
	if v := os.Getenv("CODESEEK_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Indexer.Workers = n
		}
	}
}

// Validate checks cross-field constraints
func (c *Config) Validate() error {
	if c.Chunker.TargetTokens <= 0 {
		return fmt.Errorf("chunker.target_tokens must be positive")
	}
	if c.Embedding.MaxTokens <= c.Chunker.TargetTokens {
		return fmt.Errorf("embedding.max_tokens (%d) must exceed chunker.target_tokens (%d)",
			c.Embedding.MaxTokens, c.Chunker.TargetTokens)
	}
	if c.Embedding.BatchSize <= 0 {
		return fmt.Errorf("embedding.batch_size must be positive")
	}
	if c.Query.TopK <= 0 {
		return fmt.Errorf("query.top_k must be positive")
	}
	if c.Indexer.Workers <= 0 {
		return fmt.Errorf("indexer.workers must be positive")
	}
	return nil
}

// APIKey resolves the embedding provider API key from the environment
func (e EmbeddingConfig) APIKey() string {
	if e.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(e.APIKeyEnv)
}

// APIKey resolves the generator API key from the environment
func (g GeneratorConfig) APIKey() string {
	if g.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(g.APIKeyEnv)
}
