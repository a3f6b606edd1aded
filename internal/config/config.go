// Package config loads and validates askdoc configuration.
//
// Configuration is resolved in three layers, later layers winning:
//  1. Built-in defaults (NewConfig)
//  2. YAML config file (askdoc.yaml in the data dir, or --config)
//  3. Environment variables (ASKDOC_*)
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete askdoc configuration.
type Config struct {
	Version     int               `yaml:"version" json:"version"`
	DataDir     string            `yaml:"data_dir" json:"data_dir"`
	Ingest      IngestConfig      `yaml:"ingest" json:"ingest"`
	Retrieval   RetrievalConfig   `yaml:"retrieval" json:"retrieval"`
	Parser      ParserConfig      `yaml:"parser" json:"parser"`
	Embeddings  EmbeddingsConfig  `yaml:"embeddings" json:"embeddings"`
	Blobstore   BlobstoreConfig   `yaml:"blobstore" json:"blobstore"`
	Watcher     WatcherConfig     `yaml:"watcher" json:"watcher"`
	Maintenance MaintenanceConfig `yaml:"maintenance" json:"maintenance"`
	LogLevel    string            `yaml:"log_level" json:"log_level"`
	LogFile     string            `yaml:"log_file" json:"log_file"`
}

// IngestConfig configures the concurrent ingestion pipeline.
type IngestConfig struct {
	// MaxConcurrency bounds in-flight page parse calls (observed range 50-150).
	MaxConcurrency int `yaml:"max_concurrency" json:"max_concurrency"`

	// MinPageTextChars is the skip threshold: pages with less extracted text
	// and no embedded raster images bypass the external parser.
	MinPageTextChars int `yaml:"min_page_text_chars" json:"min_page_text_chars"`

	// QueueSize is the capacity of the pending job queue.
	QueueSize int `yaml:"queue_size" json:"queue_size"`
}

// RetrievalConfig configures hybrid retrieval parameters.
type RetrievalConfig struct {
	// LexicalWeight is the weight for BM25 keyword matching (0.0-1.0).
	// Must sum to 1.0 with SemanticWeight.
	LexicalWeight float64 `yaml:"lexical_weight" json:"lexical_weight"`

	// SemanticWeight is the weight for embedding similarity (0.0-1.0).
	SemanticWeight float64 `yaml:"semantic_weight" json:"semantic_weight"`

	// RRFConstant is the rank-fusion smoothing parameter (default: 60).
	RRFConstant int `yaml:"rrf_constant" json:"rrf_constant"`

	// KPerBranch is the per-branch candidate count (default: 40).
	KPerBranch int `yaml:"k_per_branch" json:"k_per_branch"`

	// MaxContext caps the assembled context chunk set (default: 100).
	MaxContext int `yaml:"max_context" json:"max_context"`

	// ExpansionCacheSize bounds the query-expansion memoization cache.
	ExpansionCacheSize int `yaml:"expansion_cache_size" json:"expansion_cache_size"`
}

// ParserConfig configures the external multimodal page parser.
type ParserConfig struct {
	// Provider selects the parser backend: "gemini" or "none".
	Provider string `yaml:"provider" json:"provider"`

	// Model is the multimodal model name used for page parsing.
	Model string `yaml:"model" json:"model"`

	// APIKey is read from ASKDOC_GEMINI_API_KEY (or GEMINI_API_KEY) when empty.
	APIKey string `yaml:"api_key" json:"api_key"`

	// MaxRetries is the retry budget per page (total attempts = retries + 1).
	MaxRetries int `yaml:"max_retries" json:"max_retries"`

	// InitialBackoff is the first retry delay; doubles per attempt.
	InitialBackoff time.Duration `yaml:"initial_backoff" json:"initial_backoff"`
}

// EmbeddingsConfig configures the embedding provider.
type EmbeddingsConfig struct {
	Provider   string `yaml:"provider" json:"provider"` // "gemini" or "hash"
	Model      string `yaml:"model" json:"model"`
	Dimensions int    `yaml:"dimensions" json:"dimensions"`
	CacheSize  int    `yaml:"cache_size" json:"cache_size"`
}

// BlobstoreConfig configures the opaque per-tenant blob storage used to
// mirror lexical snapshots.
type BlobstoreConfig struct {
	// Type selects the backend: "local" (default) or "s3".
	Type string `yaml:"type" json:"type"`

	// Dir is the root directory for the local backend.
	Dir string `yaml:"dir" json:"dir"`

	// Bucket, Region, Endpoint configure the s3 backend.
	Bucket   string `yaml:"bucket" json:"bucket"`
	Region   string `yaml:"region" json:"region"`
	Endpoint string `yaml:"endpoint" json:"endpoint"`
	Prefix   string `yaml:"prefix" json:"prefix"`

	// AccessKeyID and SecretAccessKey override the default AWS credential
	// chain when both are set.
	AccessKeyID     string `yaml:"access_key_id" json:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key" json:"secret_access_key"`
}

// WatcherConfig configures the PDF drop-directory watcher.
type WatcherConfig struct {
	Dir            string        `yaml:"dir" json:"dir"`
	DebounceWindow time.Duration `yaml:"debounce_window" json:"debounce_window"`
}

// MaintenanceConfig configures scheduled background maintenance.
type MaintenanceConfig struct {
	// PageCacheTTL evicts parsed-page cache entries older than this (0 = keep).
	PageCacheTTL time.Duration `yaml:"page_cache_ttl" json:"page_cache_ttl"`

	// CleanupSchedule is a cron expression for cache cleanup.
	CleanupSchedule string `yaml:"cleanup_schedule" json:"cleanup_schedule"`

	// MirrorSchedule is a cron expression for snapshot mirroring to blobstore.
	MirrorSchedule string `yaml:"mirror_schedule" json:"mirror_schedule"`
}

// NewConfig returns a Config populated with defaults.
func NewConfig() *Config {
	home, _ := os.UserHomeDir()
	dataDir := filepath.Join(home, ".askdoc")

	return &Config{
		Version: 1,
		DataDir: dataDir,
		Ingest: IngestConfig{
			MaxConcurrency:   100,
			MinPageTextChars: 50,
			QueueSize:        64,
		},
		Retrieval: RetrievalConfig{
			LexicalWeight:      0.5,
			SemanticWeight:     0.5,
			RRFConstant:        60,
			KPerBranch:         40,
			MaxContext:         100,
			ExpansionCacheSize: 256,
		},
		Parser: ParserConfig{
			Provider:       "gemini",
			Model:          "gemini-2.5-flash",
			MaxRetries:     3,
			InitialBackoff: time.Second,
		},
		Embeddings: EmbeddingsConfig{
			Provider:   "gemini",
			Model:      "gemini-embedding-001",
			Dimensions: 768,
			CacheSize:  1000,
		},
		Blobstore: BlobstoreConfig{
			Type: "local",
			Dir:  filepath.Join(dataDir, "blobs"),
		},
		Watcher: WatcherConfig{
			DebounceWindow: 2 * time.Second,
		},
		Maintenance: MaintenanceConfig{
			PageCacheTTL:    0,
			CleanupSchedule: "0 3 * * *",
			MirrorSchedule:  "",
		},
		LogLevel: "info",
	}
}

// Load reads configuration from path (if it exists), applies env overrides,
// and validates the result. An empty path loads defaults + env only.
func Load(path string) (*Config, error) {
	cfg := NewConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides applies ASKDOC_* environment variables on top of the
// loaded configuration. Env vars always win.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("ASKDOC_DATA_DIR"); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv("ASKDOC_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("ASKDOC_MAX_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Ingest.MaxConcurrency = n
		}
	}
	if v := os.Getenv("ASKDOC_LEXICAL_WEIGHT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Retrieval.LexicalWeight = f
		}
	}
	if v := os.Getenv("ASKDOC_SEMANTIC_WEIGHT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Retrieval.SemanticWeight = f
		}
	}
	if v := os.Getenv("ASKDOC_RRF_CONSTANT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Retrieval.RRFConstant = n
		}
	}
	if v := os.Getenv("ASKDOC_GEMINI_API_KEY"); v != "" {
		c.Parser.APIKey = v
	} else if v := os.Getenv("GEMINI_API_KEY"); v != "" && c.Parser.APIKey == "" {
		c.Parser.APIKey = v
	}
	if v := os.Getenv("ASKDOC_BLOBSTORE_TYPE"); v != "" {
		c.Blobstore.Type = v
	}
	if v := os.Getenv("ASKDOC_S3_BUCKET"); v != "" {
		c.Blobstore.Bucket = v
	}
	if v := os.Getenv("ASKDOC_S3_ACCESS_KEY_ID"); v != "" {
		c.Blobstore.AccessKeyID = v
	}
	if v := os.Getenv("ASKDOC_S3_SECRET_ACCESS_KEY"); v != "" {
		c.Blobstore.SecretAccessKey = v
	}
}

// Validate checks configuration invariants.
func (c *Config) Validate() error {
	if c.Ingest.MaxConcurrency <= 0 {
		return fmt.Errorf("ingest.max_concurrency must be positive, got %d", c.Ingest.MaxConcurrency)
	}
	sum := c.Retrieval.LexicalWeight + c.Retrieval.SemanticWeight
	if sum < 0.99 || sum > 1.01 {
		return fmt.Errorf("retrieval weights must sum to 1.0, got %.2f", sum)
	}
	if c.Retrieval.RRFConstant <= 0 {
		return fmt.Errorf("retrieval.rrf_constant must be positive, got %d", c.Retrieval.RRFConstant)
	}
	if c.Retrieval.KPerBranch <= 0 {
		return fmt.Errorf("retrieval.k_per_branch must be positive, got %d", c.Retrieval.KPerBranch)
	}
	if c.Retrieval.MaxContext <= 0 {
		return fmt.Errorf("retrieval.max_context must be positive, got %d", c.Retrieval.MaxContext)
	}
	if c.Parser.MaxRetries < 0 {
		return fmt.Errorf("parser.max_retries must be non-negative, got %d", c.Parser.MaxRetries)
	}
	switch c.Blobstore.Type {
	case "", "local", "s3":
	default:
		return fmt.Errorf("blobstore.type must be local or s3, got %q", c.Blobstore.Type)
	}
	return nil
}

// TenantDir returns the per-tenant data directory.
func (c *Config) TenantDir(uid string) string {
	return filepath.Join(c.DataDir, "tenants", uid)
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
