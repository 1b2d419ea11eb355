// Package config loads the sopcheck application configuration from YAML.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gautam1sharma/sopcompliance/ai"
	"github.com/gautam1sharma/sopcompliance/segment"
	"gopkg.in/yaml.v3"
)

// Cache backends.
const (
	BackendBadger = "badger"
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

// CatalogConfig locates the control catalog.
type CatalogConfig struct {
	Path string `yaml:"path"`
}

// ModelConfig configures the embedding and rerank services.
type ModelConfig struct {
	EmbeddingHost  string `yaml:"embedding_host"`
	EmbeddingModel string `yaml:"embedding_model"`
	TokenEnv       string `yaml:"token_env"`
	RerankerHost   string `yaml:"reranker_host"`
	RerankerModel  string `yaml:"reranker_model"`
	RerankerFormat string `yaml:"reranker_format"`
	TimeoutSecs    int    `yaml:"timeout_secs"`
}

// SegmentConfig configures document windowing. Zero values take the
// segment package defaults.
type SegmentConfig struct {
	ChunkSize int `yaml:"chunk_size"`
	Overlap   int `yaml:"overlap"`
	MinWords  int `yaml:"min_words"`
}

// ScoringConfig configures the scoring engine.
type ScoringConfig struct {
	KeywordPolicy string `yaml:"keyword_policy"`
}

// CacheConfig selects and configures the durable cache tier.
type CacheConfig struct {
	Backend      string `yaml:"backend"`
	Path         string `yaml:"path"`
	RedisURL     string `yaml:"redis_url"`
	SweepMinutes int    `yaml:"sweep_minutes"`
	CacheResults *bool  `yaml:"cache_results,omitempty"`
}

// PipelineConfig configures embedding concurrency.
type PipelineConfig struct {
	PoolSize   int `yaml:"pool_size"`
	BatchSize  int `yaml:"batch_size"`
	MaxRetries int `yaml:"max_retries"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	Catalog  CatalogConfig  `yaml:"catalog"`
	Model    ModelConfig    `yaml:"model"`
	Segment  SegmentConfig  `yaml:"segment"`
	Scoring  ScoringConfig  `yaml:"scoring"`
	Cache    CacheConfig    `yaml:"cache"`
	Pipeline PipelineConfig `yaml:"pipeline"`
}

// Load reads a config from a specified path. If the file does not exist, returns defaults.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Default(), nil
		}
		return nil, err
	}
	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	applyDefaults(&cfg)
	return &cfg, nil
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Default returns the configuration used when no file exists.
func Default() *AppConfig {
	cfg := &AppConfig{}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *AppConfig) {
	aiDefaults := ai.DefaultConfig()

	if cfg.Catalog.Path == "" {
		cfg.Catalog.Path = "iso27002.json"
	}
	if cfg.Model.EmbeddingHost == "" {
		cfg.Model.EmbeddingHost = aiDefaults.EmbeddingHost
	}
	if cfg.Model.EmbeddingModel == "" {
		cfg.Model.EmbeddingModel = aiDefaults.EmbeddingModel
	}
	if cfg.Model.TokenEnv == "" {
		cfg.Model.TokenEnv = "SOPCHECK_EMBEDDING_TOKEN"
	}
	if cfg.Model.RerankerModel == "" {
		cfg.Model.RerankerModel = aiDefaults.RerankerModel
	}
	if cfg.Model.TimeoutSecs == 0 {
		cfg.Model.TimeoutSecs = int(aiDefaults.RequestTimeout / time.Second)
	}
	if cfg.Segment.ChunkSize == 0 {
		cfg.Segment.ChunkSize = segment.DefaultChunkSize
	}
	if cfg.Segment.Overlap == 0 && cfg.Segment.ChunkSize > 1 {
		cfg.Segment.Overlap = segment.DefaultOverlap
	}
	if cfg.Segment.MinWords == 0 {
		cfg.Segment.MinWords = segment.DefaultMinWords
	}
	if cfg.Scoring.KeywordPolicy == "" {
		cfg.Scoring.KeywordPolicy = "hard"
	}
	if cfg.Cache.Backend == "" {
		cfg.Cache.Backend = BackendBadger
	}
	if cfg.Cache.Path == "" {
		cfg.Cache.Path = "cache"
	}
	if cfg.Cache.SweepMinutes == 0 {
		cfg.Cache.SweepMinutes = 60
	}
	if cfg.Cache.CacheResults == nil {
		enabled := true
		cfg.Cache.CacheResults = &enabled
	}
}

// Validate checks values that defaults cannot repair.
func (c *AppConfig) Validate() error {
	switch c.Cache.Backend {
	case BackendBadger, BackendMemory:
	case BackendRedis:
		if c.Cache.RedisURL == "" {
			return errors.New("config: cache.redis_url is required for the redis backend")
		}
	default:
		return fmt.Errorf("config: unknown cache backend %q", c.Cache.Backend)
	}
	if c.Cache.SweepMinutes < 0 {
		return errors.New("config: cache.sweep_minutes cannot be negative")
	}
	if c.Segment.ChunkSize < 1 || c.Segment.Overlap < 0 || c.Segment.MinWords < 0 {
		return errors.New("config: segment sizes cannot be negative")
	}
	if c.Pipeline.PoolSize < 0 || c.Pipeline.BatchSize < 0 || c.Pipeline.MaxRetries < 0 {
		return errors.New("config: pipeline sizes cannot be negative")
	}
	return c.AIConfig().Validate()
}

// AIConfig builds the model service configuration. The embedding token is
// read from the environment variable named by Model.TokenEnv.
func (c *AppConfig) AIConfig() *ai.Config {
	return ai.NewConfig(
		ai.WithEmbeddingHost(c.Model.EmbeddingHost),
		ai.WithEmbeddingModel(c.Model.EmbeddingModel),
		ai.WithEmbeddingToken(os.Getenv(c.Model.TokenEnv)),
		ai.WithRerankerHost(c.Model.RerankerHost),
		ai.WithRerankerModel(c.Model.RerankerModel),
		ai.WithRerankerFormat(ai.RerankFormat(c.Model.RerankerFormat)),
		ai.WithRequestTimeout(time.Duration(c.Model.TimeoutSecs)*time.Second),
	)
}

// SweepInterval returns the cache sweep interval.
func (c *AppConfig) SweepInterval() time.Duration {
	return time.Duration(c.Cache.SweepMinutes) * time.Minute
}

// ResultsCached reports whether complete reports are cached.
func (c *AppConfig) ResultsCached() bool {
	return c.Cache.CacheResults == nil || *c.Cache.CacheResults
}
