package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gautam1sharma/sopcompliance/ai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)

	assert.Equal(t, "iso27002.json", cfg.Catalog.Path)
	assert.Equal(t, BackendBadger, cfg.Cache.Backend)
	assert.Equal(t, 3, cfg.Segment.ChunkSize)
	assert.Equal(t, 1, cfg.Segment.Overlap)
	assert.Equal(t, 10, cfg.Segment.MinWords)
	assert.Equal(t, "hard", cfg.Scoring.KeywordPolicy)
	assert.Equal(t, time.Hour, cfg.SweepInterval())
	assert.True(t, cfg.ResultsCached())
	assert.NoError(t, cfg.Validate())
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sopcheck.yaml")
	content := `catalog:
  path: /etc/sopcheck/iso27002.yaml
model:
  embedding_host: http://embeddings:8000
  embedding_model: text-embedding-3-small
  token_env: TEST_SOPCHECK_TOKEN
  reranker_host: http://reranker:8080/
  reranker_format: cohere
  timeout_secs: 15
segment:
  chunk_size: 4
  overlap: 2
scoring:
  keyword_policy: soft
cache:
  backend: redis
  redis_url: redis://localhost:6379/0
  sweep_minutes: 5
  cache_results: false
pipeline:
  batch_size: 8
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "/etc/sopcheck/iso27002.yaml", cfg.Catalog.Path)
	assert.Equal(t, 4, cfg.Segment.ChunkSize)
	assert.Equal(t, 2, cfg.Segment.Overlap)
	assert.Equal(t, 10, cfg.Segment.MinWords)
	assert.Equal(t, "soft", cfg.Scoring.KeywordPolicy)
	assert.Equal(t, 5*time.Minute, cfg.SweepInterval())
	assert.False(t, cfg.ResultsCached())
	assert.Equal(t, 8, cfg.Pipeline.BatchSize)

	t.Setenv("TEST_SOPCHECK_TOKEN", "secret")
	aiCfg := cfg.AIConfig()
	require.NoError(t, aiCfg.Validate())
	assert.Equal(t, "http://embeddings:8000/v1", aiCfg.EmbeddingHost)
	assert.Equal(t, "secret", aiCfg.EmbeddingToken)
	assert.Equal(t, "http://reranker:8080", aiCfg.RerankerHost)
	assert.True(t, aiCfg.RerankEnabled())
	assert.Equal(t, ai.RerankFormatCohere, aiCfg.RerankerFormat)
	assert.Equal(t, 15*time.Second, aiCfg.RequestTimeout)
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("catalog: [unterminated"), 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*AppConfig)
	}{
		{"unknown backend", func(c *AppConfig) { c.Cache.Backend = "etcd" }},
		{"redis without url", func(c *AppConfig) { c.Cache.Backend = BackendRedis }},
		{"negative sweep", func(c *AppConfig) { c.Cache.SweepMinutes = -1 }},
		{"negative overlap", func(c *AppConfig) { c.Segment.Overlap = -1 }},
		{"negative pool", func(c *AppConfig) { c.Pipeline.PoolSize = -2 }},
		{"missing model", func(c *AppConfig) { c.Model.EmbeddingModel = "" }},
		{"unknown reranker format", func(c *AppConfig) { c.Model.RerankerFormat = "grpc" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	cfg := Default()
	cfg.Cache.Backend = BackendMemory
	assert.NoError(t, cfg.Validate())
}

func TestSave_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "sopcheck.yaml")
	cfg := Default()
	cfg.Catalog.Path = "controls.toml"

	require.NoError(t, Save(path, cfg))
	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}
