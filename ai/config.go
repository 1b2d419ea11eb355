// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package ai

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// RerankFormat names a rerank service wire format.
type RerankFormat string

const (
	// RerankFormatTEI is the text-embeddings-inference /rerank API. Scores are
	// requested raw, as logits.
	RerankFormatTEI RerankFormat = "tei"

	// RerankFormatCohere is the Cohere style /rerank API also served by Jina.
	// Scores come back as relevance in [0,1].
	RerankFormatCohere RerankFormat = "cohere"
)

// Config holds configuration for AI service providers.
type Config struct {
	// EmbeddingHost is the base URL for the embedding service API.
	// Example: "http://localhost:11434/v1" for local OpenAI-compatible server
	EmbeddingHost string

	// EmbeddingModel is the model identifier to use for text embeddings.
	// Example: "embeddinggemma", "text-embedding-3-small"
	EmbeddingModel string

	// EmbeddingToken is the bearer token for the embedding service.
	// Local OpenAI-compatible servers accept any value.
	EmbeddingToken string

	// RerankerHost is the base URL of a cross-encoder rerank service.
	// Empty disables reranking and the composite scorer is used instead.
	// Example: "http://localhost:8080"
	RerankerHost string

	// RerankerModel is the cross-encoder model identifier.
	// Example: "cross-encoder/ms-marco-MiniLM-L-6-v2"
	RerankerModel string

	// RerankerFormat is the wire format spoken by the rerank service.
	// Default: RerankFormatTEI
	RerankerFormat RerankFormat

	// RequestTimeout bounds a single call to a model service.
	// Default: 60s
	RequestTimeout time.Duration
}

// ConfigOption is a functional option for configuring a Config.
type ConfigOption func(*Config)

// WithEmbeddingHost sets the embedding service host URL.
func WithEmbeddingHost(host string) ConfigOption {
	return func(c *Config) {
		c.EmbeddingHost = host
	}
}

// WithEmbeddingModel sets the embedding model identifier.
func WithEmbeddingModel(model string) ConfigOption {
	return func(c *Config) {
		c.EmbeddingModel = model
	}
}

// WithEmbeddingToken sets the embedding service bearer token.
func WithEmbeddingToken(token string) ConfigOption {
	return func(c *Config) {
		c.EmbeddingToken = token
	}
}

// WithRerankerHost sets the rerank service host URL.
func WithRerankerHost(host string) ConfigOption {
	return func(c *Config) {
		c.RerankerHost = host
	}
}

// WithRerankerModel sets the rerank model identifier.
func WithRerankerModel(model string) ConfigOption {
	return func(c *Config) {
		c.RerankerModel = model
	}
}

// WithRerankerFormat sets the rerank service wire format.
func WithRerankerFormat(format RerankFormat) ConfigOption {
	return func(c *Config) {
		c.RerankerFormat = format
	}
}

// WithRequestTimeout sets the per-request timeout for model services.
func WithRequestTimeout(timeout time.Duration) ConfigOption {
	return func(c *Config) {
		c.RequestTimeout = timeout
	}
}

// DefaultConfig returns a Config with sensible defaults for a local OpenAI-compatible service.
// Reranking is disabled by default.
func DefaultConfig() *Config {
	return &Config{
		EmbeddingHost:  "http://localhost:11434/v1",
		EmbeddingModel: "embeddinggemma",
		EmbeddingToken: "none",
		RerankerModel:  "cross-encoder/ms-marco-MiniLM-L-6-v2",
		RerankerFormat: RerankFormatTEI,
		RequestTimeout: 60 * time.Second,
	}
}

// NewConfig creates a Config with the default values and applies the provided options.
// This is the recommended way to create a Config with custom settings.
//
// Example:
//   cfg := NewConfig(
//       WithEmbeddingHost("http://localhost:11434/v1"),
//       WithEmbeddingModel("text-embedding-3-small"),
//       WithRerankerHost("http://localhost:8080"),
//   )
func NewConfig(opts ...ConfigOption) *Config {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// RerankEnabled reports whether a rerank service is configured.
func (c *Config) RerankEnabled() bool {
	return c.RerankerHost != ""
}

// Normalize ensures the configuration is in a canonical form.
// It automatically adds the /v1 suffix to the embedding host if missing, which is
// required by most OpenAI-compatible APIs (Ollama, LocalAI, vLLM, etc).
// The reranker host only loses its trailing slash.
func (c *Config) Normalize() {
	if c.EmbeddingHost != "" && !strings.HasSuffix(c.EmbeddingHost, "/v1") {
		c.EmbeddingHost = strings.TrimSuffix(c.EmbeddingHost, "/")
		c.EmbeddingHost = c.EmbeddingHost + "/v1"
	}
	c.RerankerHost = strings.TrimSuffix(c.RerankerHost, "/")
	c.RerankerFormat = RerankFormat(strings.ToLower(strings.TrimSpace(string(c.RerankerFormat))))
	if c.RerankerFormat == "" {
		c.RerankerFormat = RerankFormatTEI
	}
	if c.EmbeddingToken == "" {
		c.EmbeddingToken = "none"
	}
}

// Validate checks that the configuration is valid and complete.
// It automatically normalizes the configuration before validation.
func (c *Config) Validate() error {
	c.Normalize()

	if c.EmbeddingHost == "" {
		return errors.New("ai config: EmbeddingHost is required")
	}
	if c.EmbeddingModel == "" {
		return errors.New("ai config: EmbeddingModel is required")
	}
	if c.RerankEnabled() && c.RerankerModel == "" {
		return errors.New("ai config: RerankerModel is required when RerankerHost is set")
	}
	switch c.RerankerFormat {
	case RerankFormatTEI, RerankFormatCohere:
	default:
		return fmt.Errorf("ai config: unknown RerankerFormat %q", c.RerankerFormat)
	}
	if c.RequestTimeout < 0 {
		return errors.New("ai config: RequestTimeout cannot be negative")
	}
	return nil
}
