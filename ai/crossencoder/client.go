// Copyright 2025 The sopcompliance Authors
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

// Package crossencoder is an HTTP client for cross-encoder rerank services.
//
// Two wire formats are supported. The text-embeddings-inference format
// (ai.RerankFormatTEI, the default) posts {"query","texts","raw_scores":true}
// and receives a top-level array of {"index","score"} holding raw logits. The
// Cohere format (ai.RerankFormatCohere, also served by Jina) posts
// {"model","query","documents","top_n"} and receives
// {"results":[{"index","relevance_score"}]} with relevance already in [0,1];
// a client in that mode reports its scores as normalized.
package crossencoder

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gautam1sharma/sopcompliance/ai"
)

var (
	// ErrEmptyHost is returned when no rerank host is given.
	ErrEmptyHost = errors.New("crossencoder: host is required")

	// ErrBadResponse is returned when the service answers with a non-200 status
	// or a payload that does not cover every document.
	ErrBadResponse = errors.New("crossencoder: bad response")

	// ErrUnknownFormat is returned for an unsupported wire format.
	ErrUnknownFormat = errors.New("crossencoder: unknown format")
)

// Option configures a Client.
type Option func(*Client) error

// WithTimeout sets the HTTP timeout. Zero keeps the default.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) error {
		if timeout > 0 {
			c.http.Timeout = timeout
		}
		return nil
	}
}

// WithFormat selects the wire format. Empty keeps the TEI format.
func WithFormat(format ai.RerankFormat) Option {
	return func(c *Client) error {
		switch format {
		case "":
		case ai.RerankFormatTEI, ai.RerankFormatCohere:
			c.format = format
		default:
			return fmt.Errorf("%w: %q", ErrUnknownFormat, format)
		}
		return nil
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) error {
		if client == nil {
			return errors.New("crossencoder: http client cannot be nil")
		}
		c.http = client
		return nil
	}
}

// WithLogger sets the logger. If nil, uses the default logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) error {
		if logger != nil {
			c.logger = logger
		}
		return nil
	}
}

// Client implements ai.Reranker over HTTP.
type Client struct {
	endpoint string
	model    string
	format   ai.RerankFormat
	http     *http.Client
	logger   *slog.Logger
}

var _ ai.NormalizedReranker = (*Client)(nil)

type teiRequest struct {
	Query     string   `json:"query"`
	Texts     []string `json:"texts"`
	RawScores bool     `json:"raw_scores"`
}

type teiResult struct {
	Index int     `json:"index"`
	Score float64 `json:"score"`
}

type cohereRequest struct {
	Model     string   `json:"model,omitempty"`
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
	TopN      int      `json:"top_n"`
}

type cohereResult struct {
	Index          int     `json:"index"`
	RelevanceScore float64 `json:"relevance_score"`
}

type cohereResponse struct {
	Results []cohereResult `json:"results"`
}

// NewClient creates a rerank client posting to host + "/rerank".
func NewClient(host, model string, opts ...Option) (*Client, error) {
	if host == "" {
		return nil, ErrEmptyHost
	}
	c := &Client{
		endpoint: host + "/rerank",
		model:    model,
		format:   ai.RerankFormatTEI,
		http:     &http.Client{Timeout: 60 * time.Second},
		logger:   slog.Default().With("component", "crossencoder", "model", model),
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	c.logger = c.logger.With("format", string(c.format))
	return c, nil
}

// ModelName returns the rerank model identifier.
func (c *Client) ModelName() string {
	return c.model
}

// Format returns the wire format in use.
func (c *Client) Format() ai.RerankFormat {
	return c.format
}

// ScoresNormalized reports whether scores are relevance in [0,1] rather than
// raw logits.
func (c *Client) ScoresNormalized() bool {
	return c.format == ai.RerankFormatCohere
}

// Rerank scores every pair and returns the scores in input order: logits for
// the TEI format, relevance in [0,1] for the Cohere format.
// Pairs sharing a query are sent in one request.
func (c *Client) Rerank(ctx context.Context, pairs []ai.Pair) ([]float64, error) {
	scores := make([]float64, len(pairs))
	if len(pairs) == 0 {
		return scores, nil
	}

	// group pair positions by query, preserving first-seen order
	var queries []string
	positions := make(map[string][]int)
	for i, p := range pairs {
		if _, ok := positions[p.Query]; !ok {
			queries = append(queries, p.Query)
		}
		positions[p.Query] = append(positions[p.Query], i)
	}

	for _, query := range queries {
		idx := positions[query]
		docs := make([]string, len(idx))
		for j, pos := range idx {
			docs[j] = pairs[pos].Passage
		}
		got, err := c.rerankQuery(ctx, query, docs)
		if err != nil {
			return nil, err
		}
		for j, pos := range idx {
			scores[pos] = got[j]
		}
	}
	return scores, nil
}

func (c *Client) rerankQuery(ctx context.Context, query string, docs []string) ([]float64, error) {
	var request any
	if c.format == ai.RerankFormatCohere {
		request = cohereRequest{Model: c.model, Query: query, Documents: docs, TopN: len(docs)}
	} else {
		request = teiRequest{Query: query, Texts: docs, RawScores: true}
	}
	body, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	c.logger.Debug("rerank request", "documents", len(docs))
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rerank request failed: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d: %s", ErrBadResponse, resp.StatusCode, string(payload))
	}

	var results []teiResult
	if c.format == ai.RerankFormatCohere {
		var decoded cohereResponse
		if err := json.Unmarshal(payload, &decoded); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrBadResponse, err)
		}
		results = make([]teiResult, len(decoded.Results))
		for i, r := range decoded.Results {
			results[i] = teiResult{Index: r.Index, Score: r.RelevanceScore}
		}
	} else if err := json.Unmarshal(payload, &results); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBadResponse, err)
	}

	scores := make([]float64, len(docs))
	seen := make([]bool, len(docs))
	for _, r := range results {
		if r.Index < 0 || r.Index >= len(docs) {
			return nil, fmt.Errorf("%w: result index %d out of range", ErrBadResponse, r.Index)
		}
		scores[r.Index] = r.Score
		seen[r.Index] = true
	}
	for i, ok := range seen {
		if !ok {
			return nil, fmt.Errorf("%w: missing score for document %d", ErrBadResponse, i)
		}
	}
	return scores, nil
}

// Close releases idle connections.
func (c *Client) Close() {
	c.http.CloseIdleConnections()
}
