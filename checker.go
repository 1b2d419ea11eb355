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

package sopcompliance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gautam1sharma/sopcompliance/ai"
	"github.com/gautam1sharma/sopcompliance/ai/openai"
	"github.com/gautam1sharma/sopcompliance/analysis"
	"github.com/gautam1sharma/sopcompliance/cache"
	"github.com/gautam1sharma/sopcompliance/catalog"
	"github.com/gautam1sharma/sopcompliance/core"
	"github.com/gautam1sharma/sopcompliance/embedding"
	"github.com/gautam1sharma/sopcompliance/scoring"
	"github.com/gautam1sharma/sopcompliance/segment"
	"github.com/gautam1sharma/sopcompliance/storage"
	"github.com/gautam1sharma/sopcompliance/storage/badger"
	"github.com/gautam1sharma/sopcompliance/storage/redis"
)

// ErrGarbageCollectionUnsupported is returned by CollectGarbage when the
// durable store has no value log to compact.
var ErrGarbageCollectionUnsupported = errors.New("durable store does not support garbage collection")

// Checker wires the segmenter, cache, knowledge base, scoring engine and
// analyzer together and owns their lifecycle.
type Checker struct {
	store     storage.Store
	ownsStore bool
	cache     *cache.Cache
	provider  ai.AIProvider
	pipeline  *embedding.Pipeline
	kb        *catalog.KnowledgeBase
	engine    *scoring.Engine
	analyzer  *analysis.Analyzer
	sweeper   *cache.Sweeper
	cancel    context.CancelFunc
	logger    *slog.Logger
}

// Option configures a Checker.
type Option func(*options)

type options struct {
	aiConfig        *ai.Config
	provider        ai.AIProvider
	store           storage.Store
	badgerPath      string
	redisURL        string
	source          catalog.Source
	segmentOpts     []segment.Option
	pipelineOpts    []embedding.Option
	keywordPolicy   scoring.KeywordPolicy
	resultCache     bool
	sweepInterval   time.Duration
	analysisWorkers int
	logger          *slog.Logger
}

// WithAIConfig sets the model service configuration used to build the
// OpenAI-compatible provider. Default is ai.DefaultConfig().
func WithAIConfig(cfg *ai.Config) Option {
	return func(o *options) { o.aiConfig = cfg }
}

// WithProvider supplies a ready AI provider. The checker closes it.
func WithProvider(provider ai.AIProvider) Option {
	return func(o *options) { o.provider = provider }
}

// WithStore supplies the durable cache store. The caller keeps ownership.
func WithStore(store storage.Store) Option {
	return func(o *options) { o.store = store }
}

// WithBadgerCache keeps the durable cache in a badger database at path.
func WithBadgerCache(path string) Option {
	return func(o *options) { o.badgerPath = path }
}

// WithRedisCache keeps the durable cache in redis.
func WithRedisCache(url string) Option {
	return func(o *options) { o.redisURL = url }
}

// WithCatalog sets the control catalog source. Without one the built-in
// fallback catalog is used.
func WithCatalog(source catalog.Source) Option {
	return func(o *options) { o.source = source }
}

// WithCatalogFile reads the control catalog from a JSON, YAML or TOML file.
func WithCatalogFile(path string) Option {
	return func(o *options) { o.source = catalog.NewFileSource(path) }
}

// WithSegmentOptions configures the segmenter.
func WithSegmentOptions(opts ...segment.Option) Option {
	return func(o *options) { o.segmentOpts = append(o.segmentOpts, opts...) }
}

// WithPipelineOptions configures the embedding pipeline.
func WithPipelineOptions(opts ...embedding.Option) Option {
	return func(o *options) { o.pipelineOpts = append(o.pipelineOpts, opts...) }
}

// WithKeywordPolicy sets the keyword gate policy.
func WithKeywordPolicy(policy scoring.KeywordPolicy) Option {
	return func(o *options) { o.keywordPolicy = policy }
}

// WithResultCache enables or disables caching of complete reports.
func WithResultCache(enabled bool) Option {
	return func(o *options) { o.resultCache = enabled }
}

// WithSweepInterval sets how often expired cache entries are swept.
// Zero or less disables the background sweeper.
func WithSweepInterval(interval time.Duration) Option {
	return func(o *options) { o.sweepInterval = interval }
}

// WithAnalysisWorkers sets how many documents AnalyzeAll processes at once.
func WithAnalysisWorkers(workers int) Option {
	return func(o *options) { o.analysisWorkers = workers }
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// Open builds a Checker. The background sweeper starts when a durable store
// is configured and stops in Close.
func Open(ctx context.Context, opts ...Option) (*Checker, error) {
	o := &options{
		resultCache:   true,
		sweepInterval: cache.DefaultSweepInterval,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}

	c := &Checker{logger: o.logger.With("component", "checker")}
	ok := false
	defer func() {
		if !ok {
			c.Close()
		}
	}()

	if err := c.openStore(ctx, o); err != nil {
		return nil, err
	}

	cacheOpts := []cache.Option{cache.WithLogger(o.logger)}
	if c.store != nil {
		cacheOpts = append(cacheOpts, cache.WithStore(c.store))
	}
	var err error
	if c.cache, err = cache.New(cacheOpts...); err != nil {
		return nil, err
	}

	if o.provider != nil {
		c.provider = o.provider
	} else {
		aiConfig := o.aiConfig
		if aiConfig == nil {
			aiConfig = ai.DefaultConfig()
		}
		if c.provider, err = openai.NewProvider(aiConfig); err != nil {
			return nil, err
		}
	}

	pipelineOpts := append([]embedding.Option{embedding.WithLogger(o.logger)}, o.pipelineOpts...)
	if c.pipeline, err = embedding.NewPipeline(c.provider, c.cache, pipelineOpts...); err != nil {
		return nil, err
	}

	if c.kb, err = catalog.New(o.source, c.cache, c.pipeline, catalog.WithLogger(o.logger)); err != nil {
		return nil, err
	}

	engineOpts := []scoring.Option{
		scoring.WithKeywordPolicy(o.keywordPolicy),
		scoring.WithLogger(o.logger),
	}
	if reranker := c.provider.Reranker(); reranker != nil {
		engineOpts = append(engineOpts, scoring.WithReranker(reranker))
	}
	if c.engine, err = scoring.NewEngine(c.pipeline, engineOpts...); err != nil {
		return nil, err
	}

	segmenter, err := segment.New(o.segmentOpts...)
	if err != nil {
		return nil, err
	}

	analyzerOpts := []analysis.Option{
		analysis.WithResultCache(o.resultCache),
		analysis.WithLogger(o.logger),
	}
	if o.analysisWorkers > 0 {
		analyzerOpts = append(analyzerOpts, analysis.WithPoolSize(o.analysisWorkers))
	}
	if c.analyzer, err = analysis.NewAnalyzer(segmenter, c.kb, c.pipeline, c.engine, c.cache, analyzerOpts...); err != nil {
		return nil, err
	}

	if c.store != nil && o.sweepInterval > 0 {
		c.sweeper = cache.NewSweeper(c.cache, o.sweepInterval, cache.WithSweeperLogger(o.logger))
		sweepCtx, cancel := context.WithCancel(context.Background())
		c.cancel = cancel
		if err := c.sweeper.Start(sweepCtx); err != nil {
			return nil, err
		}
	}

	ok = true
	return c, nil
}

func (c *Checker) openStore(ctx context.Context, o *options) error {
	var err error
	switch {
	case o.store != nil:
		c.store = o.store
	case o.redisURL != "":
		c.store, err = redis.NewStore(ctx, o.redisURL, redis.WithLogger(o.logger))
		c.ownsStore = true
	case o.badgerPath != "":
		c.store, err = badger.NewStore(o.badgerPath)
		c.ownsStore = true
	}
	if err != nil {
		c.store = nil
		c.ownsStore = false
		return fmt.Errorf("opening cache store: %w", err)
	}
	return nil
}

// Close stops the sweeper and releases every owned resource.
func (c *Checker) Close() error {
	if c.sweeper != nil {
		c.sweeper.Stop()
	}
	if c.cancel != nil {
		c.cancel()
	}
	if c.analyzer != nil {
		c.analyzer.Release()
	}
	if c.pipeline != nil {
		c.pipeline.Release()
	}

	var errs []error
	if c.provider != nil {
		if err := c.provider.Close(); err != nil {
			c.logger.Error("error closing AI provider", "err", err)
			errs = append(errs, err)
		}
	}
	if c.store != nil && c.ownsStore {
		if err := c.store.Close(); err != nil {
			c.logger.Error("error closing cache store", "err", err)
			errs = append(errs, err)
		}
	}
	c.sweeper, c.cancel, c.analyzer, c.pipeline, c.provider, c.store = nil, nil, nil, nil, nil, nil
	return errors.Join(errs...)
}

// Analyze scores text against the control catalog.
func (c *Checker) Analyze(ctx context.Context, text string) (*core.ComplianceReport, error) {
	return c.analyzer.Analyze(ctx, text)
}

// AnalyzeAll analyzes several documents concurrently.
func (c *Checker) AnalyzeAll(ctx context.Context, docs []analysis.Document) []analysis.Outcome {
	return c.analyzer.AnalyzeAll(ctx, docs)
}

// Warm loads the catalog and caches the embeddings of every control and
// cluster reference sentence. Returns the number of controls.
func (c *Checker) Warm(ctx context.Context) (int, error) {
	n, err := c.kb.Warm(ctx)
	if err != nil {
		return 0, err
	}
	if err := c.engine.Warm(ctx); err != nil {
		return 0, err
	}
	return n, nil
}

// Method returns the scoring method label.
func (c *Checker) Method() string {
	return c.engine.Method()
}

// KnowledgeBase returns the control knowledge base.
func (c *Checker) KnowledgeBase() *catalog.KnowledgeBase {
	return c.kb
}

// Cache returns the content cache.
func (c *Checker) Cache() *cache.Cache {
	return c.cache
}

// Stats returns cache counters.
func (c *Checker) Stats() cache.Stats {
	return c.cache.Stats()
}

// DurableStats inspects the durable cache tier.
func (c *Checker) DurableStats(ctx context.Context) (cache.DurableStats, error) {
	return c.cache.DurableStats(ctx)
}

// CleanupExpired removes expired cache entries from both tiers.
func (c *Checker) CleanupExpired(ctx context.Context) (int, error) {
	return c.cache.CleanupExpired(ctx)
}

// Clear removes every cache entry.
func (c *Checker) Clear(ctx context.Context) error {
	return c.cache.Clear(ctx)
}

// CollectGarbage compacts the durable store when it supports compaction.
func (c *Checker) CollectGarbage() error {
	gc, ok := c.store.(interface{ CollectGarbage() error })
	if !ok {
		return ErrGarbageCollectionUnsupported
	}
	return gc.CollectGarbage()
}
