package analysis

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"

	"github.com/gautam1sharma/sopcompliance/cache"
	"github.com/gautam1sharma/sopcompliance/catalog"
	"github.com/gautam1sharma/sopcompliance/core"
	"github.com/gautam1sharma/sopcompliance/embedding"
	"github.com/gautam1sharma/sopcompliance/report"
	"github.com/gautam1sharma/sopcompliance/scoring"
	"github.com/gautam1sharma/sopcompliance/segment"
	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
)

// Analyzer orchestrates the analysis of SOP documents.
type Analyzer struct {
	segmenter    *segment.Segmenter
	kb           *catalog.KnowledgeBase
	pipeline     *embedding.Pipeline
	engine       *scoring.Engine
	aggregator   *report.Aggregator
	cache        *cache.Cache
	pool         *ants.Pool
	cacheResults bool
	logger       *slog.Logger
}

// Option configures an Analyzer.
type Option func(*Analyzer) error

// WithPoolSize sets the worker pool size used by AnalyzeAll.
// Default is runtime.NumCPU() / 2, with a minimum of 1.
func WithPoolSize(size int) Option {
	return func(a *Analyzer) error {
		if size < 1 {
			size = 1
		}

		// Release old pool
		if a.pool != nil {
			a.pool.Release()
		}

		pool, err := ants.NewPool(size)
		if err != nil {
			return err
		}
		a.pool = pool
		return nil
	}
}

// WithResultCache enables or disables caching of complete reports.
// Enabled by default.
func WithResultCache(enabled bool) Option {
	return func(a *Analyzer) error {
		a.cacheResults = enabled
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(a *Analyzer) error {
		if logger == nil {
			logger = slog.Default()
		}
		a.logger = logger.With("component", "analysis")
		return nil
	}
}

// NewAnalyzer creates an analyzer.
func NewAnalyzer(
	segmenter *segment.Segmenter,
	kb *catalog.KnowledgeBase,
	pipeline *embedding.Pipeline,
	engine *scoring.Engine,
	c *cache.Cache,
	opts ...Option,
) (*Analyzer, error) {
	switch {
	case segmenter == nil:
		return nil, ErrSegmenterRequired
	case kb == nil:
		return nil, ErrKnowledgeBaseRequired
	case pipeline == nil:
		return nil, ErrPipelineRequired
	case engine == nil:
		return nil, ErrEngineRequired
	case c == nil:
		return nil, ErrCacheRequired
	}

	poolSize := runtime.NumCPU() / 2
	if poolSize < 1 {
		poolSize = 1
	}
	pool, err := ants.NewPool(poolSize)
	if err != nil {
		return nil, err
	}

	a := &Analyzer{
		segmenter:    segmenter,
		kb:           kb,
		pipeline:     pipeline,
		engine:       engine,
		aggregator:   report.NewAggregator(),
		cache:        c,
		pool:         pool,
		cacheResults: true,
		logger:       slog.Default().With("component", "analysis"),
	}

	for _, opt := range opts {
		if optErr := opt(a); optErr != nil {
			a.Release()
			return nil, optErr
		}
	}
	return a, nil
}

// Method returns the scoring method label reported with results.
func (a *Analyzer) Method() string {
	return a.engine.Method()
}

// Analyze scores every catalog control against text. A document without
// analyzable content yields a report in which every control is
// non-compliant and AnalyzableChunks is zero. Model failures abort the
// analysis and no report is returned.
func (a *Analyzer) Analyze(ctx context.Context, text string) (*core.ComplianceReport, error) {
	logger := a.logger.With("analysis_id", uuid.NewString())

	if !a.kb.Loaded() {
		if _, err := a.kb.Load(ctx); err != nil {
			return nil, fmt.Errorf("loading catalog: %w", err)
		}
	}
	controls := a.kb.Controls()

	clean := a.segmenter.Clean(text)
	texts := a.segmenter.Chunks(clean)
	logger.Debug("document segmented", "chars", len(clean), "chunks", len(texts))

	if len(texts) == 0 {
		logger.Warn("document has no analyzable content", "err", ErrNoAnalyzableContent)
		return a.emptyReport(controls), nil
	}

	docHash := a.documentHash(clean)
	key := a.resultKey(docHash)
	if a.cacheResults {
		var cached core.ComplianceReport
		if a.cache.GetJSON(ctx, key, &cached) {
			logger.Debug("report served from cache")
			return &cached, nil
		}
	}

	vectors, err := a.pipeline.EmbedDocument(ctx, docHash, texts)
	if err != nil {
		logger.Error("error embedding document", "err", err)
		return nil, err
	}
	chunks := make([]core.Chunk, len(texts))
	for i, t := range texts {
		chunks[i] = core.Chunk{Index: i, Text: t, Embedding: vectors[i]}
	}

	features, err := a.engine.Features(ctx, chunks)
	if err != nil {
		logger.Error("error computing features", "err", err)
		return nil, err
	}

	results := make([]core.ScoreResult, len(controls))
	for i, control := range controls {
		score, evidence, err := a.engine.Score(ctx, control, chunks, features)
		if err != nil {
			logger.Error("error scoring control", "control", control.ID, "err", err)
			return nil, err
		}
		results[i] = a.aggregator.Result(control, score, evidence)
	}

	rep := a.buildFrom(results, features, len(chunks))
	if a.cacheResults {
		a.cache.SetJSON(ctx, key, rep, cache.TTLResults)
	}

	logger.Info("analysis complete",
		"method", rep.Method,
		"controls", rep.Summary.TotalControls,
		"matched", rep.Summary.MatchedControls,
		"score", rep.ComplianceScore)
	return rep, nil
}

// Document is one input to AnalyzeAll.
type Document struct {
	Name string
	Text string
}

// Outcome is the result of analyzing one Document.
type Outcome struct {
	Name   string
	Report *core.ComplianceReport
	Err    error
}

// AnalyzeAll analyzes documents concurrently on the worker pool and returns
// one outcome per document in input order. A failing document does not
// stop the others.
func (a *Analyzer) AnalyzeAll(ctx context.Context, docs []Document) []Outcome {
	outcomes := make([]Outcome, len(docs))
	if len(docs) == 0 {
		return outcomes
	}

	// Load once up front so workers do not race to load the catalog.
	if !a.kb.Loaded() {
		if _, err := a.kb.Load(ctx); err != nil {
			for i, doc := range docs {
				outcomes[i] = Outcome{Name: doc.Name, Err: fmt.Errorf("loading catalog: %w", err)}
			}
			return outcomes
		}
	}

	var wg sync.WaitGroup
	for i, doc := range docs {
		outcomes[i].Name = doc.Name
		wg.Add(1)
		err := a.pool.Submit(func() {
			defer wg.Done()
			rep, err := a.Analyze(ctx, doc.Text)
			outcomes[i].Report = rep
			outcomes[i].Err = err
		})
		if err != nil {
			wg.Done()
			outcomes[i].Err = err
		}
	}
	wg.Wait()
	return outcomes
}

// Release releases the worker pool.
// The analyzer should not be used after calling Release.
func (a *Analyzer) Release() {
	if a.pool != nil {
		a.pool.Release()
	}
}

// CheckAnalyzable returns ErrNoAnalyzableContent for a report built from a
// document without analyzable content.
func CheckAnalyzable(rep *core.ComplianceReport) error {
	if rep == nil || !rep.Analyzable() {
		return ErrNoAnalyzableContent
	}
	return nil
}

// documentHash identifies the chunks of a cleaned document: the text and the
// windowing settings that split it.
func (a *Analyzer) documentHash(clean string) string {
	return core.ContentHash(a.segmenter.Fingerprint() + "\x00" + clean)
}

// resultKey identifies a report by scoring method, keyword policy, catalog
// fingerprint and document hash.
func (a *Analyzer) resultKey(docHash string) string {
	hash := core.ContentHash(a.engine.Policy().String() + "\x00" + a.kb.Fingerprint() + "\x00" + docHash)
	return cache.ResultKey(a.engine.Method(), hash)
}

// emptyReport creates a report in which every control scored zero.
func (a *Analyzer) emptyReport(controls []*core.Control) *core.ComplianceReport {
	results := make([]core.ScoreResult, len(controls))
	for i, control := range controls {
		results[i] = a.aggregator.Result(control, 0, nil)
	}
	return a.buildFrom(results, nil, 0)
}

func (a *Analyzer) buildFrom(results []core.ScoreResult, features scoring.Features, chunks int) *core.ComplianceReport {
	rep := a.aggregator.Aggregate(results)
	rep.Method = a.engine.Method()
	if len(features) > 0 {
		rep.SemanticAnalysis = map[string]int(features)
	}
	rep.AnalyzableChunks = chunks
	return rep
}
