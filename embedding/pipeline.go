package embedding

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/gautam1sharma/sopcompliance/ai"
	"github.com/gautam1sharma/sopcompliance/cache"
	"github.com/gautam1sharma/sopcompliance/core"
	"github.com/panjf2000/ants/v2"
)

const (
	DefaultBatchSize  = 32
	DefaultMaxRetries = 3
	DefaultRetryDelay = 500 * time.Millisecond
)

// Pipeline embeds texts through the content cache.
// Cache misses are embedded in batches submitted to a worker pool.
type Pipeline struct {
	embedder   ai.Embedder
	model      string
	cache      *cache.Cache
	pool       *ants.Pool
	batchSize  int
	maxRetries int
	retryDelay time.Duration
	progress   io.Writer
	logger     *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline) error

// WithPoolSize sets the worker pool size for concurrent batches.
// Default is runtime.NumCPU() / 2, with a minimum of 1.
func WithPoolSize(size int) Option {
	return func(p *Pipeline) error {
		if size < 1 {
			size = 1
		}

		// Release old pool
		if p.pool != nil {
			p.pool.Release()
		}

		pool, err := ants.NewPool(size)
		if err != nil {
			return err
		}
		p.pool = pool
		return nil
	}
}

// WithBatchSize sets how many texts are sent to the model per call.
func WithBatchSize(size int) Option {
	return func(p *Pipeline) error {
		if size < 1 {
			return errors.New("embedding: batch size must be at least 1")
		}
		p.batchSize = size
		return nil
	}
}

// WithMaxRetries sets the number of attempts per batch.
func WithMaxRetries(attempts int) Option {
	return func(p *Pipeline) error {
		if attempts < 1 {
			return ErrInvalidMaxAttempts
		}
		p.maxRetries = attempts
		return nil
	}
}

// WithRetryDelay sets the base delay of the exponential backoff.
func WithRetryDelay(delay time.Duration) Option {
	return func(p *Pipeline) error {
		if delay < 0 {
			return errors.New("embedding: retry delay cannot be negative")
		}
		p.retryDelay = delay
		return nil
	}
}

// WithProgress reports batch progress to w. A nil writer disables reporting.
func WithProgress(w io.Writer) Option {
	return func(p *Pipeline) error {
		p.progress = w
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) error {
		if logger == nil {
			logger = slog.Default()
		}
		p.logger = logger
		return nil
	}
}

// NewPipeline creates an embedding pipeline over the provider's embedder.
func NewPipeline(provider ai.AIProvider, c *cache.Cache, opts ...Option) (*Pipeline, error) {
	if provider == nil {
		return nil, ErrAIProviderRequired
	}
	if c == nil {
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

	p := &Pipeline{
		embedder:   provider.Embedder(),
		model:      provider.EmbeddingModel(),
		cache:      c,
		pool:       pool,
		batchSize:  DefaultBatchSize,
		maxRetries: DefaultMaxRetries,
		retryDelay: DefaultRetryDelay,
		logger:     slog.Default().With("component", "embedding-pipeline"),
	}

	for _, opt := range opts {
		if optErr := opt(p); optErr != nil {
			p.Release()
			return nil, optErr
		}
	}

	return p, nil
}

// Model returns the embedding model name used in cache keys.
func (p *Pipeline) Model() string {
	return p.model
}

// EmbedText returns the normalized embedding of text.
func (p *Pipeline) EmbedText(ctx context.Context, text string) ([]float32, error) {
	vectors, err := p.EmbedTexts(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedTexts returns one normalized embedding per text, in input order.
// Each distinct text has its own cache entry; identical texts are embedded once.
func (p *Pipeline) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	results := make([][]float32, len(texts))
	positions := make(map[string][]int)
	var misses []string

	for i, text := range texts {
		if _, pending := positions[text]; pending {
			positions[text] = append(positions[text], i)
			continue
		}
		if vectors, ok := p.cache.GetVectors(ctx, p.textKey(text)); ok && len(vectors) == 1 && len(vectors[0]) > 0 {
			results[i] = vectors[0]
			continue
		}
		positions[text] = []int{i}
		misses = append(misses, text)
	}

	if len(misses) == 0 {
		return results, nil
	}

	p.logger.Debug("embedding cache misses", "texts", len(texts), "misses", len(misses))
	computed, err := p.compute(ctx, misses)
	if err != nil {
		return nil, err
	}

	for j, text := range misses {
		p.cache.SetVectors(ctx, p.textKey(text), [][]float32{computed[j]}, cache.TTLEmbeddings)
		for _, pos := range positions[text] {
			results[pos] = computed[j]
		}
	}
	return results, nil
}

// EmbedDocument returns the normalized embeddings of a document's chunks.
// All chunk vectors of one document share one cache entry keyed by docHash.
func (p *Pipeline) EmbedDocument(ctx context.Context, docHash string, chunks []string) ([][]float32, error) {
	if len(chunks) == 0 {
		return [][]float32{}, nil
	}

	key := cache.DocumentEmbeddingKey(p.model, docHash)
	if vectors, ok := p.cache.GetVectors(ctx, key); ok && len(vectors) == len(chunks) {
		p.logger.Debug("loaded document embeddings from cache", "chunks", len(chunks))
		return vectors, nil
	}

	p.logger.Debug("creating document embeddings", "chunks", len(chunks))
	vectors, err := p.compute(ctx, chunks)
	if err != nil {
		return nil, err
	}
	p.cache.SetVectors(ctx, key, vectors, cache.TTLEmbeddings)
	return vectors, nil
}

func (p *Pipeline) textKey(text string) string {
	return cache.EmbeddingKey(p.model, core.ContentHash(text))
}

// compute embeds texts in batches on the pool and returns normalized vectors
// in input order.
func (p *Pipeline) compute(ctx context.Context, texts []string) ([][]float32, error) {
	results := make([][]float32, len(texts))
	batches := (len(texts) + p.batchSize - 1) / p.batchSize
	errs := make([]error, batches)

	var tracker *ProgressTracker
	if p.progress != nil {
		tracker = NewProgressTracker(p.progress, "Embedding", len(texts), p.batchSize)
		tracker.Start()
	}

	var wg sync.WaitGroup
	for b := 0; b < batches; b++ {
		start := b * p.batchSize
		end := min(start+p.batchSize, len(texts))

		wg.Add(1)
		submitErr := p.pool.Submit(func() {
			defer wg.Done()
			errs[b] = p.embedBatch(ctx, texts[start:end], results[start:end])
			if errs[b] == nil && tracker != nil {
				tracker.Increment(end - start)
			}
		})
		if submitErr != nil {
			wg.Done()
			errs[b] = submitErr
		}
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			p.logger.Error("failed to generate embeddings", "texts", len(texts), "err", err)
			return nil, fmt.Errorf("%w: %w", ErrEmbeddingFailed, err)
		}
	}
	if tracker != nil {
		tracker.Finish()
	}
	return results, nil
}

// embedBatch fills out with the normalized vectors of batch.
func (p *Pipeline) embedBatch(ctx context.Context, batch []string, out [][]float32) error {
	var vectors [][]float32
	err := RetryWithBackoff(ctx, func() error {
		var err error
		vectors, err = p.embedder.EmbedTexts(ctx, batch)
		if err != nil {
			return err
		}
		if len(vectors) != len(batch) {
			return fmt.Errorf("embedding count mismatch: expected %d, got %d", len(batch), len(vectors))
		}
		for i, v := range vectors {
			if len(v) == 0 {
				return fmt.Errorf("empty embedding for text %d", i)
			}
		}
		return nil
	}, p.maxRetries, p.retryDelay)
	if err != nil {
		return fmt.Errorf("after %d attempts: %w", p.maxRetries, err)
	}

	for i, v := range vectors {
		out[i] = NormalizeVector(v)
	}
	return nil
}

// Release releases the worker pool.
// The pipeline should not be used after calling Release.
func (p *Pipeline) Release() {
	if p.pool != nil {
		p.pool.Release()
	}
}
