package ai

import "context"

// Embedder generates vector embeddings from text for semantic similarity search.
// Implementations must be thread-safe for concurrent use and deterministic:
// identical input must produce identical vectors, since embeddings are cached
// by content hash.
type Embedder interface {
	// EmbedText generates a vector embedding for a single text string.
	// The returned vector represents the semantic meaning of the text.
	// Returns an error if the embedding generation fails.
	EmbedText(ctx context.Context, text string) ([]float32, error)

	// EmbedTexts generates vector embeddings for multiple text strings in a batch.
	// Batch processing is more efficient than calling EmbedText multiple times.
	// The returned slice contains embeddings in the same order as the input texts.
	// Returns an error if any embedding generation fails.
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// Pair is a (query, passage) pair scored by a Reranker.
type Pair struct {
	Query   string
	Passage string
}

// Reranker scores query/passage pairs with a higher precision model than the
// bi-encoder, typically a cross-encoder.
// Implementations must be thread-safe for concurrent use.
type Reranker interface {
	// Rerank returns one raw relevance score per pair, in input order.
	// Scores are unbounded logits that callers squash into [0,1], unless the
	// implementation is a NormalizedReranker reporting normalized scores.
	// Returns an error if scoring fails.
	Rerank(ctx context.Context, pairs []Pair) ([]float64, error)

	// ModelName returns the model identifier for logging.
	ModelName() string
}

// NormalizedReranker is implemented by rerankers that can return relevance
// already scaled to [0,1]. When ScoresNormalized reports true, callers use the
// scores as they are instead of squashing them.
type NormalizedReranker interface {
	Reranker
	ScoresNormalized() bool
}

// AIProvider aggregates AI services for convenient initialization and lifecycle management.
// A provider creates and manages the Embedder and optional Reranker,
// ensuring they share configuration and resources appropriately.
type AIProvider interface {
	// Embedder returns the text embedding service.
	// The returned Embedder is safe for concurrent use.
	Embedder() Embedder

	// EmbeddingModel returns the embedding model identifier.
	// It is part of every embedding cache key so that switching models
	// never returns vectors from another model.
	EmbeddingModel() string

	// Reranker returns the precision reranker, or nil when none is configured.
	Reranker() Reranker

	// Close releases resources held by the provider and its services.
	// After Close is called, the provider and its services should not be used.
	Close() error
}
