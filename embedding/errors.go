package embedding

import "errors"

var (
	// ErrEmbeddingFailed is returned when the embedding model fails after all retries.
	ErrEmbeddingFailed = errors.New("embedding failed")

	// ErrInvalidMaxAttempts is returned when maxAttempts is <= 0
	ErrInvalidMaxAttempts = errors.New("maxAttempts must be greater than 0")

	// ErrAIProviderRequired is returned when an AI provider is not provided.
	ErrAIProviderRequired = errors.New("AI provider required")

	// ErrCacheRequired is returned when a cache is not provided.
	ErrCacheRequired = errors.New("cache required")
)
