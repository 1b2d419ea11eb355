// Package mock provides test double implementations of AI service interfaces.
//
// This package contains mock implementations of ai.Embedder, ai.Reranker,
// and ai.AIProvider for use in unit tests. The mocks allow tests to run without
// external model services and enable controlled, deterministic behavior.
//
// # Usage in Tests
//
//	// Basic usage with default behavior
//	mockProvider := mock.NewMockProvider()
//	vector, err := mockProvider.Embedder().EmbedText(ctx, "test")
//
//	// Predictable similarity: one axis per term
//	embedder := mock.NewKeywordEmbedder("policy", "access", "training")
//
//	// Check call counts
//	count := embedder.CallCount()
//
// # Default Behavior
//
//   - MockEmbedder: Returns deterministic unit vectors based on text hash
//   - MockReranker: Scores pairs by shared word count minus two
//   - MockProvider: Aggregates the mock embedder and optional reranker
package mock
