package mock

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"sync"
)

// DefaultDimension is the vector size produced by the default mock behavior.
const DefaultDimension = 384

// MockEmbedder is a test double for ai.Embedder.
// It allows custom behavior injection via function fields and is safe for
// concurrent use, since embedding pipelines call it from worker pools.
type MockEmbedder struct {
	// EmbedTextFunc is called by EmbedText if set.
	// If nil, uses default deterministic behavior.
	EmbedTextFunc func(ctx context.Context, text string) ([]float32, error)

	// EmbedTextsFunc is called by EmbedTexts if set.
	// If nil, EmbedTextFunc (or the default) is applied to each text.
	EmbedTextsFunc func(ctx context.Context, texts []string) ([][]float32, error)

	mu        sync.Mutex
	callCount int
	textCount int
}

// NewMockEmbedder creates a mock embedder with default deterministic behavior.
// Note: Returns concrete type to allow test assertions via GetMockEmbedder().
func NewMockEmbedder() *MockEmbedder {
	return &MockEmbedder{}
}

// NewKeywordEmbedder creates a mock embedder whose vectors have one dimension
// per axis term plus a shared bias dimension. A text scores 1 on an axis when
// it contains the term (case-insensitive). Texts sharing terms end up close in
// cosine space, which makes similarity outcomes predictable in tests.
func NewKeywordEmbedder(axes ...string) *MockEmbedder {
	m := &MockEmbedder{}
	m.EmbedTextFunc = func(_ context.Context, text string) ([]float32, error) {
		return KeywordVector(text, axes), nil
	}
	return m
}

// KeywordVector builds the normalized keyword-axis vector used by NewKeywordEmbedder.
func KeywordVector(text string, axes []string) []float32 {
	lower := strings.ToLower(text)
	vector := make([]float32, len(axes)+1)
	vector[len(axes)] = 0.1 // bias keeps unrelated texts from being zero vectors
	for i, axis := range axes {
		if strings.Contains(lower, strings.ToLower(axis)) {
			vector[i] = 1
		}
	}
	return normalize(vector)
}

// EmbedText generates a deterministic embedding based on text hash.
func (m *MockEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	m.mu.Lock()
	m.callCount++
	m.textCount++
	fn := m.EmbedTextFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, text)
	}

	// Default: generate deterministic vector from text hash
	return generateDeterministicVector(text, DefaultDimension), nil
}

// EmbedTexts generates deterministic embeddings for multiple texts.
func (m *MockEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	m.mu.Lock()
	m.callCount++
	m.textCount += len(texts)
	batchFn := m.EmbedTextsFunc
	fn := m.EmbedTextFunc
	m.mu.Unlock()

	if batchFn != nil {
		return batchFn(ctx, texts)
	}

	embeddings := make([][]float32, len(texts))
	for i, text := range texts {
		if fn != nil {
			vector, err := fn(ctx, text)
			if err != nil {
				return nil, err
			}
			embeddings[i] = vector
			continue
		}
		embeddings[i] = generateDeterministicVector(text, DefaultDimension)
	}
	return embeddings, nil
}

// CallCount returns the number of times any method was called.
func (m *MockEmbedder) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callCount
}

// TextCount returns the total number of texts embedded across all calls.
func (m *MockEmbedder) TextCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.textCount
}

// ResetCounts clears the call counters but keeps injected behavior.
func (m *MockEmbedder) ResetCounts() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callCount = 0
	m.textCount = 0
}

// Reset clears the call counts and custom functions.
func (m *MockEmbedder) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callCount = 0
	m.textCount = 0
	m.EmbedTextFunc = nil
	m.EmbedTextsFunc = nil
}

// generateDeterministicVector creates a deterministic embedding vector from text.
// It uses FNV hash to ensure the same text always produces the same vector.
func generateDeterministicVector(text string, dim int) []float32 {
	h := fnv.New32a()
	h.Write([]byte(text))
	seed := h.Sum32()

	vector := make([]float32, dim)
	for i := 0; i < dim; i++ {
		// Simple pseudo-random generation based on seed and index
		seed = seed*1664525 + 1013904223 // LCG constants
		vector[i] = float32(seed%1000)/1000.0 - 0.5
	}

	return normalize(vector)
}

func normalize(vector []float32) []float32 {
	var sumSquares float64
	for _, v := range vector {
		sumSquares += float64(v) * float64(v)
	}
	if sumSquares == 0 {
		return vector
	}
	norm := float32(1.0 / math.Sqrt(sumSquares))
	for i := range vector {
		vector[i] *= norm
	}
	return vector
}
