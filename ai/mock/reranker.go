package mock

import (
	"context"
	"strings"
	"sync"

	"github.com/gautam1sharma/sopcompliance/ai"
)

// MockReranker is a test double for ai.Reranker.
type MockReranker struct {
	// RerankFunc is called by Rerank if set.
	// If nil, scores pairs by shared word overlap.
	RerankFunc func(ctx context.Context, pairs []ai.Pair) ([]float64, error)

	// Normalized makes ScoresNormalized report true, as a Cohere style
	// service would.
	Normalized bool

	mu        sync.Mutex
	callCount int
	pairCount int
}

var _ ai.NormalizedReranker = (*MockReranker)(nil)

// NewMockReranker creates a mock reranker with default overlap scoring.
func NewMockReranker() *MockReranker {
	return &MockReranker{}
}

// Rerank returns one raw score per pair.
// Default: number of shared lowercase words minus 2, so unrelated pairs get
// negative logits and related pairs positive ones.
func (m *MockReranker) Rerank(ctx context.Context, pairs []ai.Pair) ([]float64, error) {
	m.mu.Lock()
	m.callCount++
	m.pairCount += len(pairs)
	fn := m.RerankFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, pairs)
	}

	scores := make([]float64, len(pairs))
	for i, pair := range pairs {
		queryWords := make(map[string]bool)
		for _, w := range strings.Fields(strings.ToLower(pair.Query)) {
			queryWords[strings.Trim(w, ".,;:!?")] = true
		}
		shared := 0
		seen := make(map[string]bool)
		for _, w := range strings.Fields(strings.ToLower(pair.Passage)) {
			w = strings.Trim(w, ".,;:!?")
			if queryWords[w] && !seen[w] {
				shared++
				seen[w] = true
			}
		}
		scores[i] = float64(shared) - 2
	}
	return scores, nil
}

// ModelName returns the mock model identifier.
func (m *MockReranker) ModelName() string {
	return "mock-reranker"
}

// ScoresNormalized reports the Normalized field.
func (m *MockReranker) ScoresNormalized() bool {
	return m.Normalized
}

// CallCount returns the number of times Rerank was called.
func (m *MockReranker) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callCount
}

// PairCount returns the total number of pairs scored.
func (m *MockReranker) PairCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pairCount
}

// Reset clears the call count and custom functions.
func (m *MockReranker) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callCount = 0
	m.pairCount = 0
	m.RerankFunc = nil
}
