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

package mock

import "github.com/gautam1sharma/sopcompliance/ai"

// MockEmbeddingModel is the model name reported by MockProvider.
const MockEmbeddingModel = "mock-embedding"

// MockProvider is a test double for ai.AIProvider.
// It aggregates a mock embedder and an optional mock reranker.
type MockProvider struct {
	embedder *MockEmbedder
	reranker *MockReranker
}

// NewMockProvider creates a new mock provider with a default mock embedder
// and no reranker.
//
// Returns ai.AIProvider interface for consistency with production constructors.
// Use GetMockEmbedder()/GetMockReranker() to access concrete types for test assertions.
func NewMockProvider() ai.AIProvider {
	return &MockProvider{
		embedder: NewMockEmbedder(),
	}
}

// NewMockProviderWithServices creates a mock provider with custom mock services.
// A nil reranker disables reranking.
func NewMockProviderWithServices(embedder *MockEmbedder, reranker *MockReranker) ai.AIProvider {
	if embedder == nil {
		embedder = NewMockEmbedder()
	}
	return &MockProvider{
		embedder: embedder,
		reranker: reranker,
	}
}

// Embedder returns the mock embedder.
func (p *MockProvider) Embedder() ai.Embedder {
	return p.embedder
}

// EmbeddingModel returns MockEmbeddingModel.
func (p *MockProvider) EmbeddingModel() string {
	return MockEmbeddingModel
}

// Reranker returns the mock reranker, or nil when none was supplied.
func (p *MockProvider) Reranker() ai.Reranker {
	if p.reranker == nil {
		return nil
	}
	return p.reranker
}

// Close is a no-op for mock provider.
func (p *MockProvider) Close() error {
	return nil
}

// GetMockEmbedder returns the underlying mock embedder for test assertions.
// This allows tests to check call counts and inject custom behavior.
func (p *MockProvider) GetMockEmbedder() *MockEmbedder {
	return p.embedder
}

// GetMockReranker returns the underlying mock reranker, possibly nil.
func (p *MockProvider) GetMockReranker() *MockReranker {
	return p.reranker
}
