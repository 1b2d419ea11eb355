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

// Package ai provides abstractions for the model services used by sopcompliance.
//
// This package defines interfaces for text embeddings and precision reranking.
// It follows the dependency inversion principle, allowing the scoring engine
// to depend on abstractions rather than concrete model servers.
//
// # Design Principles
//
// The package is designed around three key interfaces:
//
//   - Embedder: Generates vector embeddings from text
//   - Reranker: Scores (control, chunk) pairs with a cross-encoder
//   - AIProvider: Aggregates AI services for convenient initialization
//
// # Implementation Packages
//
//   - ai/openai: Embeddings through OpenAI-compatible APIs (langchaingo)
//   - ai/crossencoder: Reranking through a text-embeddings-inference style /rerank endpoint
//   - ai/mock: Test doubles for unit testing without external dependencies
//
// # Constructor Return Type Pattern
//
// Public constructors (openai.NewProvider, openai.NewEmbedder, crossencoder.NewReranker)
// return INTERFACE types to enforce abstraction and prevent accidental coupling to
// concrete implementations.
//
//	provider, err := openai.NewProvider(config)  // returns ai.AIProvider
//
// Test utility constructors (mock.NewMockEmbedder, mock.NewMockReranker)
// return CONCRETE types to enable test assertions and behavior injection via
// the mock's public fields and methods (CallCount, EmbedTextsFunc, Reset, etc.).
//
//	mockEmbed := mock.NewMockEmbedder()  // returns *mock.MockEmbedder
//	count := mockEmbed.CallCount()       // test assertion
//
// # Usage Example
//
//	config := ai.NewConfig(ai.WithRerankerHost("http://localhost:8080"))
//	provider, err := openai.NewProvider(config)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer provider.Close()
//
//	vector, err := provider.Embedder().EmbedText(ctx, "Access rights are reviewed quarterly")
//	scores, err := provider.Reranker().Rerank(ctx, []ai.Pair{{Query: control, Passage: chunk}})
//
// Determinism matters here more than usual: embeddings are cached by content
// hash, so an Embedder that returns different vectors for the same text makes
// the cache return stale results.
package ai
