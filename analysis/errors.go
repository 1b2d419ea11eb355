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

package analysis

import "errors"

var (
	// ErrNoAnalyzableContent describes a document that produced no chunks.
	// Analyze reports it through ComplianceReport.AnalyzableChunks rather
	// than returning it; see CheckAnalyzable.
	ErrNoAnalyzableContent = errors.New("no analyzable content")

	// ErrSegmenterRequired is returned when a segmenter is not provided.
	ErrSegmenterRequired = errors.New("segmenter required")

	// ErrKnowledgeBaseRequired is returned when a knowledge base is not provided.
	ErrKnowledgeBaseRequired = errors.New("knowledge base required")

	// ErrPipelineRequired is returned when an embedding pipeline is not provided.
	ErrPipelineRequired = errors.New("embedding pipeline required")

	// ErrEngineRequired is returned when a scoring engine is not provided.
	ErrEngineRequired = errors.New("scoring engine required")

	// ErrCacheRequired is returned when a cache is not provided.
	ErrCacheRequired = errors.New("cache required")
)
