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

package scoring

import "errors"

var (
	// ErrPipelineRequired is returned when an embedding pipeline is not provided.
	ErrPipelineRequired = errors.New("embedding pipeline required")

	// ErrControlRequired is returned when Score is called without a control.
	ErrControlRequired = errors.New("control required")

	// ErrRerankFailed wraps failures of the cross-encoder reranker.
	ErrRerankFailed = errors.New("rerank failed")
)
