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

// Package scoring ranks document chunks against compliance controls.
//
// The Engine scores one control at a time in stages:
//   - a keyword gate that keeps chunks mentioning a control keyword
//   - dense cosine similarity between the control and each candidate chunk
//   - a baseline threshold that drops weak candidates
//   - a composite score, or a cross-encoder rerank when a reranker is configured
//
// Each stage can be observed with a Monitor. Features computes the topical
// cluster counts that feed the composite score's contextual bonus.
package scoring
