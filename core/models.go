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

package core

import (
	"encoding/hex"
	"strings"

	"github.com/go-crypt/x/blake2b"
)

// ContentHash returns a deterministic hex digest of text using BLAKE2b.
// Identical content always produces identical hashes, across processes and
// restarts, which is what makes the hash usable as a cache key.
func ContentHash(text string) string {
	h, _ := blake2b.New(16, nil) // 16 bytes = 128 bits
	h.Write([]byte(text))
	return hex.EncodeToString(h.Sum(nil))
}

// Control is a single compliance requirement from the control catalog.
type Control struct {
	ID          string
	Name        string
	Description *string   // Optional; nil when the catalog record has none
	Keywords    []string  // Catalog keywords, or keywords generated from Name
	Embedding   []float32 // Populated once by the knowledge base, immutable afterwards
}

// DescriptionText returns the description or an empty string when absent.
func (c *Control) DescriptionText() string {
	if c.Description == nil {
		return ""
	}
	return *c.Description
}

// Text returns the string used to embed the control: name, description and
// keywords joined by single spaces.
func (c *Control) Text() string {
	return c.Name + " " + c.DescriptionText() + " " + strings.Join(c.Keywords, " ")
}

// Chunk is a bounded span of document text used as the unit of comparison.
type Chunk struct {
	Index     int
	Text      string
	Embedding []float32
}

// Band is a discretized confidence label derived from a score.
type Band string

const (
	BandHigh   Band = "high"
	BandMedium Band = "medium"
	BandLow    Band = "low"
	BandNone   Band = "none"
)

// Status returns the human readable status for the band.
func (b Band) Status() string {
	switch b {
	case BandHigh:
		return "High Confidence"
	case BandMedium:
		return "Medium Confidence"
	case BandLow:
		return "Low Confidence"
	default:
		return "Non-compliant"
	}
}

// Matched reports whether the band counts toward the compliance score.
func (b Band) Matched() bool {
	return b == BandHigh || b == BandMedium || b == BandLow
}

// ScoreResult is the outcome of scoring one control against a document.
type ScoreResult struct {
	ControlID string   `json:"id"`
	Name      string   `json:"name"`
	Score     float64  `json:"score"`
	Status    string   `json:"status"`
	Band      Band     `json:"confidence"`
	Rationale string   `json:"rationale"`
	Evidence  []string `json:"evidence,omitempty"`
}

// Summary holds the per-band control counts of a report.
type Summary struct {
	TotalControls    int `json:"total_controls"`
	MatchedControls  int `json:"matched_controls"`
	HighConfidence   int `json:"high_confidence"`
	MediumConfidence int `json:"medium_confidence"`
	LowConfidence    int `json:"low_confidence"`
	NonCompliant     int `json:"non_compliant"`
}

// ComplianceReport is the value object produced for one analyzed document.
type ComplianceReport struct {
	ComplianceScore  float64        `json:"compliance_score"`
	Summary          Summary        `json:"summary"`
	Results          []ScoreResult  `json:"details"`
	Method           string         `json:"method,omitempty"`
	SemanticAnalysis map[string]int `json:"semantic_analysis,omitempty"`

	// AnalyzableChunks is the number of chunks that survived segmentation.
	// Zero means the document had no analyzable content.
	AnalyzableChunks int `json:"analyzable_chunks"`
}

// Analyzable reports whether the document produced any scoring units.
func (r *ComplianceReport) Analyzable() bool {
	return r.AnalyzableChunks > 0
}
