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

// Package segment turns raw document text into overlapping scoring windows.
//
// Segmentation runs in four steps: boilerplate lines are stripped, the text is
// normalized, sentences are detected, and consecutive sentences are grouped
// into windows of ChunkSize sentences that share Overlap sentences with their
// neighbor. Windows that are too short to carry meaning are dropped.
package segment

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode"
)

const (
	DefaultChunkSize = 3
	DefaultOverlap   = 1
	DefaultMinWords  = 10
)

// boilerplatePatterns match non-content lines: banners, page footers,
// revision headers and author or date stamps.
var boilerplatePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?im)^[ \t]*(?:confidential|internal use only|property of).*`),
	regexp.MustCompile(`(?im)^[ \t]*page\s+\d+\s+of\s+\d+`),
	regexp.MustCompile(`(?im)^[ \t]*document\s+version:\s+\d+`),
	regexp.MustCompile(`(?im)^[ \t]*revision\s+history`),
	regexp.MustCompile(`(?im)^[ \t]*authors?:.*`),
	regexp.MustCompile(`(?im)^[ \t]*date\s+of\s+issue:.*`),
}

var (
	whitespaceRun  = regexp.MustCompile(`\s+`)
	unsafeChars    = regexp.MustCompile(`[^\p{L}\p{N}_\s.,;:!?\-'"()]`)
	sentenceBreaks = regexp.MustCompile(`[.!?]+\s+`)
)

// Option configures a Segmenter.
type Option func(*Segmenter) error

// WithChunkSize sets the number of sentences per window.
func WithChunkSize(size int) Option {
	return func(s *Segmenter) error {
		if size < 1 {
			return errors.New("segment: chunk size must be at least 1")
		}
		s.chunkSize = size
		return nil
	}
}

// WithOverlap sets the number of sentences shared by adjacent windows.
// An overlap not smaller than the chunk size is reduced to chunk size - 1.
func WithOverlap(overlap int) Option {
	return func(s *Segmenter) error {
		if overlap < 0 {
			return errors.New("segment: overlap cannot be negative")
		}
		s.overlap = overlap
		return nil
	}
}

// WithMinWords sets the word count a window must exceed to be kept.
func WithMinWords(words int) Option {
	return func(s *Segmenter) error {
		if words < 0 {
			return errors.New("segment: minimum words cannot be negative")
		}
		s.minWords = words
		return nil
	}
}

// Segmenter splits documents into chunk texts. It holds no mutable state
// and is safe for concurrent use.
type Segmenter struct {
	chunkSize int
	overlap   int
	minWords  int
}

// New creates a Segmenter with the given options applied over the defaults.
func New(opts ...Option) (*Segmenter, error) {
	s := &Segmenter{
		chunkSize: DefaultChunkSize,
		overlap:   DefaultOverlap,
		minWords:  DefaultMinWords,
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	if s.overlap >= s.chunkSize {
		s.overlap = s.chunkSize - 1
	}
	return s, nil
}

// ChunkSize returns the configured window size.
func (s *Segmenter) ChunkSize() int { return s.chunkSize }

// Overlap returns the configured window overlap.
func (s *Segmenter) Overlap() int { return s.overlap }

// MinWords returns the word count a window must exceed.
func (s *Segmenter) MinWords() int { return s.minWords }

// Fingerprint identifies the windowing settings. Two segmenters with the same
// fingerprint produce the same chunks for the same text.
func (s *Segmenter) Fingerprint() string {
	return fmt.Sprintf("%d/%d/%d", s.chunkSize, s.overlap, s.minWords)
}

// Segment returns the chunk texts of raw. Empty or whitespace-only input
// yields an empty slice.
func (s *Segmenter) Segment(raw string) []string {
	return s.Chunks(s.Clean(raw))
}

// Clean strips boilerplate and normalizes raw into a single line of text.
func (s *Segmenter) Clean(raw string) string {
	return Normalize(RemoveBoilerplate(raw))
}

// Chunks groups the sentences of already-cleaned text into windows.
func (s *Segmenter) Chunks(clean string) []string {
	sentences := Sentences(clean)
	if len(sentences) == 0 {
		return []string{}
	}

	var windows [][]string
	if len(sentences) < s.chunkSize {
		windows = append(windows, sentences)
	} else {
		step := s.chunkSize - s.overlap
		for i := 0; i <= len(sentences)-s.chunkSize; i += step {
			windows = append(windows, sentences[i:i+s.chunkSize])
		}
	}

	chunks := make([]string, 0, len(windows))
	for _, window := range windows {
		chunk := strings.Join(window, " ")
		if len(strings.Fields(chunk)) > s.minWords {
			chunks = append(chunks, chunk)
		}
	}
	return chunks
}

// RemoveBoilerplate deletes the matched part of every boilerplate line.
func RemoveBoilerplate(text string) string {
	for _, pattern := range boilerplatePatterns {
		text = pattern.ReplaceAllString(text, "")
	}
	return strings.TrimSpace(text)
}

// Normalize collapses whitespace, blanks out characters outside the safe
// word and punctuation set, and rejoins single letters split by OCR.
func Normalize(text string) string {
	text = whitespaceRun.ReplaceAllString(text, " ")
	text = unsafeChars.ReplaceAllString(text, " ")
	text = whitespaceRun.ReplaceAllString(text, " ")
	text = joinSplitLetters(text)
	return strings.TrimSpace(text)
}

// joinSplitLetters joins two single-character words separated by whitespace,
// as in "é t" from OCR output. Matches are taken left to right without
// overlap, so "a b c" becomes "ab c". Word characters are Unicode letters,
// numbers and underscore.
func joinSplitLetters(text string) string {
	runes := []rune(text)
	var b strings.Builder
	b.Grow(len(text))
	for i := 0; i < len(runes); {
		if isWordRune(runes[i]) && (i == 0 || !isWordRune(runes[i-1])) {
			j := i + 1
			for j < len(runes) && unicode.IsSpace(runes[j]) {
				j++
			}
			if j > i+1 && j < len(runes) && isWordRune(runes[j]) &&
				(j+1 == len(runes) || !isWordRune(runes[j+1])) {
				b.WriteRune(runes[i])
				b.WriteRune(runes[j])
				i = j + 1
				continue
			}
		}
		b.WriteRune(runes[i])
		i++
	}
	return b.String()
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsNumber(r)
}

// Sentences splits text after runs of . ! or ? followed by whitespace and an
// uppercase letter. The terminating punctuation of a split sentence is dropped.
func Sentences(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	var sentences []string
	start := 0
	for _, loc := range sentenceBreaks.FindAllStringIndex(text, -1) {
		if loc[1] >= len(text) || !startsUpper(text[loc[1]:]) {
			continue
		}
		sentences = append(sentences, text[start:loc[0]])
		start = loc[1]
	}
	sentences = append(sentences, text[start:])

	out := sentences[:0]
	for _, sentence := range sentences {
		if sentence = strings.TrimSpace(sentence); sentence != "" {
			out = append(out, sentence)
		}
	}
	return out
}

func startsUpper(s string) bool {
	for _, r := range s {
		return unicode.IsUpper(r)
	}
	return false
}
