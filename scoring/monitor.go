package scoring

import "github.com/gautam1sharma/sopcompliance/core"

// Candidate is a chunk that survived the keyword gate.
type Candidate struct {
	Index      int     // Chunk index within the document
	Text       string  // Chunk text
	Similarity float64 // Dense cosine similarity to the control
	Score      float64 // Ranking score: similarity, or the squashed rerank score
}

// Monitor provides hooks to observe the scoring of one control.
// Implement this interface to track intermediate steps and results.
type Monitor interface {
	Start(control *core.Control, chunks int)
	AfterKeywordGate(control *core.Control, matched []int, penalized bool)
	AfterThreshold(control *core.Control, survivors []Candidate)
	AfterRerank(control *core.Control, reranked []Candidate)
	Finish(control *core.Control, score float64, evidence []string)
}

// noopMonitor is a no-op implementation of Monitor
type noopMonitor struct{}

var _ Monitor = (*noopMonitor)(nil)

func (n *noopMonitor) Start(_ *core.Control, _ int)                     {}
func (n *noopMonitor) AfterKeywordGate(_ *core.Control, _ []int, _ bool) {}
func (n *noopMonitor) AfterThreshold(_ *core.Control, _ []Candidate)     {}
func (n *noopMonitor) AfterRerank(_ *core.Control, _ []Candidate)        {}
func (n *noopMonitor) Finish(_ *core.Control, _ float64, _ []string)     {}
