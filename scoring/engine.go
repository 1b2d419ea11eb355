package scoring

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/gautam1sharma/sopcompliance/ai"
	"github.com/gautam1sharma/sopcompliance/core"
	"github.com/gautam1sharma/sopcompliance/embedding"
)

// Scoring constants.
const (
	BaselineThreshold       = 0.3
	HighConfidenceThreshold = 0.6
	DensityCap              = 5.0
	MaxSimilarityWeight     = 0.7
	DensityWeight           = 0.2
	FeatureWeight           = 0.1
	FeatureNormalizer       = 10.0
	RerankTopK              = 10
	MaxEvidence             = 3
	EvidenceCharBudget      = 300
	SoftGatePenalty         = 0.5
)

// Scoring method labels reported with results.
const (
	MethodComposite = "composite"
	MethodRerank    = "rerank"
)

// KeywordPolicy decides what happens to a control none of whose keywords
// appear in the document.
type KeywordPolicy int

const (
	// KeywordGateHard scores the control 0.
	KeywordGateHard KeywordPolicy = iota
	// KeywordGateSoft scores every chunk and multiplies the result by SoftGatePenalty.
	KeywordGateSoft
)

func (p KeywordPolicy) String() string {
	switch p {
	case KeywordGateSoft:
		return "soft"
	default:
		return "hard"
	}
}

// ParseKeywordPolicy parses "hard" or "soft".
func ParseKeywordPolicy(s string) (KeywordPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "hard":
		return KeywordGateHard, nil
	case "soft":
		return KeywordGateSoft, nil
	default:
		return KeywordGateHard, fmt.Errorf("unknown keyword policy %q", s)
	}
}

// Engine scores controls against document chunks.
// It is safe for concurrent use.
type Engine struct {
	pipeline   *embedding.Pipeline
	reranker   ai.Reranker
	policy     KeywordPolicy
	clusters   []Cluster
	clusterMap map[string][]string
	monitor    Monitor
	logger     *slog.Logger

	refMu      sync.Mutex
	refVectors [][][]float32
}

// Option configures an Engine.
type Option func(*Engine) error

// WithReranker enables the rerank variant. A nil reranker keeps the
// composite score.
func WithReranker(reranker ai.Reranker) Option {
	return func(e *Engine) error {
		e.reranker = reranker
		return nil
	}
}

// WithKeywordPolicy sets the keyword gate policy. Default is KeywordGateHard.
func WithKeywordPolicy(policy KeywordPolicy) Option {
	return func(e *Engine) error {
		if policy != KeywordGateHard && policy != KeywordGateSoft {
			return fmt.Errorf("invalid keyword policy %d", policy)
		}
		e.policy = policy
		return nil
	}
}

// WithClusters replaces the topical clusters and the control to cluster map.
func WithClusters(clusters []Cluster, clusterMap map[string][]string) Option {
	return func(e *Engine) error {
		for _, c := range clusters {
			if c.Name == "" || len(c.References) == 0 {
				return fmt.Errorf("cluster %q needs a name and reference sentences", c.Name)
			}
		}
		e.clusters = clusters
		e.clusterMap = clusterMap
		return nil
	}
}

// WithMonitor sets a monitor observing every Score call.
func WithMonitor(monitor Monitor) Option {
	return func(e *Engine) error {
		if monitor == nil {
			monitor = &noopMonitor{}
		}
		e.monitor = monitor
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) error {
		if logger == nil {
			logger = slog.Default()
		}
		e.logger = logger.With("component", "scoring")
		return nil
	}
}

// NewEngine creates a scoring engine. The pipeline embeds cluster reference
// sentences.
func NewEngine(pipeline *embedding.Pipeline, opts ...Option) (*Engine, error) {
	if pipeline == nil {
		return nil, ErrPipelineRequired
	}

	e := &Engine{
		pipeline:   pipeline,
		policy:     KeywordGateHard,
		clusters:   DefaultClusters(),
		clusterMap: DefaultClusterMap(),
		monitor:    &noopMonitor{},
		logger:     slog.Default().With("component", "scoring"),
	}
	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// Method returns the label of the scoring variant in use.
func (e *Engine) Method() string {
	if e.reranker != nil {
		return MethodRerank
	}
	return MethodComposite
}

// Policy returns the keyword gate policy.
func (e *Engine) Policy() KeywordPolicy {
	return e.policy
}

// Score scores one control against the document chunks and returns the score
// in [0,1] with up to MaxEvidence supporting excerpts. Chunks must carry
// embeddings of the same dimension as the control.
func (e *Engine) Score(ctx context.Context, control *core.Control, chunks []core.Chunk, features Features) (float64, []string, error) {
	if control == nil {
		return 0, nil, ErrControlRequired
	}
	if err := checkDimensions(control, chunks); err != nil {
		return 0, nil, err
	}

	e.monitor.Start(control, len(chunks))

	// 1. Keyword gate
	matched := keywordMatches(control.Keywords, chunks)
	penalty := 1.0
	if len(matched) == 0 {
		if e.policy == KeywordGateHard || len(chunks) == 0 {
			e.monitor.AfterKeywordGate(control, matched, false)
			e.monitor.Finish(control, 0, nil)
			return 0, nil, nil
		}
		penalty = SoftGatePenalty
		matched = make([]int, len(chunks))
		for i := range chunks {
			matched[i] = i
		}
	}
	e.monitor.AfterKeywordGate(control, matched, penalty != 1)

	// 2. Dense similarity and baseline threshold
	survivors := make([]Candidate, 0, len(matched))
	for _, i := range matched {
		sim := Cosine(control.Embedding, chunks[i].Embedding)
		if sim > BaselineThreshold {
			survivors = append(survivors, Candidate{
				Index:      chunks[i].Index,
				Text:       chunks[i].Text,
				Similarity: sim,
				Score:      sim,
			})
		}
	}
	e.monitor.AfterThreshold(control, survivors)
	if len(survivors) == 0 {
		e.monitor.Finish(control, 0, nil)
		return 0, nil, nil
	}

	// 3. Composite score or rerank
	var score float64
	ranked := survivors
	if e.reranker != nil {
		reranked, err := e.rerank(ctx, control, survivors)
		if err != nil {
			return 0, nil, err
		}
		e.monitor.AfterRerank(control, reranked)
		ranked = reranked
		for _, c := range reranked {
			score = max(score, c.Score)
		}
	} else {
		score = e.composite(control.ID, survivors, features)
	}

	score = clamp01(score * penalty)
	evidence := Evidence(ranked)

	e.monitor.Finish(control, score, evidence)
	return score, evidence, nil
}

// composite combines the best similarity, the density of high confidence
// chunks and the contextual feature bonus.
func (e *Engine) composite(controlID string, survivors []Candidate, features Features) float64 {
	best := 0.0
	strong := 0
	for _, c := range survivors {
		best = max(best, c.Similarity)
		if c.Similarity > HighConfidenceThreshold {
			strong++
		}
	}
	density := min(float64(strong)/DensityCap, 1)
	bonus := e.featureBonus(controlID, features)
	return clamp01(MaxSimilarityWeight*best + DensityWeight*density + FeatureWeight*bonus)
}

// rerank scores the top RerankTopK survivors with the cross-encoder and
// returns them with scores in [0,1]. Raw logits go through Sigmoid; normalized
// relevance is only clamped.
func (e *Engine) rerank(ctx context.Context, control *core.Control, survivors []Candidate) ([]Candidate, error) {
	top := make([]Candidate, len(survivors))
	copy(top, survivors)
	sortCandidates(top, func(c Candidate) float64 { return c.Similarity })
	if len(top) > RerankTopK {
		top = top[:RerankTopK]
	}

	query := control.Text()
	pairs := make([]ai.Pair, len(top))
	for i, c := range top {
		pairs[i] = ai.Pair{Query: query, Passage: c.Text}
	}

	raw, err := e.reranker.Rerank(ctx, pairs)
	if err != nil {
		e.logger.Error("rerank failed", "control", control.ID, "model", e.reranker.ModelName(), "err", err)
		return nil, fmt.Errorf("%w: control %s: %w", ErrRerankFailed, control.ID, err)
	}
	if len(raw) != len(pairs) {
		return nil, fmt.Errorf("%w: control %s: %d scores for %d pairs", ErrRerankFailed, control.ID, len(raw), len(pairs))
	}

	squash := Sigmoid
	if n, ok := e.reranker.(ai.NormalizedReranker); ok && n.ScoresNormalized() {
		squash = clamp01
	}
	for i := range top {
		top[i].Score = squash(raw[i])
	}
	return top, nil
}

// Evidence returns up to MaxEvidence candidate texts by descending score
// (ties: lower chunk index) whose score exceeds BaselineThreshold. Texts
// longer than EvidenceCharBudget characters are truncated with "...".
func Evidence(candidates []Candidate) []string {
	ranked := make([]Candidate, len(candidates))
	copy(ranked, candidates)
	sortCandidates(ranked, func(c Candidate) float64 { return c.Score })

	evidence := make([]string, 0, MaxEvidence)
	for _, c := range ranked {
		if len(evidence) == MaxEvidence {
			break
		}
		if c.Score > BaselineThreshold {
			evidence = append(evidence, truncate(c.Text, EvidenceCharBudget))
		}
	}
	return evidence
}

func sortCandidates(candidates []Candidate, key func(Candidate) float64) {
	sort.SliceStable(candidates, func(i, j int) bool {
		ki, kj := key(candidates[i]), key(candidates[j])
		if ki != kj {
			return ki > kj
		}
		return candidates[i].Index < candidates[j].Index
	})
}

func truncate(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit]) + "..."
}

// keywordMatches returns the positions of chunks containing any keyword,
// compared case-insensitively.
func keywordMatches(keywords []string, chunks []core.Chunk) []int {
	lowered := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		if kw = strings.ToLower(strings.TrimSpace(kw)); kw != "" {
			lowered = append(lowered, kw)
		}
	}

	var matched []int
	for i, chunk := range chunks {
		text := strings.ToLower(chunk.Text)
		for _, kw := range lowered {
			if strings.Contains(text, kw) {
				matched = append(matched, i)
				break
			}
		}
	}
	return matched
}
