package scoring

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/gautam1sharma/sopcompliance/ai"
	"github.com/gautam1sharma/sopcompliance/ai/mock"
	"github.com/gautam1sharma/sopcompliance/cache"
	"github.com/gautam1sharma/sopcompliance/core"
	"github.com/gautam1sharma/sopcompliance/embedding"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T, embedder *mock.MockEmbedder, opts ...Option) *Engine {
	t.Helper()
	c, err := cache.New()
	require.NoError(t, err)
	if embedder == nil {
		embedder = mock.NewMockEmbedder()
	}
	p, err := embedding.NewPipeline(mock.NewMockProviderWithServices(embedder, nil), c,
		embedding.WithRetryDelay(time.Millisecond))
	require.NoError(t, err)
	t.Cleanup(p.Release)

	e, err := NewEngine(p, opts...)
	require.NoError(t, err)
	return e
}

// withSimilarity returns a 2-d unit vector whose cosine similarity to
// (1, 0) is sim.
func withSimilarity(sim float64) []float32 {
	return []float32{float32(sim), float32(math.Sqrt(1 - sim*sim))}
}

func policyControl() *core.Control {
	return &core.Control{
		ID:        "5.1",
		Name:      "Information security policies",
		Keywords:  []string{"policy"},
		Embedding: []float32{1, 0},
	}
}

func chunksWithSimilarities(sims ...float64) []core.Chunk {
	chunks := make([]core.Chunk, len(sims))
	for i, sim := range sims {
		chunks[i] = core.Chunk{
			Index:     i,
			Text:      "The policy section " + string(rune('A'+i)),
			Embedding: withSimilarity(sim),
		}
	}
	return chunks
}

func TestNewEngine_Validation(t *testing.T) {
	_, err := NewEngine(nil)
	assert.ErrorIs(t, err, ErrPipelineRequired)

	c, err := cache.New()
	require.NoError(t, err)
	p, err := embedding.NewPipeline(mock.NewMockProvider(), c)
	require.NoError(t, err)
	defer p.Release()

	_, err = NewEngine(p, WithKeywordPolicy(KeywordPolicy(7)))
	assert.Error(t, err)

	_, err = NewEngine(p, WithClusters([]Cluster{{Name: "empty"}}, nil))
	assert.Error(t, err)

	e, err := NewEngine(p, WithLogger(nil), WithMonitor(nil), WithReranker(nil))
	require.NoError(t, err)
	assert.Equal(t, MethodComposite, e.Method())
	assert.Equal(t, KeywordGateHard, e.Policy())
}

func TestParseKeywordPolicy(t *testing.T) {
	p, err := ParseKeywordPolicy("soft")
	require.NoError(t, err)
	assert.Equal(t, KeywordGateSoft, p)
	assert.Equal(t, "soft", p.String())

	p, err = ParseKeywordPolicy("")
	require.NoError(t, err)
	assert.Equal(t, KeywordGateHard, p)
	assert.Equal(t, "hard", p.String())

	_, err = ParseKeywordPolicy("lenient")
	assert.Error(t, err)
}

func TestScore_Composite(t *testing.T) {
	e := newTestEngine(t, nil)
	ctx := context.Background()

	t.Run("max density and threshold", func(t *testing.T) {
		score, evidence, err := e.Score(ctx, policyControl(), chunksWithSimilarities(0.9, 0.7, 0.5, 0.2), nil)
		require.NoError(t, err)
		// 0.7*0.9 + 0.2*(2/5) + 0.1*0
		assert.InDelta(t, 0.71, score, 1e-5)
		require.Len(t, evidence, 3)
		assert.Equal(t, "The policy section A", evidence[0])
		assert.Equal(t, "The policy section B", evidence[1])
		assert.Equal(t, "The policy section C", evidence[2])
	})

	t.Run("feature bonus", func(t *testing.T) {
		score, _, err := e.Score(ctx, policyControl(), chunksWithSimilarities(0.9), Features{"policies": 4, "training": 9})
		require.NoError(t, err)
		// 0.7*0.9 + 0.2*(1/5) + 0.1*(4/10)
		assert.InDelta(t, 0.71, score, 1e-5)
	})

	t.Run("feature bonus capped", func(t *testing.T) {
		score, _, err := e.Score(ctx, policyControl(), chunksWithSimilarities(0.9), Features{"policies": 25})
		require.NoError(t, err)
		assert.InDelta(t, 0.63+0.04+0.1, score, 1e-5)
	})

	t.Run("density capped at five", func(t *testing.T) {
		score, _, err := e.Score(ctx, policyControl(), chunksWithSimilarities(1, 1, 1, 1, 1, 1, 1), nil)
		require.NoError(t, err)
		assert.InDelta(t, 0.9, score, 1e-5)
	})

	t.Run("nothing above threshold", func(t *testing.T) {
		score, evidence, err := e.Score(ctx, policyControl(), chunksWithSimilarities(0.29, 0.1, -0.5), nil)
		require.NoError(t, err)
		assert.Zero(t, score)
		assert.Empty(t, evidence)
	})

	t.Run("no chunks", func(t *testing.T) {
		score, evidence, err := e.Score(ctx, policyControl(), nil, nil)
		require.NoError(t, err)
		assert.Zero(t, score)
		assert.Empty(t, evidence)
	})
}

func TestScore_KeywordGate(t *testing.T) {
	ctx := context.Background()
	chunks := chunksWithSimilarities(0.9, 0.8)
	for i := range chunks {
		chunks[i].Text = "Visitors sign in at reception"
	}

	t.Run("hard gate", func(t *testing.T) {
		e := newTestEngine(t, nil)
		score, evidence, err := e.Score(ctx, policyControl(), chunks, nil)
		require.NoError(t, err)
		assert.Zero(t, score, "no keyword match means zero regardless of similarity")
		assert.Empty(t, evidence)
	})

	t.Run("soft gate", func(t *testing.T) {
		e := newTestEngine(t, nil, WithKeywordPolicy(KeywordGateSoft))
		score, evidence, err := e.Score(ctx, policyControl(), chunks, nil)
		require.NoError(t, err)
		// (0.7*0.9 + 0.2*(2/5)) * 0.5
		assert.InDelta(t, 0.355, score, 1e-5)
		assert.Len(t, evidence, 2)
	})

	t.Run("case insensitive", func(t *testing.T) {
		e := newTestEngine(t, nil)
		upper := chunksWithSimilarities(0.9)
		upper[0].Text = "THE POLICY IS REVIEWED"
		score, _, err := e.Score(ctx, policyControl(), upper, nil)
		require.NoError(t, err)
		assert.Greater(t, score, 0.0)
	})

	t.Run("only matching chunks are scored", func(t *testing.T) {
		e := newTestEngine(t, nil)
		mixed := chunksWithSimilarities(0.95, 0.5)
		mixed[0].Text = "Visitors sign in at reception"
		score, evidence, err := e.Score(ctx, policyControl(), mixed, nil)
		require.NoError(t, err)
		assert.InDelta(t, 0.35, score, 1e-5)
		assert.Equal(t, []string{"The policy section B"}, evidence)
	})
}

func TestScore_Bounds(t *testing.T) {
	embedder := mock.NewMockEmbedder()
	e := newTestEngine(t, embedder)
	ctx := context.Background()

	texts := []string{
		"The policy covers information security.",
		"Policy exceptions are approved by the CISO.",
		"All staff read the policy every year.",
		"Backups are tested monthly under the backup policy.",
	}
	vectors, err := embedder.EmbedTexts(ctx, texts)
	require.NoError(t, err)
	chunks := make([]core.Chunk, len(texts))
	for i, text := range texts {
		chunks[i] = core.Chunk{Index: i, Text: text, Embedding: vectors[i]}
	}

	for _, controlText := range texts {
		vector, err := embedder.EmbedText(ctx, controlText)
		require.NoError(t, err)
		control := policyControl()
		control.Embedding = vector

		score, evidence, err := e.Score(ctx, control, chunks, Features{"policies": 100})
		require.NoError(t, err)
		assert.True(t, core.ValidateScore(score), "score %f out of bounds", score)
		assert.LessOrEqual(t, len(evidence), MaxEvidence)
	}
}

func TestScore_Monotonic(t *testing.T) {
	e := newTestEngine(t, nil)
	ctx := context.Background()

	base, _, err := e.Score(ctx, policyControl(), chunksWithSimilarities(0.5, 0.65), nil)
	require.NoError(t, err)

	for _, extra := range []float64{0.66, 0.8, 0.99} {
		more, _, err := e.Score(ctx, policyControl(), chunksWithSimilarities(0.5, 0.65, extra), nil)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, more, base, "adding a chunk with similarity %.2f", extra)
		base = more
	}
}

func TestScore_Deterministic(t *testing.T) {
	e := newTestEngine(t, nil)
	ctx := context.Background()
	chunks := chunksWithSimilarities(0.9, 0.7, 0.4)

	first, firstEvidence, err := e.Score(ctx, policyControl(), chunks, Features{"policies": 2})
	require.NoError(t, err)
	for range 5 {
		score, evidence, err := e.Score(ctx, policyControl(), chunks, Features{"policies": 2})
		require.NoError(t, err)
		assert.Equal(t, first, score)
		assert.Equal(t, firstEvidence, evidence)
	}
}

func TestScore_Errors(t *testing.T) {
	e := newTestEngine(t, nil)
	ctx := context.Background()

	_, _, err := e.Score(ctx, nil, nil, nil)
	assert.ErrorIs(t, err, ErrControlRequired)

	chunks := []core.Chunk{{Index: 0, Text: "policy", Embedding: []float32{1, 0, 0}}}
	_, _, err = e.Score(ctx, policyControl(), chunks, nil)
	assert.ErrorIs(t, err, core.ErrDimensionMismatch)
}

func TestScore_Rerank(t *testing.T) {
	ctx := context.Background()

	t.Run("sigmoid of best logit", func(t *testing.T) {
		reranker := mock.NewMockReranker()
		reranker.RerankFunc = func(_ context.Context, pairs []ai.Pair) ([]float64, error) {
			scores := make([]float64, len(pairs))
			for i, pair := range pairs {
				if strings.HasSuffix(pair.Passage, "C") {
					scores[i] = 2
				} else {
					scores[i] = -3
				}
			}
			return scores, nil
		}
		e := newTestEngine(t, nil, WithReranker(reranker))
		assert.Equal(t, MethodRerank, e.Method())

		control := policyControl()
		score, evidence, err := e.Score(ctx, control, chunksWithSimilarities(0.9, 0.8, 0.5, 0.1), nil)
		require.NoError(t, err)
		assert.InDelta(t, Sigmoid(2), score, 1e-9)
		assert.Equal(t, []string{"The policy section C"}, evidence, "only squashed scores above threshold count")
		assert.Equal(t, 3, reranker.PairCount(), "chunks below the threshold are never reranked")
	})

	t.Run("top k only", func(t *testing.T) {
		reranker := mock.NewMockReranker()
		var queries []string
		reranker.RerankFunc = func(_ context.Context, pairs []ai.Pair) ([]float64, error) {
			for _, pair := range pairs {
				queries = append(queries, pair.Query)
			}
			return make([]float64, len(pairs)), nil
		}
		e := newTestEngine(t, nil, WithReranker(reranker))

		sims := make([]float64, 15)
		for i := range sims {
			sims[i] = 0.5 + float64(i)*0.01
		}
		score, evidence, err := e.Score(ctx, policyControl(), chunksWithSimilarities(sims...), nil)
		require.NoError(t, err)
		assert.Equal(t, RerankTopK, reranker.PairCount())
		assert.InDelta(t, 0.5, score, 1e-9)
		assert.Len(t, evidence, MaxEvidence)
		for _, q := range queries {
			assert.Equal(t, policyControl().Text(), q)
		}
	})

	t.Run("failure propagates", func(t *testing.T) {
		boom := errors.New("cross-encoder offline")
		reranker := mock.NewMockReranker()
		reranker.RerankFunc = func(context.Context, []ai.Pair) ([]float64, error) {
			return nil, boom
		}
		e := newTestEngine(t, nil, WithReranker(reranker))

		_, _, err := e.Score(ctx, policyControl(), chunksWithSimilarities(0.9), nil)
		assert.ErrorIs(t, err, ErrRerankFailed)
		assert.ErrorIs(t, err, boom)
	})

	t.Run("score count mismatch", func(t *testing.T) {
		reranker := mock.NewMockReranker()
		reranker.RerankFunc = func(context.Context, []ai.Pair) ([]float64, error) {
			return []float64{1}, nil
		}
		e := newTestEngine(t, nil, WithReranker(reranker))

		_, _, err := e.Score(ctx, policyControl(), chunksWithSimilarities(0.9, 0.8), nil)
		assert.ErrorIs(t, err, ErrRerankFailed)
	})

	t.Run("normalized scores are used as is", func(t *testing.T) {
		reranker := mock.NewMockReranker()
		reranker.Normalized = true
		reranker.RerankFunc = func(_ context.Context, pairs []ai.Pair) ([]float64, error) {
			scores := make([]float64, len(pairs))
			for i, pair := range pairs {
				scores[i] = 0.001
				if strings.HasSuffix(pair.Passage, "B") {
					scores[i] = 0.82
				}
			}
			return scores, nil
		}
		e := newTestEngine(t, nil, WithReranker(reranker))

		score, evidence, err := e.Score(ctx, policyControl(), chunksWithSimilarities(0.9, 0.8, 0.5), nil)
		require.NoError(t, err)
		assert.InDelta(t, 0.82, score, 1e-9)
		assert.Equal(t, []string{"The policy section B"}, evidence)
	})

	t.Run("irrelevant normalized scores stay low", func(t *testing.T) {
		reranker := mock.NewMockReranker()
		reranker.Normalized = true
		reranker.RerankFunc = func(_ context.Context, pairs []ai.Pair) ([]float64, error) {
			scores := make([]float64, len(pairs))
			for i := range scores {
				scores[i] = 0.001
			}
			return scores, nil
		}
		e := newTestEngine(t, nil, WithReranker(reranker))

		score, evidence, err := e.Score(ctx, policyControl(), chunksWithSimilarities(0.9), nil)
		require.NoError(t, err)
		assert.InDelta(t, 0.001, score, 1e-9)
		assert.Empty(t, evidence)
	})

	t.Run("hard gate skips reranker", func(t *testing.T) {
		reranker := mock.NewMockReranker()
		e := newTestEngine(t, nil, WithReranker(reranker))
		chunks := chunksWithSimilarities(0.9)
		chunks[0].Text = "Visitors sign in at reception"

		score, _, err := e.Score(ctx, policyControl(), chunks, nil)
		require.NoError(t, err)
		assert.Zero(t, score)
		assert.Zero(t, reranker.CallCount())
	})
}

func TestEvidence(t *testing.T) {
	long := strings.Repeat("a", EvidenceCharBudget+50)
	candidates := []Candidate{
		{Index: 3, Text: "third", Score: 0.5},
		{Index: 1, Text: "tie-low-index", Score: 0.8},
		{Index: 2, Text: "tie-high-index", Score: 0.8},
		{Index: 0, Text: long, Score: 0.9},
		{Index: 4, Text: "weak", Score: 0.3},
	}

	evidence := Evidence(candidates)
	require.Len(t, evidence, 3)
	assert.Equal(t, strings.Repeat("a", EvidenceCharBudget)+"...", evidence[0])
	assert.Equal(t, "tie-low-index", evidence[1])
	assert.Equal(t, "tie-high-index", evidence[2])

	assert.Empty(t, Evidence([]Candidate{{Text: "weak", Score: 0.3}}))
	assert.Equal(t, "third", candidates[0].Text, "input order is left untouched")
}

func TestCosine(t *testing.T) {
	assert.InDelta(t, 1, Cosine([]float32{1, 2}, []float32{2, 4}), 1e-9)
	assert.InDelta(t, 0, Cosine([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.InDelta(t, -1, Cosine([]float32{1, 0}, []float32{-1, 0}), 1e-9)
	assert.Zero(t, Cosine([]float32{0, 0}, []float32{1, 0}))
	assert.Zero(t, Cosine([]float32{1}, []float32{1, 0}))
	assert.Zero(t, Cosine(nil, nil))
}

func TestSigmoid(t *testing.T) {
	assert.InDelta(t, 0.5, Sigmoid(0), 1e-12)
	assert.Greater(t, Sigmoid(5), 0.99)
	assert.Less(t, Sigmoid(-5), 0.01)
}

type recordingMonitor struct {
	started   int
	gated     []int
	penalized bool
	survivors []Candidate
	reranked  []Candidate
	finished  float64
}

func (m *recordingMonitor) Start(_ *core.Control, _ int) { m.started++ }
func (m *recordingMonitor) AfterKeywordGate(_ *core.Control, matched []int, penalized bool) {
	m.gated, m.penalized = matched, penalized
}
func (m *recordingMonitor) AfterThreshold(_ *core.Control, survivors []Candidate) {
	m.survivors = survivors
}
func (m *recordingMonitor) AfterRerank(_ *core.Control, reranked []Candidate) { m.reranked = reranked }
func (m *recordingMonitor) Finish(_ *core.Control, score float64, _ []string) { m.finished = score }

func TestScore_Monitor(t *testing.T) {
	monitor := &recordingMonitor{}
	e := newTestEngine(t, nil, WithMonitor(monitor), WithKeywordPolicy(KeywordGateSoft))

	chunks := chunksWithSimilarities(0.9, 0.2)
	chunks[0].Text = "Visitors sign in at reception"
	chunks[1].Text = "Badges are worn at all times"

	score, _, err := e.Score(context.Background(), policyControl(), chunks, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, monitor.started)
	assert.Equal(t, []int{0, 1}, monitor.gated)
	assert.True(t, monitor.penalized)
	require.Len(t, monitor.survivors, 1)
	assert.Equal(t, 0, monitor.survivors[0].Index)
	assert.Nil(t, monitor.reranked)
	assert.Equal(t, score, monitor.finished)
}
