package scoring

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gautam1sharma/sopcompliance/ai"
	"github.com/gautam1sharma/sopcompliance/ai/crossencoder"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScore_RerankWireFormats(t *testing.T) {
	ctx := context.Background()

	t.Run("tei raw logits are squashed", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var req struct {
				Query     string   `json:"query"`
				Texts     []string `json:"texts"`
				RawScores bool     `json:"raw_scores"`
			}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			if len(req.Texts) == 0 {
				http.Error(w, `{"error":"missing field texts"}`, http.StatusUnprocessableEntity)
				return
			}
			assert.True(t, req.RawScores)
			_, _ = w.Write([]byte(`[{"index":0,"score":-6.9}]`))
		}))
		defer srv.Close()

		client, err := crossencoder.NewClient(srv.URL, "bge-reranker-base")
		require.NoError(t, err)
		e := newTestEngine(t, nil, WithReranker(client))

		score, evidence, err := e.Score(ctx, policyControl(), chunksWithSimilarities(0.9), nil)
		require.NoError(t, err)
		assert.InDelta(t, Sigmoid(-6.9), score, 1e-9)
		assert.Less(t, score, 0.01)
		assert.Empty(t, evidence)
	})

	t.Run("cohere relevance is not squashed again", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"results":[{"index":0,"relevance_score":0.001}]}`))
		}))
		defer srv.Close()

		client, err := crossencoder.NewClient(srv.URL, "jina-reranker-v2",
			crossencoder.WithFormat(ai.RerankFormatCohere))
		require.NoError(t, err)
		e := newTestEngine(t, nil, WithReranker(client))

		score, evidence, err := e.Score(ctx, policyControl(), chunksWithSimilarities(0.9), nil)
		require.NoError(t, err)
		assert.InDelta(t, 0.001, score, 1e-9)
		assert.Empty(t, evidence)
	})
}
