package scoring

import (
	"fmt"
	"math"

	"github.com/gautam1sharma/sopcompliance/core"
)

// Cosine returns the cosine similarity of a and b. Zero vectors and vectors
// of different lengths have similarity 0.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// Sigmoid squashes an unbounded reranker logit into (0,1).
func Sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

func checkDimensions(control *core.Control, chunks []core.Chunk) error {
	for _, chunk := range chunks {
		if len(chunk.Embedding) != len(control.Embedding) {
			return fmt.Errorf("%w: control %s has %d dimensions, chunk %d has %d",
				core.ErrDimensionMismatch, control.ID, len(control.Embedding), chunk.Index, len(chunk.Embedding))
		}
	}
	return nil
}

func clamp01(x float64) float64 {
	return math.Max(0, math.Min(1, x))
}
