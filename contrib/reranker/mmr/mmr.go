package mmr

import (
	"context"
	"math"

	"github.com/sweetpotato0/agentic-rag/rag/reranker"
	"github.com/sweetpotato0/agentic-rag/vector"
)

// Reranker implements Max Marginal Relevance so one retrieval does not
// return several near-identical passages.
type Reranker struct {
	// Lambda weighs relevance against diversity: 1 ignores diversity.
	Lambda float32
	// Limit caps the number of results; 0 keeps every candidate.
	Limit int
}

// New returns an MMR reranker with lambda 0.7 and no limit.
func New() *Reranker {
	return &Reranker{Lambda: 0.7}
}

// NewWithLambda returns an MMR reranker with lambda clamped to [0, 1].
func NewWithLambda(lambda float32) *Reranker {
	return &Reranker{Lambda: float32(math.Max(0, math.Min(1, float64(lambda))))}
}

// Rank implements reranker.Reranker. Result scores are the plain relevance
// to the query; only the order reflects diversity.
func (m *Reranker) Rank(ctx context.Context, queryVec []float32, candidates []reranker.Candidate) ([]reranker.Result, error) {
	if len(candidates) == 0 {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	type item struct {
		cand  reranker.Candidate
		score float32
	}
	remaining := make([]item, len(candidates))
	for i, cand := range candidates {
		score := cand.Score
		if len(queryVec) > 0 && len(cand.Vector) == len(queryVec) {
			score = vector.CosineSimilarity(queryVec, cand.Vector)
		}
		remaining[i] = item{cand: cand, score: score}
	}

	selected := make([]reranker.Result, 0, len(candidates))
	picked := make([][]float32, 0, len(candidates))
	for len(remaining) > 0 && (m.Limit <= 0 || len(selected) < m.Limit) {
		bestIdx := -1
		bestScore := float32(math.Inf(-1))
		for idx, candidate := range remaining {
			var penalty float32
			for _, vec := range picked {
				if len(candidate.cand.Vector) == 0 || len(vec) != len(candidate.cand.Vector) {
					continue
				}
				penalty = max(penalty, vector.CosineSimilarity(candidate.cand.Vector, vec))
			}
			score := m.Lambda*candidate.score - (1-m.Lambda)*penalty
			if score > bestScore {
				bestScore = score
				bestIdx = idx
			}
		}
		if bestIdx == -1 {
			break
		}
		best := remaining[bestIdx]
		selected = append(selected, reranker.Result{Chunk: best.cand.Chunk, Score: best.score})
		picked = append(picked, best.cand.Vector)
		remaining = append(remaining[:bestIdx], remaining[bestIdx+1:]...)
	}

	return selected, nil
}
