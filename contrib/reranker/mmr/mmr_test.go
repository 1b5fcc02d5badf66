package mmr

import (
	"context"
	"testing"

	"github.com/sweetpotato0/agentic-rag/rag/document"
	"github.com/sweetpotato0/agentic-rag/rag/reranker"
)

func mmrCandidates() []reranker.Candidate {
	return []reranker.Candidate{
		{Chunk: document.Chunk{ID: "c1"}, Vector: []float32{1, 0}},
		{Chunk: document.Chunk{ID: "c2"}, Vector: []float32{0.9, 0.1}},
		{Chunk: document.Chunk{ID: "c3"}, Vector: []float32{0.6, 0.8}},
	}
}

func TestMMRPrefersRelevanceWithHighLambda(t *testing.T) {
	results, err := New().Rank(context.Background(), []float32{1, 0}, mmrCandidates())
	if err != nil {
		t.Fatalf("rank error: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	if results[0].Chunk.ID != "c1" || results[1].Chunk.ID != "c2" || results[2].Chunk.ID != "c3" {
		t.Fatalf("unexpected order %s %s %s", results[0].Chunk.ID, results[1].Chunk.ID, results[2].Chunk.ID)
	}
}

func TestMMRPromotesDiversityWithLowLambda(t *testing.T) {
	r := NewWithLambda(0.3)
	r.Limit = 2
	results, err := r.Rank(context.Background(), []float32{1, 0}, mmrCandidates())
	if err != nil {
		t.Fatalf("rank error: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("limit not applied, got %d results", len(results))
	}
	if results[0].Chunk.ID != "c1" || results[1].Chunk.ID != "c3" {
		t.Fatalf("expected the diverse chunk second, got %s", results[1].Chunk.ID)
	}
	if results[1].Score < 0.59 || results[1].Score > 0.61 {
		t.Fatalf("score should stay the query relevance, got %f", results[1].Score)
	}
}
