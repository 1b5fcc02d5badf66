package retriever

import (
	"context"
	"testing"

	"github.com/sweetpotato0/agentic-rag/contrib/vector/inmemory"
	"github.com/sweetpotato0/agentic-rag/rag/document"
)

// flatEmbedder gives every text the same vector so vector scores tie and
// only keyword matching can separate chunks.
type flatEmbedder struct{}

func (flatEmbedder) EmbedDocuments(ctx context.Context, chunks []document.Chunk) ([][]float32, error) {
	out := make([][]float32, len(chunks))
	for i := range chunks {
		out[i] = []float32{1, 0}
	}
	return out, nil
}

func (flatEmbedder) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	return []float32{1, 0}, nil
}

func sampleChunks() []document.Chunk {
	return []document.Chunk{
		{ID: "a", Source: "billing.md", Content: "Refunds are processed within a 30 day window."},
		{ID: "b", Source: "shipping.md", Content: "Shipping takes five business days."},
		{ID: "c", Source: "policy.md", Position: "2", Content: "The refund window closes after 30 days."},
	}
}

func ids(t *testing.T, r *Retriever, query string, k int) []string {
	t.Helper()
	results, err := r.Search(context.Background(), query, k)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	out := make([]string, 0, len(results))
	for _, res := range results {
		out = append(out, res.Chunk.ID)
	}
	return out
}

func TestSearchWithoutKeywordsKeepsStoreOrder(t *testing.T) {
	r := New(inmemory.NewInMemoryVectorStore(), flatEmbedder{}, nil)
	if _, err := r.Add(context.Background(), sampleChunks()); err != nil {
		t.Fatalf("add: %v", err)
	}

	got := ids(t, r, "refund window", 2)
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("expected store order [a b], got %v", got)
	}
}

func TestSearchBlendsKeywordMatches(t *testing.T) {
	r := New(inmemory.NewInMemoryVectorStore(), flatEmbedder{}, nil, WithKeywordWeight(1))
	if _, err := r.Add(context.Background(), sampleChunks()); err != nil {
		t.Fatalf("add: %v", err)
	}

	got := ids(t, r, "refund window", 2)
	if len(got) != 2 || got[0] != "c" || got[1] != "a" {
		t.Fatalf("expected keyword order [c a], got %v", got)
	}

	results, err := r.Search(context.Background(), "refund window", 1)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if results[0].Chunk.Position != "2" || results[0].Score != 1 {
		t.Fatalf("expected best keyword hit with normalised score 1, got %+v", results[0])
	}
}

func TestKeywordWeightOutOfRangeIsIgnored(t *testing.T) {
	r := New(inmemory.NewInMemoryVectorStore(), flatEmbedder{}, nil, WithKeywordWeight(1.5))
	if r.cfg.KeywordWeight != 0 {
		t.Fatalf("expected weight to stay 0, got %v", r.cfg.KeywordWeight)
	}
}

func TestClearDropsKeywordIndex(t *testing.T) {
	ctx := context.Background()
	r := New(inmemory.NewInMemoryVectorStore(), flatEmbedder{}, nil, WithKeywordWeight(0.5))
	if _, err := r.Add(ctx, sampleChunks()); err != nil {
		t.Fatalf("add: %v", err)
	}
	if r.keyword.len() != 3 {
		t.Fatalf("expected 3 keyword entries, got %d", r.keyword.len())
	}
	if err := r.Clear(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if r.keyword.len() != 0 {
		t.Fatalf("keyword index not cleared")
	}
	if got := ids(t, r, "refund", 3); len(got) != 0 {
		t.Fatalf("expected no results after clear, got %v", got)
	}
}

func TestSearchRejectsNonPositiveK(t *testing.T) {
	r := New(inmemory.NewInMemoryVectorStore(), flatEmbedder{}, nil)
	if _, err := r.Search(context.Background(), "q", 0); err == nil {
		t.Fatalf("expected error for k=0")
	}
}

func TestKeywordIndexRanksRareTermsHigher(t *testing.T) {
	k := newKeywordIndex()
	k.add("1", "alpha beta")
	k.add("2", "alpha gamma")
	k.add("2", "duplicate add is ignored")
	k.add("3", "alpha")

	hits := k.search("gamma alpha", 0)
	if len(hits) != 3 || hits[0].ID != "2" {
		t.Fatalf("expected chunk with the rare term first, got %+v", hits)
	}
	if k.search("   ", 5) != nil {
		t.Fatalf("blank query should return nil")
	}
}
