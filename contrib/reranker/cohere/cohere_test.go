package cohere

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sweetpotato0/agentic-rag/rag/document"
	"github.com/sweetpotato0/agentic-rag/rag/reranker"
)

type stubReranker struct {
	called bool
}

func (s *stubReranker) Rank(ctx context.Context, q []float32, c []reranker.Candidate) ([]reranker.Result, error) {
	s.called = true
	return []reranker.Result{{Chunk: c[0].Chunk, Score: 0.5}}, nil
}

func candidates() []reranker.Candidate {
	return []reranker.Candidate{
		{Chunk: document.Chunk{ID: "chunk-1", Content: "shipping takes five days"}, Score: 0.9},
		{Chunk: document.Chunk{ID: "chunk-2", Content: "refunds within 30 days"}, Score: 0.8},
	}
}

func TestCohereRerankerFallsBackWithoutKey(t *testing.T) {
	fallback := &stubReranker{}
	client := New("", WithFallback(fallback))

	ctx := reranker.ContextWithQuery(context.Background(), "测试 query")
	results, err := client.Rank(ctx, nil, candidates())
	if err != nil {
		t.Fatalf("Rank error: %v", err)
	}
	if len(results) != 1 || !fallback.called {
		t.Fatalf("expected fallback path")
	}
}

func TestCohereRerankerReordersByRelevance(t *testing.T) {
	var got rerankRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer key" {
			t.Errorf("missing bearer token")
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.Write([]byte(`{"results":[{"index":1,"relevance_score":0.97},{"index":0,"relevance_score":0.12}]}`))
	}))
	defer server.Close()

	client := New("key", WithEndpoint(server.URL))
	ctx := reranker.ContextWithQuery(context.Background(), "refund window")
	results, err := client.Rank(ctx, nil, candidates())
	if err != nil {
		t.Fatalf("rank: %v", err)
	}
	if got.Query != "refund window" || len(got.Documents) != 2 {
		t.Fatalf("unexpected request %+v", got)
	}
	if len(results) != 2 || results[0].Chunk.ID != "chunk-2" || results[0].Score != 0.97 {
		t.Fatalf("unexpected results %+v", results)
	}
}

func TestCohereRerankerDegradesOnServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := New("key", WithEndpoint(server.URL))
	ctx := reranker.ContextWithQuery(context.Background(), "refund window")
	results, err := client.Rank(ctx, nil, candidates())
	if err != nil {
		t.Fatalf("expected degraded success, got %v", err)
	}
	if len(results) != 2 || results[0].Chunk.ID != "chunk-1" {
		t.Fatalf("expected vector order, got %+v", results)
	}
}
