package embedder

import (
	"context"
	"fmt"

	errorskg "github.com/sweetpotato0/agentic-rag/errors"
	"github.com/sweetpotato0/agentic-rag/rag/document"
	"github.com/sweetpotato0/agentic-rag/vector"
)

// Embedder exposes methods tailored for RAG components.
type Embedder interface {
	EmbedDocuments(ctx context.Context, chunks []document.Chunk) ([][]float32, error)
	EmbedQuery(ctx context.Context, query string) ([]float32, error)
}

// VectorAdapter bridges the generic vector.Embedder interface into a rag Embedder.
// Backend failures wrap errors.ErrPortUnavailable.
type VectorAdapter struct {
	base      vector.Embedder
	batchSize int
}

// NewVectorAdapter creates a new adapter that embeds at most batchSize
// chunks per backend call; a non-positive size means 64.
func NewVectorAdapter(base vector.Embedder, batchSize int) *VectorAdapter {
	if batchSize <= 0 {
		batchSize = 64
	}
	return &VectorAdapter{base: base, batchSize: batchSize}
}

// EmbedDocuments embeds chunk contents in batches, preserving order.
func (v *VectorAdapter) EmbedDocuments(ctx context.Context, chunks []document.Chunk) ([][]float32, error) {
	if v == nil || v.base == nil {
		return nil, fmt.Errorf("embedder not configured: %w", errorskg.ErrPortUnavailable)
	}
	out := make([][]float32, 0, len(chunks))
	for start := 0; start < len(chunks); start += v.batchSize {
		end := min(start+v.batchSize, len(chunks))
		texts := make([]string, 0, end-start)
		for _, c := range chunks[start:end] {
			texts = append(texts, c.Content)
		}
		vecs, err := v.base.EmbedBatch(ctx, texts)
		if err != nil {
			return nil, fmt.Errorf("embed batch %d-%d: %w: %w", start, end, errorskg.ErrPortUnavailable, err)
		}
		if len(vecs) != len(texts) {
			return nil, fmt.Errorf("embed batch %d-%d: expected %d vectors, got %d: %w", start, end, len(texts), len(vecs), errorskg.ErrPortUnavailable)
		}
		out = append(out, vecs...)
	}
	return out, nil
}

// EmbedQuery embeds the query string.
func (v *VectorAdapter) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	if v == nil || v.base == nil {
		return nil, fmt.Errorf("embedder not configured: %w", errorskg.ErrPortUnavailable)
	}
	vec, err := v.base.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w: %w", errorskg.ErrPortUnavailable, err)
	}
	return vec, nil
}
