package agentic

import "context"

// Retriever is the retrieval port. Fewer than k results, including none, is
// not an error: implementations return nil, nil when nothing matches.
// Backend failures wrap errors.ErrPortUnavailable and index damage wraps
// errors.ErrIndexCorrupt so callers can tell them apart from an empty result.
type Retriever interface {
	Search(ctx context.Context, query string, k int) ([]EvidenceChunk, error)
}

// RetrieverFunc adapts a function to Retriever.
type RetrieverFunc func(ctx context.Context, query string, k int) ([]EvidenceChunk, error)

// Search calls f.
func (f RetrieverFunc) Search(ctx context.Context, query string, k int) ([]EvidenceChunk, error) {
	return f(ctx, query, k)
}
