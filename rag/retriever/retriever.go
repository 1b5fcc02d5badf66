package retriever

import (
	"context"
	"fmt"
	"sort"
	"sync"

	errorskg "github.com/sweetpotato0/agentic-rag/errors"
	"github.com/sweetpotato0/agentic-rag/rag/document"
	"github.com/sweetpotato0/agentic-rag/rag/embedder"
	"github.com/sweetpotato0/agentic-rag/rag/reranker"
	"github.com/sweetpotato0/agentic-rag/vector"
)

// Config controls retrieval behaviour.
type Config struct {
	// Oversample multiplies k when querying the store so the reranker has
	// candidates to choose from.
	Oversample int
	// KeywordWeight blends BM25 keyword matches into the ranking. 0 disables
	// keyword search; 1 ranks by keywords alone.
	KeywordWeight float32
}

// Option customizes retriever config.
type Option func(*Config)

// WithOversample sets how many candidates per requested result are fetched.
func WithOversample(n int) Option {
	return func(cfg *Config) {
		if n > 0 {
			cfg.Oversample = n
		}
	}
}

// WithKeywordWeight enables hybrid search. Values outside [0,1] are ignored.
func WithKeywordWeight(w float32) Option {
	return func(cfg *Config) {
		if w >= 0 && w <= 1 {
			cfg.KeywordWeight = w
		}
	}
}

// Retriever coordinates embedding, similarity search and reranking over
// chunks that were added to it.
type Retriever struct {
	store    vector.VectorStore
	embedder embedder.Embedder
	reranker reranker.Reranker
	cfg      Config

	mu      sync.RWMutex
	chunks  map[string]document.Chunk
	keyword *keywordIndex
}

// New creates a retriever. A nil reranker keeps the store's order.
func New(store vector.VectorStore, emb embedder.Embedder, rer reranker.Reranker, opts ...Option) *Retriever {
	cfg := Config{Oversample: 2}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return &Retriever{
		store:    store,
		embedder: emb,
		reranker: rer,
		cfg:      cfg,
		chunks:   make(map[string]document.Chunk),
		keyword:  newKeywordIndex(),
	}
}

// Add embeds chunks and writes them to the store. It returns the vectors
// in chunk order so callers can persist them.
func (r *Retriever) Add(ctx context.Context, chunks []document.Chunk) ([][]float32, error) {
	if len(chunks) == 0 {
		return nil, nil
	}
	vecs, err := r.embedder.EmbedDocuments(ctx, chunks)
	if err != nil {
		return nil, err
	}
	if err := r.Restore(ctx, chunks, vecs); err != nil {
		return nil, err
	}
	return vecs, nil
}

// Restore writes already embedded chunks to the store.
func (r *Retriever) Restore(ctx context.Context, chunks []document.Chunk, vecs [][]float32) error {
	if len(chunks) != len(vecs) {
		return fmt.Errorf("restore: %d chunks but %d vectors: %w", len(chunks), len(vecs), errorskg.ErrIndexCorrupt)
	}
	for i, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			return err
		}
		embedding := &vector.Embedding{
			ID:     chunk.ID,
			Vector: vecs[i],
			Text:   chunk.Content,
			Metadata: map[string]string{
				document.MetaSource:   chunk.Source,
				document.MetaPosition: chunk.Position,
			},
		}
		if err := r.store.AddEmbedding(ctx, embedding); err != nil {
			return fmt.Errorf("store chunk %s: %w", chunk.ID, err)
		}
		r.mu.Lock()
		r.chunks[chunk.ID] = chunk.Clone()
		r.mu.Unlock()
		r.keyword.add(chunk.ID, chunk.Content)
	}
	return nil
}

// Search embeds query, fetches k*Oversample neighbours, reranks them,
// blends in keyword matches when enabled and returns at most k results. No
// match is nil, nil.
func (r *Retriever) Search(ctx context.Context, query string, k int) ([]reranker.Result, error) {
	if k <= 0 {
		return nil, fmt.Errorf("k must be positive, got %d: %w", k, errorskg.ErrInvalidInput)
	}
	queryVec, err := r.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, err
	}
	hits, err := r.store.Search(ctx, queryVec, k*r.cfg.Oversample)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}

	candidates := make([]reranker.Candidate, 0, len(hits))
	for _, hit := range hits {
		chunk, ok := r.lookupChunk(hit)
		if !ok {
			continue
		}
		candidates = append(candidates, reranker.Candidate{
			Chunk:  chunk,
			Vector: hit.Vector,
			Score:  hit.Score,
		})
	}

	var results []reranker.Result
	switch {
	case len(candidates) == 0:
	case r.reranker == nil:
		results = make([]reranker.Result, 0, len(candidates))
		for _, cand := range candidates {
			results = append(results, reranker.Result{Chunk: cand.Chunk, Score: cand.Score})
		}
	default:
		results, err = r.reranker.Rank(reranker.ContextWithQuery(ctx, query), queryVec, candidates)
		if err != nil {
			return nil, fmt.Errorf("rerank: %w", err)
		}
	}

	if r.cfg.KeywordWeight > 0 {
		results = r.blend(results, r.keyword.search(query, k*r.cfg.Oversample))
	}
	if len(results) == 0 {
		return nil, nil
	}
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// blend merges vector results with keyword hits. Keyword scores are
// normalised by the best hit so both signals share the [0,1] scale.
func (r *Retriever) blend(vecResults []reranker.Result, kwHits []keywordHit) []reranker.Result {
	w := r.cfg.KeywordWeight
	type scored struct {
		chunk document.Chunk
		score float32
		order int
	}
	merged := make(map[string]*scored, len(vecResults)+len(kwHits))
	var order int
	for _, res := range vecResults {
		merged[res.Chunk.ID] = &scored{chunk: res.Chunk, score: (1 - w) * res.Score, order: order}
		order++
	}

	var best float32
	if len(kwHits) > 0 {
		best = kwHits[0].Score
	}
	for _, hit := range kwHits {
		if best <= 0 {
			break
		}
		entry, ok := merged[hit.ID]
		if !ok {
			r.mu.RLock()
			chunk, known := r.chunks[hit.ID]
			r.mu.RUnlock()
			if !known {
				continue
			}
			entry = &scored{chunk: chunk.Clone(), order: order}
			order++
			merged[hit.ID] = entry
		}
		entry.score += w * hit.Score / best
	}

	all := make([]*scored, 0, len(merged))
	for _, entry := range merged {
		all = append(all, entry)
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].score == all[j].score {
			return all[i].order < all[j].order
		}
		return all[i].score > all[j].score
	})
	out := make([]reranker.Result, 0, len(all))
	for _, entry := range all {
		out = append(out, reranker.Result{Chunk: entry.chunk, Score: entry.score})
	}
	return out
}

// lookupChunk resolves a store hit to its chunk. Hits from a shared
// external store that this process never indexed are rebuilt from the
// stored metadata.
func (r *Retriever) lookupChunk(hit *vector.Embedding) (document.Chunk, bool) {
	r.mu.RLock()
	chunk, ok := r.chunks[hit.ID]
	r.mu.RUnlock()
	if ok {
		return chunk.Clone(), true
	}
	source := hit.Metadata[document.MetaSource]
	if source == "" || hit.Text == "" {
		return document.Chunk{}, false
	}
	return document.Chunk{
		ID:       hit.ID,
		Source:   source,
		Position: hit.Metadata[document.MetaPosition],
		Content:  hit.Text,
	}, true
}

// Clear drops all indexed state.
func (r *Retriever) Clear(ctx context.Context) error {
	if err := r.store.Clear(ctx); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.chunks = make(map[string]document.Chunk)
	r.keyword.reset()
	return nil
}

// Count returns number of chunks in the store.
func (r *Retriever) Count(ctx context.Context) (int, error) {
	return r.store.Count(ctx)
}
