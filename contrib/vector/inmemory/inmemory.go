package inmemory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	errorskg "github.com/sweetpotato0/agentic-rag/errors"
	"github.com/sweetpotato0/agentic-rag/vector"
)

// InMemoryVectorStore implements VectorStore with a brute-force cosine scan.
type InMemoryVectorStore struct {
	embeddings map[string]*vector.Embedding
	mu         sync.RWMutex
}

// NewInMemoryVectorStore creates a new in-memory vector store
func NewInMemoryVectorStore() *InMemoryVectorStore {
	return &InMemoryVectorStore{
		embeddings: make(map[string]*vector.Embedding),
	}
}

// AddEmbedding stores a copy of embedding, replacing any with the same ID.
func (s *InMemoryVectorStore) AddEmbedding(ctx context.Context, embedding *vector.Embedding) error {
	if embedding == nil {
		return fmt.Errorf("embedding cannot be nil: %w", errorskg.ErrInvalidInput)
	}
	if embedding.ID == "" {
		return fmt.Errorf("embedding ID cannot be empty: %w", errorskg.ErrInvalidInput)
	}
	if len(embedding.Vector) == 0 {
		return fmt.Errorf("embedding vector cannot be empty: %w", errorskg.ErrInvalidInput)
	}

	stored := embedding.Clone()
	stored.Score = 0

	s.mu.Lock()
	defer s.mu.Unlock()
	s.embeddings[embedding.ID] = stored
	return nil
}

// Search scores every embedding against queryVector. Ties are broken by ID
// so results are deterministic.
func (s *InMemoryVectorStore) Search(ctx context.Context, queryVector []float32, topK int) ([]*vector.Embedding, error) {
	if len(queryVector) == 0 {
		return nil, fmt.Errorf("query vector cannot be empty: %w", errorskg.ErrInvalidInput)
	}
	if topK <= 0 {
		topK = 10
	}

	s.mu.RLock()
	results := make([]*vector.Embedding, 0, len(s.embeddings))
	for _, emb := range s.embeddings {
		if len(emb.Vector) != len(queryVector) {
			continue
		}
		hit := emb.Clone()
		hit.Score = vector.CosineSimilarity(queryVector, emb.Vector)
		results = append(results, hit)
	}
	s.mu.RUnlock()

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ID < results[j].ID
	})

	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

// DeleteEmbedding removes an embedding by ID
func (s *InMemoryVectorStore) DeleteEmbedding(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.embeddings[id]; !exists {
		return fmt.Errorf("embedding %s: %w", id, errorskg.ErrNotFound)
	}
	delete(s.embeddings, id)
	return nil
}

// GetEmbedding retrieves a copy of the embedding with the given ID
func (s *InMemoryVectorStore) GetEmbedding(ctx context.Context, id string) (*vector.Embedding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	emb, exists := s.embeddings[id]
	if !exists {
		return nil, fmt.Errorf("embedding %s: %w", id, errorskg.ErrNotFound)
	}
	return emb.Clone(), nil
}

// Clear removes all embeddings
func (s *InMemoryVectorStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.embeddings = make(map[string]*vector.Embedding)
	return nil
}

// Count returns the number of embeddings
func (s *InMemoryVectorStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.embeddings), nil
}
