package vector

import (
	"context"
	"math"
)

// Embedding is a stored vector with the chunk text and metadata it came
// from. Score is set by Search and holds the cosine similarity to the query.
type Embedding struct {
	ID       string
	Vector   []float32
	Text     string
	Metadata map[string]string
	Score    float32
}

// Clone returns a deep copy of the embedding.
func (e *Embedding) Clone() *Embedding {
	if e == nil {
		return nil
	}
	out := *e
	out.Vector = append([]float32(nil), e.Vector...)
	if e.Metadata != nil {
		out.Metadata = make(map[string]string, len(e.Metadata))
		for k, v := range e.Metadata {
			out.Metadata[k] = v
		}
	}
	return &out
}

// VectorStore defines the interface for vector storage and similarity search
type VectorStore interface {
	// AddEmbedding inserts or replaces an embedding
	AddEmbedding(ctx context.Context, embedding *Embedding) error

	// Search returns up to topK embeddings, most similar first
	Search(ctx context.Context, queryVector []float32, topK int) ([]*Embedding, error)

	// DeleteEmbedding removes an embedding by ID
	DeleteEmbedding(ctx context.Context, id string) error

	// GetEmbedding retrieves a specific embedding by ID
	GetEmbedding(ctx context.Context, id string) (*Embedding, error)

	// Clear removes all embeddings
	Clear(ctx context.Context) error

	// Count returns the number of embeddings
	Count(ctx context.Context) (int, error)
}

// Embedder defines the interface for creating embeddings from text
type Embedder interface {
	// Embed converts text to a vector embedding
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch converts multiple texts to embeddings
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension return number of embedding dimensions
	Dimension() int
}

// CosineDistanceOperator returns the pgvector operator for cosine distance
func CosineDistanceOperator() string {
	return "<=>"
}

// CosineSimilarity calculates the cosine similarity between two vectors
func CosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := 0; i < len(a); i++ {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return float32(dotProduct / (math.Sqrt(normA) * math.Sqrt(normB)))
}

// Normalize scales the vector to unit length (L2 norm).
func Normalize(vec []float32) []float32 {
	if len(vec) == 0 {
		return vec
	}
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return vec
	}
	inv := float32(1 / math.Sqrt(sum))
	for i := range vec {
		vec[i] *= inv
	}
	return vec
}
