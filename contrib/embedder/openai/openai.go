package openai

import (
	"context"
	"fmt"
	"strings"

	openaisdk "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	errorskg "github.com/sweetpotato0/agentic-rag/errors"
	"github.com/sweetpotato0/agentic-rag/vector"
)

// OpenAIEmbedder implements vector.Embedder with the OpenAI embeddings API or
// any compatible server (set baseURL, e.g. Ollama's /v1 endpoint). Vectors
// are resized to the configured dimension; truncated vectors are
// re-normalised to unit length so cosine scores stay comparable.
type OpenAIEmbedder struct {
	client        openaisdk.Client
	model         openaisdk.EmbeddingModel
	dimension     int
	sendDimension bool
}

var _ vector.Embedder = (*OpenAIEmbedder)(nil)

// Option customises the embedder.
type Option func(*OpenAIEmbedder)

// WithRequestedDimension asks the server for vectors of the configured
// dimension. Only the text-embedding-3 models accept it.
func WithRequestedDimension() Option {
	return func(e *OpenAIEmbedder) {
		e.sendDimension = true
	}
}

// New creates an embedder for model. A non-positive dimension keeps whatever
// size the server returns.
func New(apiKey, baseURL string, model openaisdk.EmbeddingModel, dimension int, opts ...Option) *OpenAIEmbedder {
	reqOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if strings.TrimSpace(baseURL) != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(baseURL))
	}
	e := &OpenAIEmbedder{
		client:    openaisdk.NewClient(reqOpts...),
		model:     model,
		dimension: dimension,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Dimension returns the size of produced vectors.
func (e *OpenAIEmbedder) Dimension() int {
	return e.dimension
}

// Embed embeds a single text.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("no embedding returned: %w", errorskg.ErrPortUnavailable)
	}
	return vectors[0], nil
}

// EmbedBatch embeds texts in one request and returns vectors in input order.
// Blank texts are sent as a single space since the API rejects empty input.
func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	input := make([]string, len(texts))
	for i, t := range texts {
		if strings.TrimSpace(t) == "" {
			t = " "
		}
		input[i] = t
	}

	params := openaisdk.EmbeddingNewParams{
		Model: e.model,
		Input: openaisdk.EmbeddingNewParamsInputUnion{OfArrayOfStrings: input},
	}
	if e.sendDimension && e.dimension > 0 {
		params.Dimensions = openaisdk.Int(int64(e.dimension))
	}

	resp, err := e.client.Embeddings.New(ctx, params)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("create embeddings: %w: %w", errorskg.ErrPortUnavailable, err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("expected %d embeddings, got %d: %w", len(texts), len(resp.Data), errorskg.ErrPortUnavailable)
	}

	out := make([][]float32, len(texts))
	for _, emb := range resp.Data {
		if emb.Index < 0 || int(emb.Index) >= len(texts) || out[emb.Index] != nil {
			return nil, fmt.Errorf("embedding index %d out of range or repeated: %w", emb.Index, errorskg.ErrPortUnavailable)
		}
		out[emb.Index] = resize(emb.Embedding, e.dimension)
	}
	return out, nil
}

// resize zero-pads or truncates input to size. Truncation re-normalises
// the kept prefix.
func resize(input []float64, size int) []float32 {
	if size <= 0 {
		size = len(input)
	}
	vec := make([]float32, size)
	for i := 0; i < len(input) && i < size; i++ {
		vec[i] = float32(input[i])
	}
	if len(input) > size {
		vector.Normalize(vec)
	}
	return vec
}
