package cohere

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	errorskg "github.com/sweetpotato0/agentic-rag/errors"
	"github.com/sweetpotato0/agentic-rag/pkg/logging"
	"github.com/sweetpotato0/agentic-rag/rag/reranker"
)

const defaultEndpoint = "https://api.cohere.com/v1/rerank"

// Client reranks retrieval candidates with Cohere's ReRank API. When the
// API cannot be used the candidates go to the fallback reranker, or keep
// their vector order when none is set.
type Client struct {
	apiKey     string
	model      string
	topN       int
	httpClient *http.Client
	endpoint   string
	fallback   reranker.Reranker
	logger     *slog.Logger
}

var _ reranker.Reranker = (*Client)(nil)

// Option customises the Cohere reranker client.
type Option func(*Client)

// WithModel overrides the default Cohere model (rerank-english-v3.0).
func WithModel(model string) Option {
	return func(c *Client) {
		if model != "" {
			c.model = model
		}
	}
}

// WithTopN limits how many documents Cohere re-ranks per call.
func WithTopN(topN int) Option {
	return func(c *Client) {
		if topN > 0 {
			c.topN = topN
		}
	}
}

// WithHTTPClient swaps the HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithEndpoint overrides the Cohere API endpoint.
func WithEndpoint(endpoint string) Option {
	return func(c *Client) {
		if endpoint != "" {
			c.endpoint = endpoint
		}
	}
}

// WithFallback specifies the reranker used when Cohere is unavailable.
func WithFallback(r reranker.Reranker) Option {
	return func(c *Client) {
		if r != nil {
			c.fallback = r
		}
	}
}

// New creates a new Cohere-based reranker.
func New(apiKey string, opts ...Option) *Client {
	client := &Client{
		apiKey:     apiKey,
		model:      "rerank-english-v3.0",
		topN:       50,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		endpoint:   defaultEndpoint,
		logger:     logging.WithComponent("cohere-rerank"),
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

type rerankRequest struct {
	Model     string   `json:"model"`
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
	TopN      int      `json:"top_n,omitempty"`
}

type rerankResponse struct {
	Results []struct {
		Index int     `json:"index"`
		Score float32 `json:"relevance_score"`
	} `json:"results"`
}

// Rank implements reranker.Reranker. The query text is read from ctx (see
// reranker.ContextWithQuery). API failures degrade to the fallback; only
// cancellation is returned as an error.
func (c *Client) Rank(ctx context.Context, queryVector []float32, candidates []reranker.Candidate) ([]reranker.Result, error) {
	if len(candidates) == 0 {
		return nil, nil
	}
	query, ok := reranker.QueryFromContext(ctx)
	if !ok || strings.TrimSpace(query) == "" || c.apiKey == "" {
		return c.runFallback(ctx, queryVector, candidates)
	}

	results, err := c.rerank(ctx, query, candidates)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		c.logger.Warn("cohere rerank unavailable, using fallback", "error", err)
		return c.runFallback(ctx, queryVector, candidates)
	}
	return results, nil
}

func (c *Client) rerank(ctx context.Context, query string, candidates []reranker.Candidate) ([]reranker.Result, error) {
	limit := min(len(candidates), c.topN)
	docTexts := make([]string, limit)
	for i := 0; i < limit; i++ {
		docTexts[i] = candidates[i].Chunk.Content
	}

	reqBody, err := json.Marshal(rerankRequest{
		Model:     c.model,
		Query:     query,
		Documents: docTexts,
		TopN:      limit,
	})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("cohere rerank: %w: %w", errorskg.ErrPortUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("cohere rerank status %d: %w", resp.StatusCode, errorskg.ErrPortUnavailable)
	}

	var rr rerankResponse
	if err := json.NewDecoder(resp.Body).Decode(&rr); err != nil {
		return nil, fmt.Errorf("decode cohere rerank: %w: %w", errorskg.ErrPortUnavailable, err)
	}
	results := make([]reranker.Result, 0, len(rr.Results))
	for _, res := range rr.Results {
		if res.Index < 0 || res.Index >= limit {
			continue
		}
		results = append(results, reranker.Result{
			Chunk: candidates[res.Index].Chunk,
			Score: res.Score,
		})
	}
	if len(results) == 0 {
		return nil, errors.New("cohere returned no results")
	}
	return results, nil
}

func (c *Client) runFallback(ctx context.Context, queryVector []float32, candidates []reranker.Candidate) ([]reranker.Result, error) {
	if c.fallback != nil {
		return c.fallback.Rank(ctx, queryVector, candidates)
	}
	results := make([]reranker.Result, 0, len(candidates))
	for _, cand := range candidates {
		results = append(results, reranker.Result{Chunk: cand.Chunk, Score: cand.Score})
	}
	return results, nil
}
