package agent

import (
	"context"
	"fmt"

	errorskg "github.com/sweetpotato0/agentic-rag/errors"
	"github.com/sweetpotato0/agentic-rag/message"
	"golang.org/x/time/rate"
)

// LLMClient is the generation port. Planner, executor, critic and synthesizer
// each send their own prompt shape through the same client.
type LLMClient interface {
	// Generate generates a response from the LLM
	Generate(ctx context.Context, messages []*message.Message, tools []map[string]any) (*message.Message, error)

	// SetTemperature updates the temperature setting for generation
	SetTemperature(temp float64)

	// SetMaxTokens updates the maximum tokens limit for generation
	SetMaxTokens(max int64)

	// SetModel updates the model to use for generation
	SetModel(model string)
}

// RateLimitedClient throttles Generate calls with a token bucket. Waiting for
// a token honours context cancellation.
type RateLimitedClient struct {
	LLMClient
	limiter *rate.Limiter
}

var _ LLMClient = (*RateLimitedClient)(nil)

// NewRateLimitedClient wraps client so at most perSecond calls start per
// second, with the given burst. A non-positive perSecond disables throttling.
func NewRateLimitedClient(client LLMClient, perSecond float64, burst int) *RateLimitedClient {
	limit := rate.Inf
	if perSecond > 0 {
		limit = rate.Limit(perSecond)
	}
	if burst <= 0 {
		burst = 1
	}
	return &RateLimitedClient{
		LLMClient: client,
		limiter:   rate.NewLimiter(limit, burst),
	}
}

// Generate waits for a token and forwards the call.
func (c *RateLimitedClient) Generate(ctx context.Context, messages []*message.Message, tools []map[string]any) (*message.Message, error) {
	if c.LLMClient == nil {
		return nil, fmt.Errorf("rate limited client: %w", errorskg.ErrPortUnavailable)
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return c.LLMClient.Generate(ctx, messages, tools)
}
