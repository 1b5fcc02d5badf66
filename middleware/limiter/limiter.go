package limiter

import (
	"github.com/sweetpotato0/agentic-rag/middleware"
)

// ConcurrencyLimiter caps in-flight generation requests. Waiting for a slot
// honours the request context.
type ConcurrencyLimiter struct {
	slots chan struct{}
}

// NewConcurrencyLimiter allows at most n concurrent requests; n <= 0 means 1.
func NewConcurrencyLimiter(n int) *ConcurrencyLimiter {
	if n <= 0 {
		n = 1
	}
	return &ConcurrencyLimiter{slots: make(chan struct{}, n)}
}

// Name returns the middleware name
func (m *ConcurrencyLimiter) Name() string {
	return "ConcurrencyLimiter"
}

// Execute waits for a slot and releases it when the chain returns.
func (m *ConcurrencyLimiter) Execute(ctx *middleware.Context, next middleware.Handler) error {
	select {
	case m.slots <- struct{}{}:
	case <-ctx.Context().Done():
		return ctx.Context().Err()
	}
	defer func() { <-m.slots }()
	return next(ctx)
}

// InFlight returns the number of requests currently holding a slot.
func (m *ConcurrencyLimiter) InFlight() int {
	return len(m.slots)
}
