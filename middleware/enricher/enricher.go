package enricher

import (
	"github.com/sweetpotato0/agentic-rag/middleware"
)

// EnricherFunc enriches the context
type EnricherFunc func(*middleware.Context) error

// ContextEnricher adds data to the middleware context before the request
// continues down the chain.
type ContextEnricher struct {
	enricher EnricherFunc
}

// NewContextEnricher creates a context enriching middleware
func NewContextEnricher(enricher EnricherFunc) *ContextEnricher {
	return &ContextEnricher{enricher: enricher}
}

// WithValues copies values into the request metadata, e.g. provider and
// model names for the logger.
func WithValues(values map[string]any) *ContextEnricher {
	return NewContextEnricher(func(ctx *middleware.Context) error {
		for k, v := range values {
			ctx.Metadata[k] = v
		}
		return nil
	})
}

// Name returns the middleware name
func (m *ContextEnricher) Name() string {
	return "ContextEnricher"
}

// Execute enriches the context
func (m *ContextEnricher) Execute(ctx *middleware.Context, next middleware.Handler) error {
	if m.enricher != nil {
		if err := m.enricher(ctx); err != nil {
			return err
		}
	}
	return next(ctx)
}
