package logger

import (
	"log/slog"
	"time"

	"github.com/sweetpotato0/agentic-rag/middleware"
	"github.com/sweetpotato0/agentic-rag/pkg/logging"
)

// GenerationLogger records each generation request with its size, latency
// and outcome. Successful calls log at debug, failures at warn.
type GenerationLogger struct {
	logger *slog.Logger
}

// New creates a logging middleware. A nil logger uses the "llm" component
// logger.
func New(logger *slog.Logger) *GenerationLogger {
	if logger == nil {
		logger = logging.WithComponent("llm")
	}
	return &GenerationLogger{logger: logger}
}

// Name returns the middleware name
func (m *GenerationLogger) Name() string {
	return "GenerationLogger"
}

// Execute logs the request after the rest of the chain has run.
func (m *GenerationLogger) Execute(ctx *middleware.Context, next middleware.Handler) error {
	err := next(ctx)

	promptChars := 0
	for _, msg := range ctx.Messages {
		if msg != nil {
			promptChars += len(msg.Content)
		}
	}
	attrs := []any{
		"messages", len(ctx.Messages),
		"prompt_chars", promptChars,
		"tools", len(ctx.Tools),
		"duration_ms", time.Since(ctx.Started).Milliseconds(),
	}
	for k, v := range ctx.Metadata {
		attrs = append(attrs, k, v)
	}

	if err != nil {
		m.logger.Warn("generation failed", append(attrs, "error", err)...)
		return err
	}
	if ctx.Response != nil {
		attrs = append(attrs, "response_chars", len(ctx.Response.Content))
	}
	m.logger.Debug("generation completed", attrs...)
	return nil
}
