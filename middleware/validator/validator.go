package validator

import (
	"fmt"
	"strings"

	errorskg "github.com/sweetpotato0/agentic-rag/errors"
	"github.com/sweetpotato0/agentic-rag/message"
	"github.com/sweetpotato0/agentic-rag/middleware"
)

// FilterFunc inspects or transforms a response
type FilterFunc func(*message.Message) error

// RequestValidator rejects requests that cannot produce a useful answer:
// no messages, nil entries, or nothing but blank or system content.
type RequestValidator struct{}

// NewRequestValidator creates a request validation middleware
func NewRequestValidator() *RequestValidator {
	return &RequestValidator{}
}

// Name returns the middleware name
func (m *RequestValidator) Name() string {
	return "RequestValidator"
}

// Execute validates the request messages
func (m *RequestValidator) Execute(ctx *middleware.Context, next middleware.Handler) error {
	if len(ctx.Messages) == 0 {
		return fmt.Errorf("generation request has no messages: %w", errorskg.ErrInvalidInput)
	}
	hasTurn := false
	for i, msg := range ctx.Messages {
		if msg == nil {
			return fmt.Errorf("generation request message %d is nil: %w", i, errorskg.ErrInvalidInput)
		}
		if msg.Role != message.RoleSystem && strings.TrimSpace(msg.Content) != "" {
			hasTurn = true
		}
	}
	if !hasTurn {
		return fmt.Errorf("generation request has no user or assistant content: %w", errorskg.ErrInvalidInput)
	}
	return next(ctx)
}

// ResponseFilter inspects or transforms the response
type ResponseFilter struct {
	filter FilterFunc
}

// NewResponseFilter creates a response filtering middleware
func NewResponseFilter(filter FilterFunc) *ResponseFilter {
	return &ResponseFilter{filter: filter}
}

// Name returns the middleware name
func (m *ResponseFilter) Name() string {
	return "ResponseFilter"
}

// Execute filters the response
func (m *ResponseFilter) Execute(ctx *middleware.Context, next middleware.Handler) error {
	if err := next(ctx); err != nil {
		return err
	}
	if ctx.Response != nil && m.filter != nil {
		return m.filter(ctx.Response)
	}
	return nil
}

// TrimResponse strips surrounding whitespace from the response content.
func TrimResponse() *ResponseFilter {
	return NewResponseFilter(func(msg *message.Message) error {
		msg.Content = strings.TrimSpace(msg.Content)
		return nil
	})
}
