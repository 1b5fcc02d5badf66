package errorhandler

import (
	"context"
	"errors"
	"fmt"

	errorskg "github.com/sweetpotato0/agentic-rag/errors"
	"github.com/sweetpotato0/agentic-rag/middleware"
)

// ErrorHandlerFunc maps an error returned by the rest of the chain
type ErrorHandlerFunc func(error) error

// ErrorHandler handles errors in the middleware chain
type ErrorHandler struct {
	handler ErrorHandlerFunc
}

// NewErrorHandler creates an error handling middleware
func NewErrorHandler(handler ErrorHandlerFunc) *ErrorHandler {
	return &ErrorHandler{handler: handler}
}

// Name returns the middleware name
func (m *ErrorHandler) Name() string {
	return "ErrorHandler"
}

// Execute handles errors from downstream middlewares
func (m *ErrorHandler) Execute(ctx *middleware.Context, next middleware.Handler) error {
	err := next(ctx)
	if err != nil && m.handler != nil {
		return m.handler(err)
	}
	return err
}

// PortErrors guarantees the generation port contract: cancellation and
// invalid input pass through, any other failure wraps
// errors.ErrPortUnavailable.
func PortErrors() *ErrorHandler {
	return NewErrorHandler(func(err error) error {
		switch {
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return err
		case errors.Is(err, errorskg.ErrPortUnavailable), errors.Is(err, errorskg.ErrInvalidInput):
			return err
		default:
			return fmt.Errorf("generation: %w: %w", errorskg.ErrPortUnavailable, err)
		}
	})
}
