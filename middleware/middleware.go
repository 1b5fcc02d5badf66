// Package middleware intercepts calls to the generation port. A chain wraps
// an agent.LLMClient so every planner, executor, critic and synthesizer
// request passes through the same validation, logging, limiting and error
// mapping steps.
package middleware

import (
	"context"
	"time"

	"github.com/sweetpotato0/agentic-rag/agent"
	"github.com/sweetpotato0/agentic-rag/message"
)

// Context represents one generation request travelling through the chain.
type Context struct {
	// Request messages, system prompt first
	Messages []*message.Message

	// Tool schemas offered with the request
	Tools []map[string]any

	// Response from the LLM, set by the final handler
	Response *message.Message

	// Started is when the request entered the chain
	Started time.Time

	// Metadata for passing data between middlewares
	Metadata map[string]any

	context context.Context
}

// NewContext creates a middleware context for one request.
func NewContext(ctx context.Context, messages []*message.Message, tools []map[string]any) *Context {
	return &Context{
		Messages: messages,
		Tools:    tools,
		Started:  time.Now(),
		Metadata: make(map[string]any),
		context:  ctx,
	}
}

// Context returns the request context.Context.
func (c *Context) Context() context.Context {
	if c.context == nil {
		return context.Background()
	}
	return c.context
}

// Middleware intercepts generation requests. Returning an error stops the
// chain.
type Middleware interface {
	// Name returns the name of the middleware for logging and debugging
	Name() string

	// Execute runs the middleware logic and calls next to continue the chain
	Execute(ctx *Context, next Handler) error
}

// Handler is the function called to pass control to the next middleware
type Handler func(*Context) error

// MiddlewareChain represents a sequence of middleware to be executed
type MiddlewareChain struct {
	middlewares []Middleware
}

// NewChain creates a new middleware chain. Nil entries are skipped.
func NewChain(middlewares ...Middleware) *MiddlewareChain {
	c := &MiddlewareChain{}
	for _, m := range middlewares {
		c.Add(m)
	}
	return c
}

// Add appends a middleware to the chain
func (c *MiddlewareChain) Add(m Middleware) *MiddlewareChain {
	if m != nil {
		c.middlewares = append(c.middlewares, m)
	}
	return c
}

// Len returns the number of middlewares in the chain.
func (c *MiddlewareChain) Len() int {
	return len(c.middlewares)
}

// Execute runs all middlewares in the chain
func (c *MiddlewareChain) Execute(ctx *Context, finalHandler Handler) error {
	return c.executeMiddleware(ctx, 0, finalHandler)
}

// executeMiddleware recursively executes middlewares in sequence
func (c *MiddlewareChain) executeMiddleware(ctx *Context, index int, finalHandler Handler) error {
	if index >= len(c.middlewares) {
		return finalHandler(ctx)
	}
	nextHandler := func(ctx *Context) error {
		return c.executeMiddleware(ctx, index+1, finalHandler)
	}
	return c.middlewares[index].Execute(ctx, nextHandler)
}

// Client is an agent.LLMClient whose Generate calls run through a chain.
type Client struct {
	agent.LLMClient
	chain *MiddlewareChain
}

var _ agent.LLMClient = (*Client)(nil)

// Wrap returns client with middlewares applied in order; the first
// middleware sees the request first and the response last.
func Wrap(client agent.LLMClient, middlewares ...Middleware) *Client {
	return &Client{LLMClient: client, chain: NewChain(middlewares...)}
}

// Generate implements agent.LLMClient.
func (c *Client) Generate(ctx context.Context, messages []*message.Message, tools []map[string]any) (*message.Message, error) {
	mctx := NewContext(ctx, messages, tools)
	err := c.chain.Execute(mctx, func(mc *Context) error {
		resp, err := c.LLMClient.Generate(mc.Context(), mc.Messages, mc.Tools)
		if err != nil {
			return err
		}
		mc.Response = resp
		return nil
	})
	if err != nil {
		return nil, err
	}
	return mctx.Response, nil
}
