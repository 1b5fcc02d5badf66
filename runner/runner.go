package runner

import (
	"context"
	"fmt"
	"sync"

	errorskg "github.com/sweetpotato0/agentic-rag/errors"
	"github.com/sweetpotato0/agentic-rag/pkg/logging"
	"github.com/sweetpotato0/agentic-rag/rag/agentic"
	"github.com/sweetpotato0/agentic-rag/transcript"
)

// Answerer runs one exchange. *agentic.Pipeline implements it.
type Answerer interface {
	Run(ctx context.Context, question string, opts ...agentic.RunOption) (*agentic.Response, error)
}

// Runner answers questions with bounded concurrency. Each question runs in
// its own exchange; conversations share nothing but their transcript.
type Runner struct {
	answerer       Answerer
	transcripts    transcript.Store
	historyEntries int
	semaphore      chan struct{}
}

// Option customises a Runner.
type Option func(*Runner)

// WithTranscripts records every answered exchange and replays the
// conversation as history for the next question.
func WithTranscripts(store transcript.Store) Option {
	return func(r *Runner) {
		r.transcripts = store
	}
}

// WithHistoryEntries caps how many earlier exchanges are replayed (default 3).
func WithHistoryEntries(n int) Option {
	return func(r *Runner) {
		if n >= 0 {
			r.historyEntries = n
		}
	}
}

// New creates a runner; a non-positive maxConcurrency means 10.
func New(answerer Answerer, maxConcurrency int, opts ...Option) *Runner {
	if maxConcurrency <= 0 {
		maxConcurrency = 10
	}
	r := &Runner{
		answerer:       answerer,
		historyEntries: 3,
		semaphore:      make(chan struct{}, maxConcurrency),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// Ask answers question inside conversationID. A transcript failure is
// logged and does not fail the exchange.
func (r *Runner) Ask(ctx context.Context, conversationID, question string, opts ...agentic.RunOption) (*agentic.Response, error) {
	if r.answerer == nil {
		return nil, fmt.Errorf("runner has no pipeline: %w", errorskg.ErrInvalidInput)
	}

	select {
	case r.semaphore <- struct{}{}:
		defer func() { <-r.semaphore }()
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	logger := logging.WithComponent("runner").With("conversation_id", conversationID)
	if r.transcripts != nil && conversationID != "" && r.historyEntries > 0 {
		entries, err := r.transcripts.List(ctx, conversationID, r.historyEntries)
		if err != nil {
			logger.Warn("failed to load conversation history", "error", err)
		} else if len(entries) > 0 {
			opts = append([]agentic.RunOption{agentic.WithHistory(transcript.History(entries))}, opts...)
		}
	}

	resp, err := r.answerer.Run(ctx, question, opts...)
	if err != nil {
		return nil, err
	}

	if r.transcripts != nil {
		if err := r.transcripts.Append(ctx, transcript.NewEntry(conversationID, resp)); err != nil {
			logger.Warn("failed to record transcript", "exchange_id", resp.ID, "error", err)
		}
	}
	return resp, nil
}

// Task is one question for AskAll.
type Task struct {
	ID             string
	ConversationID string
	Question       string
}

// Result is the outcome of one Task.
type Result struct {
	TaskID   string
	Response *agentic.Response
	Error    error
}

// AskAll answers tasks concurrently, limited by the runner's concurrency.
// Results keep task order; a nil task or a panicking exchange becomes an
// error result.
func (r *Runner) AskAll(ctx context.Context, tasks []*Task) []*Result {
	results := make([]*Result, len(tasks))
	var wg sync.WaitGroup

	for i, task := range tasks {
		if task == nil {
			results[i] = &Result{Error: fmt.Errorf("task %d is nil: %w", i, errorskg.ErrInvalidInput)}
			continue
		}
		wg.Add(1)
		go func(index int, t *Task) {
			defer wg.Done()
			defer func() {
				if rec := recover(); rec != nil {
					results[index] = &Result{
						TaskID: t.ID,
						Error:  fmt.Errorf("panic in task %s: %v", t.ID, rec),
					}
				}
			}()

			resp, err := r.Ask(ctx, t.ConversationID, t.Question)
			results[index] = &Result{TaskID: t.ID, Response: resp, Error: err}
		}(i, task)
	}

	wg.Wait()
	return results
}
