package agentic

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/sweetpotato0/agentic-rag/agent"
	errorskg "github.com/sweetpotato0/agentic-rag/errors"
	"github.com/sweetpotato0/agentic-rag/message"
	"github.com/sweetpotato0/agentic-rag/pkg/logging"
	"github.com/sweetpotato0/agentic-rag/pkg/telemetry"
)

// State is a controller state.
type State int

const (
	StatePlanning State = iota
	StateExecuting
	StateCritiquing
	StateSynthesizing
	StateDone
)

func (s State) String() string {
	switch s {
	case StatePlanning:
		return "PLANNING"
	case StateExecuting:
		return "EXECUTING"
	case StateCritiquing:
		return "CRITIQUING"
	case StateSynthesizing:
		return "SYNTHESIZING"
	case StateDone:
		return "DONE"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

var spanNames = map[State]string{
	StatePlanning:     "agentic.plan",
	StateExecuting:    "agentic.execute",
	StateCritiquing:   "agentic.critique",
	StateSynthesizing: "agentic.synthesize",
}

// Clients groups the generation clients of the four prompt contracts. Empty
// fields fall back to Default, so one client may serve them all.
type Clients struct {
	Default     agent.LLMClient
	Planner     agent.LLMClient
	Executor    agent.LLMClient
	Critic      agent.LLMClient
	Synthesizer agent.LLMClient
}

// Pipeline runs the plan, execute, critique loop and the cited synthesis.
// It holds no per-question state, so one Pipeline may serve concurrent
// Run calls.
type Pipeline struct {
	cfg         *Config
	planner     *planner
	executor    *executor
	critic      *critic
	synthesizer *synthesizer
	logger      *slog.Logger
}

// NewPipeline wires the components around the retrieval port.
func NewPipeline(clients Clients, retriever Retriever, opts ...Option) (*Pipeline, error) {
	cfg := applyOptions(nil, opts)
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if retriever == nil {
		return nil, fmt.Errorf("retriever is required: %w", errorskg.ErrInvalidInput)
	}

	synthLLM := pickClient(clients.Synthesizer, clients.Default)
	if synthLLM == nil {
		return nil, fmt.Errorf("synthesizer client is required: %w", errorskg.ErrInvalidInput)
	}

	p, err := newPrompts(cfg)
	if err != nil {
		return nil, err
	}

	logger := logging.WithComponent("agentic_pipeline").With("pipeline", cfg.Name)
	pipe := &Pipeline{
		cfg:         cfg,
		planner:     newPlanner(pickClient(clients.Planner, clients.Default), p, cfg, logger),
		executor:    newExecutor(pickClient(clients.Executor, clients.Default), retriever, p, cfg, logger),
		critic:      newCritic(pickClient(clients.Critic, clients.Default), p, cfg, logger),
		synthesizer: newSynthesizer(synthLLM, p, cfg, logger),
		logger:      logger,
	}
	logger.Info("agentic pipeline initialised",
		"max_retries", cfg.MaxRetries,
		"sub_question_cap", cfg.SubQuestionCap,
		"retrieval_k", cfg.RetrievalK,
		"iteration_cap", cfg.ExecutorIterationCap,
		"parallelism", cfg.ParallelSubQuestions,
		"retry_policy", cfg.RetryPolicy,
	)
	return pipe, nil
}

func pickClient(primary, fallback agent.LLMClient) agent.LLMClient {
	if primary != nil {
		return primary
	}
	return fallback
}

// Config returns a copy of the effective configuration.
func (p *Pipeline) Config() Config {
	return *p.cfg
}

// exchange is the private state of one Run. Nothing in it outlives the run.
type exchange struct {
	id         string
	question   string
	history    []*message.Message
	maxRetries int

	state    State
	cycle    int
	plan     Plan
	verdict  Verdict
	current  CycleRecord
	cycles   []CycleRecord
	evidence *EvidenceSet
	answer   Answer

	logger *slog.Logger
}

// Run answers question. The returned error is either ctx.Err() or wraps
// errors.ErrSynthesisFailed; every other failure degrades inside the loop.
func (p *Pipeline) Run(ctx context.Context, question string, opts ...RunOption) (resp *Response, err error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, fmt.Errorf("question cannot be empty: %w", errorskg.ErrInvalidInput)
	}

	rc := runConfig{maxRetries: p.cfg.MaxRetries}
	for _, opt := range opts {
		if opt != nil {
			opt(&rc)
		}
	}

	ex := &exchange{
		id:         uuid.NewString(),
		question:   question,
		history:    rc.history,
		maxRetries: rc.maxRetries,
		state:      StatePlanning,
		evidence:   NewEvidenceSet(),
	}
	ex.logger = p.logger.With("exchange_id", ex.id)

	ctx, span := telemetry.Start(ctx, "agentic.run",
		attribute.String("exchange.id", ex.id),
		attribute.Int("max_retries", ex.maxRetries),
	)
	defer func() { telemetry.End(span, err) }()

	ex.logger.Info("pipeline run started", "question", trimForLog(question, 120), "max_retries", ex.maxRetries)
	for ex.state != StateDone {
		if err := ctx.Err(); err != nil {
			ex.logger.Warn("pipeline run cancelled", "state", ex.state, "cycle", ex.cycle, "error", err)
			return nil, err
		}
		if err := p.step(ctx, ex); err != nil {
			if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
				ex.logger.Error("pipeline run failed", "state", ex.state, "cycle", ex.cycle, "error", err)
			}
			return nil, err
		}
	}

	resp = ex.response()
	span.SetAttributes(
		attribute.Int("cycles", len(resp.Cycles)),
		attribute.Int("evidence", len(resp.Evidence)),
		attribute.String("termination", string(resp.Termination)),
	)
	ex.logger.Info("pipeline run completed",
		"cycles", len(resp.Cycles),
		"evidence_count", len(resp.Evidence),
		"citations", len(resp.Answer.Citations),
		"termination", resp.Termination,
	)
	return resp, nil
}

// step performs the work of the current state and moves ex to the next one.
func (p *Pipeline) step(ctx context.Context, ex *exchange) (err error) {
	ctx, span := telemetry.Start(ctx, spanNames[ex.state], attribute.Int("cycle", ex.cycle))
	defer func() { telemetry.End(span, err) }()

	switch ex.state {
	case StatePlanning:
		started := time.Now()
		plan, err := p.planner.Plan(ctx, planInput{
			Question:        ex.question,
			Cycle:           ex.cycle,
			Previous:        ex.plan,
			Verdict:         ex.verdict,
			EvidenceSummary: ex.evidence.Summary(5, 150),
			History:         ex.history,
		})
		if err != nil {
			return err
		}
		ex.plan = plan
		ex.current = CycleRecord{Index: ex.cycle, Plan: plan, Started: started}
		ex.logger.Debug("plan ready", "cycle", ex.cycle, "origin", plan.Origin, "sub_questions", len(plan.SubQuestions))
		ex.state = StateExecuting

	case StateExecuting:
		fresh, traces, err := p.executor.Execute(ctx, ex.question, ex.plan, ex.evidence)
		if err != nil {
			return err
		}
		ex.current.NewEvidence = ex.evidence.Merge(fresh)
		ex.current.EvidenceTotal = ex.evidence.Len()
		ex.current.SubQuestions = traces
		ex.state = StateCritiquing

	case StateCritiquing:
		verdict, err := p.critic.Critique(ctx, ex.question, ex.plan, ex.evidence)
		if err != nil {
			return err
		}
		if verdict.Status == VerdictRetry && ex.cycle >= ex.maxRetries {
			ex.logger.Warn("forcing acceptance",
				"cycle", ex.cycle,
				"missing", trimForLog(verdict.Missing, 120),
				"error", errorskg.ErrRetryBudgetExhausted,
			)
			verdict.Status = VerdictOK
			verdict.Queries = nil
			ex.current.BudgetExhausted = true
		}
		ex.current.Verdict = verdict
		ex.current.Duration = time.Since(ex.current.Started)
		ex.cycles = append(ex.cycles, ex.current)
		ex.verdict = verdict
		ex.logger.Info("cycle completed",
			"cycle", ex.cycle,
			"verdict", verdict.Status,
			"new_evidence", ex.current.NewEvidence,
			"evidence_total", ex.current.EvidenceTotal,
			"budget_exhausted", ex.current.BudgetExhausted,
			"fail_open", verdict.FailOpen,
		)
		if verdict.Status == VerdictRetry {
			ex.cycle++
			ex.state = StatePlanning
		} else {
			ex.state = StateSynthesizing
		}

	case StateSynthesizing:
		answer, err := p.synthesizer.Synthesize(ctx, ex.question, ex.evidence)
		if err != nil {
			return err
		}
		ex.answer = answer
		ex.state = StateDone

	default:
		return fmt.Errorf("invalid controller state %s: %w", ex.state, errorskg.ErrInternal)
	}
	return nil
}

func (ex *exchange) termination() Termination {
	if ex.evidence.Len() == 0 {
		return TerminationNoEvidence
	}
	if len(ex.cycles) == 0 {
		return TerminationApproved
	}
	last := ex.cycles[len(ex.cycles)-1]
	switch {
	case last.BudgetExhausted:
		return TerminationBudgetExhausted
	case last.Verdict.FailOpen:
		return TerminationFailOpen
	default:
		return TerminationApproved
	}
}

func (ex *exchange) response() *Response {
	return &Response{
		ID:          ex.id,
		Question:    ex.question,
		Answer:      ex.answer,
		Cycles:      append([]CycleRecord(nil), ex.cycles...),
		Evidence:    ex.evidence.Chunks(),
		Termination: ex.termination(),
	}
}
