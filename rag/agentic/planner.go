package agentic

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sweetpotato0/agentic-rag/agent"
	"github.com/sweetpotato0/agentic-rag/message"
	"github.com/sweetpotato0/agentic-rag/prompt"
)

type planner struct {
	llm           agent.LLMClient
	prompts       *prompts
	maxSubQ       int
	historyWindow int
	policy        RetryPolicy
	logger        *slog.Logger
}

func newPlanner(llm agent.LLMClient, p *prompts, cfg *Config, logger *slog.Logger) *planner {
	return &planner{
		llm:           llm,
		prompts:       p,
		maxSubQ:       cfg.SubQuestionCap,
		historyWindow: cfg.HistoryWindow,
		policy:        cfg.RetryPolicy,
		logger:        logger.With("stage", "planner"),
	}
}

// planInput is what the controller knows when it asks for the next plan.
// Previous and Verdict are zero on cycle 0.
type planInput struct {
	Question        string
	Cycle           int
	Previous        Plan
	Verdict         Verdict
	EvidenceSummary string
	History         []*message.Message
}

// Plan never fails except on cancellation: any generation or parse problem
// yields the single-element fallback plan.
func (p *planner) Plan(ctx context.Context, in planInput) (Plan, error) {
	if err := ctx.Err(); err != nil {
		return Plan{}, err
	}

	if in.Cycle > 0 && len(in.Verdict.Queries) > 0 {
		var base []string
		if p.policy == RetryAppend {
			base = in.Previous.SubQuestions
		}
		queries := normalizeQueries(append(append([]string{}, base...), in.Verdict.Queries...), nil, p.maxSubQ)
		if len(queries) > 0 {
			return Plan{SubQuestions: queries, Origin: PlanOriginCritic}, nil
		}
	}

	if p.llm == nil {
		return p.fallback(in.Question, fmt.Errorf("planner LLM is not configured")), nil
	}

	system, err := p.prompts.planner(p.maxSubQ)
	if err != nil {
		return p.fallback(in.Question, err), nil
	}

	b := prompt.NewBuilder().
		AddSection("HISTORY", message.Transcript(message.Tail(in.History, p.historyWindow))).
		AddSection("CURRENT QUERY", in.Question)
	if in.Cycle > 0 {
		b.AddSection("ALREADY SEARCHED", bulletList(in.Previous.SubQuestions)).
			AddSection("PRIOR EVIDENCE", in.EvidenceSummary).
			AddSection("CRITIC FEEDBACK", criticFeedback(in.Verdict)).
			Add("Generate a REVISED plan with NEW sub-questions.")
	}
	b.Add("Return a JSON list of strings only.")

	resp, err := p.llm.Generate(ctx, []*message.Message{
		message.NewMessage(message.RoleSystem, system),
		message.NewMessage(message.RoleUser, b.Build()),
	}, nil)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Plan{}, ctxErr
		}
		return p.fallback(in.Question, fmt.Errorf("planner generation failed: %w", err)), nil
	}

	list, err := decodeStringList(resp.Text())
	if err != nil {
		return p.fallback(in.Question, fmt.Errorf("planner output invalid: %w", err)), nil
	}
	subQuestions := normalizeQueries(list, nil, p.maxSubQ)
	if len(subQuestions) == 0 {
		return p.fallback(in.Question, fmt.Errorf("planner produced no sub-questions")), nil
	}
	return Plan{SubQuestions: subQuestions, Origin: PlanOriginPlanner}, nil
}

func (p *planner) fallback(question string, cause error) Plan {
	p.logger.Warn("planner degraded to raw question", "error", cause)
	return Plan{SubQuestions: []string{question}, Origin: PlanOriginFallback}
}

func criticFeedback(v Verdict) string {
	var lines []string
	if v.Missing != "" {
		lines = append(lines, "Missing: "+v.Missing)
	}
	if v.Notes != "" {
		lines = append(lines, "Notes: "+v.Notes)
	}
	return strings.Join(lines, "\n")
}

func bulletList(items []string) string {
	if len(items) == 0 {
		return ""
	}
	return "- " + strings.Join(items, "\n- ")
}
