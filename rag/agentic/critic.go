package agentic

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sweetpotato0/agentic-rag/agent"
	"github.com/sweetpotato0/agentic-rag/message"
	"github.com/sweetpotato0/agentic-rag/prompt"
	"github.com/sweetpotato0/agentic-rag/rag/tokenizer"
)

type critic struct {
	llm       agent.LLMClient
	prompts   *prompts
	maxQ      int
	maxTokens int
	tokenizer tokenizer.Tokenizer
	logger    *slog.Logger
}

func newCritic(llm agent.LLMClient, p *prompts, cfg *Config, logger *slog.Logger) *critic {
	return &critic{
		llm:       llm,
		prompts:   p,
		maxQ:      cfg.SubQuestionCap,
		maxTokens: cfg.MaxEvidenceTokens,
		tokenizer: cfg.tokenizer,
		logger:    logger.With("stage", "critic"),
	}
}

// criticOutput is the critic prompt contract.
type criticOutput struct {
	Status  string   `json:"status"`
	Missing string   `json:"missing"`
	Queries []string `json:"queries"`
	Notes   string   `json:"notes"`
}

// Critique judges whether set supports a grounded answer. A generation
// failure accepts the cycle (fail-open); only cancellation is returned.
func (c *critic) Critique(ctx context.Context, question string, plan Plan, set *EvidenceSet) (Verdict, error) {
	if err := ctx.Err(); err != nil {
		return Verdict{}, err
	}
	if set.Len() == 0 {
		return Verdict{
			Status:  VerdictRetry,
			Missing: "every part of the question",
			Notes:   "no evidence was retrieved for the current plan",
		}, nil
	}
	if c.llm == nil {
		return c.failOpen(fmt.Errorf("critic LLM is not configured")), nil
	}

	system, err := c.prompts.critic(c.maxQ)
	if err != nil {
		return c.failOpen(err), nil
	}
	user := prompt.NewBuilder().
		AddSection("QUERY", question).
		AddSection("SUB-QUESTIONS SEARCHED", bulletList(plan.SubQuestions)).
		AddFenced("EVIDENCE", renderEvidence(set.Chunks(), c.tokenizer, c.maxTokens)).
		Add("Return JSON only.").
		Build()

	resp, err := c.llm.Generate(ctx, []*message.Message{
		message.NewMessage(message.RoleSystem, system),
		message.NewMessage(message.RoleUser, user),
	}, nil)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Verdict{}, ctxErr
		}
		return c.failOpen(fmt.Errorf("critic generation failed: %w", err)), nil
	}

	verdict := parseVerdict(resp.Text())
	if verdict.Status == VerdictRetry {
		verdict.Queries = normalizeQueries(verdict.Queries, plan.SubQuestions, c.maxQ)
	} else {
		verdict.Queries = nil
	}
	return verdict, nil
}

func (c *critic) failOpen(cause error) Verdict {
	c.logger.Warn("critic failed open, accepting current evidence", "error", cause)
	return Verdict{
		Status:   VerdictOK,
		Notes:    "critic unavailable: " + cause.Error(),
		FailOpen: true,
	}
}

// parseVerdict structures critic output. Text that is not JSON falls back to
// a keyword check: any mention of "retry" means RETRY.
func parseVerdict(raw string) Verdict {
	out, err := decodeJSON[criticOutput](raw)
	if err != nil {
		status := VerdictOK
		if strings.Contains(strings.ToLower(raw), "retry") {
			status = VerdictRetry
		}
		return Verdict{Status: status, Notes: trimForLog(raw, 500)}
	}
	return Verdict{
		Status:  normalizeStatus(out.Status),
		Queries: out.Queries,
		Missing: strings.TrimSpace(out.Missing),
		Notes:   strings.TrimSpace(out.Notes),
	}
}

func normalizeStatus(status string) VerdictStatus {
	switch strings.ToUpper(strings.TrimSpace(status)) {
	case "RETRY", "REVISE", "INSUFFICIENT":
		return VerdictRetry
	default:
		return VerdictOK
	}
}

// renderEvidence lists chunks with their citation tags, stopping once the
// token budget is spent. The last chunk that does not fit is truncated.
func renderEvidence(chunks []EvidenceChunk, tok tokenizer.Tokenizer, maxTokens int) string {
	if len(chunks) == 0 {
		return "No evidence."
	}
	var b strings.Builder
	used := 0
	for i, c := range chunks {
		text := strings.TrimSpace(c.Text)
		if tok != nil && maxTokens > 0 {
			remaining := maxTokens - used
			if remaining <= 0 {
				fmt.Fprintf(&b, "[%d more passages omitted]\n", len(chunks)-i)
				break
			}
			var cut bool
			text, cut = tokenizer.Truncate(tok, text, remaining)
			if cut {
				text += " ..."
			}
			used += tok.CountTokens(text)
		}
		fmt.Fprintf(&b, "%s\n%s\n\n", c.Tag(), text)
	}
	return strings.TrimSpace(b.String())
}
