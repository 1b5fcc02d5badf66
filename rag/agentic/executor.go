package agentic

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/sweetpotato0/agentic-rag/agent"
	errorskg "github.com/sweetpotato0/agentic-rag/errors"
	"github.com/sweetpotato0/agentic-rag/message"
	"github.com/sweetpotato0/agentic-rag/prompt"
)

const (
	stopDecision   = "decision"
	stopCap        = "cap"
	stopRepeat     = "repeat"
	stopNoDecision = "no_decision"
	stopError      = "error"
)

type executor struct {
	llm       agent.LLMClient
	retriever Retriever
	prompts   *prompts
	k         int
	maxIter   int
	parallel  int
	logger    *slog.Logger
}

func newExecutor(llm agent.LLMClient, retriever Retriever, p *prompts, cfg *Config, logger *slog.Logger) *executor {
	return &executor{
		llm:       llm,
		retriever: retriever,
		prompts:   p,
		k:         cfg.RetrievalK,
		maxIter:   cfg.ExecutorIterationCap,
		parallel:  cfg.ParallelSubQuestions,
		logger:    logger.With("stage", "executor"),
	}
}

// decision is the executor prompt contract.
type decision struct {
	Action string `json:"action"`
	Tool   string `json:"tool"`
	Query  string `json:"query"`
}

type research struct {
	chunks []EvidenceChunk
	trace  SubQuestionTrace
}

// Execute researches every sub-question of plan and returns the chunks not
// yet in known, in plan order. known is only read. Nothing is returned when
// ctx is cancelled, so callers never merge a partial cycle.
func (e *executor) Execute(ctx context.Context, question string, plan Plan, known *EvidenceSet) ([]EvidenceChunk, []SubQuestionTrace, error) {
	results := make([]research, len(plan.SubQuestions))

	if e.parallel > 1 && len(plan.SubQuestions) > 1 {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(e.parallel)
		for i, sq := range plan.SubQuestions {
			g.Go(func() error {
				res, err := e.research(gctx, question, sq, known)
				if err != nil {
					return err
				}
				results[i] = res
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, nil, err
		}
	} else {
		for i, sq := range plan.SubQuestions {
			res, err := e.research(ctx, question, sq, known)
			if err != nil {
				return nil, nil, err
			}
			results[i] = res
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	// Two sub-questions may surface the same chunk; the first one in plan
	// order keeps it.
	merged := make(map[ChunkKey]struct{})
	var fresh []EvidenceChunk
	traces := make([]SubQuestionTrace, 0, len(results))
	for _, res := range results {
		for _, chunk := range res.chunks {
			key := chunk.Key()
			if _, dup := merged[key]; dup {
				continue
			}
			merged[key] = struct{}{}
			fresh = append(fresh, chunk)
		}
		traces = append(traces, res.trace)
	}
	return fresh, traces, nil
}

// research runs the bounded ReAct loop for one sub-question:
// NEEDS_SEARCH -> retrieve -> NEEDS_SEARCH | SATISFIED.
func (e *executor) research(ctx context.Context, question, subQuestion string, known *EvidenceSet) (research, error) {
	res := research{trace: SubQuestionTrace{SubQuestion: subQuestion, Stop: stopCap}}
	working := make(map[ChunkKey]struct{})
	issued := make(map[string]struct{})
	// seen holds every hit for this sub-question, including chunks an
	// earlier cycle already collected; res.chunks holds only the new ones.
	var seen []EvidenceChunk

	for iter := 0; iter < e.maxIter; iter++ {
		if err := ctx.Err(); err != nil {
			return research{}, err
		}

		d, err := e.decide(ctx, question, subQuestion, seen, iter)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return research{}, ctxErr
			}
			if iter > 0 {
				e.logger.Warn("decision failed, sub-question closed", "sub_question", trimForLog(subQuestion, 80), "error", err)
				res.trace.Stop = stopNoDecision
				break
			}
			e.logger.Warn("decision failed, searching raw sub-question", "sub_question", trimForLog(subQuestion, 80), "error", err)
			d = decision{Action: "search", Tool: string(ToolSearchDocuments), Query: subQuestion}
		}
		if d.Action == "stop" {
			res.trace.Stop = stopDecision
			break
		}

		tool := resolveTool(d.Tool)
		query := strings.TrimSpace(d.Query)
		if query == "" {
			query = subQuestion
		}
		full := tool.Query(query)
		if _, seen := issued[queryKey(full)]; seen {
			res.trace.Stop = stopRepeat
			break
		}
		issued[queryKey(full)] = struct{}{}

		hits, err := e.retriever.Search(ctx, full, e.k)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return research{}, ctxErr
			}
			e.logger.Warn("retrieval failed, no evidence for sub-question",
				"sub_question", trimForLog(subQuestion, 80),
				"tool", tool,
				"query", trimForLog(full, 120),
				"error", err,
			)
			res.trace.Err = err.Error()
			res.trace.Stop = stopError
			break
		}

		added := 0
		for _, hit := range hits {
			if strings.TrimSpace(hit.Text) == "" {
				continue
			}
			hit.RetrievedFor = subQuestion
			hit.Tool = string(tool)
			hit.Query = full
			key := hit.Key()
			if _, dup := working[key]; dup {
				continue
			}
			working[key] = struct{}{}
			seen = append(seen, hit)
			if known.Contains(key) {
				continue
			}
			res.chunks = append(res.chunks, hit)
			added++
		}
		res.trace.Calls = append(res.trace.Calls, ToolCall{Tool: string(tool), Query: full, Hits: len(hits), New: added})
		e.logger.Debug("retrieval completed",
			"sub_question", trimForLog(subQuestion, 80),
			"tool", tool,
			"query", trimForLog(full, 120),
			"hits", len(hits),
			"new", added,
		)
	}

	res.trace.Found = len(res.chunks)
	return res, nil
}

func (e *executor) decide(ctx context.Context, question, subQuestion string, found []EvidenceChunk, iter int) (decision, error) {
	if e.llm == nil {
		return decision{}, fmt.Errorf("executor LLM is not configured: %w", errorskg.ErrPortUnavailable)
	}
	system, err := e.prompts.decision(iter+1, e.maxIter)
	if err != nil {
		return decision{}, err
	}

	user := prompt.NewBuilder().
		AddSection("USER QUESTION", question).
		AddSection("SUB-QUESTION", subQuestion).
		AddSection("RETRIEVED SO FAR", foundSummary(found)).
		Add("Return JSON only.").
		Build()

	resp, err := e.llm.Generate(ctx, []*message.Message{
		message.NewMessage(message.RoleSystem, system),
		message.NewMessage(message.RoleUser, user),
	}, nil)
	if err != nil {
		return decision{}, fmt.Errorf("decision generation failed: %w", err)
	}

	d, err := decodeJSON[decision](resp.Text())
	if err != nil {
		return decision{}, err
	}
	d.Action = strings.ToLower(strings.TrimSpace(d.Action))
	switch d.Action {
	case "search", "stop":
		return *d, nil
	default:
		return decision{}, fmt.Errorf("unknown action %q: %w", d.Action, errorskg.ErrUnparseableOutput)
	}
}

func foundSummary(found []EvidenceChunk) string {
	if len(found) == 0 {
		return "Nothing retrieved yet."
	}
	var b strings.Builder
	for _, c := range found {
		fmt.Fprintf(&b, "- %s %s\n", c.Tag(), trimForLog(c.Text, 150))
	}
	return strings.TrimSpace(b.String())
}
