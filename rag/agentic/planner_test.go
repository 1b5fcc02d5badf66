package agentic

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/sweetpotato0/agentic-rag/message"
	"github.com/sweetpotato0/agentic-rag/pkg/logging"
)

func newTestPlanner(t *testing.T, llm *stubLLM, opts ...Option) *planner {
	t.Helper()
	cfg := applyOptions(nil, opts)
	return newPlanner(llm, testPrompts(t, cfg), cfg, logging.Logger())
}

func TestPlannerDecomposesQuestion(t *testing.T) {
	llm := &stubLLM{response: "```json\n[\"What is the refund window?\", \"What does an exchange cost?\", \"what is the refund window?\"]\n```"}
	p := newTestPlanner(t, llm)

	plan, err := p.Plan(context.Background(), planInput{Question: "Explain refunds and exchanges"})
	if err != nil {
		t.Fatalf("Plan error: %v", err)
	}
	want := []string{"What is the refund window?", "What does an exchange cost?"}
	if !reflect.DeepEqual(plan.SubQuestions, want) || plan.Origin != PlanOriginPlanner {
		t.Fatalf("unexpected plan %#v", plan)
	}
}

func TestPlannerCapsSubQuestions(t *testing.T) {
	llm := &stubLLM{response: `["a","b","c","d","e"]`}
	p := newTestPlanner(t, llm, WithSubQuestionCap(2))

	plan, err := p.Plan(context.Background(), planInput{Question: "q"})
	if err != nil {
		t.Fatalf("Plan error: %v", err)
	}
	if len(plan.SubQuestions) != 2 {
		t.Fatalf("expected 2 sub-questions, got %#v", plan.SubQuestions)
	}
}

func TestPlannerFallsBackToQuestion(t *testing.T) {
	tests := []struct {
		name string
		llm  *stubLLM
	}{
		{name: "generation error", llm: &stubLLM{err: errors.New("backend down")}},
		{name: "unparseable", llm: &stubLLM{response: "Sure, let me think about that."}},
		{name: "empty list", llm: &stubLLM{response: `["", "  "]`}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newTestPlanner(t, tt.llm)
			plan, err := p.Plan(context.Background(), planInput{Question: "What is covered?"})
			if err != nil {
				t.Fatalf("planner must degrade, got error %v", err)
			}
			if plan.Origin != PlanOriginFallback || !reflect.DeepEqual(plan.SubQuestions, []string{"What is covered?"}) {
				t.Fatalf("unexpected fallback plan %#v", plan)
			}
		})
	}
}

func TestPlannerReplacesPlanWithRetryQueries(t *testing.T) {
	llm := &stubLLM{response: `["should not be used"]`}
	p := newTestPlanner(t, llm)

	plan, err := p.Plan(context.Background(), planInput{
		Question: "q",
		Cycle:    1,
		Previous: Plan{SubQuestions: []string{"old question"}},
		Verdict:  Verdict{Status: VerdictRetry, Queries: []string{"refund window for opened items"}},
	})
	if err != nil {
		t.Fatalf("Plan error: %v", err)
	}
	if llm.Calls() != 0 {
		t.Fatalf("retry queries must not call the model, got %d calls", llm.Calls())
	}
	if plan.Origin != PlanOriginCritic || !reflect.DeepEqual(plan.SubQuestions, []string{"refund window for opened items"}) {
		t.Fatalf("unexpected retry plan %#v", plan)
	}
}

func TestPlannerAppendPolicyKeepsPreviousQuestions(t *testing.T) {
	p := newTestPlanner(t, &stubLLM{}, WithRetryPolicy(RetryAppend), WithSubQuestionCap(3))

	plan, err := p.Plan(context.Background(), planInput{
		Question: "q",
		Cycle:    1,
		Previous: Plan{SubQuestions: []string{"first", "second"}},
		Verdict:  Verdict{Status: VerdictRetry, Queries: []string{"third", "fourth"}},
	})
	if err != nil {
		t.Fatalf("Plan error: %v", err)
	}
	if !reflect.DeepEqual(plan.SubQuestions, []string{"first", "second", "third"}) {
		t.Fatalf("unexpected appended plan %#v", plan.SubQuestions)
	}
}

func TestPlannerReplansWithCriticFeedback(t *testing.T) {
	llm := &stubLLM{response: `["narrower question"]`}
	p := newTestPlanner(t, llm)

	plan, err := p.Plan(context.Background(), planInput{
		Question:        "What changed in 2023?",
		Cycle:           1,
		Previous:        Plan{SubQuestions: []string{"2023 changes"}},
		Verdict:         Verdict{Status: VerdictRetry, Missing: "pricing changes", Notes: "only headcount covered"},
		EvidenceSummary: "- [report.pdf, p. 1] headcount grew",
	})
	if err != nil {
		t.Fatalf("Plan error: %v", err)
	}
	if plan.Origin != PlanOriginPlanner || plan.SubQuestions[0] != "narrower question" {
		t.Fatalf("unexpected plan %#v", plan)
	}
	prompt := llm.LastPrompt()
	for _, want := range []string{"CRITIC FEEDBACK", "pricing changes", "2023 changes", "headcount grew", "REVISED"} {
		if !strings.Contains(prompt, want) {
			t.Fatalf("replanning prompt missing %q:\n%s", want, prompt)
		}
	}
}

func TestPlannerIncludesRecentHistory(t *testing.T) {
	llm := &stubLLM{response: `["q"]`}
	p := newTestPlanner(t, llm, WithHistoryWindow(2))

	history := []*message.Message{
		message.NewMessage(message.RoleUser, "oldest turn"),
		message.NewMessage(message.RoleAssistant, "middle turn"),
		message.NewMessage(message.RoleUser, "latest turn"),
	}
	if _, err := p.Plan(context.Background(), planInput{Question: "follow-up", History: history}); err != nil {
		t.Fatalf("Plan error: %v", err)
	}
	prompt := llm.LastPrompt()
	if strings.Contains(prompt, "oldest turn") {
		t.Fatalf("history outside the window leaked into the prompt:\n%s", prompt)
	}
	if !strings.Contains(prompt, "assistant: middle turn") || !strings.Contains(prompt, "user: latest turn") {
		t.Fatalf("recent history missing from prompt:\n%s", prompt)
	}
}

func TestPlannerDoesNotMaskCancellation(t *testing.T) {
	p := newTestPlanner(t, &stubLLM{response: `["q"]`})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := p.Plan(ctx, planInput{Question: "q"}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
