package agentic

import (
	"errors"
	"testing"

	errorskg "github.com/sweetpotato0/agentic-rag/errors"
)

func TestOptionsFromEnv(t *testing.T) {
	t.Setenv("AGENTIC_MAX_RETRIES", "0")
	t.Setenv("AGENTIC_SUBQUESTION_CAP", "3")
	t.Setenv("AGENTIC_RETRIEVAL_K", "12")
	t.Setenv("AGENTIC_ITERATION_CAP", "not-a-number")
	t.Setenv("AGENTIC_PARALLELISM", "4")
	t.Setenv("AGENTIC_RETRY_POLICY", "APPEND")

	cfg := applyOptions(nil, OptionsFromEnv())
	if cfg.MaxRetries != 0 || cfg.SubQuestionCap != 3 || cfg.RetrievalK != 12 {
		t.Fatalf("env values not applied: %#v", cfg)
	}
	if cfg.ExecutorIterationCap != 3 {
		t.Fatalf("malformed value should keep the default, got %d", cfg.ExecutorIterationCap)
	}
	if cfg.ParallelSubQuestions != 4 || cfg.RetryPolicy != RetryAppend {
		t.Fatalf("unexpected parallelism/policy %d/%s", cfg.ParallelSubQuestions, cfg.RetryPolicy)
	}
}

func TestOptionsIgnoreInvalidValues(t *testing.T) {
	cfg := applyOptions(nil, []Option{
		WithMaxRetries(-1),
		WithSubQuestionCap(0),
		WithRetrievalK(-5),
		WithRetryPolicy("sometimes"),
		WithName("  "),
		WithPlannerPrompt(""),
		WithTokenizer(nil),
		nil,
	})
	def := defaultConfig()
	if cfg.MaxRetries != def.MaxRetries || cfg.SubQuestionCap != def.SubQuestionCap || cfg.RetrievalK != def.RetrievalK {
		t.Fatalf("invalid values should be ignored: %#v", cfg)
	}
	if cfg.RetryPolicy != RetryReplace || cfg.Name != def.Name || cfg.PlannerPrompt != defaultPlannerPrompt || cfg.tokenizer == nil {
		t.Fatalf("unexpected config %#v", cfg)
	}
	if err := cfg.validate(); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}
}

func TestRunOptions(t *testing.T) {
	rc := runConfig{maxRetries: 2}
	WithRunMaxRetries(11)(&rc)
	if rc.maxRetries != 2 {
		t.Fatalf("out of range override should be ignored, got %d", rc.maxRetries)
	}
	WithRunMaxRetries(0)(&rc)
	if rc.maxRetries != 0 {
		t.Fatalf("override not applied, got %d", rc.maxRetries)
	}
}

func TestValidateRunMaxRetries(t *testing.T) {
	for _, n := range []int{0, 2, MaxRunRetries} {
		if err := ValidateRunMaxRetries(n); err != nil {
			t.Fatalf("ValidateRunMaxRetries(%d) = %v", n, err)
		}
	}
	for _, n := range []int{-1, MaxRunRetries + 1, 50} {
		if err := ValidateRunMaxRetries(n); !errors.Is(err, errorskg.ErrInvalidInput) {
			t.Fatalf("ValidateRunMaxRetries(%d) = %v, want ErrInvalidInput", n, err)
		}
	}
}
