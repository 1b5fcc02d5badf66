package agentic

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/sweetpotato0/agentic-rag/config"
	"github.com/sweetpotato0/agentic-rag/message"
	"github.com/sweetpotato0/agentic-rag/rag/tokenizer"
)

// RetryPolicy controls how critic follow-up queries shape the next plan.
type RetryPolicy string

const (
	// RetryReplace runs only the critic's queries on the next cycle.
	RetryReplace RetryPolicy = "replace"
	// RetryAppend keeps the previous sub-questions and adds the critic's
	// queries, still capped at SubQuestionCap.
	RetryAppend RetryPolicy = "append"
)

// Config controls the reasoning loop. All caps are finite; see
// config.ValidateAgenticConfig for accepted ranges.
type Config struct {
	Name                 string      // Logical name for logging and tracing
	MaxRetries           int         // Retry cycles after cycle 0; total cycles <= MaxRetries+1
	SubQuestionCap       int         // Upper bound on sub-questions per plan and on critic queries
	RetrievalK           int         // k passed to the retrieval port
	ExecutorIterationCap int         // ReAct iterations per sub-question
	HistoryWindow        int         // Chat messages shown to the planner
	MaxEvidenceTokens    int         // Evidence budget for critic and synthesizer prompts; 0 disables
	ParallelSubQuestions int         // Sub-questions researched concurrently; <=1 is sequential
	RetryPolicy          RetryPolicy // replace (default) or append

	PlannerPrompt   string // System prompt template for decomposition
	DecisionPrompt  string // System prompt template for the executor tool decision
	CriticPrompt    string // System prompt template for sufficiency review
	SynthesisPrompt string // System prompt template for the cited answer
	NoAnswerMessage string // Answer text when no evidence was retrieved

	tokenizer tokenizer.Tokenizer
}

// Option customises the pipeline configuration.
type Option func(*Config)

// WithName sets the logical pipeline name.
func WithName(name string) Option {
	return func(cfg *Config) {
		if strings.TrimSpace(name) != "" {
			cfg.Name = strings.TrimSpace(name)
		}
	}
}

// WithMaxRetries bounds how many times the critic may send the loop back to
// planning. Zero means a single cycle.
func WithMaxRetries(n int) Option {
	return func(cfg *Config) {
		if n >= 0 {
			cfg.MaxRetries = n
		}
	}
}

// WithSubQuestionCap caps sub-questions per plan.
func WithSubQuestionCap(n int) Option {
	return func(cfg *Config) {
		if n > 0 {
			cfg.SubQuestionCap = n
		}
	}
}

// WithRetrievalK sets how many chunks each retrieval asks for.
func WithRetrievalK(k int) Option {
	return func(cfg *Config) {
		if k > 0 {
			cfg.RetrievalK = k
		}
	}
}

// WithExecutorIterationCap caps tool calls per sub-question.
func WithExecutorIterationCap(n int) Option {
	return func(cfg *Config) {
		if n > 0 {
			cfg.ExecutorIterationCap = n
		}
	}
}

// WithHistoryWindow sets how many recent chat messages reach the planner.
func WithHistoryWindow(n int) Option {
	return func(cfg *Config) {
		if n >= 0 {
			cfg.HistoryWindow = n
		}
	}
}

// WithMaxEvidenceTokens bounds the evidence rendered into critic and
// synthesis prompts.
func WithMaxEvidenceTokens(n int) Option {
	return func(cfg *Config) {
		if n >= 0 {
			cfg.MaxEvidenceTokens = n
		}
	}
}

// WithParallelSubQuestions researches up to n sub-questions at once.
func WithParallelSubQuestions(n int) Option {
	return func(cfg *Config) {
		if n > 0 {
			cfg.ParallelSubQuestions = n
		}
	}
}

// WithRetryPolicy selects replace or append semantics for retry queries.
func WithRetryPolicy(policy RetryPolicy) Option {
	return func(cfg *Config) {
		switch policy {
		case RetryReplace, RetryAppend:
			cfg.RetryPolicy = policy
		}
	}
}

// WithTokenizer sets the tokenizer used for evidence budgets.
func WithTokenizer(tok tokenizer.Tokenizer) Option {
	return func(cfg *Config) {
		if tok != nil {
			cfg.tokenizer = tok
		}
	}
}

// WithPlannerPrompt overrides the planner system prompt template.
func WithPlannerPrompt(prompt string) Option {
	return func(cfg *Config) {
		if strings.TrimSpace(prompt) != "" {
			cfg.PlannerPrompt = prompt
		}
	}
}

// WithDecisionPrompt overrides the executor decision prompt template.
func WithDecisionPrompt(prompt string) Option {
	return func(cfg *Config) {
		if strings.TrimSpace(prompt) != "" {
			cfg.DecisionPrompt = prompt
		}
	}
}

// WithCriticPrompt overrides the critic system prompt template.
func WithCriticPrompt(prompt string) Option {
	return func(cfg *Config) {
		if strings.TrimSpace(prompt) != "" {
			cfg.CriticPrompt = prompt
		}
	}
}

// WithSynthesisPrompt overrides the synthesizer system prompt template.
func WithSynthesisPrompt(prompt string) Option {
	return func(cfg *Config) {
		if strings.TrimSpace(prompt) != "" {
			cfg.SynthesisPrompt = prompt
		}
	}
}

// WithNoAnswerMessage customises the answer returned without evidence.
func WithNoAnswerMessage(msg string) Option {
	return func(cfg *Config) {
		if strings.TrimSpace(msg) != "" {
			cfg.NoAnswerMessage = msg
		}
	}
}

// OptionsFromEnv reads AGENTIC_MAX_RETRIES, AGENTIC_SUBQUESTION_CAP,
// AGENTIC_RETRIEVAL_K, AGENTIC_ITERATION_CAP, AGENTIC_PARALLELISM and
// AGENTIC_RETRY_POLICY. Unset or malformed values are ignored.
func OptionsFromEnv() []Option {
	var opts []Option
	if n, ok := envInt("AGENTIC_MAX_RETRIES"); ok {
		opts = append(opts, WithMaxRetries(n))
	}
	if n, ok := envInt("AGENTIC_SUBQUESTION_CAP"); ok {
		opts = append(opts, WithSubQuestionCap(n))
	}
	if n, ok := envInt("AGENTIC_RETRIEVAL_K"); ok {
		opts = append(opts, WithRetrievalK(n))
	}
	if n, ok := envInt("AGENTIC_ITERATION_CAP"); ok {
		opts = append(opts, WithExecutorIterationCap(n))
	}
	if n, ok := envInt("AGENTIC_PARALLELISM"); ok {
		opts = append(opts, WithParallelSubQuestions(n))
	}
	if v := strings.TrimSpace(os.Getenv("AGENTIC_RETRY_POLICY")); v != "" {
		opts = append(opts, WithRetryPolicy(RetryPolicy(strings.ToLower(v))))
	}
	return opts
}

func envInt(key string) (int, bool) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return 0, false
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return n, true
}

// RunOption overrides configuration for a single Run.
type RunOption func(*runConfig)

type runConfig struct {
	maxRetries int
	history    []*message.Message
}

// WithRunMaxRetries overrides MaxRetries for one run, e.g. from a UI control.
// Values outside [0, MaxRunRetries] are ignored; callers taking the value
// from users should check it with ValidateRunMaxRetries first.
func WithRunMaxRetries(n int) RunOption {
	return func(rc *runConfig) {
		if n >= 0 && n <= MaxRunRetries {
			rc.maxRetries = n
		}
	}
}

// WithHistory passes prior chat turns; only the last HistoryWindow are used.
func WithHistory(history []*message.Message) RunOption {
	return func(rc *runConfig) {
		rc.history = message.CloneMessages(history)
	}
}

// MaxRunRetries is the largest retry budget a run accepts.
const MaxRunRetries = 10

// ValidateRunMaxRetries rejects a per-run retry budget outside
// [0, MaxRunRetries] with errors.ErrInvalidInput.
func ValidateRunMaxRetries(n int) error {
	return config.NewValidator().ValidateRange("max_retries", n, 0, MaxRunRetries).Error()
}

func (c *Config) validate() error {
	if err := config.ValidateAgenticConfig(c.MaxRetries, c.SubQuestionCap, c.RetrievalK, c.ExecutorIterationCap); err != nil {
		return fmt.Errorf("agentic: %w", err)
	}
	return nil
}

func defaultConfig() *Config {
	return &Config{
		Name:                 "agentic-rag",
		MaxRetries:           2,
		SubQuestionCap:       4,
		RetrievalK:           6,
		ExecutorIterationCap: 3,
		HistoryWindow:        4,
		MaxEvidenceTokens:    6000,
		ParallelSubQuestions: 1,
		RetryPolicy:          RetryReplace,
		PlannerPrompt:        defaultPlannerPrompt,
		DecisionPrompt:       defaultDecisionPrompt,
		CriticPrompt:         defaultCriticPrompt,
		SynthesisPrompt:      defaultSynthesisPrompt,
		NoAnswerMessage:      "I could not find evidence in the indexed documents to answer this question. Try rephrasing it or adding documents that cover the topic.",
		tokenizer:            tokenizer.NewSimpleTokenizer(),
	}
}

func applyOptions(cfg *Config, opts []Option) *Config {
	if cfg == nil {
		cfg = defaultConfig()
	}
	for _, opt := range opts {
		if opt != nil {
			opt(cfg)
		}
	}
	return cfg
}
