package agentic

import "time"

// PlanOrigin records which component produced a plan.
type PlanOrigin string

const (
	PlanOriginPlanner  PlanOrigin = "planner"  // LLM decomposition
	PlanOriginCritic   PlanOrigin = "critic"   // retry queries taken from the previous verdict
	PlanOriginFallback PlanOrigin = "fallback" // raw question after a planner failure
)

// Plan is the ordered list of sub-questions one cycle works through.
// It is never empty and no entry is blank.
type Plan struct {
	SubQuestions []string   `json:"sub_questions"`
	Origin       PlanOrigin `json:"origin"`
}

// EvidenceChunk is one retrieved passage. Position is an opaque marker,
// usually a page number rendered as a string.
type EvidenceChunk struct {
	Text         string  `json:"text"`
	SourceID     string  `json:"source_id"`
	Position     string  `json:"position,omitempty"`
	RetrievedFor string  `json:"retrieved_for,omitempty"` // sub-question that fetched the chunk
	Tool         string  `json:"tool,omitempty"`
	Query        string  `json:"query,omitempty"` // query string actually sent to the retriever
	Score        float32 `json:"score,omitempty"`
}

// VerdictStatus is the critic's per-cycle decision.
type VerdictStatus string

const (
	VerdictOK    VerdictStatus = "OK"
	VerdictRetry VerdictStatus = "RETRY"
)

// Verdict carries the critic's decision. Queries is only populated on RETRY.
type Verdict struct {
	Status   VerdictStatus `json:"status"`
	Queries  []string      `json:"queries,omitempty"`
	Missing  string        `json:"missing,omitempty"`
	Notes    string        `json:"notes,omitempty"`
	FailOpen bool          `json:"fail_open,omitempty"` // critic errored and the cycle was accepted anyway
}

// ToolCall is one retrieval issued inside the executor microloop.
type ToolCall struct {
	Tool  string `json:"tool"`
	Query string `json:"query"`
	Hits  int    `json:"hits"`
	New   int    `json:"new"`
}

// SubQuestionTrace is the executor audit for one sub-question.
type SubQuestionTrace struct {
	SubQuestion string     `json:"sub_question"`
	Calls       []ToolCall `json:"calls,omitempty"`
	Found       int        `json:"found"`
	Stop        string     `json:"stop"`          // decision, cap, repeat, no_decision or error
	Err         string     `json:"err,omitempty"` // retrieval failure recorded as no evidence
}

// CycleRecord is the append-only audit entry for one controller cycle.
type CycleRecord struct {
	Index           int                `json:"index"`
	Plan            Plan               `json:"plan"`
	NewEvidence     int                `json:"new_evidence"`
	EvidenceTotal   int                `json:"evidence_total"`
	Verdict         Verdict            `json:"verdict"`
	BudgetExhausted bool               `json:"budget_exhausted,omitempty"`
	SubQuestions    []SubQuestionTrace `json:"sub_questions,omitempty"`
	Started         time.Time          `json:"started"`
	Duration        time.Duration      `json:"duration"`
}

// Citation ties a span of the answer to a retrieved chunk.
type Citation struct {
	ClaimSpan string `json:"claim_span"`
	SourceID  string `json:"source_id"`
	Position  string `json:"position,omitempty"`
	Rewritten bool   `json:"rewritten,omitempty"` // position or source spelling was corrected to a known chunk
}

// Answer is the terminal artifact of one exchange.
type Answer struct {
	Text                 string     `json:"text"`
	Citations            []Citation `json:"citations,omitempty"`
	InsufficientEvidence bool       `json:"insufficient_evidence,omitempty"`
	Dropped              int        `json:"dropped,omitempty"` // citations removed because they matched nothing
}

// Termination explains why the reasoning loop stopped.
type Termination string

const (
	TerminationApproved        Termination = "approved"
	TerminationBudgetExhausted Termination = "budget_exhausted"
	TerminationFailOpen        Termination = "fail_open"
	TerminationNoEvidence      Termination = "no_evidence"
)

// Response is everything a front end needs to display one exchange.
type Response struct {
	ID          string          `json:"id"`
	Question    string          `json:"question"`
	Answer      Answer          `json:"answer"`
	Cycles      []CycleRecord   `json:"cycles"`
	Evidence    []EvidenceChunk `json:"evidence,omitempty"`
	Termination Termination     `json:"termination"`
}
