package agentic

import (
	"context"
	"strings"
	"sync"

	"github.com/sweetpotato0/agentic-rag/message"
)

// stubLLM always answers with the same response or error.
type stubLLM struct {
	mu       sync.Mutex
	response string
	err      error
	calls    int
	prompts  []string
}

func (s *stubLLM) Generate(ctx context.Context, messages []*message.Message, tools []map[string]any) (*message.Message, error) {
	s.mu.Lock()
	s.calls++
	if len(messages) > 0 {
		s.prompts = append(s.prompts, messages[len(messages)-1].Content)
	}
	s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.err != nil {
		return nil, s.err
	}
	return message.NewMessage(message.RoleAssistant, s.response), nil
}

func (s *stubLLM) SetTemperature(float64) {}
func (s *stubLLM) SetMaxTokens(int64)     {}
func (s *stubLLM) SetModel(string)        {}

func (s *stubLLM) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func (s *stubLLM) LastPrompt() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.prompts) == 0 {
		return ""
	}
	return s.prompts[len(s.prompts)-1]
}

// scriptedLLM replays responses in order and repeats the last one.
type scriptedLLM struct {
	mu        sync.Mutex
	responses []string
	calls     int
}

func (s *scriptedLLM) Generate(ctx context.Context, messages []*message.Message, tools []map[string]any) (*message.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	idx := s.calls
	if idx >= len(s.responses) {
		idx = len(s.responses) - 1
	}
	s.calls++
	return message.NewMessage(message.RoleAssistant, s.responses[idx]), nil
}

func (s *scriptedLLM) SetTemperature(float64) {}
func (s *scriptedLLM) SetMaxTokens(int64)     {}
func (s *scriptedLLM) SetModel(string)        {}

// funcLLM answers by inspecting the user prompt.
type funcLLM struct {
	fn func(user string) (string, error)
}

func (f *funcLLM) Generate(ctx context.Context, messages []*message.Message, tools []map[string]any) (*message.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var user string
	if len(messages) > 0 {
		user = messages[len(messages)-1].Content
	}
	out, err := f.fn(user)
	if err != nil {
		return nil, err
	}
	return message.NewMessage(message.RoleAssistant, out), nil
}

func (f *funcLLM) SetTemperature(float64) {}
func (f *funcLLM) SetMaxTokens(int64)     {}
func (f *funcLLM) SetModel(string)        {}

// searchOnceLLM searches the sub-question verbatim and stops once something
// has been retrieved for it.
func searchOnceLLM() *funcLLM {
	return &funcLLM{fn: func(user string) (string, error) {
		if strings.Contains(user, "Nothing retrieved yet.") {
			return `{"action":"search","tool":"search_documents","query":"` + subQuestionOf(user) + `"}`, nil
		}
		return `{"action":"stop"}`, nil
	}}
}

func subQuestionOf(user string) string {
	const marker = "SUB-QUESTION:\n"
	idx := strings.Index(user, marker)
	if idx < 0 {
		return ""
	}
	rest := user[idx+len(marker):]
	if end := strings.Index(rest, "\n"); end >= 0 {
		rest = rest[:end]
	}
	return strings.TrimSpace(rest)
}

// fakeRetriever serves canned chunks keyed by a substring of the query.
type fakeRetriever struct {
	mu      sync.Mutex
	byQuery map[string][]EvidenceChunk
	err     map[string]error
	queries []string
}

func (f *fakeRetriever) Search(ctx context.Context, query string, k int) ([]EvidenceChunk, error) {
	f.mu.Lock()
	f.queries = append(f.queries, query)
	f.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	for needle, err := range f.err {
		if strings.Contains(query, needle) {
			return nil, err
		}
	}
	for needle, chunks := range f.byQuery {
		if strings.Contains(query, needle) {
			out := append([]EvidenceChunk(nil), chunks...)
			if k > 0 && len(out) > k {
				out = out[:k]
			}
			return out, nil
		}
	}
	return nil, nil
}

func (f *fakeRetriever) Queries() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.queries...)
}

func testPrompts(t interface{ Fatalf(string, ...any) }, cfg *Config) *prompts {
	p, err := newPrompts(cfg)
	if err != nil {
		t.Fatalf("newPrompts error: %v", err)
	}
	return p
}
