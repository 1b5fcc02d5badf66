package middleware

import (
	"context"
	"errors"
	"testing"

	"github.com/sweetpotato0/agentic-rag/message"
)

type recordingMiddleware struct {
	name  string
	err   error
	order *[]string
}

func (m *recordingMiddleware) Name() string { return m.name }

func (m *recordingMiddleware) Execute(ctx *Context, next Handler) error {
	*m.order = append(*m.order, m.name)
	if m.err != nil {
		return m.err
	}
	return next(ctx)
}

type stubLLM struct {
	reply    string
	err      error
	calls    int
	lastMsgs []*message.Message
}

func (s *stubLLM) Generate(ctx context.Context, messages []*message.Message, tools []map[string]any) (*message.Message, error) {
	s.calls++
	s.lastMsgs = messages
	if s.err != nil {
		return nil, s.err
	}
	return message.NewMessage(message.RoleAssistant, s.reply), nil
}

func (s *stubLLM) SetTemperature(float64) {}
func (s *stubLLM) SetMaxTokens(int64)     {}
func (s *stubLLM) SetModel(string)        {}

func TestMiddlewareChain(t *testing.T) {
	t.Run("empty chain executes final handler", func(t *testing.T) {
		executed := false
		err := NewChain().Execute(&Context{}, func(ctx *Context) error {
			executed = true
			return nil
		})
		if err != nil || !executed {
			t.Fatalf("expected final handler to run, err=%v", err)
		}
	})

	t.Run("middlewares execute in order", func(t *testing.T) {
		var order []string
		chain := NewChain(
			&recordingMiddleware{name: "m1", order: &order},
			nil,
			&recordingMiddleware{name: "m2", order: &order},
		)
		if chain.Len() != 2 {
			t.Fatalf("nil middleware should be skipped, got %d", chain.Len())
		}
		_ = chain.Execute(&Context{}, func(*Context) error {
			order = append(order, "final")
			return nil
		})
		want := []string{"m1", "m2", "final"}
		if len(order) != len(want) {
			t.Fatalf("expected %v, got %v", want, order)
		}
		for i := range want {
			if order[i] != want[i] {
				t.Fatalf("expected %v, got %v", want, order)
			}
		}
	})

	t.Run("error stops chain execution", func(t *testing.T) {
		var order []string
		boom := errors.New("boom")
		chain := NewChain(
			&recordingMiddleware{name: "m1", err: boom, order: &order},
			&recordingMiddleware{name: "m2", order: &order},
		)
		err := chain.Execute(&Context{}, func(*Context) error {
			order = append(order, "final")
			return nil
		})
		if !errors.Is(err, boom) {
			t.Fatalf("expected boom, got %v", err)
		}
		if len(order) != 1 {
			t.Fatalf("chain should stop after m1, got %v", order)
		}
	})
}

func TestContextDefaultsToBackground(t *testing.T) {
	var c Context
	if c.Context() == nil {
		t.Fatalf("expected background context")
	}
	nc := NewContext(context.Background(), nil, nil)
	if nc.Metadata == nil || nc.Started.IsZero() {
		t.Fatalf("NewContext should initialise metadata and start time: %+v", nc)
	}
}

func TestWrapRunsChainAroundClient(t *testing.T) {
	llm := &stubLLM{reply: "answer"}
	var order []string
	client := Wrap(llm, &recordingMiddleware{name: "outer", order: &order})

	msgs := []*message.Message{message.NewMessage(message.RoleUser, "question")}
	resp, err := client.Generate(context.Background(), msgs, nil)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if resp.Content != "answer" || llm.calls != 1 || len(llm.lastMsgs) != 1 {
		t.Fatalf("unexpected call: resp=%+v calls=%d", resp, llm.calls)
	}
	if len(order) != 1 || order[0] != "outer" {
		t.Fatalf("middleware did not run: %v", order)
	}
}

func TestWrapPropagatesClientError(t *testing.T) {
	boom := errors.New("backend down")
	client := Wrap(&stubLLM{err: boom})
	resp, err := client.Generate(context.Background(), nil, nil)
	if !errors.Is(err, boom) || resp != nil {
		t.Fatalf("expected backend error, got %v, %v", resp, err)
	}
}
