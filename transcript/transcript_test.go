package transcript

import (
	"context"
	"errors"
	"testing"
	"time"

	errorskg "github.com/sweetpotato0/agentic-rag/errors"
	"github.com/sweetpotato0/agentic-rag/message"
	"github.com/sweetpotato0/agentic-rag/rag/agentic"
)

func sampleResponse(id, question, answer string) *agentic.Response {
	return &agentic.Response{
		ID:          id,
		Question:    question,
		Answer:      agentic.Answer{Text: answer},
		Termination: agentic.TerminationApproved,
	}
}

func TestNewEntryReusesExchangeID(t *testing.T) {
	e := NewEntry("conv-1", sampleResponse("ex-1", "What changed?", "Prices rose [report.pdf, p. 2]."))
	if e.ID != "ex-1" || e.ConversationID != "conv-1" {
		t.Fatalf("unexpected ids %q %q", e.ID, e.ConversationID)
	}
	if e.Question != "What changed?" || e.Termination != "approved" {
		t.Fatalf("unexpected entry %+v", e)
	}
	if e.CreatedAt.IsZero() {
		t.Fatalf("created_at not set")
	}

	empty := NewEntry("conv-1", nil)
	if empty.ID == "" {
		t.Fatalf("expected a generated id")
	}
}

func TestHistoryAlternatesRoles(t *testing.T) {
	history := History([]*Entry{
		{Question: "q1", Answer: "a1"},
		nil,
		{Question: "q2", Answer: "  "},
	})
	want := []message.Role{message.RoleUser, message.RoleAssistant, message.RoleUser}
	if len(history) != len(want) {
		t.Fatalf("expected %d messages, got %d", len(want), len(history))
	}
	for i, msg := range history {
		if msg.Role != want[i] {
			t.Fatalf("message %d: expected %s, got %s", i, want[i], msg.Role)
		}
	}
	if history[2].Content != "q2" {
		t.Fatalf("unexpected content %q", history[2].Content)
	}
}

func TestInMemoryStore(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	entries := []*Entry{
		{ConversationID: "a", Question: "Headcount in 2023?", Answer: "1200 people", CreatedAt: base},
		{ConversationID: "b", Question: "Refund policy?", Answer: "30 days", CreatedAt: base.Add(time.Minute)},
		{ConversationID: "a", Question: "And pricing?", Answer: "Up 4%", CreatedAt: base.Add(2 * time.Minute)},
	}
	for _, e := range entries {
		if err := store.Append(ctx, e); err != nil {
			t.Fatalf("append: %v", err)
		}
		if e.ID == "" {
			t.Fatalf("append should assign an id")
		}
	}
	if store.Count() != 3 {
		t.Fatalf("expected 3 entries, got %d", store.Count())
	}

	t.Run("list keeps order and limit", func(t *testing.T) {
		all, err := store.List(ctx, "a", 0)
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if len(all) != 2 || all[0].Question != "Headcount in 2023?" || all[1].Question != "And pricing?" {
			t.Fatalf("unexpected conversation %v", all)
		}
		last, _ := store.List(ctx, "a", 1)
		if len(last) != 1 || last[0].Question != "And pricing?" {
			t.Fatalf("limit should keep the newest entry, got %v", last)
		}
	})

	t.Run("search is case insensitive and newest first", func(t *testing.T) {
		hits, err := store.Search(ctx, "PRICING")
		if err != nil {
			t.Fatalf("search: %v", err)
		}
		if len(hits) != 1 || hits[0].ConversationID != "a" {
			t.Fatalf("unexpected hits %v", hits)
		}
		all, _ := store.Search(ctx, "")
		if len(all) != 3 || all[0].Question != "And pricing?" {
			t.Fatalf("empty query should return everything newest first, got %d", len(all))
		}
	})

	t.Run("nil entry", func(t *testing.T) {
		if err := store.Append(ctx, nil); !errors.Is(err, errorskg.ErrInvalidInput) {
			t.Fatalf("expected ErrInvalidInput, got %v", err)
		}
	})

	t.Run("clear", func(t *testing.T) {
		store.Clear()
		if store.Count() != 0 {
			t.Fatalf("expected empty store")
		}
	})
}
