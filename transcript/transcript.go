// Package transcript records answered exchanges so a conversation can be
// replayed as history for the next question.
package transcript

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sweetpotato0/agentic-rag/message"
	"github.com/sweetpotato0/agentic-rag/rag/agentic"
)

// Entry is one stored exchange.
type Entry struct {
	ID             string            `json:"id"`
	ConversationID string            `json:"conversation_id"`
	Question       string            `json:"question"`
	Answer         string            `json:"answer"`
	Termination    string            `json:"termination"`
	Response       *agentic.Response `json:"response,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
}

// NewEntry builds an entry from a pipeline response. The exchange ID is
// reused when present.
func NewEntry(conversationID string, resp *agentic.Response) *Entry {
	e := &Entry{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		CreatedAt:      time.Now().UTC(),
	}
	if resp == nil {
		return e
	}
	if resp.ID != "" {
		e.ID = resp.ID
	}
	e.Question = resp.Question
	e.Answer = resp.Answer.Text
	e.Termination = string(resp.Termination)
	e.Response = resp
	return e
}

// Store persists transcript entries.
type Store interface {
	// Append stores an entry. A missing ID or CreatedAt is filled in.
	Append(ctx context.Context, entry *Entry) error
	// List returns the last limit entries of a conversation, oldest first.
	// A non-positive limit returns the whole conversation.
	List(ctx context.Context, conversationID string, limit int) ([]*Entry, error)
	// Search returns entries whose question or answer contains query,
	// newest first. An empty query matches everything.
	Search(ctx context.Context, query string) ([]*Entry, error)
}

// History turns entries into alternating user and assistant messages.
func History(entries []*Entry) []*message.Message {
	out := make([]*message.Message, 0, 2*len(entries))
	for _, e := range entries {
		if e == nil {
			continue
		}
		if q := strings.TrimSpace(e.Question); q != "" {
			out = append(out, message.NewMessage(message.RoleUser, q))
		}
		if a := strings.TrimSpace(e.Answer); a != "" {
			out = append(out, message.NewMessage(message.RoleAssistant, a))
		}
	}
	return out
}

func prepare(entry *Entry) {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
}

func matches(entry *Entry, query string) bool {
	if query == "" {
		return true
	}
	q := strings.ToLower(query)
	return strings.Contains(strings.ToLower(entry.Question), q) ||
		strings.Contains(strings.ToLower(entry.Answer), q)
}

func tail(entries []*Entry, limit int) []*Entry {
	if limit > 0 && len(entries) > limit {
		return entries[len(entries)-limit:]
	}
	return entries
}
