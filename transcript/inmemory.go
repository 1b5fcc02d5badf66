package transcript

import (
	"context"
	"fmt"
	"sync"

	errorskg "github.com/sweetpotato0/agentic-rag/errors"
)

// InMemoryStore keeps entries in process memory.
type InMemoryStore struct {
	mu      sync.RWMutex
	entries []*Entry
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

// Append implements Store.
func (s *InMemoryStore) Append(ctx context.Context, entry *Entry) error {
	if entry == nil {
		return fmt.Errorf("entry cannot be nil: %w", errorskg.ErrInvalidInput)
	}
	prepare(entry)
	cp := *entry
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, &cp)
	return nil
}

// List implements Store.
func (s *InMemoryStore) List(ctx context.Context, conversationID string, limit int) ([]*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Entry
	for _, e := range s.entries {
		if e.ConversationID == conversationID {
			cp := *e
			out = append(out, &cp)
		}
	}
	return tail(out, limit), nil
}

// Search implements Store.
func (s *InMemoryStore) Search(ctx context.Context, query string) ([]*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Entry
	for i := len(s.entries) - 1; i >= 0; i-- {
		if matches(s.entries[i], query) {
			cp := *s.entries[i]
			out = append(out, &cp)
		}
	}
	return out, nil
}

// Clear removes all entries.
func (s *InMemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = nil
}

// Count returns the number of stored entries.
func (s *InMemoryStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
