package agentic

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// ChunkKey identifies a chunk independent of which query retrieved it.
type ChunkKey struct {
	SourceID string
	Position string
	TextHash string
}

// Key returns the deduplication key of the chunk.
func (c EvidenceChunk) Key() ChunkKey {
	return ChunkKey{
		SourceID: c.SourceID,
		Position: c.Position,
		TextHash: hashText(c.Text),
	}
}

// Tag renders the citation marker the synthesizer asks the model to copy.
func (c EvidenceChunk) Tag() string {
	if c.Position == "" {
		return fmt.Sprintf("[%s]", c.SourceID)
	}
	return fmt.Sprintf("[%s, p. %s]", c.SourceID, c.Position)
}

func hashText(text string) string {
	sum := sha256.Sum256([]byte(strings.Join(strings.Fields(text), " ")))
	return hex.EncodeToString(sum[:])
}

// EvidenceSet is the deduplicated evidence of one exchange. It only grows:
// there is no removal, and insertion order is kept for stable rendering.
// Not safe for concurrent mutation; readers may share it while nobody adds.
type EvidenceSet struct {
	order []ChunkKey
	items map[ChunkKey]EvidenceChunk
}

// NewEvidenceSet creates an empty set.
func NewEvidenceSet() *EvidenceSet {
	return &EvidenceSet{items: make(map[ChunkKey]EvidenceChunk)}
}

// Add inserts the chunk unless its key is already present.
func (s *EvidenceSet) Add(chunk EvidenceChunk) bool {
	key := chunk.Key()
	if _, ok := s.items[key]; ok {
		return false
	}
	s.items[key] = chunk
	s.order = append(s.order, key)
	return true
}

// Merge adds every chunk and returns how many were new.
func (s *EvidenceSet) Merge(chunks []EvidenceChunk) int {
	added := 0
	for _, chunk := range chunks {
		if s.Add(chunk) {
			added++
		}
	}
	return added
}

// Contains reports whether key is present.
func (s *EvidenceSet) Contains(key ChunkKey) bool {
	if s == nil {
		return false
	}
	_, ok := s.items[key]
	return ok
}

// Len is the number of distinct chunks.
func (s *EvidenceSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.order)
}

// Chunks returns a copy of the chunks in insertion order.
func (s *EvidenceSet) Chunks() []EvidenceChunk {
	if s == nil {
		return nil
	}
	out := make([]EvidenceChunk, 0, len(s.order))
	for _, key := range s.order {
		out = append(out, s.items[key])
	}
	return out
}

// Sources returns, per source ID, the distinct positions in insertion order.
func (s *EvidenceSet) Sources() map[string][]string {
	out := make(map[string][]string)
	if s == nil {
		return out
	}
	for _, key := range s.order {
		positions := out[key.SourceID]
		if !containsString(positions, key.Position) {
			out[key.SourceID] = append(positions, key.Position)
		}
	}
	return out
}

// Summary renders the most recent chunks as short bullet lines for planner
// retries.
func (s *EvidenceSet) Summary(maxItems, maxChars int) string {
	if s.Len() == 0 {
		return "No evidence gathered yet."
	}
	chunks := s.Chunks()
	if maxItems > 0 && len(chunks) > maxItems {
		chunks = chunks[len(chunks)-maxItems:]
	}
	var b strings.Builder
	for _, c := range chunks {
		fmt.Fprintf(&b, "- %s %s\n", c.Tag(), trimForLog(c.Text, maxChars))
	}
	return strings.TrimSpace(b.String())
}

func containsString(list []string, want string) bool {
	for _, v := range list {
		if v == want {
			return true
		}
	}
	return false
}
