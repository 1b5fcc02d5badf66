package token

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	errorskg "github.com/sweetpotato0/agentic-rag/errors"
	"github.com/sweetpotato0/agentic-rag/rag/chunking"
	"github.com/sweetpotato0/agentic-rag/rag/document"
)

var tokenRegex = regexp.MustCompile(`\p{L}[\p{L}\p{M}]*|\p{N}+|[^\s]`)

// Chunker windows text by approximate token count: words, numbers and
// single punctuation marks each count as one token. Whitespace between
// tokens is preserved.
type Chunker struct {
	maxTokens     int
	overlapTokens int
}

var _ chunking.Chunker = (*Chunker)(nil)

// Option customises the token chunker.
type Option func(*Chunker)

// WithMaxTokens sets the maximum tokens per chunk (default 256).
func WithMaxTokens(tokens int) Option {
	return func(c *Chunker) {
		c.maxTokens = tokens
	}
}

// WithOverlapTokens sets how many tokens consecutive chunks share (default 32).
func WithOverlapTokens(tokens int) Option {
	return func(c *Chunker) {
		c.overlapTokens = tokens
	}
}

// New creates a token chunker. The overlap must be smaller than the window.
func New(opts ...Option) (*Chunker, error) {
	ch := &Chunker{
		maxTokens:     256,
		overlapTokens: 32,
	}
	for _, opt := range opts {
		opt(ch)
	}
	if ch.maxTokens <= 0 || ch.overlapTokens < 0 || ch.overlapTokens >= ch.maxTokens {
		return nil, fmt.Errorf("token window %d with overlap %d: %w", ch.maxTokens, ch.overlapTokens, errorskg.ErrInvalidInput)
	}
	return ch, nil
}

type segment struct {
	start, end int
	counts     bool // false for whitespace between tokens
}

// Chunk implements chunking.Chunker. Chunks inherit the document's source,
// position and metadata; a blank document yields no chunks.
func (c *Chunker) Chunk(ctx context.Context, doc document.Document) ([]document.Chunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	document.EnsureDocumentID(&doc)
	segments, tokenSegments := buildSegments(doc.Content)
	if len(tokenSegments) == 0 {
		return nil, nil
	}

	var chunks []document.Chunk
	tokenStart := 0
	for {
		tokenEnd := min(tokenStart+c.maxTokens, len(tokenSegments))
		first := tokenSegments[tokenStart]
		last := tokenSegments[tokenEnd-1] + 1

		ordinal := len(chunks) + 1
		chunk := document.Chunk{
			ID:         document.ChunkID(doc.ID, ordinal),
			DocumentID: doc.ID,
			Source:     doc.Source,
			Position:   doc.Position,
			Content:    extract(doc.Content, segments[first:last]),
			Ordinal:    ordinal,
		}
		if len(doc.Metadata) > 0 {
			chunk.Metadata = make(map[string]string, len(doc.Metadata))
			for k, v := range doc.Metadata {
				chunk.Metadata[k] = v
			}
		}
		chunks = append(chunks, chunk)

		if tokenEnd == len(tokenSegments) {
			return chunks, nil
		}
		tokenStart = tokenEnd - c.overlapTokens
	}
}

func buildSegments(text string) ([]segment, []int) {
	var segments []segment
	var tokenSegments []int
	prevEnd := 0
	for _, loc := range tokenRegex.FindAllStringIndex(text, -1) {
		if loc[0] > prevEnd {
			segments = append(segments, segment{start: prevEnd, end: loc[0]})
		}
		segments = append(segments, segment{start: loc[0], end: loc[1], counts: true})
		tokenSegments = append(tokenSegments, len(segments)-1)
		prevEnd = loc[1]
	}
	return segments, tokenSegments
}

func extract(content string, segments []segment) string {
	if len(segments) == 0 {
		return ""
	}
	return strings.TrimSpace(content[segments[0].start:segments[len(segments)-1].end])
}
