package chunking

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/sweetpotato0/agentic-rag/rag/document"
)

// Chunker splits documents into chunks that can be embedded and indexed.
type Chunker interface {
	Chunk(ctx context.Context, doc document.Document) ([]document.Chunk, error)
}

type Options struct {
	ChunkSize   int
	Overlap     int
	Separators  []string
	IncludeMeta bool
}

// DefaultSeparators are tried in order: paragraphs, lines, sentences,
// words, then single characters.
var DefaultSeparators = []string{"\n\n", "\n", ". ", " ", ""}

// SimpleChunker splits recursively on the coarsest separator that keeps
// pieces under ChunkSize characters, then merges neighbours into windows
// that share up to Overlap characters.
type SimpleChunker struct {
	size    int
	overlap int
	seps    []string
	addMeta bool
}

// Option customizes the simple chunker.
type Option func(*Options)

// WithChunkSize overrides the default chunk size (characters).
func WithChunkSize(size int) Option {
	return func(o *Options) {
		if size > 0 {
			o.ChunkSize = size
		}
	}
}

// WithOverlap configures overlap (characters) between consecutive chunks.
func WithOverlap(overlap int) Option {
	return func(o *Options) {
		if overlap >= 0 {
			o.Overlap = overlap
		}
	}
}

// WithSeparators replaces the separator hierarchy. The empty separator is
// always appended so any text can be split.
func WithSeparators(seps ...string) Option {
	return func(o *Options) {
		if len(seps) > 0 {
			o.Separators = append([]string(nil), seps...)
		}
	}
}

// WithMetadataCopy toggles whether document metadata should be copied to chunks.
func WithMetadataCopy(enabled bool) Option {
	return func(o *Options) {
		o.IncludeMeta = enabled
	}
}

// NewSimpleChunker constructs a chunker with 1000 character windows and
// 200 characters of overlap.
func NewSimpleChunker(opts ...Option) *SimpleChunker {
	cfg := &Options{
		ChunkSize:   1000,
		Overlap:     200,
		Separators:  DefaultSeparators,
		IncludeMeta: true,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.Overlap >= cfg.ChunkSize {
		cfg.Overlap = cfg.ChunkSize / 5
	}
	seps := cfg.Separators
	if seps[len(seps)-1] != "" {
		seps = append(append([]string(nil), seps...), "")
	}
	return &SimpleChunker{
		size:    cfg.ChunkSize,
		overlap: cfg.Overlap,
		seps:    seps,
		addMeta: cfg.IncludeMeta,
	}
}

// Chunk splits the document into bounded pieces. A blank document yields
// no chunks.
func (c *SimpleChunker) Chunk(ctx context.Context, doc document.Document) ([]document.Chunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	document.EnsureDocumentID(&doc)

	var chunks []document.Chunk
	for _, text := range c.split(doc.Content, c.seps) {
		chunks = append(chunks, c.newChunk(doc, len(chunks)+1, text))
	}
	return chunks, nil
}

// Split exposes the windowing on raw text for other chunkers.
func (c *SimpleChunker) Split(text string) []string {
	return c.split(text, c.seps)
}

func (c *SimpleChunker) split(text string, seps []string) []string {
	sep, rest := "", []string(nil)
	for i, s := range seps {
		if s == "" || strings.Contains(text, s) {
			sep, rest = s, seps[i+1:]
			break
		}
	}

	var out, fitting []string
	for _, piece := range strings.SplitAfter(text, sep) {
		if sep != "" && strings.TrimSpace(piece) == "" {
			continue
		}
		if utf8.RuneCountInString(piece) <= c.size {
			fitting = append(fitting, piece)
			continue
		}
		if len(fitting) > 0 {
			out = append(out, c.merge(fitting)...)
			fitting = nil
		}
		if len(rest) == 0 {
			out = append(out, strings.TrimSpace(piece))
			continue
		}
		out = append(out, c.split(piece, rest)...)
	}
	if len(fitting) > 0 {
		out = append(out, c.merge(fitting)...)
	}
	return out
}

func (c *SimpleChunker) merge(pieces []string) []string {
	var (
		out   []string
		cur   []string
		total int
	)
	flush := func() {
		if text := strings.TrimSpace(strings.Join(cur, "")); text != "" {
			out = append(out, text)
		}
	}
	for _, piece := range pieces {
		n := utf8.RuneCountInString(piece)
		if total+n > c.size && len(cur) > 0 {
			flush()
			for len(cur) > 0 && (total > c.overlap || total+n > c.size) {
				total -= utf8.RuneCountInString(cur[0])
				cur = cur[1:]
			}
		}
		cur = append(cur, piece)
		total += n
	}
	if len(cur) > 0 {
		flush()
	}
	return out
}

func (c *SimpleChunker) newChunk(doc document.Document, ordinal int, content string) document.Chunk {
	chunk := document.Chunk{
		ID:         document.ChunkID(doc.ID, ordinal),
		DocumentID: doc.ID,
		Source:     doc.Source,
		Position:   doc.Position,
		Content:    strings.TrimSpace(content),
		Ordinal:    ordinal,
	}
	if c.addMeta && doc.Metadata != nil {
		chunk.Metadata = make(map[string]string, len(doc.Metadata))
		for k, v := range doc.Metadata {
			chunk.Metadata[k] = v
		}
	}
	return chunk
}
