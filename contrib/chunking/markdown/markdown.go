// Package markdown chunks markdown documents along their heading structure
// so each chunk carries the section it came from.
package markdown

import (
	"context"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"github.com/sweetpotato0/agentic-rag/rag/chunking"
	"github.com/sweetpotato0/agentic-rag/rag/document"
)

// Metadata keys added to markdown chunks.
const (
	MetaSectionTitle = "section_title"
	MetaSectionLevel = "section_level"
	// MetaSectionPath joins the enclosing headings, e.g. "Returns > Refunds".
	MetaSectionPath = "section_path"
)

const pathSeparator = " > "

// Chunker splits markdown at headings found by goldmark. Sections longer
// than the character limit are windowed with a chunking.SimpleChunker;
// sections shorter than the minimum are merged into a neighbour.
type Chunker struct {
	maxHeadingLevel int
	maxCharacters   int
	minCharacters   int
	fallback        *chunking.SimpleChunker
	parser          goldmark.Markdown
}

var _ chunking.Chunker = (*Chunker)(nil)

// Option customises the markdown chunker.
type Option func(*Chunker)

// WithMaxHeadingLevel sets the deepest heading that starts a section (default 3).
func WithMaxHeadingLevel(level int) Option {
	return func(c *Chunker) {
		if level > 0 {
			c.maxHeadingLevel = level
		}
	}
}

// WithMaxCharacters sets the section size above which the section is
// windowed (default 1000).
func WithMaxCharacters(chars int) Option {
	return func(c *Chunker) {
		if chars > 0 {
			c.maxCharacters = chars
		}
	}
}

// WithMinCharacters sets the size below which a section is merged (default
// 240, 0 disables merging).
func WithMinCharacters(chars int) Option {
	return func(c *Chunker) {
		if chars >= 0 {
			c.minCharacters = chars
		}
	}
}

// WithFallbackChunker replaces the chunker used for oversized sections.
func WithFallbackChunker(ch *chunking.SimpleChunker) Option {
	return func(c *Chunker) {
		if ch != nil {
			c.fallback = ch
		}
	}
}

// New creates a markdown chunker.
func New(opts ...Option) *Chunker {
	ch := &Chunker{
		maxHeadingLevel: 3,
		maxCharacters:   1000,
		minCharacters:   240,
		parser:          goldmark.New(),
	}
	for _, opt := range opts {
		opt(ch)
	}
	if ch.fallback == nil {
		ch.fallback = chunking.NewSimpleChunker(
			chunking.WithChunkSize(ch.maxCharacters),
			chunking.WithOverlap(ch.maxCharacters/5),
		)
	}
	return ch
}

type section struct {
	body  string
	level int
	title string
	path  []string
}

func (s section) metadata() map[string]string {
	if s.title == "" {
		return nil
	}
	return map[string]string{
		MetaSectionTitle: s.title,
		MetaSectionLevel: strconv.Itoa(s.level),
		MetaSectionPath:  strings.Join(s.path, pathSeparator),
	}
}

// Chunk implements chunking.Chunker.
func (c *Chunker) Chunk(ctx context.Context, doc document.Document) ([]document.Chunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	document.EnsureDocumentID(&doc)

	var chunks []document.Chunk
	for _, sec := range c.merge(c.sections(doc.Content)) {
		pieces := []string{sec.body}
		if utf8.RuneCountInString(sec.body) > c.maxCharacters {
			pieces = c.fallback.Split(sec.body)
		}
		meta := sec.metadata()
		for _, piece := range pieces {
			ordinal := len(chunks) + 1
			chunk := document.Chunk{
				ID:         document.ChunkID(doc.ID, ordinal),
				DocumentID: doc.ID,
				Source:     doc.Source,
				Position:   doc.Position,
				Content:    piece,
				Ordinal:    ordinal,
			}
			if len(doc.Metadata)+len(meta) > 0 {
				chunk.Metadata = make(map[string]string, len(doc.Metadata)+len(meta))
				for k, v := range doc.Metadata {
					chunk.Metadata[k] = v
				}
				for k, v := range meta {
					chunk.Metadata[k] = v
				}
			}
			chunks = append(chunks, chunk)
		}
	}
	return chunks, nil
}

type heading struct {
	offset int
	level  int
	title  string
}

// sections cuts content at every heading up to maxHeadingLevel. Text before
// the first heading becomes an untitled section.
func (c *Chunker) sections(content string) []section {
	source := []byte(content)
	root := c.parser.Parser().Parse(text.NewReader(source))

	var headings []heading
	_ = ast.Walk(root, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		h, ok := n.(*ast.Heading)
		if !ok || h.Level > c.maxHeadingLevel {
			return ast.WalkContinue, nil
		}
		if lines := h.Lines(); lines != nil && lines.Len() > 0 {
			headings = append(headings, heading{
				offset: lineStart(source, lines.At(0).Start),
				level:  h.Level,
				title:  strings.TrimSpace(string(h.Text(source))),
			})
		}
		return ast.WalkSkipChildren, nil
	})

	var out []section
	start := len(source)
	if len(headings) > 0 {
		start = headings[0].offset
	}
	if intro := strings.TrimSpace(string(source[:start])); intro != "" {
		out = append(out, section{body: intro})
	}

	var path []heading
	for i, h := range headings {
		for len(path) > 0 && path[len(path)-1].level >= h.level {
			path = path[:len(path)-1]
		}
		path = append(path, h)

		end := len(source)
		if i+1 < len(headings) {
			end = headings[i+1].offset
		}
		body := strings.TrimSpace(string(source[h.offset:end]))
		if body == "" {
			continue
		}
		titles := make([]string, len(path))
		for j, p := range path {
			titles[j] = p.title
		}
		out = append(out, section{body: body, level: h.level, title: h.title, path: titles})
	}
	return out
}

// lineStart moves back to the start of the heading's line so the "#"
// markers stay in the section.
func lineStart(source []byte, pos int) int {
	for pos > 0 && source[pos-1] != '\n' {
		pos--
	}
	return pos
}

// merge folds each short section into the one after it. A short final
// section joins the previous one. The merged section keeps the heading of
// its first titled part.
func (c *Chunker) merge(sections []section) []section {
	if c.minCharacters <= 0 || len(sections) < 2 {
		return sections
	}
	out := make([]section, 0, len(sections))
	var pending *section
	for _, sec := range sections {
		if pending != nil {
			sec = join(*pending, sec)
			pending = nil
		}
		if utf8.RuneCountInString(sec.body) < c.minCharacters {
			s := sec
			pending = &s
			continue
		}
		out = append(out, sec)
	}
	if pending != nil {
		if len(out) == 0 {
			return append(out, *pending)
		}
		out[len(out)-1] = join(out[len(out)-1], *pending)
	}
	return out
}

func join(a, b section) section {
	merged := section{body: a.body + "\n\n" + b.body, level: a.level, title: a.title, path: a.path}
	if merged.title == "" {
		merged.level, merged.title, merged.path = b.level, b.title, b.path
	}
	return merged
}
