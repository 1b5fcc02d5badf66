package markdown

import (
	"context"
	"strings"
	"testing"

	"github.com/sweetpotato0/agentic-rag/rag/document"
)

func TestMarkdownChunkerSplitsByHeadings(t *testing.T) {
	ch := New(WithMaxHeadingLevel(2), WithMaxCharacters(200), WithMinCharacters(0))
	doc := document.Document{
		Source: "guide.md",
		Content: `
# Refunds

Refunds are issued within 14 days.

## Exchanges

Exchanges are free for unopened items.
`,
	}

	chunks, err := ch.Chunk(context.Background(), doc)
	if err != nil {
		t.Fatalf("chunk error: %v", err)
	}
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(chunks))
	}
	if chunks[0].Metadata[MetaSectionTitle] != "Refunds" || chunks[1].Metadata[MetaSectionTitle] != "Exchanges" {
		t.Fatalf("unexpected section metadata %#v / %#v", chunks[0].Metadata, chunks[1].Metadata)
	}
	if !strings.HasPrefix(chunks[1].Content, "## Exchanges") {
		t.Fatalf("heading marker should stay with its section, got %q", chunks[1].Content)
	}
	if chunks[1].Source != "guide.md" || chunks[1].ID != "guide.md/chunk_2" {
		t.Fatalf("unexpected provenance %#v", chunks[1])
	}
}

func TestMarkdownChunkerSplitsLongSections(t *testing.T) {
	ch := New(WithMaxCharacters(40), WithMinCharacters(0))
	body := strings.Repeat("Refunds take fourteen days. ", 6)
	chunks, err := ch.Chunk(context.Background(), document.Document{Source: "long.md", Content: "# Policy\n\n" + body})
	if err != nil {
		t.Fatalf("chunk error: %v", err)
	}
	if len(chunks) < 2 {
		t.Fatalf("expected the long section to be split, got %d chunks", len(chunks))
	}
	for _, c := range chunks {
		if len([]rune(c.Content)) > 40 {
			t.Fatalf("chunk exceeds limit: %q", c.Content)
		}
		if c.Metadata[MetaSectionTitle] != "Policy" {
			t.Fatalf("split chunks keep the section title, got %#v", c.Metadata)
		}
	}
}

func TestMarkdownChunkerRecordsSectionPath(t *testing.T) {
	ch := New(WithMinCharacters(0))
	doc := document.Document{Source: "handbook.md", Content: `# Returns

Items can be returned.

## Refunds

Refunds go to the original card.

# Shipping

Orders ship in two days.
`}
	chunks, err := ch.Chunk(context.Background(), doc)
	if err != nil {
		t.Fatalf("chunk error: %v", err)
	}
	want := []string{"Returns", "Returns > Refunds", "Shipping"}
	if len(chunks) != len(want) {
		t.Fatalf("expected %d chunks, got %d", len(want), len(chunks))
	}
	for i, w := range want {
		if got := chunks[i].Metadata[MetaSectionPath]; got != w {
			t.Fatalf("chunk %d: expected path %q, got %q", i, w, got)
		}
	}
}

func TestMarkdownChunkerMergesShortSections(t *testing.T) {
	ch := New(WithMinCharacters(60), WithMaxCharacters(500))
	doc := document.Document{Source: "faq.md", Content: "Intro line.\n\n# Hours\n\nOpen daily from nine to five, including most public holidays.\n\n# Tail\n\nShort."}
	chunks, err := ch.Chunk(context.Background(), doc)
	if err != nil {
		t.Fatalf("chunk error: %v", err)
	}
	if len(chunks) != 1 {
		t.Fatalf("expected everything merged into one chunk, got %d: %+v", len(chunks), chunks)
	}
	c := chunks[0]
	if !strings.HasPrefix(c.Content, "Intro line.") || !strings.HasSuffix(c.Content, "Short.") {
		t.Fatalf("unexpected merged content %q", c.Content)
	}
	if c.Metadata[MetaSectionTitle] != "Hours" {
		t.Fatalf("merged chunk should take the first heading, got %#v", c.Metadata)
	}
}
