package document

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// Metadata keys set on every page and inherited by its chunks.
const (
	MetaSource   = "source"
	MetaPosition = "position"
	MetaExt      = "file_ext"
)

// Document is one page of a source file. Position is the page marker ("3")
// or empty when the source has no pages.
type Document struct {
	ID       string            `json:"id"`
	Source   string            `json:"source"`
	Position string            `json:"position,omitempty"`
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Chunk is a slice of a document that is embedded and indexed.
type Chunk struct {
	ID         string            `json:"id"`
	DocumentID string            `json:"document_id"`
	Source     string            `json:"source"`
	Position   string            `json:"position,omitempty"`
	Content    string            `json:"content"`
	Ordinal    int               `json:"ordinal"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// EnsureDocumentID derives a stable identifier from source and position.
func EnsureDocumentID(doc *Document) {
	if doc == nil || doc.ID != "" {
		return
	}
	if doc.Position == "" {
		doc.ID = doc.Source
		return
	}
	doc.ID = fmt.Sprintf("%s#p%s", doc.Source, doc.Position)
}

// ChunkID is stable across processes so persisted snapshots and external
// vector stores agree on identifiers.
func ChunkID(docID string, ordinal int) string {
	return fmt.Sprintf("%s/chunk_%d", docID, ordinal)
}

// Fingerprint identifies chunk content independent of its ID: the SHA-256
// of source, position and whitespace-normalised text.
func Fingerprint(source, position, text string) string {
	norm := strings.Join(strings.Fields(text), " ")
	sum := sha256.Sum256([]byte(source + "|" + position + "|" + norm))
	return hex.EncodeToString(sum[:])
}

// Fingerprint returns the content fingerprint of the chunk.
func (c Chunk) Fingerprint() string {
	return Fingerprint(c.Source, c.Position, c.Content)
}

// Clone returns a deep copy of the document.
func (d Document) Clone() Document {
	out := d
	out.Metadata = cloneMeta(d.Metadata)
	return out
}

// Clone returns a deep copy of the chunk.
func (c Chunk) Clone() Chunk {
	out := c
	out.Metadata = cloneMeta(c.Metadata)
	return out
}

func cloneMeta(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
