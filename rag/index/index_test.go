package index

import (
	"context"
	"errors"
	"hash/fnv"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"unicode"

	errorskg "github.com/sweetpotato0/agentic-rag/errors"
)

// keywordEmbedder hashes lowercase words into a bag-of-words vector.
type keywordEmbedder struct {
	mu        sync.Mutex
	embedded  int
	failQuery bool
}

const keywordDim = 1024

func (k *keywordEmbedder) vector(text string) []float32 {
	vec := make([]float32, keywordDim)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range words {
		h := fnv.New32a()
		h.Write([]byte(w))
		vec[h.Sum32()%keywordDim]++
	}
	return vec
}

func (k *keywordEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if k.failQuery {
		return nil, errors.New("embedding backend offline")
	}
	return k.vector(text), nil
}

func (k *keywordEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	k.mu.Lock()
	k.embedded += len(texts)
	k.mu.Unlock()
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = k.vector(t)
	}
	return out, nil
}

func (k *keywordEmbedder) Dimension() int { return keywordDim }

func (k *keywordEmbedder) Embedded() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.embedded
}

func policyFile() File {
	return File{
		Name:    "policy.txt",
		Content: []byte("Returns are accepted within 30 days of purchase.\fExchanges are free for store credit."),
	}
}

func TestBuildIndexesPagesWithPositions(t *testing.T) {
	emb := &keywordEmbedder{}
	idx, stats, err := BuildOrLoad(context.Background(), emb, []File{policyFile()})
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	if stats.FilesNew != 1 || stats.ChunksNew != 2 || stats.Indexed != 2 {
		t.Fatalf("unexpected stats %+v", stats)
	}
	if idx.Len() != 2 {
		t.Fatalf("expected 2 chunks, got %d", idx.Len())
	}

	hits, err := idx.Search(context.Background(), "exchanges free", 1)
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(hits) != 1 {
		t.Fatalf("expected 1 hit, got %d", len(hits))
	}
	if hits[0].SourceID != "policy.txt" || hits[0].Position != "2" {
		t.Fatalf("expected policy.txt page 2, got %s p.%s", hits[0].SourceID, hits[0].Position)
	}
	if !strings.Contains(hits[0].Text, "store credit") {
		t.Fatalf("unexpected text %q", hits[0].Text)
	}

	if hits, err := idx.Search(context.Background(), "   ", 3); err != nil || hits != nil {
		t.Fatalf("blank query should be no match, got %v, %v", hits, err)
	}
}

func TestBuildSkipsDuplicateFiles(t *testing.T) {
	emb := &keywordEmbedder{}
	copyFile := policyFile()
	copyFile.Name = "policy-copy.txt"

	_, stats, err := BuildOrLoad(context.Background(), emb, []File{policyFile(), copyFile})
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	if stats.FilesNew != 1 {
		t.Fatalf("expected one new file, got %d", stats.FilesNew)
	}
	if len(stats.FilesSkipped) != 1 || stats.FilesSkipped[0] != "policy-copy.txt" {
		t.Fatalf("unexpected skipped files %v", stats.FilesSkipped)
	}
	if emb.Embedded() != 2 {
		t.Fatalf("expected 2 embedded chunks, got %d", emb.Embedded())
	}
}

func TestPersistAndReload(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	if _, _, err := BuildOrLoad(ctx, &keywordEmbedder{}, []File{policyFile()}, WithPersistDir(dir)); err != nil {
		t.Fatalf("initial build failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, snapshotFile)); err != nil {
		t.Fatalf("snapshot not written: %v", err)
	}

	_, _, err := BuildOrLoad(ctx, &keywordEmbedder{}, []File{policyFile()}, WithPersistDir(dir))
	if !errors.Is(err, errorskg.ErrUntrustedIndex) {
		t.Fatalf("expected ErrUntrustedIndex, got %v", err)
	}

	shipping := File{Name: "shipping.md", Content: []byte("# Shipping\n\nOrders ship within two business days.")}
	emb := &keywordEmbedder{}
	idx, stats, err := BuildOrLoad(ctx, emb, []File{policyFile(), shipping},
		WithPersistDir(dir), WithAllowUntrustedIndex(true))
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if !stats.Loaded {
		t.Fatalf("expected snapshot to be loaded")
	}
	if len(stats.FilesSkipped) != 1 || stats.FilesSkipped[0] != "policy.txt" {
		t.Fatalf("manifest should skip policy.txt, got %v", stats.FilesSkipped)
	}
	if emb.Embedded() != 1 {
		t.Fatalf("only the new chunk should be embedded, got %d", emb.Embedded())
	}
	if idx.Len() != 3 {
		t.Fatalf("expected 3 chunks, got %d", idx.Len())
	}
	sources := idx.Sources()
	if len(sources) != 2 || sources[0] != "policy.txt" || sources[1] != "shipping.md" {
		t.Fatalf("unexpected sources %v", sources)
	}

	hits, err := idx.Search(ctx, "returns accepted days", 1)
	if err != nil || len(hits) != 1 {
		t.Fatalf("search after reload: %v, %v", hits, err)
	}
	if hits[0].Position != "1" {
		t.Fatalf("expected restored page 1, got %q", hits[0].Position)
	}
}

func TestReloadRejectsTamperedSnapshot(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	if _, _, err := BuildOrLoad(ctx, &keywordEmbedder{}, []File{policyFile()}, WithPersistDir(dir)); err != nil {
		t.Fatalf("initial build failed: %v", err)
	}

	path := filepath.Join(dir, snapshotFile)
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read snapshot: %v", err)
	}
	tampered := strings.Replace(string(data), "Returns are accepted", "Refunds are accepted", 1)
	if tampered == string(data) {
		t.Fatalf("snapshot does not contain the chunk text")
	}

	tests := []struct {
		name    string
		content string
	}{
		{name: "edited text", content: tampered},
		{name: "not json", content: "{not json"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := os.WriteFile(path, []byte(tt.content), 0o644); err != nil {
				t.Fatalf("write snapshot: %v", err)
			}
			_, _, err := BuildOrLoad(ctx, &keywordEmbedder{}, nil, WithPersistDir(dir), WithAllowUntrustedIndex(true))
			if !errors.Is(err, errorskg.ErrIndexCorrupt) {
				t.Fatalf("expected ErrIndexCorrupt, got %v", err)
			}
		})
	}
}

func TestBuildRejectsEmptyInput(t *testing.T) {
	tests := []struct {
		name  string
		files []File
	}{
		{name: "no files"},
		{name: "unsupported only", files: []File{{Name: "scan.pdf", Content: []byte("%PDF-1.7")}}},
		{name: "blank text", files: []File{{Name: "empty.txt", Content: []byte("  \n\n ")}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := BuildOrLoad(context.Background(), &keywordEmbedder{}, tt.files)
			if !errors.Is(err, errorskg.ErrInvalidInput) {
				t.Fatalf("expected ErrInvalidInput, got %v", err)
			}
		})
	}
}

func TestBuildRejectsInvalidChunking(t *testing.T) {
	_, _, err := BuildOrLoad(context.Background(), &keywordEmbedder{}, []File{policyFile()}, WithChunking(100, 100))
	if !errors.Is(err, errorskg.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestBuildRejectsKeywordWeightOutOfRange(t *testing.T) {
	_, _, err := BuildOrLoad(context.Background(), &keywordEmbedder{}, []File{policyFile()}, WithKeywordWeight(2))
	if !errors.Is(err, errorskg.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestTokenChunkingWindowsPlainText(t *testing.T) {
	file := File{Name: "steps.txt", Content: []byte("one two three four five six seven eight nine ten")}
	idx, stats, err := BuildOrLoad(context.Background(), &keywordEmbedder{}, []File{file},
		WithTokenChunking(true), WithChunking(4, 1))
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	// 10 tokens in windows of 4 sharing 1: 1-4, 4-7, 7-10.
	if stats.ChunksNew != 3 || idx.Len() != 3 {
		t.Fatalf("expected 3 token windows, got %+v", stats)
	}
}

func TestHybridSearchFindsExactTerms(t *testing.T) {
	files := []File{
		{Name: "codes.txt", Content: []byte("Error code E1234 means the sensor is unplugged.")},
		{Name: "general.txt", Content: []byte("The device shows an error when something is wrong with the sensor.")},
	}
	idx, _, err := BuildOrLoad(context.Background(), &keywordEmbedder{}, files, WithKeywordWeight(0.5))
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	hits, err := idx.Search(context.Background(), "E1234", 1)
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(hits) != 1 || hits[0].SourceID != "codes.txt" {
		t.Fatalf("expected codes.txt first, got %+v", hits)
	}
}

func TestSearchWrapsEmbedderFailure(t *testing.T) {
	emb := &keywordEmbedder{}
	idx, _, err := BuildOrLoad(context.Background(), emb, []File{policyFile()})
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	emb.failQuery = true
	_, err = idx.Search(context.Background(), "returns", 2)
	if !errors.Is(err, errorskg.ErrPortUnavailable) {
		t.Fatalf("expected ErrPortUnavailable, got %v", err)
	}
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"guide.md":       "# Guide",
		"sub/notes.txt":  "notes",
		"scan.pdf":       "%PDF",
		"sub/page.HTML":  "<p>hi</p>",
		"sub/.gitignore": "*",
	}
	for name, content := range files {
		path := filepath.Join(dir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}

	loaded, err := LoadDir(dir)
	if err != nil {
		t.Fatalf("load dir: %v", err)
	}
	want := []string{"guide.md", "sub/notes.txt", "sub/page.HTML"}
	if len(loaded) != len(want) {
		t.Fatalf("expected %v, got %d files", want, len(loaded))
	}
	for i, f := range loaded {
		if f.Name != want[i] {
			t.Fatalf("file %d: expected %s, got %s", i, want[i], f.Name)
		}
	}
}

func TestDocumentsFromHTML(t *testing.T) {
	docs, err := documentsFromFile(File{
		Name:    "faq.html",
		Content: []byte("<html><body><nav>Menu</nav><h1>FAQ</h1><p>Gift cards never expire.</p></body></html>"),
	})
	if err != nil {
		t.Fatalf("documents: %v", err)
	}
	if len(docs) != 1 {
		t.Fatalf("expected one page, got %d", len(docs))
	}
	if docs[0].Position != "" || docs[0].ID != "faq.html" {
		t.Fatalf("unexpected provenance %q %q", docs[0].ID, docs[0].Position)
	}
	if strings.Contains(docs[0].Content, "Menu") || !strings.Contains(docs[0].Content, "Gift cards never expire.") {
		t.Fatalf("unexpected content %q", docs[0].Content)
	}
}
