// Package index ingests documents into a vector store and serves them
// through the retrieval port of the reasoning loop.
package index

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/sweetpotato0/agentic-rag/config"
	"github.com/sweetpotato0/agentic-rag/contrib/chunking/markdown"
	"github.com/sweetpotato0/agentic-rag/contrib/chunking/token"
	"github.com/sweetpotato0/agentic-rag/contrib/vector/inmemory"
	errorskg "github.com/sweetpotato0/agentic-rag/errors"
	"github.com/sweetpotato0/agentic-rag/pkg/logging"
	"github.com/sweetpotato0/agentic-rag/rag/agentic"
	"github.com/sweetpotato0/agentic-rag/rag/chunking"
	"github.com/sweetpotato0/agentic-rag/rag/document"
	"github.com/sweetpotato0/agentic-rag/rag/embedder"
	"github.com/sweetpotato0/agentic-rag/rag/reranker"
	"github.com/sweetpotato0/agentic-rag/rag/retriever"
	"github.com/sweetpotato0/agentic-rag/vector"
)

// Config controls ingestion and persistence.
type Config struct {
	PersistDir          string  // Snapshot and manifest directory; empty keeps the index in memory
	ChunkSize           int     // Characters per chunk, or tokens with TokenChunking
	ChunkOverlap        int     // Characters (or tokens) shared by neighbouring chunks
	TokenChunking       bool    // Window plain text and HTML by tokens instead of characters
	AllowUntrustedIndex bool    // Load a snapshot found in PersistDir
	EmbedBatchSize      int     // Chunks per embedding call
	KeywordWeight       float32 // Share of BM25 keyword matching in the ranking; 0 is vector only

	store    vector.VectorStore
	reranker reranker.Reranker
}

// Option customises BuildOrLoad.
type Option func(*Config)

// WithPersistDir stores the snapshot and ingest manifest in dir.
func WithPersistDir(dir string) Option {
	return func(cfg *Config) {
		cfg.PersistDir = strings.TrimSpace(dir)
	}
}

// WithChunking sets chunk size and overlap in characters.
func WithChunking(size, overlap int) Option {
	return func(cfg *Config) {
		cfg.ChunkSize = size
		cfg.ChunkOverlap = overlap
	}
}

// WithTokenChunking measures chunk size and overlap in tokens for plain text
// and HTML. Markdown keeps heading-aware chunking.
func WithTokenChunking(enabled bool) Option {
	return func(cfg *Config) {
		cfg.TokenChunking = enabled
	}
}

// WithAllowUntrustedIndex permits loading a persisted snapshot. Without it
// an existing snapshot is rejected with errors.ErrUntrustedIndex.
func WithAllowUntrustedIndex(allow bool) Option {
	return func(cfg *Config) {
		cfg.AllowUntrustedIndex = allow
	}
}

// WithEmbedBatchSize sets how many chunks are embedded per backend call.
func WithEmbedBatchSize(n int) Option {
	return func(cfg *Config) {
		if n > 0 {
			cfg.EmbedBatchSize = n
		}
	}
}

// WithKeywordWeight blends BM25 keyword matches into search results.
func WithKeywordWeight(w float32) Option {
	return func(cfg *Config) {
		cfg.KeywordWeight = w
	}
}

// WithStore replaces the in-memory vector store, e.g. with pgvector.
func WithStore(store vector.VectorStore) Option {
	return func(cfg *Config) {
		if store != nil {
			cfg.store = store
		}
	}
}

// WithReranker reorders search candidates, e.g. with MMR.
func WithReranker(r reranker.Reranker) Option {
	return func(cfg *Config) {
		cfg.reranker = r
	}
}

// File is raw source content. Name becomes the SourceID of its chunks.
type File struct {
	Name    string
	Content []byte
}

// Stats reports what one BuildOrLoad call did.
type Stats struct {
	Loaded        bool     // A persisted snapshot was restored
	FilesTotal    int      // Files passed in
	FilesNew      int      // Files ingested
	FilesSkipped  []string // Already in the manifest, duplicated or unsupported
	ChunksTotal   int      // Chunks produced from new files
	ChunksNew     int      // Chunks embedded and stored
	ChunksDeduped int      // Chunks whose fingerprint was already indexed
	Indexed       int      // Chunks in the index afterwards
}

// Index serves retrieval over ingested chunks. It implements
// agentic.Retriever and is safe for concurrent searches.
type Index struct {
	cfg       Config
	retriever *retriever.Retriever
	logger    *slog.Logger

	mu           sync.RWMutex
	chunks       []storedChunk
	fingerprints map[string]struct{}
}

var _ agentic.Retriever = (*Index)(nil)

// BuildOrLoad restores the persisted index when allowed, ingests the files
// not yet in the manifest and persists the result.
func BuildOrLoad(ctx context.Context, emb vector.Embedder, files []File, opts ...Option) (*Index, Stats, error) {
	cfg := Config{ChunkSize: 1000, ChunkOverlap: 200, EmbedBatchSize: 64}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	if err := config.ValidateIndexConfig(cfg.ChunkSize, cfg.ChunkOverlap); err != nil {
		return nil, Stats{}, fmt.Errorf("index: %w", err)
	}
	if cfg.KeywordWeight < 0 || cfg.KeywordWeight > 1 {
		return nil, Stats{}, fmt.Errorf("keyword weight %v outside [0,1]: %w", cfg.KeywordWeight, errorskg.ErrInvalidInput)
	}
	if emb == nil {
		return nil, Stats{}, fmt.Errorf("embedder is required: %w", errorskg.ErrInvalidInput)
	}
	if cfg.store == nil {
		cfg.store = inmemory.NewInMemoryVectorStore()
	}

	idx := &Index{
		cfg:          cfg,
		retriever:    retriever.New(cfg.store, embedder.NewVectorAdapter(emb, cfg.EmbedBatchSize), cfg.reranker,
			retriever.WithKeywordWeight(cfg.KeywordWeight)),
		logger:       logging.WithComponent("index"),
		fingerprints: make(map[string]struct{}),
	}
	stats := Stats{FilesTotal: len(files)}

	manifest := ingestManifest{}
	if cfg.PersistDir != "" {
		if err := os.MkdirAll(cfg.PersistDir, 0o755); err != nil {
			return nil, stats, fmt.Errorf("create persist dir: %w", err)
		}
		loaded, err := idx.restore(ctx)
		if err != nil {
			return nil, stats, err
		}
		stats.Loaded = loaded
		manifest = loadManifest(filepath.Join(cfg.PersistDir, manifestFile), idx.logger)
	}

	var ingested []File
	seenFiles := make(map[string]struct{})
	var fresh []document.Chunk
	for _, f := range files {
		hash := fileHash(f.Content)
		if _, done := manifest[hash]; done {
			stats.FilesSkipped = append(stats.FilesSkipped, f.Name)
			continue
		}
		if _, dup := seenFiles[hash]; dup {
			stats.FilesSkipped = append(stats.FilesSkipped, f.Name)
			continue
		}
		seenFiles[hash] = struct{}{}

		chunks, err := idx.chunkFile(ctx, f)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, stats, ctxErr
			}
			idx.logger.Warn("skipping file", "file", f.Name, "error", err)
			stats.FilesSkipped = append(stats.FilesSkipped, f.Name)
			continue
		}
		stats.ChunksTotal += len(chunks)
		for _, c := range chunks {
			fp := c.Fingerprint()
			if idx.hasFingerprint(fp) {
				stats.ChunksDeduped++
				continue
			}
			c.ID = chunkID(fp)
			idx.fingerprints[fp] = struct{}{}
			fresh = append(fresh, c)
		}
		ingested = append(ingested, f)
	}
	stats.FilesNew = len(ingested)

	if len(fresh) == 0 && len(idx.chunks) == 0 {
		return nil, stats, fmt.Errorf("no new content to index and no persisted index found: %w", errorskg.ErrInvalidInput)
	}

	if len(fresh) > 0 {
		vecs, err := idx.retriever.Add(ctx, fresh)
		if err != nil {
			return nil, stats, fmt.Errorf("index chunks: %w", err)
		}
		idx.mu.Lock()
		for i, c := range fresh {
			idx.chunks = append(idx.chunks, storedChunk{Chunk: c, Fingerprint: c.Fingerprint(), Vector: vecs[i]})
		}
		idx.mu.Unlock()
		stats.ChunksNew = len(fresh)
	}

	if cfg.PersistDir != "" && len(fresh) > 0 {
		if err := idx.persist(); err != nil {
			return nil, stats, err
		}
		manifest.add(ingested)
		if err := saveManifest(filepath.Join(cfg.PersistDir, manifestFile), manifest); err != nil {
			idx.logger.Warn("failed to save ingest manifest", "error", err)
		}
	}

	stats.Indexed = idx.Len()
	idx.logger.Info("index ready",
		"loaded", stats.Loaded,
		"files_new", stats.FilesNew,
		"files_skipped", len(stats.FilesSkipped),
		"chunks_new", stats.ChunksNew,
		"chunks_deduped", stats.ChunksDeduped,
		"chunks_indexed", stats.Indexed,
	)
	return idx, stats, nil
}

func (idx *Index) chunkFile(ctx context.Context, f File) ([]document.Chunk, error) {
	docs, err := documentsFromFile(f)
	if err != nil {
		return nil, err
	}
	var chunker chunking.Chunker
	switch {
	case isMarkdown(f.Name):
		chunker = markdown.New(markdown.WithMaxCharacters(idx.cfg.ChunkSize))
	case idx.cfg.TokenChunking:
		chunker, err = token.New(token.WithMaxTokens(idx.cfg.ChunkSize), token.WithOverlapTokens(idx.cfg.ChunkOverlap))
		if err != nil {
			return nil, err
		}
	default:
		chunker = chunking.NewSimpleChunker(
			chunking.WithChunkSize(idx.cfg.ChunkSize),
			chunking.WithOverlap(idx.cfg.ChunkOverlap),
		)
	}

	var out []document.Chunk
	for _, doc := range docs {
		chunks, err := chunker.Chunk(ctx, doc)
		if err != nil {
			return nil, fmt.Errorf("chunk %s: %w", doc.ID, err)
		}
		out = append(out, chunks...)
	}
	return out, nil
}

func (idx *Index) hasFingerprint(fp string) bool {
	_, ok := idx.fingerprints[fp]
	return ok
}

// Search implements agentic.Retriever. A blank query or an empty index is
// no match; backend failures wrap errors.ErrPortUnavailable.
func (idx *Index) Search(ctx context.Context, query string, k int) ([]agentic.EvidenceChunk, error) {
	if strings.TrimSpace(query) == "" {
		return nil, nil
	}
	results, err := idx.retriever.Search(ctx, query, k)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("search %q: %w", query, err)
	}
	if len(results) == 0 {
		return nil, nil
	}
	out := make([]agentic.EvidenceChunk, 0, len(results))
	for _, r := range results {
		out = append(out, agentic.EvidenceChunk{
			Text:     r.Chunk.Content,
			SourceID: r.Chunk.Source,
			Position: r.Chunk.Position,
			Score:    r.Score,
		})
	}
	return out, nil
}

// Len returns the number of chunks in the index.
func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.chunks)
}

// Sources lists the indexed source names in ingestion order.
func (idx *Index) Sources() []string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	seen := make(map[string]struct{})
	var out []string
	for _, c := range idx.chunks {
		if _, ok := seen[c.Chunk.Source]; ok {
			continue
		}
		seen[c.Chunk.Source] = struct{}{}
		out = append(out, c.Chunk.Source)
	}
	return out
}

func chunkID(fingerprint string) string {
	return "ck_" + fingerprint[:24]
}

func fileHash(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}
