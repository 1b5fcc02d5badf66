package index

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	errorskg "github.com/sweetpotato0/agentic-rag/errors"
	"github.com/sweetpotato0/agentic-rag/rag/document"
)

const (
	snapshotFile    = "index_snapshot.json"
	manifestFile    = "ingest_manifest.json"
	snapshotVersion = 1
)

type storedChunk struct {
	Chunk       document.Chunk `json:"chunk"`
	Fingerprint string         `json:"fingerprint"`
	Vector      []float32      `json:"vector"`
}

type snapshot struct {
	Version  int           `json:"version"`
	Checksum string        `json:"checksum"`
	Chunks   []storedChunk `json:"chunks"`
}

func checksum(chunks []storedChunk) (string, error) {
	data, err := json.Marshal(chunks)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// restore loads the snapshot in PersistDir into the store. It reports
// false when there is nothing to restore.
func (idx *Index) restore(ctx context.Context) (bool, error) {
	path := filepath.Join(idx.cfg.PersistDir, snapshotFile)
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read snapshot: %w", err)
	}
	if !idx.cfg.AllowUntrustedIndex {
		return false, fmt.Errorf("snapshot %s exists but loading it was not allowed: %w", path, errorskg.ErrUntrustedIndex)
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return false, fmt.Errorf("decode snapshot: %w: %v", errorskg.ErrIndexCorrupt, err)
	}
	if snap.Version != snapshotVersion {
		return false, fmt.Errorf("snapshot version %d, want %d: %w", snap.Version, snapshotVersion, errorskg.ErrIndexCorrupt)
	}
	sum, err := checksum(snap.Chunks)
	if err != nil {
		return false, fmt.Errorf("checksum snapshot: %w", err)
	}
	if sum != snap.Checksum {
		return false, fmt.Errorf("snapshot checksum mismatch: %w", errorskg.ErrIndexCorrupt)
	}

	chunks := make([]document.Chunk, len(snap.Chunks))
	vecs := make([][]float32, len(snap.Chunks))
	for i, sc := range snap.Chunks {
		if sc.Fingerprint != sc.Chunk.Fingerprint() {
			return false, fmt.Errorf("chunk %s fingerprint mismatch: %w", sc.Chunk.ID, errorskg.ErrIndexCorrupt)
		}
		chunks[i] = sc.Chunk
		vecs[i] = sc.Vector
	}
	if err := idx.retriever.Restore(ctx, chunks, vecs); err != nil {
		return false, fmt.Errorf("restore snapshot: %w", err)
	}

	idx.mu.Lock()
	idx.chunks = snap.Chunks
	for _, sc := range snap.Chunks {
		idx.fingerprints[sc.Fingerprint] = struct{}{}
	}
	idx.mu.Unlock()
	idx.logger.Info("snapshot restored", "path", path, "chunks", len(snap.Chunks))
	return true, nil
}

func (idx *Index) persist() error {
	idx.mu.RLock()
	chunks := append([]storedChunk(nil), idx.chunks...)
	idx.mu.RUnlock()

	sum, err := checksum(chunks)
	if err != nil {
		return fmt.Errorf("checksum snapshot: %w", err)
	}
	data, err := json.Marshal(snapshot{Version: snapshotVersion, Checksum: sum, Chunks: chunks})
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := writeFileAtomic(filepath.Join(idx.cfg.PersistDir, snapshotFile), data); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	return nil
}

type manifestEntry struct {
	Name      string    `json:"name"`
	Size      int       `json:"size"`
	IndexedAt time.Time `json:"indexed_at"`
}

// ingestManifest maps the SHA-256 of file content to what was ingested.
type ingestManifest map[string]manifestEntry

func (m ingestManifest) add(files []File) {
	now := time.Now().UTC()
	for _, f := range files {
		m[fileHash(f.Content)] = manifestEntry{Name: f.Name, Size: len(f.Content), IndexedAt: now}
	}
}

// loadManifest treats a missing or unreadable manifest as empty; the chunk
// fingerprints still prevent duplicate chunks.
func loadManifest(path string, logger *slog.Logger) ingestManifest {
	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			logger.Warn("failed to read ingest manifest", "path", path, "error", err)
		}
		return ingestManifest{}
	}
	m := ingestManifest{}
	if err := json.Unmarshal(data, &m); err != nil {
		logger.Warn("ignoring malformed ingest manifest", "path", path, "error", err)
		return ingestManifest{}
	}
	return m
}

func saveManifest(path string, m ingestManifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	return writeFileAtomic(path, data)
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
