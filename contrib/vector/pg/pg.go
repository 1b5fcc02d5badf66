package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/lib/pq"

	"github.com/sweetpotato0/agentic-rag/config"
	errorskg "github.com/sweetpotato0/agentic-rag/errors"
	"github.com/sweetpotato0/agentic-rag/vector"
)

// PGVectorStore implements VectorStore using PostgreSQL with pgvector extension
type PGVectorStore struct {
	db          *sql.DB
	dimension   int
	tableName   string // quoted identifier
	indexName   string // quoted identifier
	indexMethod string // hnsw or ivfflat
}

// PGVectorConfig holds pgvector configuration
type PGVectorConfig struct {
	Host      string
	Port      int
	User      string
	Password  string
	DBName    string
	SSLMode   string
	Dimension int    // Embedding dimension (default: 1536 for OpenAI)
	TableName string // Table name (default: document_chunks)
	IndexType string // HNSW or IVFFLAT (default: HNSW)
}

// DefaultPGVectorConfig returns default pgvector configuration
func DefaultPGVectorConfig() *PGVectorConfig {
	return &PGVectorConfig{
		Host:      "127.0.0.1",
		Port:      5432,
		User:      "postgres",
		Password:  "postgres",
		DBName:    "agentic_rag",
		SSLMode:   "disable",
		Dimension: 1536,
		TableName: "document_chunks",
		IndexType: "HNSW",
	}
}

// NewPGVectorStore connects, enables pgvector and creates the chunk table.
func NewPGVectorStore(ctx context.Context, cfg *PGVectorConfig) (*PGVectorStore, error) {
	if cfg == nil {
		cfg = DefaultPGVectorConfig()
	}
	if err := config.ValidatePGVectorConfig(cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName,
		cfg.SSLMode, cfg.Dimension, cfg.TableName, cfg.IndexType); err != nil {
		return nil, fmt.Errorf("pgvector: %w", err)
	}

	connector, err := pq.NewConnector(fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		quoteDSN(cfg.Host), cfg.Port, quoteDSN(cfg.User), quoteDSN(cfg.Password), quoteDSN(cfg.DBName), cfg.SSLMode))
	if err != nil {
		return nil, fmt.Errorf("pgvector dsn: %w: %v", errorskg.ErrInvalidInput, err)
	}
	db := sql.OpenDB(connector)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping PostgreSQL: %w: %v", errorskg.ErrPortUnavailable, err)
	}

	store := &PGVectorStore{
		db:          db,
		dimension:   cfg.Dimension,
		tableName:   pq.QuoteIdentifier(cfg.TableName),
		indexName:   pq.QuoteIdentifier(cfg.TableName + "_embedding_idx"),
		indexMethod: strings.ToLower(cfg.IndexType),
	}
	if err := store.setup(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("setup pgvector: %w", err)
	}
	return store, nil
}

func (s *PGVectorStore) setup(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("create vector extension: %w", err)
	}

	createTableSQL := fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS %s (
		id VARCHAR(255) PRIMARY KEY,
		text TEXT NOT NULL,
		metadata JSONB NOT NULL DEFAULT '{}'::jsonb,
		embedding vector(%d) NOT NULL,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`, s.tableName, s.dimension)
	if _, err := s.db.ExecContext(ctx, createTableSQL); err != nil {
		return fmt.Errorf("create table: %w", err)
	}

	indexSQL := fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s USING %s (embedding vector_cosine_ops)`,
		s.indexName, s.tableName, s.indexMethod)
	if _, err := s.db.ExecContext(ctx, indexSQL); err != nil {
		return fmt.Errorf("create %s index: %w", s.indexMethod, err)
	}
	return nil
}

// AddEmbedding inserts or replaces an embedding
func (s *PGVectorStore) AddEmbedding(ctx context.Context, embedding *vector.Embedding) error {
	if embedding == nil {
		return fmt.Errorf("embedding cannot be nil: %w", errorskg.ErrInvalidInput)
	}
	if embedding.ID == "" {
		return fmt.Errorf("embedding ID cannot be empty: %w", errorskg.ErrInvalidInput)
	}
	if len(embedding.Vector) != s.dimension {
		return fmt.Errorf("embedding dimension mismatch: expected %d, got %d: %w", s.dimension, len(embedding.Vector), errorskg.ErrInvalidInput)
	}

	meta := embedding.Metadata
	if meta == nil {
		meta = map[string]string{}
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	query := fmt.Sprintf(`
	INSERT INTO %s (id, text, metadata, embedding)
	VALUES ($1, $2, $3, $4::vector)
	ON CONFLICT (id) DO UPDATE SET
		text = EXCLUDED.text,
		metadata = EXCLUDED.metadata,
		embedding = EXCLUDED.embedding,
		created_at = CURRENT_TIMESTAMP
	`, s.tableName)

	if _, err := s.db.ExecContext(ctx, query, embedding.ID, embedding.Text, metaJSON, vectorToString(embedding.Vector)); err != nil {
		return fmt.Errorf("add embedding: %w: %v", errorskg.ErrPortUnavailable, err)
	}
	return nil
}

// Search orders by cosine distance; Score is 1 - distance.
func (s *PGVectorStore) Search(ctx context.Context, queryVector []float32, topK int) ([]*vector.Embedding, error) {
	if len(queryVector) == 0 {
		return nil, fmt.Errorf("query vector cannot be empty: %w", errorskg.ErrInvalidInput)
	}
	if len(queryVector) != s.dimension {
		return nil, fmt.Errorf("query vector dimension mismatch: expected %d, got %d: %w", s.dimension, len(queryVector), errorskg.ErrInvalidInput)
	}
	if topK <= 0 {
		topK = 10
	}

	op := vector.CosineDistanceOperator()
	query := fmt.Sprintf(`
	SELECT id, text, metadata, embedding::text, 1 - (embedding %s $1::vector) AS score
	FROM %s
	ORDER BY embedding %s $1::vector, id
	LIMIT $2
	`, op, s.tableName, op)

	rows, err := s.db.QueryContext(ctx, query, vectorToString(queryVector), topK)
	if err != nil {
		return nil, fmt.Errorf("search embeddings: %w: %v", errorskg.ErrPortUnavailable, err)
	}
	defer rows.Close()

	embeddings := make([]*vector.Embedding, 0, topK)
	for rows.Next() {
		var score float64
		emb, err := scanEmbedding(rows, &score)
		if err != nil {
			return nil, err
		}
		emb.Score = float32(score)
		embeddings = append(embeddings, emb)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate embeddings: %w: %v", errorskg.ErrPortUnavailable, err)
	}
	return embeddings, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEmbedding(row scanner, extra ...any) (*vector.Embedding, error) {
	var (
		id, text, vecStr string
		metaJSON         []byte
	)
	dest := append([]any{&id, &text, &metaJSON, &vecStr}, extra...)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}

	vec, err := stringToVector(vecStr)
	if err != nil {
		return nil, fmt.Errorf("parse vector for embedding %s: %w: %v", id, errorskg.ErrIndexCorrupt, err)
	}
	var meta map[string]string
	if len(metaJSON) > 0 {
		if err := json.Unmarshal(metaJSON, &meta); err != nil {
			return nil, fmt.Errorf("parse metadata for embedding %s: %w: %v", id, errorskg.ErrIndexCorrupt, err)
		}
	}
	return &vector.Embedding{ID: id, Text: text, Vector: vec, Metadata: meta}, nil
}

// DeleteEmbedding removes an embedding by ID
func (s *PGVectorStore) DeleteEmbedding(ctx context.Context, id string) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE id = $1", s.tableName)
	result, err := s.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete embedding: %w: %v", errorskg.ErrPortUnavailable, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("embedding %s: %w", id, errorskg.ErrNotFound)
	}
	return nil
}

// GetEmbedding retrieves a specific embedding by ID
func (s *PGVectorStore) GetEmbedding(ctx context.Context, id string) (*vector.Embedding, error) {
	query := fmt.Sprintf(`SELECT id, text, metadata, embedding::text FROM %s WHERE id = $1`, s.tableName)

	emb, err := scanEmbedding(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("embedding %s: %w", id, errorskg.ErrNotFound)
		}
		return nil, fmt.Errorf("get embedding: %w", err)
	}
	return emb, nil
}

// Clear removes all embeddings
func (s *PGVectorStore) Clear(ctx context.Context) error {
	query := fmt.Sprintf("TRUNCATE TABLE %s", s.tableName)
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("clear embeddings: %w: %v", errorskg.ErrPortUnavailable, err)
	}
	return nil
}

// Count returns the number of embeddings
func (s *PGVectorStore) Count(ctx context.Context) (int, error) {
	var count int
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s", s.tableName)
	if err := s.db.QueryRowContext(ctx, query).Scan(&count); err != nil {
		return 0, fmt.Errorf("count embeddings: %w: %v", errorskg.ErrPortUnavailable, err)
	}
	return count, nil
}

// Close closes the database connection
func (s *PGVectorStore) Close() error {
	return s.db.Close()
}

// quoteDSN quotes a key/value connection string value so passwords with
// spaces or quotes survive.
func quoteDSN(v string) string {
	return "'" + strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(v) + "'"
}

func vectorToString(vec []float32) string {
	parts := make([]string, len(vec))
	for i, v := range vec {
		parts[i] = strconv.FormatFloat(float64(v), 'f', -1, 32)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

func stringToVector(str string) ([]float32, error) {
	str = strings.TrimSpace(str)
	str = strings.TrimPrefix(str, "[")
	str = strings.TrimSuffix(str, "]")
	if str == "" {
		return nil, fmt.Errorf("empty vector")
	}
	parts := strings.Split(str, ",")

	vec := make([]float32, 0, len(parts))
	for i, part := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(part), 32)
		if err != nil {
			return nil, fmt.Errorf("component %d: %q", i, part)
		}
		vec = append(vec, float32(v))
	}
	return vec, nil
}
