package transcript

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	_ "github.com/lib/pq"

	"github.com/sweetpotato0/agentic-rag/config"
	errorskg "github.com/sweetpotato0/agentic-rag/errors"
	"github.com/sweetpotato0/agentic-rag/rag/agentic"
)

// PostgresConfig holds PostgreSQL connection configuration.
type PostgresConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// PostgresStore keeps entries in the transcripts table.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore connects to PostgreSQL and creates the table.
func NewPostgresStore(ctx context.Context, cfg *PostgresConfig) (*PostgresStore, error) {
	if cfg == nil {
		cfg = PostgresConfigFromEnv()
	}
	if err := config.ValidatePostgresConfig(cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode); err != nil {
		return nil, fmt.Errorf("postgres transcripts: %w", err)
	}

	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode)
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w: %w", errorskg.ErrPortUnavailable, err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w: %w", errorskg.ErrPortUnavailable, err)
	}

	store := &PostgresStore{db: db}
	if err := store.createTable(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create table: %w", err)
	}
	return store, nil
}

func (s *PostgresStore) createTable(ctx context.Context) error {
	query := `
	CREATE TABLE IF NOT EXISTS transcripts (
		id VARCHAR(255) PRIMARY KEY,
		conversation_id VARCHAR(255) NOT NULL,
		question TEXT NOT NULL,
		answer TEXT NOT NULL,
		termination VARCHAR(64) NOT NULL,
		response JSONB,
		created_at TIMESTAMPTZ NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_transcripts_conversation ON transcripts(conversation_id, created_at);
	`
	_, err := s.db.ExecContext(ctx, query)
	return err
}

// Append implements Store.
func (s *PostgresStore) Append(ctx context.Context, entry *Entry) error {
	if entry == nil {
		return fmt.Errorf("entry cannot be nil: %w", errorskg.ErrInvalidInput)
	}
	prepare(entry)

	var response any
	if entry.Response != nil {
		data, err := json.Marshal(entry.Response)
		if err != nil {
			return fmt.Errorf("failed to marshal response: %w", err)
		}
		response = string(data)
	}

	query := `
	INSERT INTO transcripts (id, conversation_id, question, answer, termination, response, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
	ON CONFLICT (id) DO UPDATE SET
		answer = EXCLUDED.answer,
		termination = EXCLUDED.termination,
		response = EXCLUDED.response
	`
	_, err := s.db.ExecContext(ctx, query,
		entry.ID,
		entry.ConversationID,
		entry.Question,
		entry.Answer,
		entry.Termination,
		response,
		entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to store entry in postgres: %w", err)
	}
	return nil
}

const selectColumns = `SELECT id, conversation_id, question, answer, termination, response, created_at FROM transcripts`

// List implements Store.
func (s *PostgresStore) List(ctx context.Context, conversationID string, limit int) ([]*Entry, error) {
	query := selectColumns + ` WHERE conversation_id = $1 ORDER BY created_at DESC`
	args := []any{conversationID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}
	entries, err := s.query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	return entries, nil
}

// Search implements Store.
func (s *PostgresStore) Search(ctx context.Context, query string) ([]*Entry, error) {
	if query == "" {
		return s.query(ctx, selectColumns+` ORDER BY created_at DESC`)
	}
	pattern := "%" + escapeLike(query) + "%"
	return s.query(ctx, selectColumns+` WHERE question ILIKE $1 OR answer ILIKE $1 ORDER BY created_at DESC`, pattern)
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func (s *PostgresStore) query(ctx context.Context, query string, args ...any) ([]*Entry, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transcripts: %w", err)
	}
	defer rows.Close()

	out := make([]*Entry, 0)
	for rows.Next() {
		e := &Entry{}
		var response sql.NullString
		if err := rows.Scan(&e.ID, &e.ConversationID, &e.Question, &e.Answer, &e.Termination, &response, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan entry: %w", err)
		}
		if response.Valid && response.String != "" {
			var resp agentic.Response
			if err := json.Unmarshal([]byte(response.String), &resp); err != nil {
				return nil, fmt.Errorf("failed to unmarshal response of %s: %w", e.ID, err)
			}
			e.Response = &resp
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transcripts: %w", err)
	}
	return out, nil
}

// Clear removes all entries.
func (s *PostgresStore) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM transcripts"); err != nil {
		return fmt.Errorf("failed to clear transcripts: %w", err)
	}
	return nil
}

// Count returns the number of stored entries.
func (s *PostgresStore) Count(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM transcripts").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count transcripts: %w", err)
	}
	return count, nil
}

// Close closes the PostgreSQL connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
