package transcript

import (
	"context"
	"os"
	"testing"
	"time"
)

// exerciseStore runs the shared contract against a live backend.
func exerciseStore(t *testing.T, store Store, clear func(context.Context) error) {
	t.Helper()
	ctx := context.Background()
	if err := clear(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}

	base := time.Now().UTC().Truncate(time.Millisecond)
	first := NewEntry("conv-test", sampleResponse("", "What is the refund window?", "30 days [policy.txt, p. 1]."))
	first.CreatedAt = base
	second := NewEntry("conv-test", sampleResponse("", "Are exchanges free?", "Yes [policy.txt, p. 2]."))
	second.CreatedAt = base.Add(time.Second)

	for _, e := range []*Entry{first, second} {
		if err := store.Append(ctx, e); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	listed, err := store.List(ctx, "conv-test", 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(listed) != 2 || listed[0].ID != first.ID || listed[1].ID != second.ID {
		t.Fatalf("unexpected list %v", listed)
	}
	if listed[1].Response == nil || listed[1].Response.Answer.Text != "Yes [policy.txt, p. 2]." {
		t.Fatalf("response not round-tripped: %+v", listed[1].Response)
	}

	last, err := store.List(ctx, "conv-test", 1)
	if err != nil || len(last) != 1 || last[0].ID != second.ID {
		t.Fatalf("limit 1: %v, %v", last, err)
	}

	hits, err := store.Search(ctx, "refund")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(hits) != 1 || hits[0].ID != first.ID {
		t.Fatalf("unexpected search hits %v", hits)
	}
}

func TestRedisStore(t *testing.T) {
	if os.Getenv("REDIS_ADDR") == "" {
		t.Skip("REDIS_ADDR not set, skipping Redis store tests")
	}
	cfg := RedisConfigFromEnv()
	cfg.Prefix = "agentic-rag:test:"
	store, err := NewRedisStore(context.Background(), cfg)
	if err != nil {
		t.Skipf("failed to connect to Redis: %v", err)
	}
	defer store.Close()
	exerciseStore(t, store, store.Clear)
}

func TestMongoStore(t *testing.T) {
	if os.Getenv("MONGODB_URI") == "" {
		t.Skip("MONGODB_URI not set, skipping MongoDB store tests")
	}
	cfg := MongoConfigFromEnv()
	cfg.Database = "agentic_rag_test"
	store, err := NewMongoStore(context.Background(), cfg)
	if err != nil {
		t.Skipf("failed to connect to MongoDB: %v", err)
	}
	defer store.Close(context.Background())
	exerciseStore(t, store, store.Clear)
}

func TestPostgresStore(t *testing.T) {
	if os.Getenv("POSTGRES_DSN") == "" && os.Getenv("POSTGRES_PASSWORD") == "" {
		t.Skip("POSTGRES_PASSWORD not set, skipping PostgreSQL store tests")
	}
	store, err := NewPostgresStore(context.Background(), PostgresConfigFromEnv())
	if err != nil {
		t.Skipf("failed to connect to PostgreSQL: %v", err)
	}
	defer store.Close()
	exerciseStore(t, store, store.Clear)
}

func TestRedisConfigFromEnv(t *testing.T) {
	t.Setenv("REDIS_DB", "3")
	t.Setenv("REDIS_TTL", "90m")
	t.Setenv("REDIS_PREFIX", "")
	cfg := RedisConfigFromEnv()
	if cfg.DB != 3 || cfg.TTL != 90*time.Minute {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if cfg.Prefix != "agentic-rag:transcript:" {
		t.Fatalf("empty env should keep the default prefix, got %q", cfg.Prefix)
	}

	t.Setenv("REDIS_DB", "three")
	if got := RedisConfigFromEnv().DB; got != 0 {
		t.Fatalf("malformed int should fall back to 0, got %d", got)
	}
}
