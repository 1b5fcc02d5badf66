package transcript

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sweetpotato0/agentic-rag/config"
	errorskg "github.com/sweetpotato0/agentic-rag/errors"
)

// RedisConfig holds Redis configuration.
type RedisConfig struct {
	Addr     string        // Redis server address (e.g., "localhost:6379")
	Password string        // Redis password (if any)
	DB       int           // Redis database number
	Prefix   string        // Key prefix for namespacing
	TTL      time.Duration // Expiry of a conversation after its last entry; 0 keeps it
}

// RedisStore keeps each conversation in a Redis list of JSON entries and
// tracks conversation IDs in a set.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStore creates a Redis-backed store and checks the connection.
func NewRedisStore(ctx context.Context, cfg *RedisConfig) (*RedisStore, error) {
	if cfg == nil {
		cfg = RedisConfigFromEnv()
	}
	if err := config.ValidateRedisConfig(cfg.Addr, cfg.DB, cfg.Prefix); err != nil {
		return nil, fmt.Errorf("redis transcripts: %w", err)
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis %s: %w: %w", cfg.Addr, errorskg.ErrPortUnavailable, err)
	}

	return &RedisStore{client: client, prefix: cfg.Prefix, ttl: cfg.TTL}, nil
}

func (s *RedisStore) conversationKey(id string) string {
	return s.prefix + "conv:" + id
}

func (s *RedisStore) setKey() string {
	return s.prefix + "conversations"
}

// Append implements Store.
func (s *RedisStore) Append(ctx context.Context, entry *Entry) error {
	if entry == nil {
		return fmt.Errorf("entry cannot be nil: %w", errorskg.ErrInvalidInput)
	}
	prepare(entry)

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal entry: %w", err)
	}

	key := s.conversationKey(entry.ConversationID)
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, key, data)
		pipe.SAdd(ctx, s.setKey(), entry.ConversationID)
		if s.ttl > 0 {
			pipe.Expire(ctx, key, s.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to store entry in redis: %w", err)
	}
	return nil
}

// List implements Store.
func (s *RedisStore) List(ctx context.Context, conversationID string, limit int) ([]*Entry, error) {
	start := int64(0)
	if limit > 0 {
		start = int64(-limit)
	}
	items, err := s.client.LRange(ctx, s.conversationKey(conversationID), start, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read conversation %s: %w", conversationID, err)
	}
	return decodeEntries(items)
}

// Search implements Store. Filtering happens client side.
func (s *RedisStore) Search(ctx context.Context, query string) ([]*Entry, error) {
	ids, err := s.client.SMembers(ctx, s.setKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}

	var out []*Entry
	for _, id := range ids {
		key := s.conversationKey(id)
		items, err := s.client.LRange(ctx, key, 0, -1).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to read conversation %s: %w", id, err)
		}
		if len(items) == 0 {
			// expired
			s.client.SRem(ctx, s.setKey(), id)
			continue
		}
		entries, err := decodeEntries(items)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			if matches(e, query) {
				out = append(out, e)
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func decodeEntries(items []string) ([]*Entry, error) {
	out := make([]*Entry, 0, len(items))
	for _, item := range items {
		var e Entry
		if err := json.Unmarshal([]byte(item), &e); err != nil {
			return nil, fmt.Errorf("failed to unmarshal entry: %w", err)
		}
		out = append(out, &e)
	}
	return out, nil
}

// Clear removes every conversation under the prefix.
func (s *RedisStore) Clear(ctx context.Context) error {
	ids, err := s.client.SMembers(ctx, s.setKey()).Result()
	if err != nil {
		return fmt.Errorf("failed to list conversations: %w", err)
	}
	keys := make([]string, 0, len(ids)+1)
	for _, id := range ids {
		keys = append(keys, s.conversationKey(id))
	}
	keys = append(keys, s.setKey())
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to delete conversations: %w", err)
	}
	return nil
}

// Count returns the number of stored entries.
func (s *RedisStore) Count(ctx context.Context) (int, error) {
	ids, err := s.client.SMembers(ctx, s.setKey()).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to list conversations: %w", err)
	}
	total := 0
	for _, id := range ids {
		n, err := s.client.LLen(ctx, s.conversationKey(id)).Result()
		if err != nil {
			return 0, fmt.Errorf("failed to count conversation %s: %w", id, err)
		}
		total += int(n)
	}
	return total, nil
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
