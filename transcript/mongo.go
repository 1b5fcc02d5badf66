package transcript

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/sweetpotato0/agentic-rag/config"
	errorskg "github.com/sweetpotato0/agentic-rag/errors"
	"github.com/sweetpotato0/agentic-rag/rag/agentic"
)

// MongoConfig holds MongoDB connection configuration.
type MongoConfig struct {
	URI        string
	Database   string
	Collection string
}

// MongoStore stores one document per entry.
type MongoStore struct {
	client     *mongo.Client
	collection *mongo.Collection
}

// mongoEntry is the document layout. The full response is kept as JSON so
// the audit trail survives unchanged.
type mongoEntry struct {
	ID             string    `bson:"_id"`
	ConversationID string    `bson:"conversation_id"`
	Question       string    `bson:"question"`
	Answer         string    `bson:"answer"`
	Termination    string    `bson:"termination"`
	Response       string    `bson:"response,omitempty"`
	CreatedAt      time.Time `bson:"created_at"`
}

// NewMongoStore connects to MongoDB and creates the indexes.
func NewMongoStore(ctx context.Context, cfg *MongoConfig) (*MongoStore, error) {
	if cfg == nil {
		cfg = MongoConfigFromEnv()
	}
	if err := config.ValidateMongoDBConfig(cfg.URI, cfg.Database, cfg.Collection); err != nil {
		return nil, fmt.Errorf("mongodb transcripts: %w", err)
	}

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("connect mongodb: %w: %w", errorskg.ErrPortUnavailable, err)
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongodb: %w: %w", errorskg.ErrPortUnavailable, err)
	}

	store := &MongoStore{
		client:     client,
		collection: client.Database(cfg.Database).Collection(cfg.Collection),
	}
	if err := store.createIndexes(connectCtx); err != nil {
		return nil, fmt.Errorf("failed to create indexes: %w", err)
	}
	return store, nil
}

func (s *MongoStore) createIndexes(ctx context.Context) error {
	_, err := s.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "conversation_id", Value: 1}, {Key: "created_at", Value: 1}}},
		{Keys: bson.D{{Key: "created_at", Value: -1}}},
	})
	return err
}

// Append implements Store.
func (s *MongoStore) Append(ctx context.Context, entry *Entry) error {
	if entry == nil {
		return fmt.Errorf("entry cannot be nil: %w", errorskg.ErrInvalidInput)
	}
	prepare(entry)

	doc := mongoEntry{
		ID:             entry.ID,
		ConversationID: entry.ConversationID,
		Question:       entry.Question,
		Answer:         entry.Answer,
		Termination:    entry.Termination,
		CreatedAt:      entry.CreatedAt,
	}
	if entry.Response != nil {
		data, err := json.Marshal(entry.Response)
		if err != nil {
			return fmt.Errorf("failed to marshal response: %w", err)
		}
		doc.Response = string(data)
	}

	opts := options.Replace().SetUpsert(true)
	if _, err := s.collection.ReplaceOne(ctx, bson.M{"_id": entry.ID}, doc, opts); err != nil {
		return fmt.Errorf("failed to store entry in mongodb: %w", err)
	}
	return nil
}

// List implements Store.
func (s *MongoStore) List(ctx context.Context, conversationID string, limit int) ([]*Entry, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	entries, err := s.find(ctx, bson.M{"conversation_id": conversationID}, opts)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	return entries, nil
}

// Search implements Store.
func (s *MongoStore) Search(ctx context.Context, query string) ([]*Entry, error) {
	filter := bson.M{}
	if query != "" {
		pattern := bson.M{"$regex": regexp.QuoteMeta(query), "$options": "i"}
		filter = bson.M{"$or": bson.A{
			bson.M{"question": pattern},
			bson.M{"answer": pattern},
		}}
	}
	return s.find(ctx, filter, options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}))
}

func (s *MongoStore) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]*Entry, error) {
	cursor, err := s.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query transcripts: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []mongoEntry
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode transcripts: %w", err)
	}

	out := make([]*Entry, 0, len(docs))
	for _, d := range docs {
		e := &Entry{
			ID:             d.ID,
			ConversationID: d.ConversationID,
			Question:       d.Question,
			Answer:         d.Answer,
			Termination:    d.Termination,
			CreatedAt:      d.CreatedAt,
		}
		if d.Response != "" {
			var resp agentic.Response
			if err := json.Unmarshal([]byte(d.Response), &resp); err != nil {
				return nil, fmt.Errorf("failed to unmarshal response of %s: %w", d.ID, err)
			}
			e.Response = &resp
		}
		out = append(out, e)
	}
	return out, nil
}

// Clear removes all entries.
func (s *MongoStore) Clear(ctx context.Context) error {
	if _, err := s.collection.DeleteMany(ctx, bson.M{}); err != nil {
		return fmt.Errorf("failed to clear transcripts: %w", err)
	}
	return nil
}

// Count returns the number of stored entries.
func (s *MongoStore) Count(ctx context.Context) (int, error) {
	count, err := s.collection.CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, fmt.Errorf("failed to count transcripts: %w", err)
	}
	return int(count), nil
}

// Close disconnects from MongoDB.
func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}
