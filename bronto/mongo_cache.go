package bronto

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const mongoCacheCollection = "bronto_cache"

type mongoCacheEntry struct {
	Key       string    `bson:"_id"`
	Value     string    `bson:"value"`
	ExpiresAt time.Time `bson:"expires_at"`
}

// MongoCacheStore keeps cache entries in a MongoDB collection so that every
// function instance shares the same reference data.
// Expired entries are ignored on read and purged by a TTL index.
type MongoCacheStore struct {
	c   *mongo.Collection
	now Clock
}

func NewMongoCacheStore(db *mongo.Database, now Clock) *MongoCacheStore {
	if now == nil {
		now = time.Now
	}
	return &MongoCacheStore{
		c:   db.Collection(mongoCacheCollection),
		now: now,
	}
}

// EnsureIndexes creates the TTL index on expires_at.
func (s *MongoCacheStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.c.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "expires_at", Value: 1}},
		Options: options.Index().SetName("idx_cache_expires_at").SetExpireAfterSeconds(0),
	})
	return err
}

func (s *MongoCacheStore) Get(ctx context.Context, key string, value any) (bool, error) {
	var entry mongoCacheEntry
	filter := bson.M{
		"_id":        key,
		"expires_at": bson.M{"$gt": s.now().UTC()},
	}
	err := s.c.FindOne(ctx, filter).Decode(&entry)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err = json.Unmarshal([]byte(entry.Value), value); err != nil {
		return false, err
	}
	return true, nil
}

func (s *MongoCacheStore) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	update := bson.M{
		"$set": bson.M{
			"value":      string(data),
			"expires_at": s.now().UTC().Add(ttl),
		},
	}
	opts := options.Update().SetUpsert(true)
	_, err = s.c.UpdateOne(ctx, bson.M{"_id": key}, update, opts)
	return err
}

// Close disconnects the underlying client.
func (s *MongoCacheStore) Close(ctx context.Context) error {
	return s.c.Database().Client().Disconnect(ctx)
}
