package sequence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"clinic-workers/internal/models"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

const countersCollection = "sequence_counters"

// MongoStore keeps one document per scope and mutates it with $inc.
type MongoStore struct {
	coll *mongo.Collection
}

func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{coll: db.Collection(countersCollection)}
}

// EnsureIndexes creates the unique scope index that makes concurrent upserts safe.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "scope", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("scope_unique"),
	})
	return err
}

func (s *MongoStore) Increment(ctx context.Context, scope string) (int64, error) {
	n, err := s.increment(ctx, scope)
	// two first-time upserts race on the unique index; the loser retries as an update
	if mongo.IsDuplicateKeyError(err) {
		n, err = s.increment(ctx, scope)
	}
	if err != nil {
		return 0, fmt.Errorf("increment %s: %w", scope, err)
	}
	return n, nil
}

func (s *MongoStore) increment(ctx context.Context, scope string) (int64, error) {
	now := time.Now().UTC()
	update := bson.D{
		{Key: "$inc", Value: bson.D{{Key: "seq", Value: int64(1)}}},
		{Key: "$set", Value: bson.D{{Key: "updatedAt", Value: now}}},
		{Key: "$setOnInsert", Value: bson.D{{Key: "createdAt", Value: now}}},
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var counter models.SequenceCounter
	if err := s.coll.FindOneAndUpdate(ctx, bson.D{{Key: "scope", Value: scope}}, update, opts).Decode(&counter); err != nil {
		return 0, err
	}
	return counter.Value, nil
}

func (s *MongoStore) Current(ctx context.Context, scope string) (int64, error) {
	var counter models.SequenceCounter
	err := s.coll.FindOne(ctx, bson.D{{Key: "scope", Value: scope}}).Decode(&counter)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", scope, err)
	}
	return counter.Value, nil
}

func (s *MongoStore) Set(ctx context.Context, scope string, value int64) error {
	now := time.Now().UTC()
	update := bson.D{
		{Key: "$set", Value: bson.D{{Key: "seq", Value: value}, {Key: "updatedAt", Value: now}}},
		{Key: "$setOnInsert", Value: bson.D{{Key: "createdAt", Value: now}}},
	}
	_, err := s.coll.UpdateOne(ctx, bson.D{{Key: "scope", Value: scope}}, update, options.UpdateOne().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("set %s: %w", scope, err)
	}
	return nil
}
