package record

import (
	"context"
	stderrors "errors"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"clinic-workers/internal/common/errors"
	"clinic-workers/internal/models"
)

const recordsCollection = "notifications"

// MongoStore keeps records as documents in the notifications collection.
type MongoStore struct {
	coll *mongo.Collection
	now  func() time.Time
}

func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{
		coll: db.Collection(recordsCollection),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "scheduledFor", Value: 1}}},
		{Keys: bson.D{
			{Key: "templateKey", Value: 1},
			{Key: "recipientKind", Value: 1},
			{Key: "recipientId", Value: 1},
			{Key: "meta." + models.CorrelationMetaKey, Value: 1},
		}},
	})
	return err
}

func (s *MongoStore) Create(ctx context.Context, rec *models.NotificationRecord) (string, error) {
	prepare(rec, s.now())
	if _, err := s.coll.InsertOne(ctx, rec); err != nil {
		return "", errors.NewQueryExecutionFailedError("record.create", err)
	}
	return rec.ID, nil
}

func (s *MongoStore) Exists(ctx context.Context, f Filter) (bool, error) {
	filter := bson.D{
		{Key: "templateKey", Value: f.TemplateKey},
		{Key: "recipientKind", Value: f.RecipientKind},
		{Key: "recipientId", Value: f.RecipientID},
		{Key: "meta." + models.CorrelationMetaKey, Value: f.CorrelationKey},
	}
	n, err := s.coll.CountDocuments(ctx, filter, options.Count().SetLimit(1))
	if err != nil {
		return false, errors.NewQueryExecutionFailedError("record.exists", err)
	}
	return n > 0, nil
}

func (s *MongoStore) FindDue(ctx context.Context, now time.Time, limit int) ([]*models.NotificationRecord, error) {
	filter := bson.D{
		{Key: "status", Value: models.StatusQueued},
		{Key: "scheduledFor", Value: bson.D{{Key: "$lte", Value: now}}},
	}
	opts := options.Find().SetSort(bson.D{{Key: "scheduledFor", Value: 1}}).SetLimit(int64(dueLimit(limit)))

	cur, err := s.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, errors.NewQueryExecutionFailedError("record.find_due", err)
	}
	var due []*models.NotificationRecord
	if err := cur.All(ctx, &due); err != nil {
		return nil, errors.NewQueryExecutionFailedError("record.find_due", err)
	}
	for _, rec := range due {
		plainMeta(rec)
	}
	return due, nil
}

func (s *MongoStore) MarkSent(ctx context.Context, id string, channel models.Channel, sentAt time.Time) (bool, error) {
	return s.mark(ctx, id, bson.D{
		{Key: "status", Value: models.StatusSent},
		{Key: "channel", Value: channel},
		{Key: "sentAt", Value: sentAt},
		{Key: "updatedAt", Value: s.now()},
	}, "record.mark_sent")
}

func (s *MongoStore) MarkFailed(ctx context.Context, id string, errText string) (bool, error) {
	return s.mark(ctx, id, bson.D{
		{Key: "status", Value: models.StatusFailed},
		{Key: "error", Value: errText},
		{Key: "updatedAt", Value: s.now()},
	}, "record.mark_failed")
}

func (s *MongoStore) mark(ctx context.Context, id string, set bson.D, op string) (bool, error) {
	filter := bson.D{{Key: "_id", Value: id}, {Key: "status", Value: models.StatusQueued}}
	res, err := s.coll.UpdateOne(ctx, filter, bson.D{{Key: "$set", Value: set}})
	if err != nil {
		return false, errors.NewQueryExecutionFailedError(op, err)
	}
	return res.ModifiedCount > 0, nil
}

func (s *MongoStore) Get(ctx context.Context, id string) (*models.NotificationRecord, error) {
	var rec models.NotificationRecord
	err := s.coll.FindOne(ctx, bson.D{{Key: "_id", Value: id}}).Decode(&rec)
	if stderrors.Is(err, mongo.ErrNoDocuments) {
		return nil, errors.NewRecordNotFoundError(id)
	}
	if err != nil {
		return nil, errors.NewQueryExecutionFailedError("record.get", err)
	}
	plainMeta(&rec)
	return &rec, nil
}

// plainMeta rewrites decoded BSON documents and arrays in rec.Meta into the
// plain maps and slices the other stores return.
func plainMeta(rec *models.NotificationRecord) {
	for k, v := range rec.Meta {
		rec.Meta[k] = plainValue(v)
	}
}

func plainValue(v interface{}) interface{} {
	switch t := v.(type) {
	case bson.D:
		m := make(map[string]interface{}, len(t))
		for _, e := range t {
			m[e.Key] = plainValue(e.Value)
		}
		return m
	case bson.M:
		m := make(map[string]interface{}, len(t))
		for k, e := range t {
			m[k] = plainValue(e)
		}
		return m
	case map[string]interface{}:
		for k, e := range t {
			t[k] = plainValue(e)
		}
		return t
	case bson.A:
		out := make([]interface{}, len(t))
		for i, e := range t {
			out[i] = plainValue(e)
		}
		return out
	case []interface{}:
		for i, e := range t {
			t[i] = plainValue(e)
		}
		return t
	}
	return v
}
