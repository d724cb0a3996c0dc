package cursor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/BartekS5/blobmigrate/internal/etl"
)

const DefaultCollection = "migration_cursors"

var _ etl.CursorStore = (*MongoStore)(nil)

type cursorDoc struct {
	Entity    string    `bson:"_id"`
	OrderKey  int64     `bson:"orderKey"`
	UpdatedAt time.Time `bson:"updatedAt"`
}

// MongoStore keeps cursors in a collection keyed by entity type.
type MongoStore struct {
	coll *mongo.Collection
}

func NewMongoStore(db *mongo.Database, collection string) *MongoStore {
	if collection == "" {
		collection = DefaultCollection
	}
	return &MongoStore{coll: db.Collection(collection)}
}

func (s *MongoStore) Load(ctx context.Context, entityType string) (int64, bool, error) {
	var doc cursorDoc
	err := s.coll.FindOne(ctx, bson.D{{Key: "_id", Value: entityType}}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return 0, false, nil
	} else if err != nil {
		return 0, false, fmt.Errorf("loading cursor for %s: %w", entityType, err)
	}
	return doc.OrderKey, true, nil
}

func (s *MongoStore) Save(ctx context.Context, entityType string, cursor int64) error {
	update := bson.D{{Key: "$set", Value: bson.D{
		{Key: "orderKey", Value: cursor},
		{Key: "updatedAt", Value: time.Now().UTC()},
	}}}
	_, err := s.coll.UpdateOne(ctx, bson.D{{Key: "_id", Value: entityType}}, update, options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("saving cursor for %s: %w", entityType, err)
	}
	return nil
}

// All returns every stored cursor.
func (s *MongoStore) All(ctx context.Context) (map[string]int64, error) {
	cur, err := s.coll.Find(ctx, bson.D{})
	if err != nil {
		return nil, fmt.Errorf("listing cursors: %w", err)
	}
	defer cur.Close(ctx)

	out := map[string]int64{}
	for cur.Next(ctx) {
		var doc cursorDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decoding cursor: %w", err)
		}
		out[doc.Entity] = doc.OrderKey
	}
	return out, cur.Err()
}
