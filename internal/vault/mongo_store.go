package vault

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type MongoStore struct {
	coll *mongo.Collection
}

func NewMongoStore(ctx context.Context, db *mongo.Database, collName string) (*MongoStore, error) {
	coll := db.Collection(collName)
	_, err := coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "owner_id", Value: 1}}},
		{Keys: bson.D{{Key: "visibility", Value: 1}}},
	})
	if err != nil {
		return nil, err
	}
	return &MongoStore{coll: coll}, nil
}

func (s *MongoStore) Insert(ctx context.Context, it Item) error {
	_, err := s.coll.InsertOne(ctx, it)
	return err
}

func (s *MongoStore) Get(ctx context.Context, id string) (Item, error) {
	var it Item
	err := s.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&it)
	if err == mongo.ErrNoDocuments {
		return Item{}, ErrItemNotFound
	}
	return it, err
}

func (s *MongoStore) Update(ctx context.Context, it Item) error {
	res, err := s.coll.ReplaceOne(ctx, bson.M{"_id": it.ID}, it)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrItemNotFound
	}
	return nil
}

func (s *MongoStore) Delete(ctx context.Context, id string) error {
	res, err := s.coll.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrItemNotFound
	}
	return nil
}

func (s *MongoStore) ListByOwner(ctx context.Context, ownerID string) ([]Item, error) {
	return s.find(ctx, bson.M{"owner_id": ownerID})
}

func (s *MongoStore) ListFamilyVisible(ctx context.Context) ([]Item, error) {
	return s.find(ctx, bson.M{"visibility": VisibilityFamilyMetadata})
}

func (s *MongoStore) find(ctx context.Context, filter bson.M) ([]Item, error) {
	cur, err := s.coll.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var out []Item
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *MongoStore) MarkShared(ctx context.Context, id string, at time.Time) error {
	res, err := s.coll.UpdateOne(ctx,
		bson.M{"_id": id, "shared_at": nil},
		bson.M{"$set": bson.M{"shared_at": at}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		// Either missing or already shared; already-shared is fine.
		if _, err := s.Get(ctx, id); err != nil {
			return err
		}
	}
	return nil
}
