package storage

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoBlobStore keeps file ciphertext in its own collection, one document
// per item. Upsert semantics: re-uploading a file replaces the old body.
type MongoBlobStore struct {
	coll *mongo.Collection
}

func NewMongoBlobStore(db *mongo.Database, collName string) *MongoBlobStore {
	return &MongoBlobStore{coll: db.Collection(collName)}
}

func (m *MongoBlobStore) Put(ctx context.Context, itemID string, data []byte) error {
	if itemID == "" {
		return errors.New("storage: empty item id")
	}
	_, err := m.coll.UpdateByID(ctx, itemID,
		bson.M{
			"$set":         bson.M{"data": data, "updated_at": time.Now()},
			"$setOnInsert": bson.M{"created_at": time.Now()},
		},
		options.Update().SetUpsert(true),
	)
	return err
}

func (m *MongoBlobStore) Get(ctx context.Context, itemID string) ([]byte, error) {
	if itemID == "" {
		return nil, errors.New("storage: empty item id")
	}
	var doc struct {
		Data []byte `bson:"data"`
	}
	err := m.coll.FindOne(ctx, bson.M{"_id": itemID}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, ErrNotFound
	}
	return doc.Data, err
}

func (m *MongoBlobStore) Delete(ctx context.Context, itemID string) error {
	if itemID == "" {
		return errors.New("storage: empty item id")
	}
	_, err := m.coll.DeleteOne(ctx, bson.M{"_id": itemID})
	return err
}
