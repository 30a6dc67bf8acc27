package auth

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type MongoUserStore struct {
	coll *mongo.Collection
}

func NewMongoUserStore(ctx context.Context, db *mongo.Database, collName string) (*MongoUserStore, error) {
	coll := db.Collection(collName)
	_, err := coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return nil, err
	}
	return &MongoUserStore{coll: coll}, nil
}

func isDuplicateKey(err error) bool {
	var wex mongo.WriteException
	if errors.As(err, &wex) {
		for _, we := range wex.WriteErrors {
			if we.Code == 11000 {
				return true
			}
		}
	}
	var bwe mongo.BulkWriteException
	if errors.As(err, &bwe) {
		for _, we := range bwe.WriteErrors {
			if we.Code == 11000 {
				return true
			}
		}
	}
	return false
}

func (s *MongoUserStore) Insert(ctx context.Context, u *User) error {
	u.Email = NormalizeEmail(u.Email)
	_, err := s.coll.InsertOne(ctx, u)
	if isDuplicateKey(err) {
		return ErrEmailTaken
	}
	return err
}

func (s *MongoUserStore) FindByID(ctx context.Context, id string) (*User, error) {
	return s.findOne(ctx, bson.M{"_id": id})
}

func (s *MongoUserStore) FindByEmail(ctx context.Context, email string) (*User, error) {
	return s.findOne(ctx, bson.M{"email": NormalizeEmail(email)})
}

func (s *MongoUserStore) findOne(ctx context.Context, filter bson.M) (*User, error) {
	var u User
	err := s.coll.FindOne(ctx, filter).Decode(&u)
	if err == mongo.ErrNoDocuments {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *MongoUserStore) List(ctx context.Context) ([]*User, error) {
	cur, err := s.coll.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var out []*User
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *MongoUserStore) Count(ctx context.Context) (int64, error) {
	return s.coll.CountDocuments(ctx, bson.M{})
}

func (s *MongoUserStore) CountActiveAdmins(ctx context.Context) (int64, error) {
	return s.coll.CountDocuments(ctx, bson.M{"role": RoleAdmin, "status": StatusActive})
}

func (s *MongoUserStore) SetStatus(ctx context.Context, id string, st Status) error {
	return s.setField(ctx, id, bson.M{"status": st})
}

func (s *MongoUserStore) SetRole(ctx context.Context, id string, r Role) error {
	return s.setField(ctx, id, bson.M{"role": r})
}

func (s *MongoUserStore) setField(ctx context.Context, id string, fields bson.M) error {
	res, err := s.coll.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": fields})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrUserNotFound
	}
	return nil
}

// SetKeyPair only matches documents without a public key, making the publish
// write-once at the storage layer rather than by read-then-write.
func (s *MongoUserStore) SetKeyPair(ctx context.Context, id string, pub []byte, wrap KeyWrap) error {
	res, err := s.coll.UpdateOne(ctx,
		bson.M{"_id": id, "public_key": bson.M{"$exists": false}},
		bson.M{"$set": bson.M{"public_key": pub, "private_key_wrap": wrap}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		if _, err := s.FindByID(ctx, id); err != nil {
			return err
		}
		return ErrKeyPairExists
	}
	return nil
}

func (s *MongoUserStore) UpdatePassword(ctx context.Context, id, newHash string) error {
	return s.setField(ctx, id, bson.M{"pass_hash": newHash})
}
