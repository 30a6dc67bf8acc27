package audit

import (
	"context"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// MongoSink persists events to a collection. Write failures are logged and
// dropped: audit must never fail the operation it records.
type MongoSink struct {
	coll   *mongo.Collection
	logger *log.Logger
}

func NewMongoSink(ctx context.Context, db *mongo.Database, collName string, logger *log.Logger) (*MongoSink, error) {
	coll := db.Collection(collName)
	_, err := coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "at", Value: -1}},
	})
	if err != nil {
		return nil, err
	}
	return &MongoSink{coll: coll, logger: logger}, nil
}

func (s *MongoSink) Record(ctx context.Context, e Event) {
	if e.IP == "" {
		e.IP = IPFrom(ctx)
	}
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if _, err := s.coll.InsertOne(wctx, e); err != nil && s.logger != nil {
		s.logger.Printf("audit: insert failed: %v", err)
	}
}
