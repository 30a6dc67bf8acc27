package sharing

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoStore keeps requests and grants in two collections. The structural
// invariants live in indexes: a partial unique index allows at most one
// PENDING request per (requester, item) while leaving decided history alone,
// and a unique index on grants.request_id makes re-approval structurally
// impossible.
type MongoStore struct {
	client   *mongo.Client
	requests *mongo.Collection
	grants   *mongo.Collection
}

func NewMongoStore(ctx context.Context, db *mongo.Database, requestsColl, grantsColl string) (*MongoStore, error) {
	requests := db.Collection(requestsColl)
	grants := db.Collection(grantsColl)

	_, err := requests.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "requester_id", Value: 1}, {Key: "item_id", Value: 1}},
			Options: options.Index().
				SetUnique(true).
				SetPartialFilterExpression(bson.M{"status": StatusPending}),
		},
		{Keys: bson.D{{Key: "owner_id", Value: 1}, {Key: "created_at", Value: 1}}},
		{Keys: bson.D{{Key: "requester_id", Value: 1}, {Key: "created_at", Value: 1}}},
	})
	if err != nil {
		return nil, err
	}
	_, err = grants.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "request_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{Keys: bson.D{{Key: "to_user_id", Value: 1}, {Key: "expires_at", Value: 1}}},
	})
	if err != nil {
		return nil, err
	}
	return &MongoStore{client: db.Client(), requests: requests, grants: grants}, nil
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
	return false
}

func (s *MongoStore) InsertRequest(ctx context.Context, r AccessRequest) error {
	_, err := s.requests.InsertOne(ctx, r)
	if isDuplicateKey(err) {
		return ErrPendingExists
	}
	return err
}

func (s *MongoStore) GetRequest(ctx context.Context, id string) (AccessRequest, error) {
	var r AccessRequest
	err := s.requests.FindOne(ctx, bson.M{"_id": id}).Decode(&r)
	if err == mongo.ErrNoDocuments {
		return AccessRequest{}, ErrRequestNotFound
	}
	return r, err
}

func (s *MongoStore) FindPending(ctx context.Context, requesterID, itemID string) (AccessRequest, error) {
	var r AccessRequest
	err := s.requests.FindOne(ctx, bson.M{
		"requester_id": requesterID,
		"item_id":      itemID,
		"status":       StatusPending,
	}).Decode(&r)
	if err == mongo.ErrNoDocuments {
		return AccessRequest{}, ErrRequestNotFound
	}
	return r, err
}

func (s *MongoStore) ListByOwner(ctx context.Context, ownerID string) ([]AccessRequest, error) {
	return s.findRequests(ctx, bson.M{"owner_id": ownerID})
}

func (s *MongoStore) ListByRequester(ctx context.Context, requesterID string) ([]AccessRequest, error) {
	return s.findRequests(ctx, bson.M{"requester_id": requesterID})
}

func (s *MongoStore) findRequests(ctx context.Context, filter bson.M) ([]AccessRequest, error) {
	cur, err := s.requests.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var out []AccessRequest
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Decide is a single compare-and-swap: the status filter means a request that
// already left PENDING matches nothing and the caller learns it lost.
func (s *MongoStore) Decide(ctx context.Context, id string, to RequestStatus, decidedAt time.Time, note string) error {
	res, err := s.requests.UpdateOne(ctx,
		bson.M{"_id": id, "status": StatusPending},
		bson.M{"$set": bson.M{"status": to, "decided_at": decidedAt, "decision_note": note}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		if _, err := s.GetRequest(ctx, id); err != nil {
			return err
		}
		return ErrNotPending
	}
	return nil
}

// ApproveAndGrant runs the status flip and the grant insert inside one
// transaction. A concurrent approver either sees PENDING and wins, or sees
// the flipped status and gets ErrNotPending; the grant unique index backstops
// the whole thing.
func (s *MongoStore) ApproveAndGrant(ctx context.Context, requestID string, decidedAt, expiresAt time.Time, g ShareGrant) error {
	session, err := s.client.StartSession()
	if err != nil {
		return err
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (any, error) {
		res, err := s.requests.UpdateOne(sc,
			bson.M{"_id": requestID, "status": StatusPending},
			bson.M{"$set": bson.M{"status": StatusApproved, "decided_at": decidedAt, "expires_at": expiresAt}},
		)
		if err != nil {
			return nil, err
		}
		if res.MatchedCount == 0 {
			if _, err := s.GetRequest(sc, requestID); err != nil {
				return nil, err
			}
			return nil, ErrNotPending
		}
		if _, err := s.grants.InsertOne(sc, g); err != nil {
			if isDuplicateKey(err) {
				return nil, ErrGrantExists
			}
			return nil, err
		}
		return nil, nil
	})
	return err
}

func (s *MongoStore) GetGrant(ctx context.Context, id string) (ShareGrant, error) {
	var g ShareGrant
	err := s.grants.FindOne(ctx, bson.M{"_id": id}).Decode(&g)
	if err == mongo.ErrNoDocuments {
		return ShareGrant{}, ErrGrantNotFound
	}
	return g, err
}

func (s *MongoStore) FindGrantByRequest(ctx context.Context, requestID string) (ShareGrant, error) {
	var g ShareGrant
	err := s.grants.FindOne(ctx, bson.M{"request_id": requestID}).Decode(&g)
	if err == mongo.ErrNoDocuments {
		return ShareGrant{}, ErrGrantNotFound
	}
	return g, err
}

func (s *MongoStore) ListActiveGrantsFor(ctx context.Context, userID string, now time.Time) ([]ShareGrant, error) {
	cur, err := s.grants.Find(ctx,
		bson.M{
			"to_user_id": userID,
			"revoked_at": nil,
			"expires_at": bson.M{"$gt": now},
		},
		options.Find().SetSort(bson.D{{Key: "expires_at", Value: 1}}),
	)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var out []ShareGrant
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *MongoStore) RevokeGrant(ctx context.Context, id string, at time.Time) error {
	res, err := s.grants.UpdateOne(ctx,
		bson.M{"_id": id, "revoked_at": nil},
		bson.M{"$set": bson.M{"revoked_at": at}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		if _, err := s.GetGrant(ctx, id); err != nil {
			return err
		}
		return ErrAlreadyRevoked
	}
	return nil
}
