package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// MongoStore keeps checkpoints in a mongo collection keyed by session id.
// State travels as a JSON blob, same as the other durable backends. The
// lease is a document in a second collection; _id uniqueness makes the
// insert race-free.
type MongoStore struct {
	client      *mongo.Client
	checkpoints *mongo.Collection
	leases      *mongo.Collection
}

type mongoCheckpoint struct {
	SessionID string    `bson:"_id"`
	Seq       uint64    `bson:"seq"`
	Stage     string    `bson:"stage"`
	State     []byte    `bson:"state"`
	UpdatedAt time.Time `bson:"updated_at"`
}

type mongoLease struct {
	SessionID  string    `bson:"_id"`
	AcquiredAt time.Time `bson:"acquired_at"`
}

// NewMongoStore connects and pings the server.
func NewMongoStore(config StoreConfig) (*MongoStore, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(config.MongoURI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongo: %w", err)
	}
	dbName := config.MongoDatabase
	if dbName == "" {
		dbName = "stagecraft"
	}
	db := client.Database(dbName)
	return &MongoStore{
		client:      client,
		checkpoints: db.Collection("checkpoints"),
		leases:      db.Collection("leases"),
	}, nil
}

func (s *MongoStore) Save(ctx context.Context, cp *Checkpoint) error {
	if err := validateCheckpoint(cp); err != nil {
		return err
	}
	state, err := json.Marshal(cp.State)
	if err != nil {
		return err
	}
	doc := mongoCheckpoint{
		SessionID: cp.SessionID,
		Seq:       cp.Seq,
		Stage:     cp.Stage,
		State:     state,
		UpdatedAt: cp.UpdatedAt,
	}
	_, err = s.checkpoints.ReplaceOne(ctx, bson.M{"_id": cp.SessionID}, doc,
		options.Replace().SetUpsert(true))
	return err
}

func (s *MongoStore) Load(ctx context.Context, sessionID string) (*Checkpoint, error) {
	if sessionID == "" {
		return nil, ErrInvalidInput
	}
	var doc mongoCheckpoint
	err := s.checkpoints.FindOne(ctx, bson.M{"_id": sessionID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	cp := &Checkpoint{
		SessionID: doc.SessionID,
		Seq:       doc.Seq,
		Stage:     doc.Stage,
		UpdatedAt: doc.UpdatedAt,
	}
	if err := json.Unmarshal(doc.State, &cp.State); err != nil {
		return nil, err
	}
	return cp, nil
}

func (s *MongoStore) Delete(ctx context.Context, sessionID string) error {
	res, err := s.checkpoints.DeleteOne(ctx, bson.M{"_id": sessionID})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoStore) List(ctx context.Context) ([]string, error) {
	cur, err := s.checkpoints.Find(ctx, bson.M{},
		options.Find().SetProjection(bson.M{"_id": 1}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var ids []string
	for cur.Next(ctx) {
		var doc struct {
			SessionID string `bson:"_id"`
		}
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		ids = append(ids, doc.SessionID)
	}
	if err := cur.Err(); err != nil {
		return nil, err
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *MongoStore) Acquire(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return ErrInvalidInput
	}
	_, err := s.leases.InsertOne(ctx, mongoLease{SessionID: sessionID, AcquiredAt: time.Now()})
	if mongo.IsDuplicateKeyError(err) {
		return ErrLeaseHeld
	}
	return err
}

func (s *MongoStore) Release(ctx context.Context, sessionID string) error {
	_, err := s.leases.DeleteOne(ctx, bson.M{"_id": sessionID})
	return err
}

func (s *MongoStore) Close() error {
	return s.client.Disconnect(context.Background())
}

var _ Store = (*MongoStore)(nil)
