package persistence

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/petrijr/flux/pkg/api"
)

// MongoStore is a Store backed by a MongoDB collection.
type MongoStore struct {
	coll *mongo.Collection
}

var (
	_ Store       = (*MongoStore)(nil)
	_ Initializer = (*MongoStore)(nil)
)

// NewMongoStore creates a Mongo-backed store.
// dbName defaults to "flux" if empty, collName defaults to "workflow_states".
func NewMongoStore(client *mongo.Client, dbName, collName string) *MongoStore {
	if dbName == "" {
		dbName = "flux"
	}
	if collName == "" {
		collName = "workflow_states"
	}

	return &MongoStore{
		coll: client.Database(dbName).Collection(collName),
	}
}

type mongoStateDoc struct {
	ID          string     `bson:"_id"`
	Name        string     `bson:"name"`
	Status      string     `bson:"status"`
	CurrentStep int        `bson:"current_step"`
	CreatedAt   time.Time  `bson:"created_at"`
	UpdatedAt   time.Time  `bson:"updated_at"`
	CompletedAt *time.Time `bson:"completed_at,omitempty"`
	Error       string     `bson:"error,omitempty"`
	Payload     []byte     `bson:"payload"`
}

// Init creates the indexes used by List.
func (s *MongoStore) Init(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{
			{Key: "name", Value: 1},
			{Key: "status", Value: 1},
			{Key: "created_at", Value: 1},
		},
	})
	return err
}

func (s *MongoStore) Save(ctx context.Context, state *api.WorkflowState) error {
	payload, err := EncodeState(state)
	if err != nil {
		return err
	}

	doc := mongoStateDoc{
		ID:          state.ID,
		Name:        state.Name,
		Status:      string(state.Status),
		CurrentStep: state.CurrentStep,
		CreatedAt:   state.CreatedAt,
		UpdatedAt:   state.UpdatedAt,
		CompletedAt: state.CompletedAt,
		Error:       state.Error,
		Payload:     payload,
	}

	_, err = s.coll.ReplaceOne(ctx, bson.M{"_id": state.ID}, doc, options.Replace().SetUpsert(true))
	return err
}

func (s *MongoStore) Load(ctx context.Context, id string) (*api.WorkflowState, error) {
	var doc mongoStateDoc
	err := s.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrStateNotFound
		}
		return nil, err
	}
	return DecodeState(doc.Payload)
}

func (s *MongoStore) List(ctx context.Context, filter api.ListFilter) ([]*api.WorkflowState, error) {
	query := bson.M{}
	if filter.Name != "" {
		query["name"] = filter.Name
	}
	if filter.Status != "" {
		query["status"] = string(filter.Status)
	}

	opts := options.Find().SetSort(bson.D{
		{Key: "created_at", Value: 1},
		{Key: "_id", Value: 1},
	})
	if filter.Offset > 0 {
		opts.SetSkip(int64(filter.Offset))
	}
	if filter.Limit > 0 {
		opts.SetLimit(int64(filter.Limit))
	}

	cur, err := s.coll.Find(ctx, query, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	states := []*api.WorkflowState{}
	for cur.Next(ctx) {
		var doc mongoStateDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		state, err := DecodeState(doc.Payload)
		if err != nil {
			return nil, err
		}
		states = append(states, state)
	}
	if err := cur.Err(); err != nil {
		return nil, err
	}
	return states, nil
}

func (s *MongoStore) Delete(ctx context.Context, id string) error {
	_, err := s.coll.DeleteOne(ctx, bson.M{"_id": id})
	return err
}
