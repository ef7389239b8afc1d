package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.mongodb.org/mongo-driver/x/mongo/driver/connstring"

	"contact-service/internal/model"
)

const (
	defaultMongoDatabase = "contact"
	mongoCollection      = "messages"
)

// MongoStorage keeps contact messages in the "messages" collection, one
// document per submission with the submission time under "date".
type MongoStorage struct {
	client *mongo.Client
	coll   *mongo.Collection
	now    func() time.Time
}

func NewMongoStorage(ctx context.Context, uri string) (*MongoStorage, error) {
	cs, err := connstring.ParseAndValidate(uri)
	if err != nil {
		return nil, fmt.Errorf("invalid mongodb uri: %w", err)
	}
	database := cs.Database
	if database == "" {
		database = defaultMongoDatabase
	}

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to create mongodb client: %w", err)
	}

	return &MongoStorage{
		client: client,
		coll:   client.Database(database).Collection(mongoCollection),
		now:    time.Now,
	}, nil
}

func (s *MongoStorage) Save(ctx context.Context, m *model.ContactMessage) error {
	rec := stamp(m, s.now)
	if _, err := s.coll.InsertOne(ctx, rec); err != nil {
		return fmt.Errorf("mongodb insert: %w", classifyMongo(err))
	}
	*m = rec
	return nil
}

// Migrate adds an ascending index on the submission time.
func (s *MongoStorage) Migrate(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "date", Value: 1}},
	})
	if err != nil {
		return fmt.Errorf("failed to create index: %w", classifyMongo(err))
	}
	return nil
}

func (s *MongoStorage) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx, readpref.Primary()); err != nil {
		return fmt.Errorf("failed to connect to mongodb: %w", classifyMongo(err))
	}
	return nil
}

func (s *MongoStorage) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

func classifyMongo(err error) error {
	if mongo.IsNetworkError(err) || mongo.IsTimeout(err) || errors.Is(err, mongo.ErrClientDisconnected) {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return classify(err)
}
