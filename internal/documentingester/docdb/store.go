package docdb

import (
	"context"
	"strconv"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/dataflow-project/dataflow/internal/documentingester/configuration"
	"github.com/dataflow-project/dataflow/internal/model"
)

// BreakerName is the circuit breaker resource guarding document store access.
const BreakerName = "documents-db"

// AggregateDocument is the stored shape of a record: either a top level
// document or an element of another document's nestedRecords array.
type AggregateDocument struct {
	ID            string              `bson:"_id"`
	Timestamp     int64               `bson:"timestamp"`
	RandomValue   int                 `bson:"randomValue"`
	HashValue     string              `bson:"hashValue"`
	NestedRecords []AggregateDocument `bson:"nestedRecords"`
}

// DocumentID derives the natural key a record is stored under.  Two
// deliveries of the same record map to the same id, which is what makes the
// merge idempotent.
func DocumentID(record *model.Record) string {
	return record.HashValue + ":" + strconv.FormatInt(record.Timestamp, 10)
}

func FromRecord(record *model.Record) AggregateDocument {
	return AggregateDocument{
		ID:            DocumentID(record),
		Timestamp:     record.Timestamp,
		RandomValue:   record.RandomValue,
		HashValue:     record.HashValue,
		NestedRecords: []AggregateDocument{},
	}
}

type Store interface {
	// Exists reports whether a document with the given id is already stored,
	// at top level or nested inside another document.
	Exists(ctx context.Context, id string) (bool, error)
	// MostRecent returns the top level document with the highest timestamp,
	// or nil if the collection is empty.
	MostRecent(ctx context.Context) (*AggregateDocument, error)
	// Insert stores doc as a new top level document.
	Insert(ctx context.Context, doc AggregateDocument) error
	// PushNested appends doc to the nestedRecords of the document with id
	// parentID.
	PushNested(ctx context.Context, parentID string, doc AggregateDocument) error
}

type MongoStore struct {
	collection *mongo.Collection
}

func Connect(ctx context.Context, config configuration.MongoConfig) (*mongo.Client, *MongoStore, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(config.URI))
	if err != nil {
		return nil, nil, errors.WithStack(err)
	}
	collection := client.Database(config.Database).Collection(config.Collection)
	return client, &MongoStore{collection: collection}, nil
}

func NewMongoStore(collection *mongo.Collection) *MongoStore {
	return &MongoStore{collection: collection}
}

func (s *MongoStore) Exists(ctx context.Context, id string) (bool, error) {
	filter := bson.M{"$or": bson.A{
		bson.M{"_id": id},
		bson.M{"nestedRecords._id": id},
	}}
	count, err := s.collection.CountDocuments(ctx, filter, options.Count().SetLimit(1))
	if err != nil {
		return false, errors.WithStack(err)
	}
	return count > 0, nil
}

func (s *MongoStore) MostRecent(ctx context.Context) (*AggregateDocument, error) {
	opts := options.FindOne().SetSort(bson.M{"timestamp": -1})
	var doc AggregateDocument
	err := s.collection.FindOne(ctx, bson.M{}, opts).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return &doc, nil
}

func (s *MongoStore) Insert(ctx context.Context, doc AggregateDocument) error {
	_, err := s.collection.InsertOne(ctx, doc)
	return errors.WithStack(err)
}

func (s *MongoStore) PushNested(ctx context.Context, parentID string, doc AggregateDocument) error {
	update := bson.M{"$push": bson.M{"nestedRecords": doc}}
	result, err := s.collection.UpdateByID(ctx, parentID, update)
	if err != nil {
		return errors.WithStack(err)
	}
	if result.MatchedCount == 0 {
		return errors.Errorf("nesting parent %s no longer exists", parentID)
	}
	return nil
}
