// Package mongo stores sync jobs, transactions and accounts in MongoDB.
package mongo

import (
	"context"
	"fmt"

	"github.com/dvloznov/openbank-sync/internal/logger"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	// DefaultDatabase is used when no database name is configured.
	DefaultDatabase = "openbank"

	JobsCollection         = "sync_jobs"
	TransactionsCollection = "transactions"
	AccountsCollection     = "accounts"
)

// ---- Abstractions for Testability ----

// DataStore defines the collection operations the stores use.
type DataStore interface {
	BulkWrite(
		ctx context.Context,
		models []mongo.WriteModel,
		opts ...*options.BulkWriteOptions) (*mongo.BulkWriteResult, error)
	InsertOne(
		ctx context.Context,
		document interface{},
		opts ...*options.InsertOneOptions) (*mongo.InsertOneResult, error)
	ReplaceOne(
		ctx context.Context,
		filter interface{},
		replacement interface{},
		opts ...*options.ReplaceOptions) (*mongo.UpdateResult, error)
	FindOne(
		ctx context.Context,
		filter interface{},
		opts ...*options.FindOneOptions) *mongo.SingleResult
	Find(
		ctx context.Context,
		filter interface{},
		opts ...*options.FindOptions) (*mongo.Cursor, error)
	CountDocuments(
		ctx context.Context,
		filter interface{},
		opts ...*options.CountOptions) (int64, error)
	CreateIndexes(ctx context.Context, models []mongo.IndexModel) ([]string, error)
}

// CollectionProvider defines the interface for obtaining a collection.
type CollectionProvider interface {
	Collection(name string) DataStore
}

// MongoCollection adapts *mongo.Collection to DataStore.
type MongoCollection struct {
	*mongo.Collection
}

// BulkWrite performs a bulk write operation.
func (c *MongoCollection) BulkWrite(
	ctx context.Context,
	models []mongo.WriteModel,
	opts ...*options.BulkWriteOptions) (*mongo.BulkWriteResult, error) {
	result, err := c.Collection.BulkWrite(ctx, models, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to perform BulkWrite: %w", err)
	}

	return result, nil
}

// CreateIndexes creates the given indexes, skipping ones that already exist.
func (c *MongoCollection) CreateIndexes(ctx context.Context, models []mongo.IndexModel) ([]string, error) {
	names, err := c.Collection.Indexes().CreateMany(ctx, models)
	if err != nil {
		return nil, fmt.Errorf("failed to create indexes on %s: %w", c.Collection.Name(), err)
	}

	return names, nil
}

// MongoProvider adapts *mongo.Client to CollectionProvider.
type MongoProvider struct {
	client *mongo.Client
	dbName string
}

// NewMongoProvider creates a new MongoProvider for the named database.
func NewMongoProvider(client *mongo.Client, dbName string) *MongoProvider {
	if dbName == "" {
		dbName = DefaultDatabase
	}
	return &MongoProvider{client: client, dbName: dbName}
}

// Collection returns a DataStore for the given collection name.
func (p *MongoProvider) Collection(name string) DataStore {
	return &MongoCollection{p.client.Database(p.dbName).Collection(name)}
}

// Connect establishes a connection to MongoDB and verifies it with a ping.
func Connect(ctx context.Context, uri string) (*mongo.Client, error) {
	log := logger.FromContext(ctx)
	log.Debug().Msg("Attempting to connect to MongoDB")

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	log.Info().Msg("Successfully established connection to MongoDB")
	return client, nil
}
