package mongo

import (
	"context"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// mockDataStore is a DataStore whose behaviour is set per test.
type mockDataStore struct {
	bulkWriteFunc      func(ctx context.Context, models []mongo.WriteModel, opts ...*options.BulkWriteOptions) (*mongo.BulkWriteResult, error)
	insertOneFunc      func(ctx context.Context, document interface{}, opts ...*options.InsertOneOptions) (*mongo.InsertOneResult, error)
	replaceOneFunc     func(ctx context.Context, filter interface{}, replacement interface{}, opts ...*options.ReplaceOptions) (*mongo.UpdateResult, error)
	findOneFunc        func(ctx context.Context, filter interface{}, opts ...*options.FindOneOptions) *mongo.SingleResult
	findFunc           func(ctx context.Context, filter interface{}, opts ...*options.FindOptions) (*mongo.Cursor, error)
	countDocumentsFunc func(ctx context.Context, filter interface{}, opts ...*options.CountOptions) (int64, error)
	createIndexesFunc  func(ctx context.Context, models []mongo.IndexModel) ([]string, error)
}

func (m *mockDataStore) BulkWrite(ctx context.Context, models []mongo.WriteModel, opts ...*options.BulkWriteOptions) (*mongo.BulkWriteResult, error) {
	if m.bulkWriteFunc != nil {
		return m.bulkWriteFunc(ctx, models, opts...)
	}
	return &mongo.BulkWriteResult{}, nil
}

func (m *mockDataStore) InsertOne(ctx context.Context, document interface{}, opts ...*options.InsertOneOptions) (*mongo.InsertOneResult, error) {
	if m.insertOneFunc != nil {
		return m.insertOneFunc(ctx, document, opts...)
	}
	return &mongo.InsertOneResult{}, nil
}

func (m *mockDataStore) ReplaceOne(ctx context.Context, filter interface{}, replacement interface{}, opts ...*options.ReplaceOptions) (*mongo.UpdateResult, error) {
	if m.replaceOneFunc != nil {
		return m.replaceOneFunc(ctx, filter, replacement, opts...)
	}
	return &mongo.UpdateResult{MatchedCount: 1, ModifiedCount: 1}, nil
}

func (m *mockDataStore) FindOne(ctx context.Context, filter interface{}, opts ...*options.FindOneOptions) *mongo.SingleResult {
	if m.findOneFunc != nil {
		return m.findOneFunc(ctx, filter, opts...)
	}
	return mongo.NewSingleResultFromDocument(struct{}{}, mongo.ErrNoDocuments, nil)
}

func (m *mockDataStore) Find(ctx context.Context, filter interface{}, opts ...*options.FindOptions) (*mongo.Cursor, error) {
	if m.findFunc != nil {
		return m.findFunc(ctx, filter, opts...)
	}
	return mongo.NewCursorFromDocuments(nil, nil, nil)
}

func (m *mockDataStore) CountDocuments(ctx context.Context, filter interface{}, opts ...*options.CountOptions) (int64, error) {
	if m.countDocumentsFunc != nil {
		return m.countDocumentsFunc(ctx, filter, opts...)
	}
	return 0, nil
}

func (m *mockDataStore) CreateIndexes(ctx context.Context, models []mongo.IndexModel) ([]string, error) {
	if m.createIndexesFunc != nil {
		return m.createIndexesFunc(ctx, models)
	}
	return nil, nil
}

// mockCollectionProvider hands out one DataStore per collection name.
type mockCollectionProvider struct {
	collectionFunc func(name string) DataStore
}

func (m *mockCollectionProvider) Collection(name string) DataStore {
	if m.collectionFunc != nil {
		return m.collectionFunc(name)
	}
	return &mockDataStore{}
}

func providerFor(ds DataStore) *mockCollectionProvider {
	return &mockCollectionProvider{
		collectionFunc: func(string) DataStore { return ds },
	}
}
