package mongo

import (
	"context"
	"testing"

	"github.com/dvloznov/openbank-sync/internal/domain"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func TestAccountRepository_UpsertAccounts(t *testing.T) {
	ds := &mockDataStore{
		bulkWriteFunc: func(ctx context.Context, models []mongo.WriteModel, opts ...*options.BulkWriteOptions) (*mongo.BulkWriteResult, error) {
			require.Len(t, models, 1)
			m := models[0].(*mongo.UpdateOneModel)
			assert.Equal(t, bson.M{"id": "acc-1", "userId": "user-1"}, m.Filter)
			doc := m.Update.(bson.M)["$set"].(accountDocument)
			assert.Equal(t, "1050.75", doc.Balance.String())
			return &mongo.BulkWriteResult{UpsertedCount: 1}, nil
		},
	}

	accounts := []domain.Account{{
		ID:       "acc-1",
		UserID:   "user-1",
		Balance:  decimal.RequireFromString("1050.75"),
		Currency: "GBP",
	}}

	got, err := NewAccountRepository(providerFor(ds)).UpsertAccounts(context.Background(), accounts)
	require.NoError(t, err)
	assert.Equal(t, accounts, got)
}

func TestAccountRepository_FindForUser(t *testing.T) {
	balance, err := primitive.ParseDecimal128("10.01")
	require.NoError(t, err)

	ds := &mockDataStore{
		findOneFunc: func(ctx context.Context, filter interface{}, opts ...*options.FindOneOptions) *mongo.SingleResult {
			assert.Equal(t, bson.M{"id": "acc-1", "userId": "user-1"}, filter)
			return mongo.NewSingleResultFromDocument(accountDocument{
				ID:      "acc-1",
				UserID:  "user-1",
				Balance: balance,
			}, nil, nil)
		},
	}

	acc, err := NewAccountRepository(providerFor(ds)).FindForUser(context.Background(), "user-1", "acc-1")
	require.NoError(t, err)
	assert.Equal(t, "acc-1", acc.ID)
	assert.Equal(t, "10.01", acc.Balance.StringFixed(2))
}

func TestAccountRepository_FindForUserNotFound(t *testing.T) {
	_, err := NewAccountRepository(providerFor(&mockDataStore{})).FindForUser(context.Background(), "user-1", "acc-1")
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)
}

func TestAccountRepository_ListForUser(t *testing.T) {
	ds := &mockDataStore{
		findFunc: func(ctx context.Context, filter interface{}, opts ...*options.FindOptions) (*mongo.Cursor, error) {
			assert.Equal(t, bson.M{"userId": "user-1"}, filter)
			return mongo.NewCursorFromDocuments([]interface{}{
				accountDocument{ID: "acc-1", UserID: "user-1", Balance: primitive.NewDecimal128(0, 0)},
				accountDocument{ID: "acc-2", UserID: "user-1", Balance: primitive.NewDecimal128(0, 0)},
			}, nil, nil)
		},
	}

	got, err := NewAccountRepository(providerFor(ds)).ListForUser(context.Background(), "user-1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "acc-2", got[1].ID)
}

func TestEnsureIndexes(t *testing.T) {
	seen := map[string]int{}
	provider := &mockCollectionProvider{
		collectionFunc: func(name string) DataStore {
			return &mockDataStore{
				createIndexesFunc: func(ctx context.Context, models []mongo.IndexModel) ([]string, error) {
					seen[name] = len(models)
					return []string{"ok"}, nil
				},
			}
		},
	}

	require.NoError(t, EnsureIndexes(context.Background(), provider, zerolog.Nop()))
	assert.Equal(t, 3, seen[TransactionsCollection])
	assert.Equal(t, 1, seen[AccountsCollection])
	assert.Equal(t, 1, seen[JobsCollection])
}
