package inmemory

import (
	"context"
	"testing"
	"time"

	"github.com/dvloznov/openbank-sync/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tx(id string, day int, amount string) domain.Transaction {
	return domain.Transaction{
		ID:        id,
		AccountID: "acc-1",
		UserID:    "user-1",
		Date:      time.Date(2024, 1, day, 0, 0, 0, 0, time.UTC),
		Amount:    decimal.RequireFromString(amount),
		Currency:  "GBP",
	}
}

func TestTransactionStore_BulkUpsertIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := NewTransactionStore()

	batch := []domain.Transaction{tx("a", 1, "1.00"), tx("b", 2, "2.00")}
	require.NoError(t, store.BulkUpsert(ctx, batch))
	require.NoError(t, store.BulkUpsert(ctx, batch))
	assert.Equal(t, 2, store.Len())

	updated := tx("a", 1, "1.50")
	require.NoError(t, store.BulkUpsert(ctx, []domain.Transaction{updated}))

	got, ok := store.Get("a")
	require.True(t, ok)
	assert.True(t, got.Amount.Equal(decimal.RequireFromString("1.50")), "latest write wins")
	assert.Equal(t, 2, store.Len())
}

func TestTransactionStore_BulkUpsertCancelled(t *testing.T) {
	store := NewTransactionStore()
	require.NoError(t, store.BulkUpsert(context.Background(), []domain.Transaction{tx("a", 1, "1")}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, store.BulkUpsert(ctx, []domain.Transaction{tx("b", 1, "1")}), context.Canceled)
	assert.Equal(t, 1, store.Batches())
	assert.Equal(t, 1, store.Len())
	_, ok := store.Get("b")
	assert.False(t, ok)
}

func TestTransactionStore_ListByAccount(t *testing.T) {
	ctx := context.Background()
	store := NewTransactionStore()
	other := tx("x", 9, "9")
	other.UserID = "user-2"
	require.NoError(t, store.BulkUpsert(ctx, []domain.Transaction{
		tx("a", 1, "1"), tx("b", 3, "3"), tx("c", 2, "2"), other,
	}))

	page, err := store.ListByAccount(ctx, domain.TransactionQuery{UserID: "user-1", AccountID: "acc-1", Page: 1, Limit: 2})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "b", page[0].ID)
	assert.Equal(t, "c", page[1].ID)

	page, err = store.ListByAccount(ctx, domain.TransactionQuery{UserID: "user-1", AccountID: "acc-1", Page: 2, Limit: 2})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "a", page[0].ID)

	page, err = store.ListByAccount(ctx, domain.TransactionQuery{UserID: "user-1", AccountID: "acc-1", Page: 5, Limit: 2})
	require.NoError(t, err)
	assert.Empty(t, page)

	n, err := store.CountByAccount(ctx, "user-1", "acc-1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}

func TestAccountStore(t *testing.T) {
	ctx := context.Background()
	store := NewAccountStore(domain.Account{ID: "acc-1", UserID: "user-1"})

	_, err := store.FindForUser(ctx, "user-2", "acc-1")
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)

	acc, err := store.FindForUser(ctx, "user-1", "acc-1")
	require.NoError(t, err)
	assert.Equal(t, "acc-1", acc.ID)

	_, err = store.UpsertAccounts(ctx, []domain.Account{
		{ID: "acc-0", UserID: "user-1", Currency: "EUR"},
		{ID: "acc-1", UserID: "user-1", Currency: "GBP"},
	})
	require.NoError(t, err)

	list, err := store.ListForUser(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "acc-0", list[0].ID)
	assert.Equal(t, "GBP", list[1].Currency)

	empty, err := store.ListForUser(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, empty)
}
