package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Transaction is one bank transaction imported from the open banking aggregator.
// ID is assigned by the aggregator and is the deduplication key in every store.
// AccountID and UserID always come from the sync job that imported the row,
// never from the aggregator payload.
type Transaction struct {
	ID              string          `json:"id"`
	AccountID       string          `json:"accountId"`
	UserID          string          `json:"userId"`
	Date            time.Time       `json:"date"`
	BookingDateTime *time.Time      `json:"bookingDateTime,omitempty"`
	Description     string          `json:"description"`
	Amount          decimal.Decimal `json:"amount"` // exact; serialised as a string
	Currency        string          `json:"currency"`
	Status          string          `json:"status"`
	Reference       string          `json:"reference,omitempty"`
	Category        string          `json:"category,omitempty"`
}

// TransactionQuery selects one page of a user's transactions for an account.
// Page is 1-based.
type TransactionQuery struct {
	UserID    string
	AccountID string
	Page      int
	Limit     int
}

// Offset returns the number of rows to skip for the query's page.
func (q TransactionQuery) Offset() int {
	if q.Page < 1 || q.Limit < 1 {
		return 0
	}
	return (q.Page - 1) * q.Limit
}

// TransactionRepository provides storage for imported transactions.
type TransactionRepository interface {
	// BulkUpsert writes the batch keyed by transaction ID. Existing rows
	// with the same ID are overwritten; the batch is one storage call.
	BulkUpsert(ctx context.Context, txs []Transaction) error

	// ListByAccount returns a page of transactions, newest first.
	ListByAccount(ctx context.Context, q TransactionQuery) ([]Transaction, error)

	// CountByAccount returns the number of stored transactions for the account.
	CountByAccount(ctx context.Context, userID, accountID string) (int64, error)
}

// DedupeByID collapses repeated IDs within a batch, keeping the last
// occurrence's values at the position of the first occurrence.
func DedupeByID(txs []Transaction) []Transaction {
	if len(txs) < 2 {
		return txs
	}

	index := make(map[string]int, len(txs))
	out := make([]Transaction, 0, len(txs))
	for _, tx := range txs {
		if i, seen := index[tx.ID]; seen {
			out[i] = tx
			continue
		}
		index[tx.ID] = len(out)
		out = append(out, tx)
	}
	return out
}
