// Package inmemory provides map-backed transaction and account stores
// for tests and single-process runs.
package inmemory

import (
	"context"
	"sort"
	"sync"

	"github.com/dvloznov/openbank-sync/internal/domain"
)

// TransactionStore is an in-memory domain.TransactionRepository.
type TransactionStore struct {
	mu    sync.RWMutex
	byID  map[string]domain.Transaction
	calls int
}

// NewTransactionStore creates an empty store.
func NewTransactionStore() *TransactionStore {
	return &TransactionStore{byID: make(map[string]domain.Transaction)}
}

// BulkUpsert stores every transaction keyed by id. The batch is applied under one lock.
func (s *TransactionStore) BulkUpsert(ctx context.Context, txs []domain.Transaction) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls++

	for _, tx := range txs {
		s.byID[tx.ID] = tx
	}
	return nil
}

// ListByAccount returns a page of the account's transactions, newest first.
func (s *TransactionStore) ListByAccount(ctx context.Context, q domain.TransactionQuery) ([]domain.Transaction, error) {
	s.mu.RLock()
	var matched []domain.Transaction
	for _, tx := range s.byID {
		if tx.UserID == q.UserID && tx.AccountID == q.AccountID {
			matched = append(matched, tx)
		}
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].Date.Equal(matched[j].Date) {
			return matched[i].ID < matched[j].ID
		}
		return matched[i].Date.After(matched[j].Date)
	})

	if q.Limit <= 0 {
		return matched, nil
	}
	start := q.Offset()
	if start >= len(matched) {
		return []domain.Transaction{}, nil
	}
	end := start + q.Limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[start:end], nil
}

// CountByAccount returns the number of stored transactions for the account.
func (s *TransactionStore) CountByAccount(ctx context.Context, userID, accountID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	for _, tx := range s.byID {
		if tx.UserID == userID && tx.AccountID == accountID {
			n++
		}
	}
	return n, nil
}

// Get returns a stored transaction by id.
func (s *TransactionStore) Get(id string) (domain.Transaction, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tx, ok := s.byID[id]
	return tx, ok
}

// Len returns the number of stored transactions.
func (s *TransactionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}

// Batches returns how many BulkUpsert calls succeeded.
func (s *TransactionStore) Batches() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.calls
}

var _ domain.TransactionRepository = (*TransactionStore)(nil)
