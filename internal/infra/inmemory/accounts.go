package inmemory

import (
	"context"
	"sort"
	"sync"

	"github.com/dvloznov/openbank-sync/internal/domain"
)

type accountKey struct {
	userID    string
	accountID string
}

// AccountStore is an in-memory domain.AccountRepository.
type AccountStore struct {
	mu       sync.RWMutex
	accounts map[accountKey]domain.Account
}

// NewAccountStore creates a store seeded with the given accounts.
func NewAccountStore(seed ...domain.Account) *AccountStore {
	s := &AccountStore{accounts: make(map[accountKey]domain.Account)}
	for _, a := range seed {
		s.accounts[accountKey{a.UserID, a.ID}] = a
	}
	return s
}

// UpsertAccounts inserts or replaces each account keyed by (UserID, ID).
func (s *AccountStore) UpsertAccounts(ctx context.Context, accounts []domain.Account) ([]domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, a := range accounts {
		s.accounts[accountKey{a.UserID, a.ID}] = a
	}
	return append([]domain.Account{}, accounts...), nil
}

// FindForUser returns domain.ErrAccountNotFound when the user has no such account.
func (s *AccountStore) FindForUser(ctx context.Context, userID, accountID string) (*domain.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.accounts[accountKey{userID, accountID}]
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	return &a, nil
}

// ListForUser returns the user's accounts ordered by id.
func (s *AccountStore) ListForUser(ctx context.Context, userID string) ([]domain.Account, error) {
	s.mu.RLock()
	result := []domain.Account{}
	for k, a := range s.accounts {
		if k.userID == userID {
			result = append(result, a)
		}
	}
	s.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

var _ domain.AccountRepository = (*AccountStore)(nil)
