package txsync

import (
	"context"
	"fmt"

	"github.com/dvloznov/openbank-sync/internal/domain"
)

const (
	// DefaultPageLimit is used when a listing asks for no limit.
	DefaultPageLimit = 10
	maxPageLimit     = 100
)

// Pagination describes one page of a listing.
type Pagination struct {
	Total int64 `json:"total"`
	Page  int   `json:"page"`
	Limit int   `json:"limit"`
	Pages int64 `json:"pages"`
}

// TransactionPage is a page of stored transactions.
type TransactionPage struct {
	Data       []domain.Transaction `json:"data"`
	Pagination Pagination           `json:"pagination"`
}

// TransactionLister pages through a user's stored transactions.
type TransactionLister struct {
	accounts AccountFinder
	txs      domain.TransactionRepository
}

// NewTransactionLister creates a TransactionLister.
func NewTransactionLister(accounts AccountFinder, txs domain.TransactionRepository) *TransactionLister {
	return &TransactionLister{accounts: accounts, txs: txs}
}

// List returns the requested page, newest first. Page defaults to 1 and
// limit to DefaultPageLimit. Accounts the user does not own are
// domain.ErrAccountNotFound.
func (l *TransactionLister) List(ctx context.Context, userID, accountID string, page, limit int) (*TransactionPage, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = DefaultPageLimit
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}

	if _, err := l.accounts.FindForUser(ctx, userID, accountID); err != nil {
		return nil, fmt.Errorf("List: %w", err)
	}

	q := domain.TransactionQuery{UserID: userID, AccountID: accountID, Page: page, Limit: limit}
	data, err := l.txs.ListByAccount(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("List: %w", err)
	}
	total, err := l.txs.CountByAccount(ctx, userID, accountID)
	if err != nil {
		return nil, fmt.Errorf("List: %w", err)
	}

	if data == nil {
		data = []domain.Transaction{}
	}
	return &TransactionPage{
		Data: data,
		Pagination: Pagination{
			Total: total,
			Page:  page,
			Limit: limit,
			Pages: (total + int64(limit) - 1) / int64(limit),
		},
	}, nil
}
