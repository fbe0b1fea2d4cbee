package domain

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

// ErrAccountNotFound is returned when an account does not exist for the user.
var ErrAccountNotFound = errors.New("account not found")

// Account is a bank account linked by a user through the aggregator.
type Account struct {
	ID            string          `json:"id"`
	UserID        string          `json:"userId"`
	AccountType   string          `json:"accountType"`
	AccountNumber string          `json:"accountNumber"`
	Balance       decimal.Decimal `json:"balance"`
	Currency      string          `json:"currency"`
	InstitutionID string          `json:"institutionId"`
}

// AccountRepository provides storage for linked accounts.
// Accounts are unique per (UserID, ID).
type AccountRepository interface {
	// UpsertAccounts inserts or replaces the accounts and returns the stored values.
	UpsertAccounts(ctx context.Context, accounts []Account) ([]Account, error)

	// FindForUser returns ErrAccountNotFound when the account does not belong to the user.
	FindForUser(ctx context.Context, userID, accountID string) (*Account, error)

	// ListForUser returns all accounts linked by the user.
	ListForUser(ctx context.Context, userID string) ([]Account, error)
}
