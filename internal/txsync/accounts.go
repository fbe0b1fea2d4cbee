package txsync

import (
	"context"
	"fmt"

	"github.com/dvloznov/openbank-sync/internal/domain"
	"github.com/dvloznov/openbank-sync/internal/openbanking"
)

// AccountSource lists the accounts a consent token grants access to.
type AccountSource interface {
	GetAccounts(ctx context.Context, consentToken string) (*openbanking.AccountsResponse, error)
}

// AccountService links aggregator accounts to users.
type AccountService struct {
	source AccountSource
	repo   domain.AccountRepository
}

// NewAccountService creates an AccountService.
func NewAccountService(source AccountSource, repo domain.AccountRepository) *AccountService {
	return &AccountService{source: source, repo: repo}
}

// Import fetches the consented accounts and stores them for the user.
// A payload without a data field is openbanking.ErrNoAccountData.
func (s *AccountService) Import(ctx context.Context, userID, consentToken string) ([]domain.Account, error) {
	if consentToken == "" {
		return nil, ErrConsentRequired
	}

	resp, err := s.source.GetAccounts(ctx, consentToken)
	if err != nil {
		return nil, fmt.Errorf("Import: fetching accounts: %w", err)
	}
	if resp == nil || resp.Items == nil {
		return nil, openbanking.ErrNoAccountData
	}

	accounts := make([]domain.Account, 0, len(resp.Items))
	for _, a := range resp.Items {
		accounts = append(accounts, a.ToDomain(userID))
	}

	stored, err := s.repo.UpsertAccounts(ctx, accounts)
	if err != nil {
		return nil, fmt.Errorf("Import: storing accounts: %w", err)
	}
	return stored, nil
}

// List returns the user's linked accounts.
func (s *AccountService) List(ctx context.Context, userID string) ([]domain.Account, error) {
	return s.repo.ListForUser(ctx, userID)
}
