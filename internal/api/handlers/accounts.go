package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/dvloznov/openbank-sync/internal/api/middleware"
	"github.com/dvloznov/openbank-sync/internal/domain"
	"github.com/dvloznov/openbank-sync/internal/logger"
	"github.com/dvloznov/openbank-sync/internal/openbanking"
	"github.com/dvloznov/openbank-sync/internal/txsync"
)

// AccountImporter links and lists a user's bank accounts.
type AccountImporter interface {
	Import(ctx context.Context, userID, consentToken string) ([]domain.Account, error)
	List(ctx context.Context, userID string) ([]domain.Account, error)
}

// AccountsHandler handles account endpoints.
type AccountsHandler struct {
	accounts AccountImporter
}

// NewAccountsHandler creates a new accounts handler.
func NewAccountsHandler(accounts AccountImporter) *AccountsHandler {
	return &AccountsHandler{accounts: accounts}
}

// ImportAccounts handles POST /api/accounts/import
func (h *AccountsHandler) ImportAccounts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	req, err := decodeConsent(r)
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	accounts, err := h.accounts.Import(ctx, middleware.UserIDFromContext(ctx), req.ConsentToken)
	switch {
	case err == nil:
	case errors.Is(err, txsync.ErrConsentRequired):
		middleware.WriteError(w, http.StatusBadRequest, "Consent token is required")
		return
	case errors.Is(err, openbanking.ErrNoAccountData):
		middleware.WriteError(w, http.StatusBadRequest, openbanking.ErrNoAccountData.Error())
		return
	case errors.Is(err, openbanking.ErrAPI):
		log := logger.FromContext(ctx)
		log.Warn().Err(err).Msg("Aggregator rejected account import")
		middleware.WriteError(w, http.StatusBadGateway, "Failed to sync accounts")
		return
	default:
		log := logger.FromContext(ctx)
		log.Error().Err(err).Msg("Failed to sync accounts")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to sync accounts")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"message":  "Accounts synced successfully",
		"accounts": accounts,
	})
}

// ListAccounts handles GET /api/accounts
func (h *AccountsHandler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	accounts, err := h.accounts.List(ctx, middleware.UserIDFromContext(ctx))
	if err != nil {
		log := logger.FromContext(ctx)
		log.Error().Err(err).Msg("Failed to list accounts")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to fetch accounts")
		return
	}
	if accounts == nil {
		accounts = []domain.Account{}
	}

	middleware.WriteJSON(w, http.StatusOK, accounts)
}
