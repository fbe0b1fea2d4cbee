package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/dvloznov/openbank-sync/internal/api/middleware"
	"github.com/dvloznov/openbank-sync/internal/domain"
	"github.com/dvloznov/openbank-sync/internal/logger"
	"github.com/dvloznov/openbank-sync/internal/txsync"
)

// TransactionPager pages through stored transactions.
type TransactionPager interface {
	List(ctx context.Context, userID, accountID string, page, limit int) (*txsync.TransactionPage, error)
}

// TransactionsHandler handles transaction-related endpoints.
type TransactionsHandler struct {
	pager TransactionPager
}

// NewTransactionsHandler creates a new transactions handler.
func NewTransactionsHandler(pager TransactionPager) *TransactionsHandler {
	return &TransactionsHandler{pager: pager}
}

// ListTransactions handles GET /api/accounts/{accountId}/transactions
func (h *TransactionsHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	accountID := r.PathValue("accountId")

	// Unparseable values fall back to the defaults.
	query := r.URL.Query()
	page, _ := strconv.Atoi(query.Get("page"))
	limit, _ := strconv.Atoi(query.Get("limit"))

	result, err := h.pager.List(ctx, middleware.UserIDFromContext(ctx), accountID, page, limit)
	if err != nil {
		if errors.Is(err, domain.ErrAccountNotFound) {
			middleware.WriteError(w, http.StatusNotFound, "Account not found")
			return
		}
		log := logger.FromContext(ctx)
		log.Error().Err(err).Str("account_id", accountID).Msg("Failed to query transactions")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to fetch transactions")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, result)
}
