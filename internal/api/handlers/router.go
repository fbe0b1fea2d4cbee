package handlers

import (
	"net/http"
	"time"

	"github.com/dvloznov/openbank-sync/internal/api/middleware"
	"github.com/rs/zerolog"
)

// Router groups the handlers served by the API.
type Router struct {
	Sync         *SyncHandler
	Accounts     *AccountsHandler
	Transactions *TransactionsHandler
	Institutions *InstitutionsHandler
}

// Handler returns the API with its middleware chain applied. Everything
// under /api requires an authenticated user; /health does not.
func (rt Router) Handler(log zerolog.Logger) http.Handler {
	api := http.NewServeMux()

	// Sync endpoints
	api.HandleFunc("POST /api/accounts/{accountId}/sync", rt.Sync.StartSync)
	api.HandleFunc("GET /api/sync", rt.Sync.ListSyncs)
	api.HandleFunc("GET /api/sync/{syncId}", rt.Sync.GetStatus)

	// Account endpoints
	api.HandleFunc("POST /api/accounts/import", rt.Accounts.ImportAccounts)
	api.HandleFunc("GET /api/accounts", rt.Accounts.ListAccounts)
	api.HandleFunc("GET /api/accounts/{accountId}/transactions", rt.Transactions.ListTransactions)

	api.HandleFunc("GET /api/institutions", rt.Institutions.ListInstitutions)

	mux := http.NewServeMux()
	mux.Handle("/api/", middleware.Auth(api))

	// Health check endpoint
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteJSON(w, http.StatusOK, map[string]string{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
		})
	})

	return middleware.Recovery(log)(
		middleware.RequestID(
			middleware.Logger(log)(
				middleware.CORS(mux),
			),
		),
	)
}
