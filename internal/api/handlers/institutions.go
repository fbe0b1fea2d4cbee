package handlers

import (
	"context"
	"net/http"

	"github.com/dvloznov/openbank-sync/internal/api/middleware"
	"github.com/dvloznov/openbank-sync/internal/logger"
	"github.com/dvloznov/openbank-sync/internal/openbanking"
)

// InstitutionSource lists the banks the aggregator supports.
type InstitutionSource interface {
	GetInstitutions(ctx context.Context) (*openbanking.InstitutionsResponse, error)
}

// InstitutionsHandler handles GET /api/institutions.
type InstitutionsHandler struct {
	source InstitutionSource
}

// NewInstitutionsHandler creates a new institutions handler.
func NewInstitutionsHandler(source InstitutionSource) *InstitutionsHandler {
	return &InstitutionsHandler{source: source}
}

// ListInstitutions handles GET /api/institutions
func (h *InstitutionsHandler) ListInstitutions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	resp, err := h.source.GetInstitutions(ctx)
	if err != nil {
		log := logger.FromContext(ctx)
		log.Error().Err(err).Msg("Failed to fetch institutions")
		middleware.WriteError(w, http.StatusBadGateway, "Failed to fetch institutions")
		return
	}

	institutions := resp.Items
	if institutions == nil {
		institutions = []openbanking.Institution{}
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"institutions": institutions,
		"count":        len(institutions),
	})
}
