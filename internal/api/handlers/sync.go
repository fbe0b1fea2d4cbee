package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/dvloznov/openbank-sync/internal/api/middleware"
	"github.com/dvloznov/openbank-sync/internal/domain"
	"github.com/dvloznov/openbank-sync/internal/jobs"
	"github.com/dvloznov/openbank-sync/internal/logger"
	"github.com/dvloznov/openbank-sync/internal/txsync"
)

// SyncLauncher starts background transaction syncs.
type SyncLauncher interface {
	Start(ctx context.Context, accountID, userID, consentToken string) (*txsync.LaunchResult, error)
}

// SyncStatusReader reads a user's sync jobs.
type SyncStatusReader interface {
	Get(ctx context.Context, jobID, userID string) (jobs.SyncJob, error)
	List(ctx context.Context, userID string, filter jobs.JobFilter) ([]jobs.SyncJob, error)
}

// SyncHandler handles sync endpoints.
type SyncHandler struct {
	launcher SyncLauncher
	status   SyncStatusReader
}

// NewSyncHandler creates a new sync handler.
func NewSyncHandler(launcher SyncLauncher, status SyncStatusReader) *SyncHandler {
	return &SyncHandler{launcher: launcher, status: status}
}

type consentRequest struct {
	ConsentToken string `json:"consentToken"`
}

// decodeConsent reads the request body. An empty body yields an empty token.
func decodeConsent(r *http.Request) (consentRequest, error) {
	var req consentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		return req, err
	}
	return req, nil
}

// StartSync handles POST /api/accounts/{accountId}/sync
func (h *SyncHandler) StartSync(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)
	userID := middleware.UserIDFromContext(ctx)
	accountID := r.PathValue("accountId")

	req, err := decodeConsent(r)
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	res, err := h.launcher.Start(ctx, accountID, userID, req.ConsentToken)
	switch {
	case err == nil:
	case errors.Is(err, txsync.ErrConsentRequired):
		middleware.WriteError(w, http.StatusBadRequest, "Consent token is required")
		return
	case errors.Is(err, domain.ErrAccountNotFound):
		middleware.WriteError(w, http.StatusNotFound, "Account not found")
		return
	case errors.Is(err, jobs.ErrQueueFull), errors.Is(err, jobs.ErrQueueClosed):
		log.Warn().Err(err).Str("account_id", accountID).Msg("Sync queue unavailable")
		middleware.WriteError(w, http.StatusServiceUnavailable, "Failed to start transaction sync")
		return
	default:
		log.Error().Err(err).Str("account_id", accountID).Msg("Failed to start transaction sync")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to start transaction sync")
		return
	}

	middleware.WriteJSON(w, http.StatusAccepted, res)
}

// GetStatus handles GET /api/sync/{syncId}
func (h *SyncHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	syncID := r.PathValue("syncId")

	job, err := h.status.Get(ctx, syncID, middleware.UserIDFromContext(ctx))
	if err != nil {
		if errors.Is(err, jobs.ErrJobNotFound) {
			middleware.WriteError(w, http.StatusNotFound, "Sync status not found")
			return
		}
		log := logger.FromContext(ctx)
		log.Error().Err(err).Str("sync_id", syncID).Msg("Failed to get sync status")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to fetch sync status")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, job)
}

// ListSyncs handles GET /api/sync
func (h *SyncHandler) ListSyncs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	query := r.URL.Query()
	filter := jobs.JobFilter{
		AccountID: query.Get("accountId"),
		Status:    jobs.JobStatus(query.Get("status")),
	}
	if filter.Status != "" && !filter.Status.Valid() {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid status")
		return
	}

	if limitStr := query.Get("limit"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil {
			filter.Limit = limit
		}
	}

	if offsetStr := query.Get("offset"); offsetStr != "" {
		if offset, err := strconv.Atoi(offsetStr); err == nil {
			filter.Offset = offset
		}
	}

	list, err := h.status.List(ctx, middleware.UserIDFromContext(ctx), filter)
	if err != nil {
		log := logger.FromContext(ctx)
		log.Error().Err(err).Msg("Failed to list sync jobs")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list sync jobs")
		return
	}
	if list == nil {
		list = []jobs.SyncJob{}
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":  list,
		"count": len(list),
	})
}
