package txsync

import (
	"context"

	"github.com/dvloznov/openbank-sync/internal/jobs"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// StatusService answers job status queries. Every read is scoped to the
// owning user; other users' jobs are reported as jobs.ErrJobNotFound.
type StatusService struct {
	store jobs.JobStore
}

// NewStatusService creates a StatusService.
func NewStatusService(store jobs.JobStore) *StatusService {
	return &StatusService{store: store}
}

// Get returns the latest committed snapshot of a job.
func (s *StatusService) Get(ctx context.Context, jobID, userID string) (jobs.SyncJob, error) {
	return s.store.GetForUser(ctx, jobID, userID)
}

// List returns the user's jobs, newest first. The filter's UserID is overridden.
func (s *StatusService) List(ctx context.Context, userID string, filter jobs.JobFilter) ([]jobs.SyncJob, error) {
	filter.UserID = userID
	if filter.Limit <= 0 {
		filter.Limit = defaultListLimit
	}
	if filter.Limit > maxListLimit {
		filter.Limit = maxListLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	return s.store.List(ctx, filter)
}
