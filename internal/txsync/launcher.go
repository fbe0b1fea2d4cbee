package txsync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dvloznov/openbank-sync/internal/domain"
	"github.com/dvloznov/openbank-sync/internal/jobs"
	"github.com/dvloznov/openbank-sync/internal/logger"
)

// ErrConsentRequired is returned when a sync is requested without a consent token.
var ErrConsentRequired = errors.New("consent token is required")

// StartedMessage accompanies every accepted sync request.
const StartedMessage = "Transaction sync started"

// StatusURL returns the path where a job's status can be polled.
func StatusURL(jobID string) string {
	return "/api/sync/" + jobID
}

// LaunchResult is returned to the caller as soon as the job is queued.
type LaunchResult struct {
	JobID     string `json:"syncId"`
	StatusURL string `json:"statusUrl"`
	Message   string `json:"message"`
}

// AccountFinder checks that an account belongs to a user.
type AccountFinder interface {
	FindForUser(ctx context.Context, userID, accountID string) (*domain.Account, error)
}

// Launcher creates sync jobs and hands them to workers without waiting.
type Launcher struct {
	accounts  AccountFinder
	store     jobs.JobStore
	publisher jobs.Publisher
	now       func() time.Time
}

// NewLauncher creates a launcher. A nil accounts skips the ownership check.
func NewLauncher(accounts AccountFinder, store jobs.JobStore, publisher jobs.Publisher) *Launcher {
	return &Launcher{
		accounts:  accounts,
		store:     store,
		publisher: publisher,
		now:       time.Now,
	}
}

// Start verifies ownership, records a pending job and publishes it.
// The job is stored before it is published, so a poller never sees a
// launched job as missing.
func (l *Launcher) Start(ctx context.Context, accountID, userID, consentToken string) (*LaunchResult, error) {
	if consentToken == "" {
		return nil, ErrConsentRequired
	}

	if l.accounts != nil {
		if _, err := l.accounts.FindForUser(ctx, userID, accountID); err != nil {
			return nil, fmt.Errorf("Start: %w", err)
		}
	}

	job, err := l.store.Create(ctx, accountID, userID)
	if err != nil {
		return nil, fmt.Errorf("Start: creating job: %w", err)
	}

	log := logger.ForSyncJob(logger.FromContext(ctx), job.ID, accountID, userID)

	task := jobs.SyncTask{
		JobID:        job.ID,
		AccountID:    accountID,
		UserID:       userID,
		ConsentToken: consentToken,
	}
	if err := l.publisher.PublishSync(ctx, task); err != nil {
		failed := job.Fail(err.Error(), l.now().UTC())
		if saveErr := l.store.Save(context.WithoutCancel(ctx), failed); saveErr != nil {
			log.Error().Err(saveErr).Msg("Failed to mark unpublished sync job as failed")
		}
		return nil, fmt.Errorf("Start: publishing job %s: %w", job.ID, err)
	}

	log.Info().Msg("Sync job queued")

	return &LaunchResult{
		JobID:     job.ID,
		StatusURL: StatusURL(job.ID),
		Message:   StartedMessage,
	}, nil
}
