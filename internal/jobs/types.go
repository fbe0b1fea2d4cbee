package jobs

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrJobNotFound is returned when a job does not exist, or is not visible to the caller.
	ErrJobNotFound = errors.New("job not found")
	// ErrQueueClosed is returned when publishing to or starting a stopped queue.
	ErrQueueClosed = errors.New("queue is closed")
	// ErrQueueFull is returned when the queue buffer has no room for another task.
	ErrQueueFull = errors.New("queue is full")
)

// UnknownError is recorded when a job fails without a message.
const UnknownError = "Unknown error"

// JobStatus represents the current status of a sync job.
type JobStatus string

const (
	// JobStatusPending indicates the job was created and is waiting for a worker.
	JobStatusPending JobStatus = "pending"
	// JobStatusProcessing indicates a worker is fetching and writing transactions.
	JobStatusProcessing JobStatus = "processing"
	// JobStatusCompleted indicates every batch was written.
	JobStatusCompleted JobStatus = "completed"
	// JobStatusFailed indicates the job stopped on an error.
	JobStatusFailed JobStatus = "failed"
)

// IsTerminal reports whether no further transitions are possible.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// Valid reports whether s is one of the known statuses.
func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusPending, JobStatusProcessing, JobStatusCompleted, JobStatusFailed:
		return true
	}
	return false
}

// SyncJob is the observable state of one transaction sync run.
//
// SyncJob is a value: transitions return a modified copy and the caller
// saves the whole record. Terminal jobs are returned unchanged by every
// transition.
type SyncJob struct {
	// ID is the unique identifier for this job.
	ID string `json:"id"`

	// AccountID is the aggregator account being synced.
	AccountID string `json:"accountId"`

	// UserID owns the job and every transaction it writes.
	UserID string `json:"userId"`

	// Status is the current status of the job.
	Status JobStatus `json:"status"`

	// Progress counts transactions in committed batches.
	Progress int `json:"progress"`

	// Total is the number of transactions fetched, 0 until known.
	Total int `json:"total"`

	// Error is set only when Status is failed.
	Error string `json:"error,omitempty"`

	// StartedAt is when the job was created.
	StartedAt time.Time `json:"startedAt"`

	// CompletedAt is when the job reached a terminal status.
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// NewSyncJob returns a pending job with no progress.
func NewSyncJob(id, accountID, userID string, now time.Time) SyncJob {
	return SyncJob{
		ID:        id,
		AccountID: accountID,
		UserID:    userID,
		Status:    JobStatusPending,
		StartedAt: now,
	}
}

// MarkProcessing moves a pending job to processing.
func (j SyncJob) MarkProcessing() SyncJob {
	if j.Status.IsTerminal() {
		return j
	}
	j.Status = JobStatusProcessing
	return j
}

// SetTotal records the number of fetched transactions.
func (j SyncJob) SetTotal(total int) SyncJob {
	if j.Status.IsTerminal() || total < 0 {
		return j
	}
	j.Total = total
	if j.Progress > total {
		j.Progress = total
	}
	return j
}

// Advance moves progress forward to min(progress, Total). It never moves backwards.
func (j SyncJob) Advance(progress int) SyncJob {
	if j.Status.IsTerminal() {
		return j
	}
	if progress > j.Total {
		progress = j.Total
	}
	if progress > j.Progress {
		j.Progress = progress
	}
	return j
}

// Complete marks the job completed.
func (j SyncJob) Complete(now time.Time) SyncJob {
	if j.Status.IsTerminal() {
		return j
	}
	j.Status = JobStatusCompleted
	j.Error = ""
	j.CompletedAt = &now
	return j
}

// Fail marks the job failed with msg, or UnknownError when msg is empty.
func (j SyncJob) Fail(msg string, now time.Time) SyncJob {
	if j.Status.IsTerminal() {
		return j
	}
	if msg == "" {
		msg = UnknownError
	}
	j.Status = JobStatusFailed
	j.Error = msg
	j.CompletedAt = &now
	return j
}

// SyncTask is the unit of work handed to a worker.
type SyncTask struct {
	JobID        string `json:"jobId"`
	AccountID    string `json:"accountId"`
	UserID       string `json:"userId"`
	ConsentToken string `json:"-"`
}

// Publisher defines the interface for publishing sync tasks to a queue.
type Publisher interface {
	// PublishSync enqueues a task without waiting for it to run.
	PublishSync(ctx context.Context, task SyncTask) error

	// Close closes the publisher and releases resources.
	Close() error
}

// Consumer defines the interface for consuming tasks from a queue.
type Consumer interface {
	// Start begins consuming tasks from the queue.
	// The handler function is called for each task received.
	Start(ctx context.Context, handler JobHandler) error

	// Stop stops consuming tasks and waits for in-flight tasks to complete.
	Stop(ctx context.Context) error
}

// JobHandler processes one task. Outcomes are recorded on the job, not returned.
type JobHandler func(ctx context.Context, task SyncTask)

// JobStore defines the interface for storing and retrieving sync jobs.
type JobStore interface {
	// Create stores a new pending job and returns it.
	Create(ctx context.Context, accountID, userID string) (SyncJob, error)

	// Get retrieves a job by ID. Returns ErrJobNotFound when absent.
	Get(ctx context.Context, jobID string) (SyncJob, error)

	// GetForUser retrieves a job owned by userID. Jobs of other users are ErrJobNotFound.
	GetForUser(ctx context.Context, jobID, userID string) (SyncJob, error)

	// Save replaces the stored job with the given value.
	Save(ctx context.Context, job SyncJob) error

	// List retrieves jobs with optional filtering, newest first.
	List(ctx context.Context, filter JobFilter) ([]SyncJob, error)
}

// JobFilter defines filtering criteria for listing jobs.
type JobFilter struct {
	// UserID restricts results to one owner.
	UserID string

	// AccountID filters jobs by account.
	AccountID string

	// Status filters jobs by status.
	Status JobStatus

	// Limit limits the number of results.
	Limit int

	// Offset for pagination.
	Offset int
}

// Matches reports whether job satisfies the filter's field criteria.
func (f JobFilter) Matches(job SyncJob) bool {
	if f.UserID != "" && job.UserID != f.UserID {
		return false
	}
	if f.AccountID != "" && job.AccountID != f.AccountID {
		return false
	}
	if f.Status != "" && job.Status != f.Status {
		return false
	}
	return true
}
