package inmemory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dvloznov/openbank-sync/internal/jobs"
	"github.com/google/uuid"
)

// Store is an in-memory implementation of JobStore.
// It stores jobs in memory and is safe for concurrent use.
// Data is lost on service restart - for persistence, use the Mongo store.
type Store struct {
	mu   sync.RWMutex
	jobs map[string]jobs.SyncJob
	now  func() time.Time
}

// NewStore creates a new in-memory job store.
func NewStore() *Store {
	return &Store{
		jobs: make(map[string]jobs.SyncJob),
		now:  time.Now,
	}
}

// Create implements the JobStore interface.
func (s *Store) Create(ctx context.Context, accountID, userID string) (jobs.SyncJob, error) {
	job := jobs.NewSyncJob(uuid.New().String(), accountID, userID, s.now().UTC())

	s.mu.Lock()
	defer s.mu.Unlock()

	s.jobs[job.ID] = job
	return job, nil
}

// Get implements the JobStore interface.
func (s *Store) Get(ctx context.Context, jobID string) (jobs.SyncJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, exists := s.jobs[jobID]
	if !exists {
		return jobs.SyncJob{}, fmt.Errorf("get job %s: %w", jobID, jobs.ErrJobNotFound)
	}
	return job, nil
}

// GetForUser implements the JobStore interface.
func (s *Store) GetForUser(ctx context.Context, jobID, userID string) (jobs.SyncJob, error) {
	job, err := s.Get(ctx, jobID)
	if err != nil {
		return jobs.SyncJob{}, err
	}
	if job.UserID != userID {
		return jobs.SyncJob{}, fmt.Errorf("get job %s: %w", jobID, jobs.ErrJobNotFound)
	}
	return job, nil
}

// Save implements the JobStore interface.
// The stored record is replaced as a whole.
func (s *Store) Save(ctx context.Context, job jobs.SyncJob) error {
	if job.ID == "" {
		return fmt.Errorf("job ID is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[job.ID]; !exists {
		return fmt.Errorf("save job %s: %w", job.ID, jobs.ErrJobNotFound)
	}
	s.jobs[job.ID] = job
	return nil
}

// List implements the JobStore interface.
func (s *Store) List(ctx context.Context, filter jobs.JobFilter) ([]jobs.SyncJob, error) {
	s.mu.RLock()
	result := make([]jobs.SyncJob, 0, len(s.jobs))
	for _, job := range s.jobs {
		if filter.Matches(job) {
			result = append(result, job)
		}
	}
	s.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool {
		if result[i].StartedAt.Equal(result[j].StartedAt) {
			return result[i].ID < result[j].ID
		}
		return result[i].StartedAt.After(result[j].StartedAt)
	})

	if filter.Offset > 0 {
		if filter.Offset >= len(result) {
			return []jobs.SyncJob{}, nil
		}
		result = result[filter.Offset:]
	}

	if filter.Limit > 0 && filter.Limit < len(result) {
		result = result[:filter.Limit]
	}

	return result, nil
}

// Ensure Store implements JobStore interface.
var _ jobs.JobStore = (*Store)(nil)
