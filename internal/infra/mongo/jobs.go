package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dvloznov/openbank-sync/internal/jobs"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type jobDocument struct {
	ID          string     `bson:"_id"`
	AccountID   string     `bson:"accountId"`
	UserID      string     `bson:"userId"`
	Status      string     `bson:"status"`
	Progress    int        `bson:"progress"`
	Total       int        `bson:"total"`
	Error       string     `bson:"error,omitempty"`
	StartedAt   time.Time  `bson:"startedAt"`
	CompletedAt *time.Time `bson:"completedAt,omitempty"`
}

func toJobDocument(j jobs.SyncJob) jobDocument {
	return jobDocument{
		ID:          j.ID,
		AccountID:   j.AccountID,
		UserID:      j.UserID,
		Status:      string(j.Status),
		Progress:    j.Progress,
		Total:       j.Total,
		Error:       j.Error,
		StartedAt:   j.StartedAt,
		CompletedAt: j.CompletedAt,
	}
}

func (d jobDocument) toJob() jobs.SyncJob {
	return jobs.SyncJob{
		ID:          d.ID,
		AccountID:   d.AccountID,
		UserID:      d.UserID,
		Status:      jobs.JobStatus(d.Status),
		Progress:    d.Progress,
		Total:       d.Total,
		Error:       d.Error,
		StartedAt:   d.StartedAt,
		CompletedAt: d.CompletedAt,
	}
}

// JobStore implements jobs.JobStore. Each Save replaces the whole document.
type JobStore struct {
	provider CollectionProvider
	now      func() time.Time
}

// NewJobStore creates a new JobStore.
func NewJobStore(provider CollectionProvider) *JobStore {
	return &JobStore{provider: provider, now: time.Now}
}

func (s *JobStore) collection() DataStore {
	return s.provider.Collection(JobsCollection)
}

// Create inserts a pending job.
func (s *JobStore) Create(ctx context.Context, accountID, userID string) (jobs.SyncJob, error) {
	// Mongo keeps millisecond precision; truncate so the returned value matches what is stored.
	job := jobs.NewSyncJob(uuid.New().String(), accountID, userID, s.now().UTC().Truncate(time.Millisecond))

	if _, err := s.collection().InsertOne(ctx, toJobDocument(job)); err != nil {
		return jobs.SyncJob{}, fmt.Errorf("Create: inserting job: %w", err)
	}
	return job, nil
}

// Get returns jobs.ErrJobNotFound when the job does not exist.
func (s *JobStore) Get(ctx context.Context, jobID string) (jobs.SyncJob, error) {
	return s.findOne(ctx, bson.M{"_id": jobID})
}

// GetForUser returns jobs.ErrJobNotFound for jobs owned by another user.
func (s *JobStore) GetForUser(ctx context.Context, jobID, userID string) (jobs.SyncJob, error) {
	return s.findOne(ctx, bson.M{"_id": jobID, "userId": userID})
}

func (s *JobStore) findOne(ctx context.Context, filter bson.M) (jobs.SyncJob, error) {
	var doc jobDocument
	err := s.collection().FindOne(ctx, filter).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return jobs.SyncJob{}, jobs.ErrJobNotFound
	}
	if err != nil {
		return jobs.SyncJob{}, fmt.Errorf("Get: finding job: %w", err)
	}
	return doc.toJob(), nil
}

// Save replaces the stored job.
func (s *JobStore) Save(ctx context.Context, job jobs.SyncJob) error {
	if job.ID == "" {
		return fmt.Errorf("Save: job ID is required")
	}

	res, err := s.collection().ReplaceOne(ctx, bson.M{"_id": job.ID}, toJobDocument(job))
	if err != nil {
		return fmt.Errorf("Save: replacing job %s: %w", job.ID, err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("Save: job %s: %w", job.ID, jobs.ErrJobNotFound)
	}
	return nil
}

// List returns jobs matching the filter, newest first.
func (s *JobStore) List(ctx context.Context, filter jobs.JobFilter) ([]jobs.SyncJob, error) {
	query := bson.M{}
	if filter.UserID != "" {
		query["userId"] = filter.UserID
	}
	if filter.AccountID != "" {
		query["accountId"] = filter.AccountID
	}
	if filter.Status != "" {
		query["status"] = string(filter.Status)
	}

	opts := options.Find().SetSort(bson.D{{Key: "startedAt", Value: -1}, {Key: "_id", Value: 1}})
	if filter.Offset > 0 {
		opts.SetSkip(int64(filter.Offset))
	}
	if filter.Limit > 0 {
		opts.SetLimit(int64(filter.Limit))
	}

	cur, err := s.collection().Find(ctx, query, opts)
	if err != nil {
		return nil, fmt.Errorf("List: finding jobs: %w", err)
	}

	var docs []jobDocument
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("List: decoding jobs: %w", err)
	}

	result := make([]jobs.SyncJob, 0, len(docs))
	for _, d := range docs {
		result = append(result, d.toJob())
	}
	return result, nil
}

var _ jobs.JobStore = (*JobStore)(nil)
