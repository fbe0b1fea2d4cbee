// Package txsync imports an account's transactions from the open banking
// aggregator in the background and records the progress on a sync job.
package txsync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dvloznov/openbank-sync/internal/domain"
	"github.com/dvloznov/openbank-sync/internal/jobs"
	"github.com/dvloznov/openbank-sync/internal/logger"
	"github.com/dvloznov/openbank-sync/internal/openbanking"
	"github.com/rs/zerolog"
)

// DefaultBatchSize is the number of transactions written per bulk upsert.
const DefaultBatchSize = 100

// TransactionSource fetches an account's transactions with a consent token.
type TransactionSource interface {
	FetchTransactions(ctx context.Context, accountID, consentToken string) (*openbanking.TransactionsResponse, error)
}

// TransactionWriter stores a batch of transactions idempotently.
type TransactionWriter interface {
	BulkUpsert(ctx context.Context, txs []domain.Transaction) error
}

// Orchestrator drives one sync job from pending to completed or failed.
type Orchestrator struct {
	source    TransactionSource
	writer    TransactionWriter
	store     jobs.JobStore
	batchSize int
	now       func() time.Time
	log       zerolog.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithBatchSize sets the batch size. Non-positive values keep DefaultBatchSize.
func WithBatchSize(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.batchSize = n
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		o.now = now
	}
}

// WithLogger sets the logger used when the context carries none.
func WithLogger(log zerolog.Logger) Option {
	return func(o *Orchestrator) {
		o.log = log
	}
}

// NewOrchestrator creates an orchestrator.
func NewOrchestrator(source TransactionSource, writer TransactionWriter, store jobs.JobStore, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		source:    source,
		writer:    writer,
		store:     store,
		batchSize: DefaultBatchSize,
		now:       time.Now,
		log:       zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run executes the sync described by task. It never returns an error:
// every outcome is recorded on the job. Run matches jobs.JobHandler.
func (o *Orchestrator) Run(ctx context.Context, task jobs.SyncTask) {
	log := logger.ForSyncJob(o.logger(ctx), task.JobID, task.AccountID, task.UserID)

	job, err := o.store.Get(ctx, task.JobID)
	if err != nil {
		if errors.Is(err, jobs.ErrJobNotFound) {
			log.Error().Msg("Sync job not found, aborting")
		} else {
			log.Error().Err(err).Msg("Failed to load sync job, aborting")
		}
		return
	}
	if job.Status.IsTerminal() {
		log.Warn().Str("status", string(job.Status)).Msg("Sync job already finished, skipping")
		return
	}

	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("Sync job panicked")
			o.fail(ctx, log, job, fmt.Sprintf("panic: %v", r))
		}
	}()

	if err := o.run(ctx, log, &job, task.ConsentToken); err != nil {
		o.fail(ctx, log, job, err.Error())
		return
	}

	log.Info().
		Int("total", job.Total).
		Msg("Sync job completed")
}

// run performs the job's steps, keeping *job equal to the last committed state.
// Errors are returned unwrapped so their message is recorded verbatim.
func (o *Orchestrator) run(ctx context.Context, log zerolog.Logger, job *jobs.SyncJob, consentToken string) error {
	if err := o.save(ctx, job, job.MarkProcessing()); err != nil {
		return err
	}
	log.Info().Msg("Sync job processing")

	resp, err := o.source.FetchTransactions(ctx, job.AccountID, consentToken)
	if err != nil {
		return err
	}
	if resp == nil || resp.Items == nil {
		return openbanking.ErrNoTransactionData
	}

	items := resp.Items
	total := len(items)
	if err := o.save(ctx, job, job.SetTotal(total)); err != nil {
		return err
	}
	log.Info().Int("total", total).Msg("Fetched transactions")

	for start := 0; start < total; start += o.batchSize {
		end := min(start+o.batchSize, total)

		batch := make([]domain.Transaction, 0, end-start)
		for _, item := range items[start:end] {
			batch = append(batch, item.ToDomain(job.AccountID, job.UserID))
		}

		if err := o.writer.BulkUpsert(ctx, batch); err != nil {
			return err
		}
		if err := o.save(ctx, job, job.Advance(end)); err != nil {
			return err
		}

		log.Debug().
			Int("progress", job.Progress).
			Int("total", total).
			Msg("Batch written")
	}

	return o.save(ctx, job, job.Complete(o.now().UTC()))
}

// save persists next and, once committed, makes it the current state.
func (o *Orchestrator) save(ctx context.Context, job *jobs.SyncJob, next jobs.SyncJob) error {
	if err := o.store.Save(ctx, next); err != nil {
		return err
	}
	*job = next
	return nil
}

// fail records a failure on a best-effort basis. The write is detached from
// ctx so a cancelled worker still leaves a terminal record.
func (o *Orchestrator) fail(ctx context.Context, log zerolog.Logger, job jobs.SyncJob, msg string) {
	failed := job.Fail(msg, o.now().UTC())
	log.Error().
		Str("error", failed.Error).
		Int("progress", failed.Progress).
		Int("total", failed.Total).
		Msg("Sync job failed")

	if err := o.store.Save(context.WithoutCancel(ctx), failed); err != nil {
		log.Error().Err(err).Msg("Failed to record sync job failure")
	}
}

func (o *Orchestrator) logger(ctx context.Context) zerolog.Logger {
	if l, ok := ctx.Value(logger.LoggerKey).(zerolog.Logger); ok {
		return l
	}
	return o.log
}
