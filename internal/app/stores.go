// Package app assembles the service's stores and pipeline from configuration.
package app

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/openbank-sync/internal/config"
	"github.com/dvloznov/openbank-sync/internal/domain"
	infraBQ "github.com/dvloznov/openbank-sync/internal/infra/bigquery"
	txmem "github.com/dvloznov/openbank-sync/internal/infra/inmemory"
	infraMongo "github.com/dvloznov/openbank-sync/internal/infra/mongo"
	"github.com/dvloznov/openbank-sync/internal/jobs"
	jobsmem "github.com/dvloznov/openbank-sync/internal/jobs/inmemory"
	"github.com/dvloznov/openbank-sync/internal/logger"
)

// Stores holds the repositories selected by config.StoreBackend.
type Stores struct {
	Jobs         jobs.JobStore
	Transactions domain.TransactionRepository
	Accounts     domain.AccountRepository

	closers []func(ctx context.Context) error
}

// Close releases every client opened by OpenStores.
func (s *Stores) Close(ctx context.Context) error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// OpenStores connects the configured backend. Jobs and accounts use Mongo
// for both the mongo and bigquery backends; memory keeps everything in process.
func OpenStores(ctx context.Context, cfg *config.Config) (*Stores, error) {
	log := logger.FromContext(ctx)

	if cfg.StoreBackend == config.BackendMemory {
		log.Warn().Msg("Using in-memory stores; data is lost on restart")
		return &Stores{
			Jobs:         jobsmem.NewStore(),
			Transactions: txmem.NewTransactionStore(),
			Accounts:     txmem.NewAccountStore(),
		}, nil
	}

	s := &Stores{}

	client, err := infraMongo.Connect(ctx, cfg.MongoURI)
	if err != nil {
		return nil, fmt.Errorf("OpenStores: %w", err)
	}
	s.closers = append(s.closers, client.Disconnect)

	provider := infraMongo.NewMongoProvider(client, cfg.MongoDatabase)
	if err := infraMongo.EnsureIndexes(ctx, provider, log); err != nil {
		log.Warn().Err(err).Msg("Failed to ensure MongoDB indexes")
	}

	s.Jobs = infraMongo.NewJobStore(provider)
	s.Accounts = infraMongo.NewAccountRepository(provider)
	s.Transactions = infraMongo.NewTransactionRepository(provider)

	if cfg.StoreBackend == config.BackendBigQuery {
		bq, err := bigquery.NewClient(ctx, cfg.BigQueryProject)
		if err != nil {
			_ = s.Close(ctx)
			return nil, fmt.Errorf("OpenStores: creating BigQuery client: %w", err)
		}
		s.closers = append(s.closers, func(context.Context) error { return bq.Close() })
		s.Transactions = infraBQ.NewTransactionRepository(bq, cfg.BigQueryDataset)
		log.Info().
			Str("project", cfg.BigQueryProject).
			Str("dataset", cfg.BigQueryDataset).
			Msg("Writing transactions to BigQuery")
	}

	return s, nil
}
