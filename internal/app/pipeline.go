package app

import (
	"github.com/dvloznov/openbank-sync/internal/config"
	"github.com/dvloznov/openbank-sync/internal/openbanking"
	"github.com/dvloznov/openbank-sync/internal/txsync"
	"github.com/rs/zerolog"
)

// NewClient builds the aggregator client from configuration.
func NewClient(cfg *config.Config, log zerolog.Logger) (*openbanking.Client, error) {
	return openbanking.NewClient(cfg.OpenBanking(), nil, log)
}

// NewOrchestrator builds the sync orchestrator over the given stores.
func NewOrchestrator(cfg *config.Config, source txsync.TransactionSource, stores *Stores, log zerolog.Logger) *txsync.Orchestrator {
	return txsync.NewOrchestrator(source, stores.Transactions, stores.Jobs,
		txsync.WithBatchSize(cfg.SyncBatchSize),
		txsync.WithLogger(log),
	)
}
