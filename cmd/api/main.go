package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dvloznov/openbank-sync/internal/api/handlers"
	"github.com/dvloznov/openbank-sync/internal/app"
	"github.com/dvloznov/openbank-sync/internal/config"
	"github.com/dvloznov/openbank-sync/internal/jobs/inmemory"
	"github.com/dvloznov/openbank-sync/internal/logger"
	"github.com/dvloznov/openbank-sync/internal/txsync"
	"golang.org/x/sync/errgroup"
)

func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_FILE"), "Optional config file (or set CONFIG_FILE)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		l := logger.New()
		l.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.NewWithLevel(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx = logger.WithContext(ctx, log)

	stores, err := app.OpenStores(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Str("backend", cfg.StoreBackend).Msg("Failed to open stores")
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := stores.Close(closeCtx); err != nil {
			log.Error().Err(err).Msg("Failed to close stores")
		}
	}()

	client, err := app.NewClient(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create open banking client")
	}

	// Initialize job infrastructure
	queue := inmemory.NewQueue(cfg.SyncQueueSize, cfg.SyncWorkers, log)
	orchestrator := app.NewOrchestrator(cfg, client, stores, log)

	router := handlers.Router{
		Sync: handlers.NewSyncHandler(
			txsync.NewLauncher(stores.Accounts, stores.Jobs, queue),
			txsync.NewStatusService(stores.Jobs),
		),
		Accounts:     handlers.NewAccountsHandler(txsync.NewAccountService(client, stores.Accounts)),
		Transactions: handlers.NewTransactionsHandler(txsync.NewTransactionLister(stores.Accounts, stores.Transactions)),
		Institutions: handlers.NewInstitutionsHandler(client),
	}

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      router.Handler(log),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Workers run detached from the shutdown signal; Stop bounds the wait
	// for in-flight syncs.
	if err := queue.Start(context.WithoutCancel(ctx), orchestrator.Run); err != nil {
		log.Fatal().Err(err).Msg("Failed to start sync workers")
	}
	log.Info().Int("workers", cfg.SyncWorkers).Int("buffer", cfg.SyncQueueSize).Msg("Sync workers started")

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info().Str("addr", server.Addr).Str("backend", cfg.StoreBackend).Msg("Starting API server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()
		log.Info().Msg("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Server forced to shutdown")
		}

		// Stop job queue and wait for in-flight jobs
		if err := queue.Stop(shutdownCtx); err != nil {
			log.Error().Err(err).Int("pending", queue.Pending()).Msg("Error stopping job queue")
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("Server exited with error")
		return
	}

	log.Info().Msg("Server exited")
}
