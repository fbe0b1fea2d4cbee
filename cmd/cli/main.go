package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dvloznov/openbank-sync/internal/app"
	"github.com/dvloznov/openbank-sync/internal/config"
	"github.com/dvloznov/openbank-sync/internal/jobs"
	"github.com/dvloznov/openbank-sync/internal/jobs/inmemory"
	"github.com/dvloznov/openbank-sync/internal/logger"
	"github.com/dvloznov/openbank-sync/internal/txsync"
	"github.com/rs/zerolog"
)

func main() {
	log := logger.New()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "sync":
		runSync(log)
	case "status":
		runStatus(log)
	case "import-accounts":
		runImportAccounts(log)
	case "transactions":
		runTransactions(log)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Open Banking Sync CLI")
	fmt.Println("\nUsage:")
	fmt.Println("  cli <command> [options]")
	fmt.Println("\nCommands:")
	fmt.Println("  sync             Sync an account's transactions and wait for the result")
	fmt.Println("  status           Show a sync job")
	fmt.Println("  import-accounts  Link the accounts granted by a consent token")
	fmt.Println("  transactions     List stored transactions for an account")
	fmt.Println("  help             Show this help message")
	fmt.Println("\nConfiguration is read from the environment or -config FILE.")
	fmt.Println("Run 'cli <command> -h' for more information on a command.")
}

// env loads configuration and opens the configured stores.
func env(ctx context.Context, log zerolog.Logger, configPath string) (*config.Config, *app.Stores) {
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	stores, err := app.OpenStores(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open stores")
	}
	return cfg, stores
}

func runSync(log zerolog.Logger) {
	fs := flag.NewFlagSet("sync", flag.ExitOnError)
	configPath := fs.String("config", "", "Optional config file")
	accountID := fs.String("account", "", "Account ID to sync")
	userID := fs.String("user", "", "Owning user ID")
	consent := fs.String("consent", "", "Consent token")
	timeout := fs.Duration("timeout", 10*time.Minute, "Maximum time to wait for the sync")
	fs.Parse(os.Args[2:])

	if *accountID == "" || *userID == "" || *consent == "" {
		log.Fatal().Msg("Usage: cli sync -account ID -user ID -consent TOKEN")
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	cfg, stores := env(ctx, log, *configPath)
	defer stores.Close(context.Background())

	client, err := app.NewClient(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create open banking client")
	}

	queue := inmemory.NewQueue(1, 1, log)
	if err := queue.Start(context.WithoutCancel(ctx), app.NewOrchestrator(cfg, client, stores, log).Run); err != nil {
		log.Fatal().Err(err).Msg("Failed to start worker")
	}
	defer queue.Close()

	res, err := txsync.NewLauncher(stores.Accounts, stores.Jobs, queue).Start(ctx, *accountID, *userID, *consent)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to start sync")
	}
	log.Info().Str("job_id", res.JobID).Msg(res.Message)

	job, err := waitForJob(ctx, txsync.NewStatusService(stores.Jobs), res.JobID, *userID, 500*time.Millisecond)
	if err != nil {
		log.Fatal().Err(err).Str("job_id", res.JobID).Msg("Failed waiting for sync")
	}

	printJob(os.Stdout, job)
	if job.Status == jobs.JobStatusFailed {
		os.Exit(1)
	}
}

func runStatus(log zerolog.Logger) {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", "", "Optional config file")
	jobID := fs.String("id", "", "Sync job ID")
	userID := fs.String("user", "", "Owning user ID")
	fs.Parse(os.Args[2:])

	if *jobID == "" || *userID == "" {
		log.Fatal().Msg("Usage: cli status -id JOB_ID -user ID")
	}

	ctx := logger.WithContext(context.Background(), log)
	_, stores := env(ctx, log, *configPath)
	defer stores.Close(context.Background())

	job, err := txsync.NewStatusService(stores.Jobs).Get(ctx, *jobID, *userID)
	if err != nil {
		log.Fatal().Err(err).Str("job_id", *jobID).Msg("Sync status not found")
	}

	printJob(os.Stdout, job)
}

func runImportAccounts(log zerolog.Logger) {
	fs := flag.NewFlagSet("import-accounts", flag.ExitOnError)
	configPath := fs.String("config", "", "Optional config file")
	userID := fs.String("user", "", "Owning user ID")
	consent := fs.String("consent", "", "Consent token")
	fs.Parse(os.Args[2:])

	if *userID == "" || *consent == "" {
		log.Fatal().Msg("Usage: cli import-accounts -user ID -consent TOKEN")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	cfg, stores := env(ctx, log, *configPath)
	defer stores.Close(context.Background())

	client, err := app.NewClient(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create open banking client")
	}

	accounts, err := txsync.NewAccountService(client, stores.Accounts).Import(ctx, *userID, *consent)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to import accounts")
	}

	fmt.Printf("\n=== Accounts (%d) ===\n", len(accounts))
	for i, a := range accounts {
		fmt.Printf("\n%d. %s\n", i+1, a.ID)
		fmt.Printf("   Type:     %s\n", a.AccountType)
		fmt.Printf("   Balance:  %s %s\n", a.Balance.StringFixed(2), a.Currency)
	}
	fmt.Println()
}

func runTransactions(log zerolog.Logger) {
	fs := flag.NewFlagSet("transactions", flag.ExitOnError)
	configPath := fs.String("config", "", "Optional config file")
	accountID := fs.String("account", "", "Account ID")
	userID := fs.String("user", "", "Owning user ID")
	page := fs.Int("page", 1, "Page number")
	limit := fs.Int("limit", txsync.DefaultPageLimit, "Page size")
	fs.Parse(os.Args[2:])

	if *accountID == "" || *userID == "" {
		log.Fatal().Msg("Usage: cli transactions -account ID -user ID [-page N -limit N]")
	}

	ctx := logger.WithContext(context.Background(), log)
	_, stores := env(ctx, log, *configPath)
	defer stores.Close(context.Background())

	result, err := txsync.NewTransactionLister(stores.Accounts, stores.Transactions).List(ctx, *userID, *accountID, *page, *limit)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to list transactions")
	}

	printTransactions(os.Stdout, result)
}

// waitForJob polls until the job reaches a terminal status or ctx ends.
func waitForJob(ctx context.Context, status *txsync.StatusService, jobID, userID string, interval time.Duration) (jobs.SyncJob, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		job, err := status.Get(ctx, jobID, userID)
		if err != nil {
			return jobs.SyncJob{}, err
		}
		if job.Status.IsTerminal() {
			return job, nil
		}

		select {
		case <-ctx.Done():
			return job, ctx.Err()
		case <-ticker.C:
		}
	}
}

func printJob(w io.Writer, job jobs.SyncJob) {
	fmt.Fprintln(w, "\n=== Sync Job ===")
	fmt.Fprintf(w, "ID:         %s\n", job.ID)
	fmt.Fprintf(w, "Account ID: %s\n", job.AccountID)
	fmt.Fprintf(w, "Status:     %s\n", job.Status)
	fmt.Fprintf(w, "Progress:   %d/%d\n", job.Progress, job.Total)
	fmt.Fprintf(w, "Started:    %s\n", job.StartedAt.Format(time.RFC3339))
	if job.CompletedAt != nil {
		fmt.Fprintf(w, "Completed:  %s\n", job.CompletedAt.Format(time.RFC3339))
	}
	if job.Error != "" {
		fmt.Fprintf(w, "Error:      %s\n", job.Error)
	}
}

func printTransactions(w io.Writer, page *txsync.TransactionPage) {
	p := page.Pagination
	fmt.Fprintf(w, "\n=== Transactions (page %d of %d, %d total) ===\n", p.Page, p.Pages, p.Total)
	for i, txn := range page.Data {
		fmt.Fprintf(w, "\n%d. %s\n", (p.Page-1)*p.Limit+i+1, txn.Description)
		fmt.Fprintf(w, "   Date:     %s\n", txn.Date.Format("2006-01-02"))
		fmt.Fprintf(w, "   Amount:   %s %s\n", txn.Amount.String(), txn.Currency)
		if txn.Category != "" {
			fmt.Fprintf(w, "   Category: %s\n", txn.Category)
		}
	}
	fmt.Fprintln(w)
}
