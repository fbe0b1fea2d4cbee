package main

import (
	"context"
	"crypto/sha256"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
	infraMongo "github.com/dvloznov/openbank-sync/internal/infra/mongo"
	"github.com/dvloznov/openbank-sync/internal/logger"
	"github.com/rs/zerolog"
	"google.golang.org/api/iterator"
)

// Migration represents a single migration file
type Migration struct {
	Version  int
	Name     string
	Filename string
	SQL      string
	Checksum string
}

// AppliedMigration represents a migration that has already been applied
type AppliedMigration struct {
	Version   int
	Name      string
	AppliedAt time.Time
	Checksum  string
	AppliedBy string
}

var (
	backend       = flag.String("backend", "bigquery", "Storage to migrate: bigquery or mongo")
	projectID     = flag.String("project", os.Getenv("BIGQUERY_PROJECT"), "GCP project ID (or set BIGQUERY_PROJECT)")
	datasetID     = flag.String("dataset", "finance", "BigQuery dataset ID")
	appliedBy     = flag.String("applied-by", "migrate-cli", "Name of the tool applying migrations")
	migrationsDir = flag.String("migrations", "migrations/bigquery", "Path to migrations directory")
	mongoURI      = flag.String("mongo-uri", os.Getenv("MONGODB_URI"), "MongoDB connection string (or set MONGODB_URI)")
	mongoDatabase = flag.String("mongo-db", infraMongo.DefaultDatabase, "MongoDB database name")
)

// Pattern to match migration files: 0001_name.sql
var migrationPattern = regexp.MustCompile(`^(\d{4})_(.+)\.sql$`)

func main() {
	flag.Parse()

	log := logger.New()
	ctx := logger.WithContext(context.Background(), log)

	var err error
	switch *backend {
	case "bigquery":
		err = migrateBigQuery(ctx, log)
	case "mongo":
		err = migrateMongo(ctx, log)
	default:
		err = fmt.Errorf("unknown backend %q", *backend)
	}
	if err != nil {
		log.Fatal().Err(err).Str("backend", *backend).Msg("Migration failed")
	}
}

// migrateMongo creates the collection indexes. CreateIndexes is idempotent.
func migrateMongo(ctx context.Context, log zerolog.Logger) error {
	if *mongoURI == "" {
		return fmt.Errorf("-mongo-uri flag is required")
	}

	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	client, err := infraMongo.Connect(ctx, *mongoURI)
	if err != nil {
		return err
	}
	defer client.Disconnect(context.Background())

	provider := infraMongo.NewMongoProvider(client, *mongoDatabase)
	if err := infraMongo.EnsureIndexes(ctx, provider, log); err != nil {
		return err
	}

	log.Info().Str("database", *mongoDatabase).Msg("Indexes are up to date")
	return nil
}

func migrateBigQuery(ctx context.Context, log zerolog.Logger) error {
	if *projectID == "" {
		return fmt.Errorf("-project flag is required. Please specify your GCP project ID")
	}

	client, err := bigquery.NewClient(ctx, *projectID)
	if err != nil {
		return fmt.Errorf("creating BigQuery client: %w", err)
	}
	defer client.Close()

	log.Info().Str("project", *projectID).Str("dataset", *datasetID).Msg("Connected to BigQuery")

	r := &runner{client: client, projectID: *projectID, datasetID: *datasetID, appliedBy: *appliedBy}

	if err := r.ensureSchemaMigrationsTable(ctx); err != nil {
		return fmt.Errorf("ensuring schema_migrations table: %w", err)
	}

	migrations, err := readMigrations(resolveMigrationsDir(*migrationsDir), *projectID, *datasetID, log)
	if err != nil {
		return fmt.Errorf("reading migrations: %w", err)
	}
	log.Info().Int("count", len(migrations)).Msg("Found migration files")

	applied, err := r.appliedMigrations(ctx)
	if err != nil {
		return fmt.Errorf("getting applied migrations: %w", err)
	}
	log.Info().Int("count", len(applied)).Msg("Found already applied migrations")

	pending, mismatched := pendingMigrations(migrations, applied)
	for _, m := range mismatched {
		log.Warn().Int("version", m.Version).Str("name", m.Name).Msg("Applied migration has changed since it was run")
	}

	for _, migration := range pending {
		mlog := log.With().Str("migration", fmt.Sprintf("%04d_%s", migration.Version, migration.Name)).Logger()
		mlog.Info().Msg("Running migration")

		if err := r.exec(ctx, migration.SQL, nil); err != nil {
			return fmt.Errorf("executing migration %04d_%s: %w", migration.Version, migration.Name, err)
		}

		if err := r.record(ctx, migration); err != nil {
			return fmt.Errorf("recording migration %04d_%s: %w", migration.Version, migration.Name, err)
		}

		mlog.Info().Msg("Migration applied")
	}

	if len(pending) == 0 {
		log.Info().Msg("No new migrations to apply. Database is up to date.")
	} else {
		log.Info().Int("count", len(pending)).Msg("Successfully applied migrations")
	}
	return nil
}

// resolveMigrationsDir falls back to the repository root when run from cmd/migrate.
func resolveMigrationsDir(dir string) string {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		if _, err := os.Stat(filepath.Join("..", "..", dir)); err == nil {
			return filepath.Join("..", "..", dir)
		}
	}
	return dir
}

// parseMigrationFilename extracts the version and name from 0001_name.sql.
func parseMigrationFilename(filename string) (int, string, bool) {
	matches := migrationPattern.FindStringSubmatch(filename)
	if matches == nil {
		return 0, "", false
	}
	version, err := strconv.Atoi(matches[1])
	if err != nil {
		return 0, "", false
	}
	return version, matches[2], true
}

// readMigrations reads all migration files from dir, sorted by version.
// The checksum covers the file before placeholder substitution, so the
// same migration applied to another project keeps its checksum.
func readMigrations(dir, project, dataset string, log zerolog.Logger) ([]Migration, error) {
	files, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading migrations directory: %w", err)
	}

	var migrations []Migration
	seen := make(map[int]string)
	for _, file := range files {
		if file.IsDir() {
			continue
		}

		version, name, ok := parseMigrationFilename(file.Name())
		if !ok {
			log.Warn().Str("file", file.Name()).Msg("Skipping file with invalid format")
			continue
		}
		if prev, dup := seen[version]; dup {
			return nil, fmt.Errorf("duplicate migration version %04d: %s and %s", version, prev, file.Name())
		}
		seen[version] = file.Name()

		content, err := os.ReadFile(filepath.Join(dir, file.Name()))
		if err != nil {
			return nil, fmt.Errorf("reading file %s: %w", file.Name(), err)
		}

		migrations = append(migrations, Migration{
			Version:  version,
			Name:     name,
			Filename: file.Name(),
			SQL:      renderSQL(string(content), project, dataset),
			Checksum: fmt.Sprintf("%x", sha256.Sum256(content)),
		})
	}

	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})

	return migrations, nil
}

// renderSQL replaces the project and dataset placeholders.
func renderSQL(sql, project, dataset string) string {
	sql = strings.ReplaceAll(sql, "{{PROJECT_ID}}", project)
	return strings.ReplaceAll(sql, "{{DATASET_ID}}", dataset)
}

// pendingMigrations returns the migrations not yet applied, plus applied
// ones whose file content no longer matches the recorded checksum.
func pendingMigrations(all []Migration, applied []AppliedMigration) (pending, mismatched []Migration) {
	byVersion := make(map[int]AppliedMigration, len(applied))
	for _, am := range applied {
		byVersion[am.Version] = am
	}

	for _, m := range all {
		am, ok := byVersion[m.Version]
		if !ok {
			pending = append(pending, m)
			continue
		}
		if am.Checksum != "" && am.Checksum != m.Checksum {
			mismatched = append(mismatched, m)
		}
	}
	return pending, mismatched
}

// runner applies migrations to one BigQuery dataset.
type runner struct {
	client    *bigquery.Client
	projectID string
	datasetID string
	appliedBy string
}

func (r *runner) table() string {
	return fmt.Sprintf("`%s.%s.schema_migrations`", r.projectID, r.datasetID)
}

// ensureSchemaMigrationsTable creates the schema_migrations table if it doesn't exist
func (r *runner) ensureSchemaMigrationsTable(ctx context.Context) error {
	return r.exec(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			version       INT64 NOT NULL,
			name          STRING NOT NULL,
			applied_at    TIMESTAMP NOT NULL,
			checksum      STRING,
			applied_by    STRING
		)
	`, r.table()), nil)
}

// appliedMigrations retrieves the list of already applied migrations
func (r *runner) appliedMigrations(ctx context.Context) ([]AppliedMigration, error) {
	query := r.client.Query(fmt.Sprintf(`
		SELECT version, name, applied_at, checksum, applied_by
		FROM %s
		ORDER BY version ASC
	`, r.table()))

	it, err := query.Read(ctx)
	if err != nil {
		// If table doesn't exist yet, return empty list
		if strings.Contains(err.Error(), "Not found") {
			return []AppliedMigration{}, nil
		}
		return nil, fmt.Errorf("reading applied migrations: %w", err)
	}

	var applied []AppliedMigration
	for {
		var row struct {
			Version   int64
			Name      string
			AppliedAt time.Time
			Checksum  bigquery.NullString
			AppliedBy bigquery.NullString
		}

		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("iterating results: %w", err)
		}

		am := AppliedMigration{
			Version:   int(row.Version),
			Name:      row.Name,
			AppliedAt: row.AppliedAt,
		}
		if row.Checksum.Valid {
			am.Checksum = row.Checksum.StringVal
		}
		if row.AppliedBy.Valid {
			am.AppliedBy = row.AppliedBy.StringVal
		}

		applied = append(applied, am)
	}

	return applied, nil
}

// record stores a successfully applied migration in schema_migrations
func (r *runner) record(ctx context.Context, migration Migration) error {
	return r.exec(ctx, fmt.Sprintf(`
		INSERT INTO %s
		(version, name, applied_at, checksum, applied_by)
		VALUES (@version, @name, CURRENT_TIMESTAMP(), @checksum, @applied_by)
	`, r.table()), []bigquery.QueryParameter{
		{Name: "version", Value: migration.Version},
		{Name: "name", Value: migration.Name},
		{Name: "checksum", Value: migration.Checksum},
		{Name: "applied_by", Value: r.appliedBy},
	})
}

func (r *runner) exec(ctx context.Context, sql string, params []bigquery.QueryParameter) error {
	query := r.client.Query(sql)
	query.Parameters = params

	job, err := query.Run(ctx)
	if err != nil {
		return fmt.Errorf("running query: %w", err)
	}

	status, err := job.Wait(ctx)
	if err != nil {
		return fmt.Errorf("waiting for job: %w", err)
	}

	if err := status.Err(); err != nil {
		return fmt.Errorf("job error: %w", err)
	}

	return nil
}
