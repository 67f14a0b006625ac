package migrations

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/pressly/goose/v3"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver
)

// MigrationConfig configures the schema migration runner.
type MigrationConfig struct {
	// Database configuration
	Driver  string `env:"MIGRATION_DRIVER" default:"postgres"`
	DSN     string `env:"MIGRATION_DSN" default:""`
	Dialect string `env:"MIGRATION_DIALECT" default:"postgres"`

	// Migration settings
	Dir    string `env:"MIGRATION_DIR" default:"migrations"`
	Table  string `env:"MIGRATION_TABLE" default:"goose_db_version"`
	Schema string `env:"MIGRATION_SCHEMA" default:"public"`

	// Safety settings
	Timeout    time.Duration `env:"MIGRATION_TIMEOUT" default:"5m"`
	MaxRetries int           `env:"MIGRATION_MAX_RETRIES" default:"3"`
	RetryDelay time.Duration `env:"MIGRATION_RETRY_DELAY" default:"5s"`

	// Development settings
	Verbose         bool `env:"MIGRATION_VERBOSE" default:"false"`
	DryRun          bool `env:"MIGRATION_DRY_RUN" default:"false"`
	AllowOutOfOrder bool `env:"MIGRATION_ALLOW_OUT_OF_ORDER" default:"false"`

	// Safety settings
	NoVersioning bool          `env:"MIGRATION_NO_VERSIONING" default:"false"`
	LockTimeout  time.Duration `env:"MIGRATION_LOCK_TIMEOUT" default:"10s"`

	// Monitoring
	EnableMetrics bool `env:"MIGRATION_METRICS" default:"true"`
	EnableTracing bool `env:"MIGRATION_TRACING" default:"false"`

	// Logger (not from env)
	Logger *slog.Logger
}

// MigrationStatus is one migration file's applied/pending state.
type MigrationStatus struct {
	VersionID int64  `json:"version_id"`
	IsApplied bool   `json:"is_applied"`
	Source    string `json:"source"`
}

// MigrationFile is a migration file discovered on disk.
type MigrationFile struct {
	Path     string `json:"path"`
	Version  int64  `json:"version"`
	Filename string `json:"filename"`
}

// changeLogTable and changeLogTrigger are the sync_change_log table and
// trigger function created by migrations/00002_change_log.sql. HealthCheck
// verifies both exist, since a missing trigger silently breaks loop
// prevention for every synced table rather than failing loudly.
const (
	changeLogTable   = "sync_change_log"
	changeLogTrigger = "sync_change_log_trigger"
)

// MigrationManager applies and inspects the sync engine's Postgres schema,
// including the sync_change_log table and per-table triggers that back
// loop prevention (internal/core's source-tag convention).
type MigrationManager struct {
	config    *MigrationConfig
	db        *sql.DB
	logger    *slog.Logger
	isRunning bool
}

// NewMigrationManager opens the database/sql connection migrations run
// over. It does not apply anything; call Up (or another verb) explicitly.
func NewMigrationManager(config *MigrationConfig) (*MigrationManager, error) {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sql.Open(config.Driver, config.DSN)
	if err != nil {
		return nil, fmt.Errorf("open database connection: %w", err)
	}

	return &MigrationManager{
		config: config,
		db:     db,
		logger: logger,
	}, nil
}

// Connect verifies the database is reachable before migrations run.
func (mm *MigrationManager) Connect(ctx context.Context) error {
	if err := mm.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}

	mm.logger.Info("connected to database for migrations",
		"driver", mm.config.Driver,
		"dialect", mm.config.Dialect)

	return nil
}

// Disconnect closes the underlying database/sql connection.
func (mm *MigrationManager) Disconnect(ctx context.Context) error {
	if mm.db == nil {
		return nil
	}
	if err := mm.db.Close(); err != nil {
		return fmt.Errorf("close database connection: %w", err)
	}
	mm.logger.Info("disconnected from database")
	return nil
}

func (mm *MigrationManager) setDialect() error {
	if err := goose.SetDialect(mm.config.Dialect); err != nil {
		mm.logger.Error("set goose dialect failed", "error", err)
		return fmt.Errorf("set goose dialect: %w", err)
	}
	return nil
}

// Up applies all pending migrations.
func (mm *MigrationManager) Up(ctx context.Context) error {
	mm.isRunning = true
	defer func() { mm.isRunning = false }()

	start := time.Now()
	defer func() {
		mm.logger.Info("migration up completed", "duration", time.Since(start))
	}()

	if err := mm.setDialect(); err != nil {
		return err
	}
	if err := goose.Up(mm.db, mm.config.Dir); err != nil {
		mm.logger.Error("migration up failed", "error", err)
		return fmt.Errorf("apply migrations: %w", err)
	}

	mm.logger.Info("all migrations applied")
	return nil
}

// UpTo applies migrations up to and including the given version.
func (mm *MigrationManager) UpTo(ctx context.Context, version int64) error {
	mm.isRunning = true
	defer func() { mm.isRunning = false }()

	start := time.Now()
	defer func() {
		mm.logger.Info("migration up-to completed", "version", version, "duration", time.Since(start))
	}()

	if err := mm.setDialect(); err != nil {
		return err
	}
	if err := goose.UpTo(mm.db, mm.config.Dir, version); err != nil {
		mm.logger.Error("migration up-to failed", "version", version, "error", err)
		return fmt.Errorf("apply migrations up to version %d: %w", version, err)
	}

	mm.logger.Info("migrations applied up to version", "version", version)
	return nil
}

// UpByOne applies the next pending migration only.
func (mm *MigrationManager) UpByOne(ctx context.Context) error {
	if err := mm.setDialect(); err != nil {
		return err
	}
	if err := goose.UpByOne(mm.db, mm.config.Dir); err != nil {
		mm.logger.Error("migration up-by-one failed", "error", err)
		return fmt.Errorf("apply next migration: %w", err)
	}
	mm.logger.Info("next migration applied")
	return nil
}

// Down rolls back every applied migration, including the sync_change_log
// table and its trigger function. Destructive: loop prevention stops
// working for every table until Up is run again.
func (mm *MigrationManager) Down(ctx context.Context) error {
	if err := mm.setDialect(); err != nil {
		return err
	}
	if err := goose.Reset(mm.db, mm.config.Dir); err != nil {
		mm.logger.Error("migration down failed", "error", err)
		return fmt.Errorf("roll back migrations: %w", err)
	}
	mm.logger.Info("all migrations rolled back")
	return nil
}

// DownTo rolls back migrations down to (not including) the given version.
func (mm *MigrationManager) DownTo(ctx context.Context, version int64) error {
	if err := mm.setDialect(); err != nil {
		return err
	}
	if err := goose.DownTo(mm.db, mm.config.Dir, version); err != nil {
		mm.logger.Error("migration down-to failed", "version", version, "error", err)
		return fmt.Errorf("roll back migrations to version %d: %w", version, err)
	}
	mm.logger.Info("migrations rolled back to version", "version", version)
	return nil
}

// DownByOne rolls back the most recently applied migration.
func (mm *MigrationManager) DownByOne(ctx context.Context) error {
	if err := mm.setDialect(); err != nil {
		return err
	}
	if err := goose.Down(mm.db, mm.config.Dir); err != nil {
		mm.logger.Error("migration down-by-one failed", "error", err)
		return fmt.Errorf("roll back last migration: %w", err)
	}
	mm.logger.Info("last migration rolled back")
	return nil
}

// Status reports every migration file's applied/pending state by cross
// referencing the files under config.Dir against goose's applied-version
// marker in the database.
func (mm *MigrationManager) Status(ctx context.Context) ([]*MigrationStatus, error) {
	if err := mm.setDialect(); err != nil {
		return nil, err
	}

	all, err := goose.CollectMigrations(mm.config.Dir, 0, goose.MaxVersion)
	if err != nil {
		return nil, fmt.Errorf("collect migration files: %w", err)
	}

	dbVersion, err := goose.GetDBVersion(mm.db)
	if err != nil {
		return nil, fmt.Errorf("get applied migration version: %w", err)
	}

	statuses := make([]*MigrationStatus, 0, len(all))
	for _, m := range all {
		statuses = append(statuses, &MigrationStatus{
			VersionID: m.Version,
			IsApplied: m.Version <= dbVersion,
			Source:    m.Source,
		})
	}

	mm.logger.Info("migration status retrieved", "total_migrations", len(statuses), "applied_version", dbVersion)
	return statuses, nil
}

// Version returns the database's current applied migration version.
func (mm *MigrationManager) Version(ctx context.Context) (int64, error) {
	if err := mm.setDialect(); err != nil {
		return 0, err
	}

	version, err := goose.GetDBVersion(mm.db)
	if err != nil {
		return 0, fmt.Errorf("get migration version: %w", err)
	}

	mm.logger.Info("current migration version", "version", version)
	return version, nil
}

// List returns every migration file under config.Dir in filename order.
func (mm *MigrationManager) List(ctx context.Context) ([]*MigrationFile, error) {
	paths, err := filepath.Glob(filepath.Join(mm.config.Dir, "*.sql"))
	if err != nil {
		return nil, fmt.Errorf("list migration files: %w", err)
	}

	files := make([]*MigrationFile, 0, len(paths))
	for _, path := range paths {
		files = append(files, &MigrationFile{
			Path:     path,
			Filename: filepath.Base(path),
		})
	}

	mm.logger.Info("migration files listed", "count", len(files))
	return files, nil
}

// Create scaffolds a new empty migration file, timestamp-versioned the way
// goose's own `goose create` does; Fix renumbers such files into goose's
// sequential scheme.
func (mm *MigrationManager) Create(ctx context.Context, name string) (string, error) {
	version := time.Now().Format("20060102150405")
	filename := fmt.Sprintf("%s_%s.sql", version, name)
	path := filepath.Join(mm.config.Dir, filename)

	content := `-- +goose Up
-- +goose StatementBegin

-- +goose StatementEnd

-- +goose Down
-- +goose StatementBegin

-- +goose StatementEnd
`

	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return "", fmt.Errorf("create migration file: %w", err)
	}

	mm.logger.Info("migration created", "path", path)
	return path, nil
}

// Validate checks that every file Status() reports can still be read from
// disk, catching a migration directory that has drifted from what the
// database thinks was applied (e.g. a file deleted after release).
func (mm *MigrationManager) Validate(ctx context.Context) error {
	statuses, err := mm.Status(ctx)
	if err != nil {
		return fmt.Errorf("get migration status: %w", err)
	}

	for _, s := range statuses {
		if !s.IsApplied {
			continue
		}
		if _, err := os.Stat(s.Source); err != nil {
			return fmt.Errorf("applied migration version %d missing on disk (%s): %w", s.VersionID, s.Source, err)
		}
	}

	mm.logger.Info("migration validation completed", "checked", len(statuses))
	return nil
}

// Fix renumbers timestamp-versioned migration files under config.Dir into
// goose's sequential numbering scheme. It touches files on disk only; it
// never talks to the database.
func (mm *MigrationManager) Fix(ctx context.Context) error {
	if err := goose.Fix(mm.config.Dir); err != nil {
		return fmt.Errorf("fix migration sequence: %w", err)
	}
	mm.logger.Info("migration sequence fixed")
	return nil
}

// Redo rolls back the most recent migration and reapplies it immediately,
// useful while iterating on a migration that has not shipped yet.
func (mm *MigrationManager) Redo(ctx context.Context) error {
	if err := mm.setDialect(); err != nil {
		return err
	}
	if err := goose.Down(mm.db, mm.config.Dir); err != nil {
		return fmt.Errorf("roll back last migration: %w", err)
	}
	if err := goose.UpByOne(mm.db, mm.config.Dir); err != nil {
		return fmt.Errorf("reapply last migration: %w", err)
	}
	mm.logger.Info("migration redo completed")
	return nil
}

// Reset rolls back every migration. Equivalent to Down; kept as a
// separate, explicitly-named verb for operator tooling that distinguishes
// "roll back one release" from "wipe the schema".
func (mm *MigrationManager) Reset(ctx context.Context) error {
	mm.logger.Warn("starting migration reset: this drops the sync schema")
	return mm.Down(ctx)
}

// HealthCheck verifies the database is reachable and that the change-log
// machinery loop prevention depends on is actually in place: the
// sync_change_log table and its trigger function from
// migrations/00002_change_log.sql. A missing trigger means writes made by
// the sheet-to-table direction would never get excluded from the next
// table-to-sheet cycle, producing an update loop.
func (mm *MigrationManager) HealthCheck(ctx context.Context) error {
	if err := mm.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}

	if mm.config.Driver != "pgx" && mm.config.Driver != "postgres" {
		return nil
	}

	var tableExists bool
	if err := mm.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name = $1)`,
		changeLogTable,
	).Scan(&tableExists); err != nil {
		return fmt.Errorf("check change-log table: %w", err)
	}
	if !tableExists {
		return fmt.Errorf("migration health check failed: %s table is missing", changeLogTable)
	}

	var triggerFnExists bool
	if err := mm.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM pg_proc WHERE proname = $1)`,
		changeLogTrigger,
	).Scan(&triggerFnExists); err != nil {
		return fmt.Errorf("check change-log trigger function: %w", err)
	}
	if !triggerFnExists {
		return fmt.Errorf("migration health check failed: %s function is missing", changeLogTrigger)
	}

	return nil
}

// GetConfig returns the manager's configuration.
func (mm *MigrationManager) GetConfig() *MigrationConfig {
	return mm.config
}

// IsRunning reports whether Up or UpTo is currently executing; the other
// verbs do not set it.
func (mm *MigrationManager) IsRunning() bool {
	return mm.isRunning
}
