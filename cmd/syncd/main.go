// Command syncd runs the spreadsheet<->table sync engine.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/sheetsync/sheetsync/internal/adapters/spreadsheet"
	"github.com/sheetsync/sheetsync/internal/adapters/targettable/postgres"
	"github.com/sheetsync/sheetsync/internal/config"
	"github.com/sheetsync/sheetsync/internal/core"
	"github.com/sheetsync/sheetsync/internal/core/resilience"
	dbpostgres "github.com/sheetsync/sheetsync/internal/database/postgres"
	"github.com/sheetsync/sheetsync/internal/dlq"
	"github.com/sheetsync/sheetsync/internal/engine"
	"github.com/sheetsync/sheetsync/internal/events/websocket"
	idempotencymemory "github.com/sheetsync/sheetsync/internal/idempotency/memory"
	idempotencyredis "github.com/sheetsync/sheetsync/internal/idempotency/redis"
	metadatapostgres "github.com/sheetsync/sheetsync/internal/metadatastore/postgres"
	"github.com/sheetsync/sheetsync/internal/metrics"
	"github.com/sheetsync/sheetsync/pkg/logger"
)

var configPath string

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "syncd",
		Short: "Bidirectional spreadsheet<->table sync daemon",
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file (optional, falls back to env)")

	root.AddCommand(serveCmd(), triggerCmd(), dlqCmd(), statusCmd())
	return root
}

// app bundles the wired collaborators every subcommand needs.
type app struct {
	cfg  *config.Config
	log  *slog.Logger
	pool *dbpostgres.PostgresPool
	orch *engine.Orchestrator
	dlq  *dlq.Sink
}

func buildApp(ctx context.Context) (*app, func(), error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	log := logger.NewLogger(logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		Filename:   cfg.Log.Filename,
		MaxSize:    cfg.Log.MaxSize,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAge,
		Compress:   cfg.Log.Compress,
	})
	slog.SetDefault(log)

	pool := dbpostgres.NewPostgresPool(&dbpostgres.PostgresConfig{
		Host:              cfg.Database.Host,
		Port:              cfg.Database.Port,
		Database:          cfg.Database.Database,
		User:              cfg.Database.User,
		Password:          cfg.Database.Password,
		SSLMode:           cfg.Database.SSLMode,
		MaxConns:          cfg.Database.MaxConns,
		MinConns:          cfg.Database.MinConns,
		MaxConnLifetime:   cfg.Database.MaxConnLifetime,
		MaxConnIdleTime:   cfg.Database.MaxConnIdleTime,
		HealthCheckPeriod: cfg.Database.HealthCheckPeriod,
		ConnectTimeout:    cfg.Database.ConnectTimeout,
	}, log)
	if err := pool.Connect(ctx); err != nil {
		return nil, nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Health(ctx); err != nil {
		return nil, nil, fmt.Errorf("database readiness check: %w", err)
	}

	metadata := metadatapostgres.New(pool.Pool(), log)
	targetTable := postgres.New(pool)

	metricsSink := metrics.NewSink()

	bus := websocket.NewEventBus(log, websocket.NewMetrics("sheetsync"))
	eventSink := websocket.NewSink(bus)

	spreadsheetAdapter := spreadsheet.New(spreadsheet.Config{
		BaseURL:           cfg.Spreadsheet.BaseURL,
		APIKey:            cfg.Spreadsheet.APIKey,
		RequestTimeout:    cfg.Spreadsheet.Timeout,
		RequestsPerMinute: int(cfg.Sync.RateLimitTokensPerSecond * 60),
		Burst:             cfg.Sync.RateLimitBurst,
		BreakerThreshold:  cfg.Sync.BreakerFailureThreshold,
		BreakerCooldown:   cfg.Sync.BreakerCooldown,
		MaxRetries:        cfg.Sync.RetryMaxAttempts,
	}, func(target, state string) {
		metricsSink.SetBreakerState(target, state)
	})

	idemStore, err := newIdempotencyStore(ctx, cfg, log)
	if err != nil {
		return nil, nil, err
	}

	dlqSink := dlq.New(cfg.Sync.DLQCapacity)

	deps := engine.Deps{
		Spreadsheet: spreadsheetAdapter,
		TargetTable: targetTable,
		Idempotency: idemStore,
		Metadata:    metadata,
		Events:      eventSink,
		Metrics:     metricsSink,
		DLQ:         dlqSink,
		RetryPolicy: &resilience.RetryPolicy{
			MaxRetries:    cfg.Sync.RetryMaxAttempts,
			BaseDelay:     cfg.Sync.RetryBaseDelay,
			MaxDelay:      cfg.Sync.RetryMaxDelay,
			Multiplier:    2.0,
			Jitter:        cfg.Sync.RetryJitter,
			ErrorChecker:  &resilience.SyncErrorChecker{},
			OperationName: "sync_cycle",
		},
		Logger: log,
	}

	orch := engine.NewOrchestrator(deps, cfg.Sync.TickInterval)

	cleanup := func() {
		_ = pool.Disconnect(context.Background())
	}

	return &app{cfg: cfg, log: log, pool: pool, orch: orch, dlq: dlqSink}, cleanup, nil
}

func newIdempotencyStore(ctx context.Context, cfg *config.Config, log *slog.Logger) (core.IdempotencyStore, error) {
	if !cfg.UsesRedisIdempotency() {
		store, err := idempotencymemory.New(4096)
		if err != nil {
			return nil, fmt.Errorf("create in-memory idempotency store: %w", err)
		}
		return store, nil
	}

	redisCfg := idempotencyredis.DefaultConfig()
	redisCfg.Addr = cfg.Redis.Addr
	redisCfg.Password = cfg.Redis.Password
	redisCfg.DB = cfg.Redis.DB

	store, err := idempotencyredis.New(ctx, redisCfg, log)
	if err != nil {
		return nil, fmt.Errorf("create redis idempotency store: %w", err)
	}
	return store, nil
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the sync engine's periodic tick loop",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			a, cleanup, err := buildApp(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			a.orch.Start(ctx)
			a.log.Info("syncd started")

			quit := make(chan os.Signal, 1)
			signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
			<-quit

			a.log.Info("shutting down")
			a.orch.Stop()
			a.log.Info("syncd stopped")
			return nil
		},
	}
}

func triggerCmd() *cobra.Command {
	var direction string
	cmd := &cobra.Command{
		Use:   "trigger <config-id>",
		Short: "Run one sync cycle for a config immediately, bypassing its interval",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, cleanup, err := buildApp(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			dir := core.Direction(direction)
			if dir != core.DirectionSheetToTable && dir != core.DirectionTableToSheet {
				return fmt.Errorf("invalid direction %q: must be %q or %q", direction, core.DirectionSheetToTable, core.DirectionTableToSheet)
			}

			if err := a.orch.TriggerNow(ctx, args[0], dir); err != nil {
				return fmt.Errorf("trigger: %w", err)
			}
			fmt.Printf("triggered %s for config %s\n", dir, args[0])
			return nil
		},
	}
	cmd.Flags().StringVar(&direction, "direction", string(core.DirectionSheetToTable), "Direction to run: sheet_to_table or table_to_sheet")
	return cmd
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Report database connection pool health and statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, cleanup, err := buildApp(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			if err := a.pool.Health(ctx); err != nil {
				fmt.Printf("database: unhealthy: %s\n", err)
			} else {
				fmt.Println("database: healthy")
			}

			stats := a.pool.Stats()
			fmt.Printf("connections: active=%d idle=%d total=%d\n", stats.ActiveConnections, stats.IdleConnections, stats.TotalConnections)
			fmt.Printf("queries: total=%d errors=%d total_exec_time=%s\n", stats.TotalQueries, stats.QueryErrors, stats.QueryExecutionTime)
			return nil
		},
	}
}

func dlqCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dlq",
		Short: "Inspect the dead-letter queue",
	}
	cmd.AddCommand(dlqListCmd())
	return cmd
}

func dlqListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List dead-lettered jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, cleanup, err := buildApp(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			// The in-process DLQ is empty right after boot; this is meant
			// to be run against a long-lived daemon via a shared backing
			// store in a future iteration. For now it reports what the
			// freshly-built Sink holds.
			jobs := a.dlq.List()
			if len(jobs) == 0 {
				fmt.Println("dead-letter queue is empty")
				return nil
			}
			for _, j := range jobs {
				fmt.Printf("%s\t%s\t%s\tattempts=%d\tfailed_at=%s\t%s\n",
					j.ConfigID, j.Direction, j.Reason, j.Attempts, j.FailedAt.Format(time.RFC3339), j.LastError)
			}
			return nil
		},
	}
}
