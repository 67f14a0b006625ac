// Command migrate manages the sync engine's Postgres schema migrations.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sheetsync/sheetsync/internal/config"
	"github.com/sheetsync/sheetsync/internal/infrastructure/migrations"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var configPath string

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the sync engine's database schema migrations",
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file (optional, falls back to env)")

	root.AddCommand(upCmd(), downCmd(), statusCmd(), versionCmd(), createCmd(), healthCmd())
	return root
}

func newManager() (*migrations.MigrationManager, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger := slog.Default()
	dsn := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		cfg.Database.User, cfg.Database.Password, cfg.Database.Host, cfg.Database.Port,
		cfg.Database.Database, cfg.Database.SSLMode)

	manager, err := migrations.NewMigrationManager(&migrations.MigrationConfig{
		Driver:  "pgx",
		DSN:     dsn,
		Dialect: "postgres",
		Dir:     cfg.Database.MigrationsDir,
		Logger:  logger,
	})
	if err != nil {
		return nil, fmt.Errorf("create migration manager: %w", err)
	}
	return manager, nil
}

func upCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "up [version]",
		Short: "Apply pending migrations",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			manager, err := newManager()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if len(args) == 0 {
				err = manager.Up(ctx)
			} else {
				version, parseErr := strconv.ParseInt(args[0], 10, 64)
				if parseErr != nil {
					return fmt.Errorf("invalid version: %w", parseErr)
				}
				err = manager.UpTo(ctx, version)
			}
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Println("migrations applied")
			return nil
		},
	}
}

func downCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "down [steps]",
		Short: "Roll back migrations",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			manager, err := newManager()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if len(args) == 0 {
				err = manager.DownByOne(ctx)
			} else {
				steps, parseErr := strconv.Atoi(args[0])
				if parseErr != nil {
					return fmt.Errorf("invalid step count: %w", parseErr)
				}
				for i := 0; i < steps && err == nil; i++ {
					err = manager.DownByOne(ctx)
				}
			}
			if err != nil {
				return fmt.Errorf("rollback failed: %w", err)
			}
			fmt.Println("migrations rolled back")
			return nil
		},
	}
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show applied/pending state for every migration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			manager, err := newManager()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			statuses, err := manager.Status(ctx)
			if err != nil {
				return fmt.Errorf("get status: %w", err)
			}
			fmt.Printf("%-12s %-8s %s\n", "VERSION", "APPLIED", "FILE")
			fmt.Println(strings.Repeat("-", 60))
			for _, s := range statuses {
				applied := "no"
				if s.IsApplied {
					applied = "yes"
				}
				fmt.Printf("%-12d %-8s %s\n", s.VersionID, applied, s.Source)
			}
			return nil
		},
	}
}

func healthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Verify the database is reachable and the change-log trigger is installed",
		RunE: func(cmd *cobra.Command, args []string) error {
			manager, err := newManager()
			if err != nil {
				return err
			}
			if err := manager.HealthCheck(cmd.Context()); err != nil {
				return fmt.Errorf("health check failed: %w", err)
			}
			fmt.Println("migrations: healthy")
			return nil
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show the current migration version",
		RunE: func(cmd *cobra.Command, args []string) error {
			manager, err := newManager()
			if err != nil {
				return err
			}
			version, err := manager.Version(cmd.Context())
			if err != nil {
				return fmt.Errorf("get version: %w", err)
			}
			fmt.Printf("current version: %d\n", version)
			return nil
		},
	}
}

func createCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "create <name>",
		Short: "Create a new migration file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			manager, err := newManager()
			if err != nil {
				return err
			}
			filename, err := manager.Create(context.Background(), args[0])
			if err != nil {
				return fmt.Errorf("create migration: %w", err)
			}
			fmt.Printf("created migration file: %s\n", filename)
			return nil
		},
	}
}
