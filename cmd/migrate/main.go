package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the pgx database/sql driver
	"github.com/joho/godotenv"
	"github.com/pressly/goose/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"library-backend/internal/config"
	"library-backend/internal/storage/sqlite"
	"library-backend/migrations"
	"library-backend/pkg/logging"
)

type options struct {
	driver      string
	sqlitePath  string
	databaseURL string
	logger      *zap.Logger
}

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:          "migrate",
		Short:        "Apply and inspect the library database schema",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Load .env file if it exists
			_ = godotenv.Load()

			logger, err := logging.New(os.Getenv("LOG_LEVEL"), envOr("LOG_FORMAT", "console"))
			if err != nil {
				return err
			}
			opts.logger = logger

			// Flags win over the environment
			if !cmd.Flags().Changed("driver") {
				opts.driver = envOr("STORE_DRIVER", config.DriverSQLite)
			}
			if !cmd.Flags().Changed("sqlite-path") {
				opts.sqlitePath = envOr("SQLITE_PATH", opts.sqlitePath)
			}
			if !cmd.Flags().Changed("database-url") {
				opts.databaseURL = envOr("DATABASE_URL", opts.databaseURL)
			}
			return nil
		},
	}

	root.PersistentFlags().StringVar(&opts.driver, "driver", config.DriverSQLite, "store driver: sqlite or postgres")
	root.PersistentFlags().StringVar(&opts.sqlitePath, "sqlite-path", "./data/library.db", "SQLite database file")
	root.PersistentFlags().StringVar(&opts.databaseURL, "database-url", "", "PostgreSQL connection string")

	root.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			RunE: func(cmd *cobra.Command, args []string) error {
				return withProvider(cmd.Context(), opts, func(ctx context.Context, p *goose.Provider) error {
					results, err := p.Up(ctx)
					if err != nil {
						return fmt.Errorf("failed to run migrations: %w", err)
					}
					for _, r := range results {
						opts.logger.Info("Applied migration",
							zap.Int64("version", r.Source.Version),
							zap.Duration("duration", r.Duration))
					}
					opts.logger.Info("Migrations completed successfully", zap.Int("applied", len(results)))
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back the most recent migration",
			RunE: func(cmd *cobra.Command, args []string) error {
				return withProvider(cmd.Context(), opts, func(ctx context.Context, p *goose.Provider) error {
					result, err := p.Down(ctx)
					if err != nil {
						return fmt.Errorf("failed to rollback migration: %w", err)
					}
					opts.logger.Info("Rollback completed successfully", zap.Int64("version", result.Source.Version))
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "status",
			Short: "Show the state of every migration",
			RunE: func(cmd *cobra.Command, args []string) error {
				return withProvider(cmd.Context(), opts, func(ctx context.Context, p *goose.Provider) error {
					statuses, err := p.Status(ctx)
					if err != nil {
						return fmt.Errorf("failed to get migration status: %w", err)
					}
					out := cmd.OutOrStdout()
					for _, s := range statuses {
						applied := "pending"
						if s.State == goose.StateApplied {
							applied = s.AppliedAt.Format("2006-01-02 15:04:05")
						}
						fmt.Fprintf(out, "%-8d %-40s %s\n", s.Source.Version, s.Source.Path, applied)
					}
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print the current schema version",
			RunE: func(cmd *cobra.Command, args []string) error {
				return withProvider(cmd.Context(), opts, func(ctx context.Context, p *goose.Provider) error {
					version, err := p.GetDBVersion(ctx)
					if err != nil {
						return fmt.Errorf("failed to get version: %w", err)
					}
					fmt.Fprintf(cmd.OutOrStdout(), "Current migration version: %d\n", version)
					return nil
				})
			},
		},
	)
	return root
}

// withProvider opens the configured database and runs fn with a goose provider for it
func withProvider(ctx context.Context, opts *options, fn func(context.Context, *goose.Provider) error) error {
	db, dialect, err := openDB(opts)
	if err != nil {
		return err
	}
	defer db.Close()

	provider, err := migrations.NewProvider(db, dialect)
	if err != nil {
		return err
	}
	return fn(ctx, provider)
}

func openDB(opts *options) (*sql.DB, string, error) {
	switch opts.driver {
	case config.DriverSQLite:
		opts.logger.Info("Using SQLite database", zap.String("path", opts.sqlitePath))
		db, err := sqlite.Open(opts.sqlitePath)
		if err != nil {
			return nil, "", err
		}
		return db.DB, migrations.SQLite, nil
	case config.DriverPostgres:
		if opts.databaseURL == "" {
			return nil, "", fmt.Errorf("DATABASE_URL or --database-url is required for postgres")
		}
		db, err := sql.Open("pgx", opts.databaseURL)
		if err != nil {
			return nil, "", fmt.Errorf("failed to connect to database: %w", err)
		}
		if err := db.Ping(); err != nil {
			db.Close()
			return nil, "", fmt.Errorf("failed to ping database: %w", err)
		}
		opts.logger.Info("Connected to PostgreSQL successfully")
		return db, migrations.Postgres, nil
	default:
		return nil, "", fmt.Errorf("unsupported driver %q: want sqlite or postgres", opts.driver)
	}
}

// envOr retrieves environment variable or returns default value
func envOr(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
