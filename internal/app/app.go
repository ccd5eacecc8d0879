package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"library-backend/internal/api"
	"library-backend/internal/circulation"
	"library-backend/internal/config"
	"library-backend/internal/notify"
	"library-backend/internal/storage"
	"library-backend/internal/storage/ch"
	"library-backend/internal/storage/pg"
	"library-backend/internal/storage/sqlite"
	"library-backend/internal/storage/stubs"
	"library-backend/pkg/logging"
)

// App represents the application
type App struct {
	config      *config.Config
	logger      *zap.Logger
	db          storage.Storage
	ledger      *ch.ClickHouseLedger
	circulation *circulation.Service
	server      *http.Server
}

// New creates and initializes a new application instance
func New() (*App, error) {
	// Load .env file if it exists
	envErr := godotenv.Load()

	// Load configuration from environment variables
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	if envErr != nil {
		logger.Debug("No .env file found, using system environment variables")
	}

	return NewWithConfig(cfg, logger)
}

// NewWithConfig builds the application from an already loaded configuration
func NewWithConfig(cfg *config.Config, logger *zap.Logger) (*App, error) {
	app := &App{config: cfg, logger: logger}

	logger.Info("Starting library backend",
		zap.String("store_driver", cfg.StoreDriver),
		zap.Bool("ledger_enabled", cfg.LedgerEnabled),
		zap.Bool("notifications_enabled", cfg.TelegramToken != ""),
	)

	// Initialize database
	if err := app.initDatabase(); err != nil {
		return nil, err
	}

	// Optional ledger and notifier
	opts, err := app.initCirculationOptions()
	if err != nil {
		app.closeStores()
		return nil, err
	}

	// Initialize HTTP server
	app.circulation = circulation.NewService(app.db, logger, opts...)
	app.initHTTPServer(api.NewServer(app.db, app.circulation, api.NewMetrics(), logger))

	return app, nil
}

// initDatabase opens the configured store and applies migrations
func (a *App) initDatabase() error {
	ctx := context.Background()

	var db storage.Storage
	switch a.config.StoreDriver {
	case config.DriverMemory:
		a.logger.Info("Using in-memory database")
		db = stubs.NewMockDB()
	case config.DriverPostgres:
		a.logger.Info("Connecting to PostgreSQL",
			zap.Int32("max_conns", a.config.DBMaxConns),
			zap.Int32("min_conns", a.config.DBMinConns))
		pgStore, err := pg.New(ctx, a.config.DatabaseURL, pg.PoolConfig{
			MaxConns: a.config.DBMaxConns,
			MinConns: a.config.DBMinConns,
		}, a.logger)
		if err != nil {
			return fmt.Errorf("failed to connect to PostgreSQL: %w", err)
		}
		db = pgStore
	default:
		a.logger.Info("Opening SQLite database", zap.String("path", a.config.SQLitePath))
		sqliteStore, err := sqlite.New(a.config.SQLitePath, a.logger)
		if err != nil {
			return fmt.Errorf("failed to open SQLite database: %w", err)
		}
		db = sqliteStore
	}

	// Initialize database schema
	if err := db.Initialize(ctx); err != nil {
		db.Close()
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	a.logger.Info("Database initialized successfully")

	a.db = db
	return nil
}

// initCirculationOptions connects the ClickHouse ledger and the Telegram notifier when configured
func (a *App) initCirculationOptions() ([]circulation.Option, error) {
	var opts []circulation.Option

	if a.config.LedgerEnabled {
		tlsStatus := "without TLS"
		if a.config.ClickHouseUseTLS {
			tlsStatus = "with TLS"
		}
		a.logger.Info(fmt.Sprintf("Connecting to ClickHouse at %s:%d (database: %s, user: %s, %s)",
			a.config.ClickHouseHost, a.config.ClickHousePort, a.config.ClickHouseDatabase, a.config.ClickHouseUser, tlsStatus))

		ledger, err := ch.NewClickHouseLedger(
			a.config.ClickHouseHost,
			a.config.ClickHousePort,
			a.config.ClickHouseDatabase,
			a.config.ClickHouseUser,
			a.config.ClickHousePassword,
			a.config.ClickHouseUseTLS,
			a.logger,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
		}
		if err := ledger.Initialize(context.Background()); err != nil {
			ledger.Close()
			return nil, fmt.Errorf("failed to initialize ledger: %w", err)
		}
		a.ledger = ledger
		opts = append(opts, circulation.WithLedger(ledger))
	}

	if a.config.TelegramToken != "" {
		notifier, err := notify.NewTelegramNotifier(a.config.TelegramToken, a.config.TelegramChatID, a.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create Telegram notifier: %w", err)
		}
		opts = append(opts, circulation.WithNotifier(notifier))
	} else {
		opts = append(opts, circulation.WithNotifier(notify.Nop{}))
	}

	return opts, nil
}

// initHTTPServer prepares the HTTP server
func (a *App) initHTTPServer(handler http.Handler) {
	a.server = &http.Server{
		Addr:              ":" + a.config.Port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
	}
}

// Handler returns the root HTTP handler
func (a *App) Handler() http.Handler {
	return a.server.Handler
}

// Run starts the application and blocks until shutdown
func (a *App) Run() error {
	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	serverErr := make(chan error, 1)
	go func() {
		a.logger.Info("Starting HTTP server", zap.String("addr", a.server.Addr))
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Wait for interrupt signal or a listener failure
	select {
	case sig := <-sigChan:
		a.logger.Info("Shutting down...", zap.String("signal", sig.String()))
	case err := <-serverErr:
		a.logger.Error("HTTP server error", zap.Error(err))
		a.closeStores()
		return fmt.Errorf("http server failed: %w", err)
	}

	return a.Shutdown()
}

// Shutdown gracefully shuts down the application
func (a *App) Shutdown() error {
	// Shutdown HTTP server gracefully
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.config.ShutdownTimeout)
	defer cancel()
	if err := a.server.Shutdown(shutdownCtx); err != nil {
		a.logger.Warn("HTTP server shutdown error", zap.Error(err))
	}
	if err := a.circulation.Wait(shutdownCtx); err != nil {
		a.logger.Warn("Pending notifications not delivered", zap.Error(err))
	}

	if err := a.closeStores(); err != nil {
		return err
	}

	a.logger.Info("Shutdown complete")
	_ = a.logger.Sync()
	return nil
}

func (a *App) closeStores() error {
	if a.ledger != nil {
		if err := a.ledger.Close(); err != nil {
			a.logger.Warn("Error closing ledger", zap.Error(err))
		}
	}

	// Close database
	if err := a.db.Close(); err != nil {
		a.logger.Error("Error closing database", zap.Error(err))
		return err
	}
	return nil
}
