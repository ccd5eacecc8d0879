package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Store drivers
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Config holds the application configuration
type Config struct {
	Port            string
	ShutdownTimeout time.Duration

	// Logging
	LogLevel  string
	LogFormat string

	// Relational store configuration
	StoreDriver string
	SQLitePath  string
	DatabaseURL string
	DBMaxConns  int32
	DBMinConns  int32

	// Lending ledger (ClickHouse) configuration
	LedgerEnabled      bool
	ClickHouseHost     string
	ClickHousePort     int
	ClickHouseDatabase string
	ClickHouseUser     string
	ClickHousePassword string
	ClickHouseUseTLS   bool

	// Return notifications (Telegram), disabled when the token is empty
	TelegramToken  string
	TelegramChatID int64
}

// LoadFromEnv loads configuration from environment variables
func LoadFromEnv() (*Config, error) {
	config := &Config{
		Port:       envOrDefault("PORT", "8080"),
		LogLevel:   os.Getenv("LOG_LEVEL"),
		LogFormat:  os.Getenv("LOG_FORMAT"),
		SQLitePath: envOrDefault("SQLITE_PATH", "./data/library.db"),
	}

	timeout, err := time.ParseDuration(envOrDefault("SHUTDOWN_TIMEOUT", "5s"))
	if err != nil {
		return nil, fmt.Errorf("invalid SHUTDOWN_TIMEOUT: %w", err)
	}
	config.ShutdownTimeout = timeout

	// Store driver (default: sqlite)
	config.StoreDriver = envOrDefault("STORE_DRIVER", DriverSQLite)
	switch config.StoreDriver {
	case DriverSQLite, DriverMemory:
	case DriverPostgres:
		config.DatabaseURL = os.Getenv("DATABASE_URL")
		if config.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL is required when STORE_DRIVER is postgres")
		}
	default:
		return nil, fmt.Errorf("invalid STORE_DRIVER: %q (want sqlite, postgres or memory)", config.StoreDriver)
	}

	maxConns, err := envInt("DB_MAX_CONNS", 8)
	if err != nil {
		return nil, err
	}
	minConns, err := envInt("DB_MIN_CONNS", 2)
	if err != nil {
		return nil, err
	}
	if minConns > maxConns {
		return nil, fmt.Errorf("DB_MIN_CONNS (%d) must not exceed DB_MAX_CONNS (%d)", minConns, maxConns)
	}
	config.DBMaxConns = int32(maxConns)
	config.DBMinConns = int32(minConns)

	// ClickHouse configuration (required if the ledger is enabled)
	config.LedgerEnabled = os.Getenv("LEDGER_ENABLED") == "true"
	if config.LedgerEnabled {
		config.ClickHouseHost = os.Getenv("CLICKHOUSE_HOST")
		if config.ClickHouseHost == "" {
			return nil, fmt.Errorf("CLICKHOUSE_HOST is required when LEDGER_ENABLED is true")
		}

		port, err := envInt("CLICKHOUSE_PORT", 9000) // Default ClickHouse native port
		if err != nil {
			return nil, err
		}
		config.ClickHousePort = port

		config.ClickHouseDatabase = envOrDefault("CLICKHOUSE_DATABASE", "default")
		config.ClickHouseUser = envOrDefault("CLICKHOUSE_USER", "default")

		config.ClickHousePassword = os.Getenv("CLICKHOUSE_PASSWORD")
		// Password is optional, can be empty

		config.ClickHouseUseTLS = os.Getenv("CLICKHOUSE_USE_TLS") == "true"
	}

	// Telegram notifier (optional)
	config.TelegramToken = os.Getenv("TELEGRAM_BOT_TOKEN")
	if config.TelegramToken != "" {
		chatIDStr := os.Getenv("TELEGRAM_CHAT_ID")
		if chatIDStr == "" {
			return nil, fmt.Errorf("TELEGRAM_CHAT_ID is required when TELEGRAM_BOT_TOKEN is set")
		}
		chatID, err := strconv.ParseInt(chatIDStr, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid TELEGRAM_CHAT_ID: %s", chatIDStr)
		}
		config.TelegramChatID = chatID
	}

	return config, nil
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}
