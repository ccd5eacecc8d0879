// Package pg provides a PostgreSQL-backed implementation of the storage.Storage interface
// on top of a pgx connection pool.
package pg

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres" // dialect registration
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"

	"library-backend/internal/storage"
	"library-backend/migrations"
)

const (
	dialectPostgres = "postgres"

	tableBooks         = "books"
	tableUsers         = "users"
	tableBorrowRecords = "borrow_records"

	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

var _ storage.Storage = (*PostgresStore)(nil)

// PoolConfig holds the connection pool limits
type PoolConfig struct {
	MaxConns int32
	MinConns int32
}

// PostgresStore implements storage.Storage using a pgx pool
type PostgresStore struct {
	pool    *pgxpool.Pool
	builder goqu.DialectWrapper
	logger  *zap.Logger
}

// querier is satisfied by both *pgxpool.Pool and pgx.Tx
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// New connects to PostgreSQL using dsn and verifies the connection
func New(ctx context.Context, dsn string, poolCfg PoolConfig, logger *zap.Logger) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database url: %w", err)
	}

	if poolCfg.MaxConns > 0 {
		cfg.MaxConns = poolCfg.MaxConns
	}
	if poolCfg.MinConns > 0 {
		cfg.MinConns = poolCfg.MinConns
	}
	cfg.MaxConnLifetime = time.Hour
	cfg.MaxConnIdleTime = 5 * time.Minute
	cfg.HealthCheckPeriod = time.Minute
	cfg.ConnConfig.ConnectTimeout = 5 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping PostgreSQL: %w", err)
	}

	return &PostgresStore{
		pool:    pool,
		builder: goqu.Dialect(dialectPostgres),
		logger:  logger,
	}, nil
}

// Initialize applies pending schema migrations through a database/sql view of the pool
func (s *PostgresStore) Initialize(ctx context.Context) error {
	// The pool owns the connections, db only borrows them
	db := stdlib.OpenDBFromPool(s.pool)

	applied, err := migrations.Up(ctx, db, migrations.Postgres)
	if err != nil {
		return err
	}
	s.logger.Info("PostgreSQL migrations applied", zap.Int("count", applied))
	return nil
}

// Ping checks the database connection
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close closes the connection pool
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// WithinTx runs fn in a transaction, committing only when fn succeeds
func (s *PostgresStore) WithinTx(ctx context.Context, fn func(tx storage.Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(queries{q: tx, builder: s.builder}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (s *PostgresStore) queries() queries {
	return queries{q: s.pool, builder: s.builder}
}

func hasCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == code
}

// toSQL renders a goqu dataset as a prepared statement
func toSQL(ds interface {
	ToSQL() (string, []any, error)
}) (string, []any, error) {
	query, args, err := ds.ToSQL()
	if err != nil {
		return "", nil, fmt.Errorf("failed to build query: %w", err)
	}
	return query, args, nil
}
