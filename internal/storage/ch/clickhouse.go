// Package ch provides an append-only lending ledger on top of ClickHouse.
package ch

import (
	"context"
	"crypto/tls"
	"fmt"

	"github.com/ClickHouse/clickhouse-go/v2"
	"go.uber.org/zap"

	"library-backend/internal/models"
)

const createBorrowEventsTable = `
	CREATE TABLE IF NOT EXISTS borrow_events (
		occurred_at DateTime64(3, 'UTC'),
		kind LowCardinality(String),
		record_id Int64,
		user_id Int64,
		book_id Int64,
		fine_amount Int64
	) ENGINE = MergeTree()
	ORDER BY (occurred_at, record_id)
`

// ClickHouseLedger records borrow and return events
type ClickHouseLedger struct {
	conn   clickhouse.Conn
	logger *zap.Logger
}

// NewClickHouseLedger creates a new ClickHouse connection for the ledger
func NewClickHouseLedger(host string, port int, database, user, password string, useTLS bool, logger *zap.Logger) (*ClickHouseLedger, error) {
	addr := fmt.Sprintf("%s:%d", host, port)

	options := &clickhouse.Options{
		Addr:     []string{addr},
		Protocol: clickhouse.Native,
		Auth: clickhouse.Auth{
			Database: database,
			Username: user,
			Password: password,
		},
	}

	// Configure TLS if enabled
	if useTLS {
		options.TLS = &tls.Config{
			InsecureSkipVerify: false,
		}
	}

	conn, err := clickhouse.Open(options)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}

	// Test the connection
	if err := conn.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}

	return &ClickHouseLedger{conn: conn, logger: logger}, nil
}

// Initialize creates the events table when it does not exist yet.
// goose has no ClickHouse dialect here, so the single table is created in place.
func (l *ClickHouseLedger) Initialize(ctx context.Context) error {
	if err := l.conn.Exec(ctx, createBorrowEventsTable); err != nil {
		return fmt.Errorf("failed to create borrow_events table: %w", err)
	}
	return nil
}

// RecordEvent appends a lending event
func (l *ClickHouseLedger) RecordEvent(ctx context.Context, event models.LedgerEvent) error {
	err := l.conn.Exec(ctx, `INSERT INTO borrow_events (occurred_at, kind, record_id, user_id, book_id, fine_amount) VALUES (?, ?, ?, ?, ?, ?)`,
		event.OccurredAt, string(event.Kind), event.RecordID, event.UserID, event.BookID, int64(event.FineAmount))
	if err != nil {
		return fmt.Errorf("failed to record %s event: %w", event.Kind, err)
	}
	l.logger.Debug("Ledger event recorded",
		zap.String("kind", string(event.Kind)),
		zap.Int64("record_id", event.RecordID))
	return nil
}

// ListEvents returns the most recent events for a borrow record, oldest first.
// A recordID of 0 returns the last limit events across all records.
func (l *ClickHouseLedger) ListEvents(ctx context.Context, recordID int64, limit int) ([]models.LedgerEvent, error) {
	rows, err := l.conn.Query(ctx, `
		SELECT occurred_at, kind, record_id, user_id, book_id, fine_amount
		FROM (
			SELECT * FROM borrow_events
			WHERE ? = 0 OR record_id = ?
			ORDER BY occurred_at DESC, record_id DESC
			LIMIT ?
		)
		ORDER BY occurred_at, record_id`, recordID, recordID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list ledger events: %w", err)
	}
	defer rows.Close()

	var events []models.LedgerEvent
	for rows.Next() {
		var (
			event models.LedgerEvent
			kind  string
			fine  int64
		)
		if err := rows.Scan(&event.OccurredAt, &kind, &event.RecordID, &event.UserID, &event.BookID, &fine); err != nil {
			return nil, fmt.Errorf("failed to scan ledger event: %w", err)
		}
		event.Kind = models.LedgerEventKind(kind)
		event.FineAmount = int(fine)
		events = append(events, event)
	}
	return events, rows.Err()
}

// Close closes the database connection
func (l *ClickHouseLedger) Close() error {
	if l.conn != nil {
		return l.conn.Close()
	}
	return nil
}
