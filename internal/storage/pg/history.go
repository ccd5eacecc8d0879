package pg

import (
	"context"
	"fmt"

	"github.com/doug-martin/goqu/v9"
	"github.com/jackc/pgx/v5"

	"library-backend/internal/models"
)

// ListBorrowHistory joins borrow records with users and books, newest borrow first
func (s *PostgresStore) ListBorrowHistory(ctx context.Context) ([]models.BorrowHistoryEntry, error) {
	query, args, err := toSQL(s.builder.
		From(goqu.T(tableBorrowRecords).As("br")).
		Join(goqu.T(tableUsers).As("u"), goqu.On(goqu.I("br.user_id").Eq(goqu.I("u.id")))).
		Join(goqu.T(tableBooks).As("b"), goqu.On(goqu.I("br.book_id").Eq(goqu.I("b.id")))).
		Select(
			goqu.I("br.id"),
			goqu.I("u.name").As("user_name"),
			goqu.I("b.title").As("book_title"),
			goqu.I("br.borrow_date"),
			goqu.I("br.return_date"),
			goqu.I("br.returned"),
			goqu.I("br.fine_amount"),
		).
		Order(goqu.I("br.borrow_date").Desc(), goqu.I("br.id").Desc()).
		Prepared(true))
	if err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list borrow history: %w", err)
	}
	entries, err := pgx.CollectRows(rows, pgx.RowToStructByName[models.BorrowHistoryEntry])
	if err != nil {
		return nil, fmt.Errorf("failed to scan borrow history: %w", err)
	}
	return entries, nil
}
