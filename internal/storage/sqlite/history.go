package sqlite

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"library-backend/internal/models"
)

// ListBorrowHistory joins borrow records with users and books, newest borrow first
func (s *SQLiteStore) ListBorrowHistory(ctx context.Context) ([]models.BorrowHistoryEntry, error) {
	entries := []models.BorrowHistoryEntry{}
	err := sqlx.SelectContext(ctx, s.db, &entries, `
		SELECT
			br.id,
			u.name AS user_name,
			b.title AS book_title,
			br.borrow_date,
			br.return_date,
			br.returned,
			br.fine_amount
		FROM borrow_records br
		JOIN users u ON br.user_id = u.id
		JOIN books b ON br.book_id = b.id
		ORDER BY br.borrow_date DESC, br.id DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list borrow history: %w", err)
	}
	return entries, nil
}
