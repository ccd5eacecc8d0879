package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"library-backend/internal/models"
	"library-backend/internal/storage"
)

const bookColumns = "id, title, author, isbn, total_copies, available_copies, category_id"

// queries runs statements against either the pool or an open transaction
type queries struct {
	q sqlx.ExtContext
}

func (q queries) GetBook(ctx context.Context, id int64) (*models.Book, error) {
	book := &models.Book{}
	err := sqlx.GetContext(ctx, q.q, book, "SELECT "+bookColumns+" FROM books WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get book: %w", err)
	}
	return book, nil
}

// GetBookForUpdate is a plain read: transactions begin IMMEDIATE and already hold the write lock
func (q queries) GetBookForUpdate(ctx context.Context, id int64) (*models.Book, error) {
	return q.GetBook(ctx, id)
}

func (q queries) UpdateBook(ctx context.Context, book *models.Book) error {
	res, err := q.q.ExecContext(ctx,
		`UPDATE books SET title = ?, author = ?, isbn = ?, total_copies = ?, available_copies = ?, category_id = ?
		 WHERE id = ?`,
		book.Title, book.Author, book.ISBN, book.TotalCopies, book.AvailableCopies, book.CategoryID, book.ID,
	)
	if isUniqueViolation(err) {
		return errors.Join(storage.ErrDuplicateISBN, err)
	}
	if err != nil {
		return fmt.Errorf("failed to update book: %w", err)
	}
	return requireRow(res, storage.ErrNotFound)
}

func (q queries) CountOpenLoans(ctx context.Context, bookID int64) (int, error) {
	var n int
	err := sqlx.GetContext(ctx, q.q, &n,
		"SELECT COUNT(*) FROM borrow_records WHERE book_id = ? AND returned = 0", bookID)
	if err != nil {
		return 0, fmt.Errorf("failed to count open loans: %w", err)
	}
	return n, nil
}

func (q queries) CreateBorrowRecord(ctx context.Context, record *models.BorrowRecord) error {
	res, err := q.q.ExecContext(ctx,
		`INSERT INTO borrow_records (user_id, book_id, borrow_date, returned, fine_amount)
		 VALUES (?, ?, ?, 0, 0)`,
		record.UserID, record.BookID, record.BorrowDate,
	)
	if isForeignKeyViolation(err) {
		return errors.Join(storage.ErrReferenceNotFound, err)
	}
	if err != nil {
		return fmt.Errorf("failed to insert borrow record: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read borrow record id: %w", err)
	}
	record.ID = id
	record.Returned = false
	record.FineAmount = 0
	record.ReturnDate = nil
	return nil
}

func (q queries) DecrementAvailableCopies(ctx context.Context, bookID int64) error {
	res, err := q.q.ExecContext(ctx,
		"UPDATE books SET available_copies = available_copies - 1 WHERE id = ? AND available_copies > 0",
		bookID,
	)
	if err != nil {
		return fmt.Errorf("failed to decrement available copies: %w", err)
	}
	return requireRow(res, storage.ErrNoCopiesAvailable)
}

func (q queries) GetBorrowRecord(ctx context.Context, id int64) (*models.BorrowRecord, error) {
	record := &models.BorrowRecord{}
	err := sqlx.GetContext(ctx, q.q, record,
		`SELECT id, user_id, book_id, borrow_date, return_date, returned, fine_amount
		 FROM borrow_records WHERE id = ?`,
		id,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get borrow record: %w", err)
	}
	return record, nil
}

func (q queries) MarkReturned(ctx context.Context, recordID int64, returnDate time.Time, fine int) error {
	res, err := q.q.ExecContext(ctx,
		`UPDATE borrow_records SET returned = 1, return_date = ?, fine_amount = ?
		 WHERE id = ? AND returned = 0`,
		returnDate, fine, recordID,
	)
	if err != nil {
		return fmt.Errorf("failed to mark borrow record returned: %w", err)
	}
	if err := requireRow(res, storage.ErrAlreadyReturned); err != nil {
		// Distinguish a missing record from one that was returned already
		if _, getErr := q.GetBorrowRecord(ctx, recordID); getErr != nil {
			return getErr
		}
		return err
	}
	return nil
}

func (q queries) IncrementAvailableCopies(ctx context.Context, bookID int64) error {
	_, err := q.q.ExecContext(ctx,
		"UPDATE books SET available_copies = MIN(available_copies + 1, total_copies) WHERE id = ?",
		bookID,
	)
	if err != nil {
		return fmt.Errorf("failed to increment available copies: %w", err)
	}
	return nil
}

// requireRow returns errNone when the statement touched no row
func requireRow(res sql.Result, errNone error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return errNone
	}
	return nil
}
