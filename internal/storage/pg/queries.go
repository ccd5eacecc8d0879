package pg

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/jackc/pgx/v5"

	"library-backend/internal/models"
	"library-backend/internal/storage"
)

var bookColumns = []any{"id", "title", "author", "isbn", "total_copies", "available_copies", "category_id"}

var recordColumns = []any{"id", "user_id", "book_id", "borrow_date", "return_date", "returned", "fine_amount"}

// queries runs statements against either the pool or an open transaction
type queries struct {
	q       querier
	builder goqu.DialectWrapper
}

func (q queries) GetBook(ctx context.Context, id int64) (*models.Book, error) {
	return q.getBook(ctx, q.builder.From(tableBooks).Where(goqu.C("id").Eq(id)))
}

func (q queries) GetBookForUpdate(ctx context.Context, id int64) (*models.Book, error) {
	return q.getBook(ctx, q.builder.From(tableBooks).Where(goqu.C("id").Eq(id)).ForUpdate(exp.Wait))
}

func (q queries) getBook(ctx context.Context, ds *goqu.SelectDataset) (*models.Book, error) {
	query, args, err := toSQL(ds.Select(bookColumns...).Prepared(true))
	if err != nil {
		return nil, err
	}

	rows, err := q.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get book: %w", err)
	}
	book, err := pgx.CollectExactlyOneRow(rows, pgx.RowToStructByName[models.Book])
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan book: %w", err)
	}
	return &book, nil
}

func (q queries) UpdateBook(ctx context.Context, book *models.Book) error {
	query, args, err := toSQL(q.builder.
		Update(tableBooks).
		Set(bookRecord(book)).
		Where(goqu.C("id").Eq(book.ID)).
		Prepared(true))
	if err != nil {
		return err
	}

	tag, err := q.q.Exec(ctx, query, args...)
	if hasCode(err, pgUniqueViolation) {
		return errors.Join(storage.ErrDuplicateISBN, err)
	}
	if err != nil {
		return fmt.Errorf("failed to update book: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (q queries) CountOpenLoans(ctx context.Context, bookID int64) (int, error) {
	query, args, err := toSQL(q.builder.
		From(tableBorrowRecords).
		Select(goqu.COUNT("*")).
		Where(goqu.C("book_id").Eq(bookID), goqu.C("returned").IsFalse()).
		Prepared(true))
	if err != nil {
		return 0, err
	}

	rows, err := q.q.Query(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to count open loans: %w", err)
	}
	n, err := pgx.CollectExactlyOneRow(rows, pgx.RowTo[int64])
	if err != nil {
		return 0, fmt.Errorf("failed to scan open loans: %w", err)
	}
	return int(n), nil
}

func (q queries) CreateBorrowRecord(ctx context.Context, record *models.BorrowRecord) error {
	query, args, err := toSQL(q.builder.
		Insert(tableBorrowRecords).
		Rows(goqu.Record{
			"user_id":     record.UserID,
			"book_id":     record.BookID,
			"borrow_date": record.BorrowDate,
			"returned":    false,
			"fine_amount": 0,
		}).
		Returning("id").
		Prepared(true))
	if err != nil {
		return err
	}

	id, err := q.insertReturningID(ctx, query, args)
	if hasCode(err, pgForeignKeyViolation) {
		return errors.Join(storage.ErrReferenceNotFound, err)
	}
	if err != nil {
		return fmt.Errorf("failed to insert borrow record: %w", err)
	}

	record.ID = id
	record.Returned = false
	record.FineAmount = 0
	record.ReturnDate = nil
	return nil
}

func (q queries) DecrementAvailableCopies(ctx context.Context, bookID int64) error {
	query, args, err := toSQL(q.builder.
		Update(tableBooks).
		Set(goqu.Record{"available_copies": goqu.L("available_copies - 1")}).
		Where(goqu.C("id").Eq(bookID), goqu.C("available_copies").Gt(0)).
		Prepared(true))
	if err != nil {
		return err
	}

	tag, err := q.q.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to decrement available copies: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNoCopiesAvailable
	}
	return nil
}

func (q queries) GetBorrowRecord(ctx context.Context, id int64) (*models.BorrowRecord, error) {
	query, args, err := toSQL(q.builder.
		From(tableBorrowRecords).
		Select(recordColumns...).
		Where(goqu.C("id").Eq(id)).
		Prepared(true))
	if err != nil {
		return nil, err
	}

	rows, err := q.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get borrow record: %w", err)
	}
	record, err := pgx.CollectExactlyOneRow(rows, pgx.RowToStructByName[models.BorrowRecord])
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan borrow record: %w", err)
	}
	return &record, nil
}

func (q queries) MarkReturned(ctx context.Context, recordID int64, returnDate time.Time, fine int) error {
	query, args, err := toSQL(q.builder.
		Update(tableBorrowRecords).
		Set(goqu.Record{
			"returned":    true,
			"return_date": returnDate,
			"fine_amount": fine,
		}).
		Where(goqu.C("id").Eq(recordID), goqu.C("returned").IsFalse()).
		Prepared(true))
	if err != nil {
		return err
	}

	tag, err := q.q.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to mark borrow record returned: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Distinguish a missing record from one that was returned already
		if _, getErr := q.GetBorrowRecord(ctx, recordID); getErr != nil {
			return getErr
		}
		return storage.ErrAlreadyReturned
	}
	return nil
}

func (q queries) IncrementAvailableCopies(ctx context.Context, bookID int64) error {
	query, args, err := toSQL(q.builder.
		Update(tableBooks).
		Set(goqu.Record{"available_copies": goqu.L("LEAST(available_copies + 1, total_copies)")}).
		Where(goqu.C("id").Eq(bookID)).
		Prepared(true))
	if err != nil {
		return err
	}

	if _, err := q.q.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to increment available copies: %w", err)
	}
	return nil
}

func (q queries) insertReturningID(ctx context.Context, query string, args []any) (int64, error) {
	rows, err := q.q.Query(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return pgx.CollectExactlyOneRow(rows, pgx.RowTo[int64])
}
