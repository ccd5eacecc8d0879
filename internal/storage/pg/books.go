package pg

import (
	"context"
	"errors"
	"fmt"

	"github.com/doug-martin/goqu/v9"
	"github.com/jackc/pgx/v5"

	"library-backend/internal/models"
	"library-backend/internal/storage"
)

// ListBooks returns all books ordered by id
func (s *PostgresStore) ListBooks(ctx context.Context) ([]models.Book, error) {
	query, args, err := toSQL(s.builder.
		From(tableBooks).
		Select(bookColumns...).
		Order(goqu.C("id").Asc()).
		Prepared(true))
	if err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list books: %w", err)
	}
	books, err := pgx.CollectRows(rows, pgx.RowToStructByName[models.Book])
	if err != nil {
		return nil, fmt.Errorf("failed to scan books: %w", err)
	}
	return books, nil
}

// GetBook retrieves a book by id
func (s *PostgresStore) GetBook(ctx context.Context, id int64) (*models.Book, error) {
	return s.queries().GetBook(ctx, id)
}

// CreateBook inserts a new book and populates book.ID
func (s *PostgresStore) CreateBook(ctx context.Context, book *models.Book) error {
	query, args, err := toSQL(s.builder.
		Insert(tableBooks).
		Rows(bookRecord(book)).
		Returning("id").
		Prepared(true))
	if err != nil {
		return err
	}

	id, err := s.queries().insertReturningID(ctx, query, args)
	if hasCode(err, pgUniqueViolation) {
		return errors.Join(storage.ErrDuplicateISBN, err)
	}
	if err != nil {
		return fmt.Errorf("failed to insert book: %w", err)
	}
	book.ID = id
	return nil
}

// UpdateBook overwrites an existing book
func (s *PostgresStore) UpdateBook(ctx context.Context, book *models.Book) error {
	return s.queries().UpdateBook(ctx, book)
}

// DeleteBook removes a book unless borrow records reference it
func (s *PostgresStore) DeleteBook(ctx context.Context, id int64) error {
	return s.deleteByID(ctx, tableBooks, id)
}

func (s *PostgresStore) deleteByID(ctx context.Context, table string, id int64) error {
	query, args, err := toSQL(s.builder.
		Delete(table).
		Where(goqu.C("id").Eq(id)).
		Prepared(true))
	if err != nil {
		return err
	}

	tag, err := s.pool.Exec(ctx, query, args...)
	if hasCode(err, pgForeignKeyViolation) {
		return errors.Join(storage.ErrInUse, err)
	}
	if err != nil {
		return fmt.Errorf("failed to delete from %s: %w", table, err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func bookRecord(book *models.Book) goqu.Record {
	return goqu.Record{
		"title":            book.Title,
		"author":           book.Author,
		"isbn":             book.ISBN,
		"total_copies":     book.TotalCopies,
		"available_copies": book.AvailableCopies,
		"category_id":      book.CategoryID,
	}
}
