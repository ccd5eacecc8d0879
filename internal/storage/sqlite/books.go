package sqlite

import (
	"context"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"library-backend/internal/models"
	"library-backend/internal/storage"
)

// ListBooks returns all books ordered by id
func (s *SQLiteStore) ListBooks(ctx context.Context) ([]models.Book, error) {
	books := []models.Book{}
	if err := sqlx.SelectContext(ctx, s.db, &books, "SELECT "+bookColumns+" FROM books ORDER BY id"); err != nil {
		return nil, fmt.Errorf("failed to list books: %w", err)
	}
	return books, nil
}

// GetBook retrieves a book by id
func (s *SQLiteStore) GetBook(ctx context.Context, id int64) (*models.Book, error) {
	return queries{q: s.db}.GetBook(ctx, id)
}

// CreateBook inserts a new book and populates book.ID
func (s *SQLiteStore) CreateBook(ctx context.Context, book *models.Book) error {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO books (title, author, isbn, total_copies, available_copies, category_id)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		book.Title, book.Author, book.ISBN, book.TotalCopies, book.AvailableCopies, book.CategoryID,
	)
	if isUniqueViolation(err) {
		return errors.Join(storage.ErrDuplicateISBN, err)
	}
	if err != nil {
		return fmt.Errorf("failed to insert book: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read book id: %w", err)
	}
	book.ID = id
	return nil
}

// UpdateBook overwrites an existing book
func (s *SQLiteStore) UpdateBook(ctx context.Context, book *models.Book) error {
	return queries{q: s.db}.UpdateBook(ctx, book)
}

// DeleteBook removes a book unless borrow records reference it
func (s *SQLiteStore) DeleteBook(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM books WHERE id = ?", id)
	if isForeignKeyViolation(err) {
		return errors.Join(storage.ErrInUse, err)
	}
	if err != nil {
		return fmt.Errorf("failed to delete book: %w", err)
	}
	return requireRow(res, storage.ErrNotFound)
}
