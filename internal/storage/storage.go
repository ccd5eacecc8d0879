package storage

import (
	"context"
	"errors"
	"time"

	"library-backend/internal/models"
)

var (
	// ErrNotFound is returned when the requested row does not exist
	ErrNotFound = errors.New("not found")
	// ErrDuplicateISBN is returned when a book ISBN collides with an existing one
	ErrDuplicateISBN = errors.New("isbn already exists")
	// ErrReferenceNotFound is returned when a foreign key points at a missing row
	ErrReferenceNotFound = errors.New("referenced row not found")
	// ErrInUse is returned when a row cannot be deleted because borrow history references it
	ErrInUse = errors.New("row is referenced by borrow records")
	// ErrNoCopiesAvailable is returned when a guarded decrement finds no available copy
	ErrNoCopiesAvailable = errors.New("no copies available")
	// ErrAlreadyReturned is returned when a guarded return finds the record already returned
	ErrAlreadyReturned = errors.New("borrow record already returned")
)

// Storage defines the interface for data storage operations
type Storage interface {
	// Book operations
	ListBooks(ctx context.Context) ([]models.Book, error)
	GetBook(ctx context.Context, id int64) (*models.Book, error)
	// CreateBook persists the book and populates book.ID
	CreateBook(ctx context.Context, book *models.Book) error
	UpdateBook(ctx context.Context, book *models.Book) error
	DeleteBook(ctx context.Context, id int64) error

	// User operations
	ListUsers(ctx context.Context) ([]models.User, error)
	GetUser(ctx context.Context, id int64) (*models.User, error)
	// CreateUser persists the user and populates user.ID
	CreateUser(ctx context.Context, user *models.User) error
	UpdateUser(ctx context.Context, user *models.User) error
	DeleteUser(ctx context.Context, id int64) error

	// Borrow history, newest borrow first
	ListBorrowHistory(ctx context.Context) ([]models.BorrowHistoryEntry, error)

	// WithinTx runs fn inside a single store transaction.
	// The transaction commits when fn returns nil and rolls back otherwise.
	WithinTx(ctx context.Context, fn func(tx Tx) error) error

	// Lifecycle
	Initialize(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

// Tx holds the steps of the borrow, return and book update workflows
type Tx interface {
	GetBook(ctx context.Context, id int64) (*models.Book, error)
	// GetBookForUpdate reads the book and holds its row until the transaction ends
	GetBookForUpdate(ctx context.Context, id int64) (*models.Book, error)
	UpdateBook(ctx context.Context, book *models.Book) error
	// CountOpenLoans returns how many borrow records of the book are not returned yet
	CountOpenLoans(ctx context.Context, bookID int64) (int, error)
	// CreateBorrowRecord persists the record and populates record.ID
	CreateBorrowRecord(ctx context.Context, record *models.BorrowRecord) error
	// DecrementAvailableCopies takes one copy, failing with ErrNoCopiesAvailable when none is left
	DecrementAvailableCopies(ctx context.Context, bookID int64) error

	GetBorrowRecord(ctx context.Context, id int64) (*models.BorrowRecord, error)
	// MarkReturned finalizes the record, failing with ErrAlreadyReturned when it was returned before
	MarkReturned(ctx context.Context, recordID int64, returnDate time.Time, fine int) error
	// IncrementAvailableCopies puts one copy back, never exceeding the book's total copies
	IncrementAvailableCopies(ctx context.Context, bookID int64) error
}
