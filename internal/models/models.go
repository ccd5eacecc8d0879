package models

import "time"

// Book represents a title in the catalog together with its copy counts
type Book struct {
	ID              int64   `json:"id" db:"id"`
	Title           string  `json:"title" db:"title"`
	Author          string  `json:"author" db:"author"`
	ISBN            *string `json:"isbn" db:"isbn"`
	TotalCopies     int     `json:"total_copies" db:"total_copies"`
	AvailableCopies int     `json:"available_copies" db:"available_copies"`
	CategoryID      *int64  `json:"category_id" db:"category_id"`
}

// User represents a library member
type User struct {
	ID    int64  `json:"id" db:"id"`
	Name  string `json:"name" db:"name"`
	Email string `json:"email" db:"email"`
}

// BorrowRecord ties a user to a borrowed book.
// ReturnDate stays nil until the record is returned.
type BorrowRecord struct {
	ID         int64      `json:"id" db:"id"`
	UserID     int64      `json:"user_id" db:"user_id"`
	BookID     int64      `json:"book_id" db:"book_id"`
	BorrowDate time.Time  `json:"borrow_date" db:"borrow_date"`
	ReturnDate *time.Time `json:"return_date" db:"return_date"`
	Returned   bool       `json:"returned" db:"returned"`
	FineAmount int        `json:"fine_amount" db:"fine_amount"`
}

// BorrowHistoryEntry is a borrow record joined with user and book names
type BorrowHistoryEntry struct {
	ID         int64      `json:"id" db:"id"`
	UserName   string     `json:"user_name" db:"user_name"`
	BookTitle  string     `json:"book_title" db:"book_title"`
	BorrowDate time.Time  `json:"borrow_date" db:"borrow_date"`
	ReturnDate *time.Time `json:"return_date" db:"return_date"`
	Returned   bool       `json:"returned" db:"returned"`
	FineAmount int        `json:"fine_amount" db:"fine_amount"`
}

// LedgerEventKind names a lending state transition
type LedgerEventKind string

const (
	LedgerEventBorrowed LedgerEventKind = "borrowed"
	LedgerEventReturned LedgerEventKind = "returned"
)

// LedgerEvent is an append-only record of a borrow or a return
type LedgerEvent struct {
	Kind       LedgerEventKind `json:"kind"`
	RecordID   int64           `json:"record_id"`
	UserID     int64           `json:"user_id"`
	BookID     int64           `json:"book_id"`
	FineAmount int             `json:"fine_amount"`
	OccurredAt time.Time       `json:"occurred_at"`
}
