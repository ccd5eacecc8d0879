package stubs

import (
	"context"
	"sort"
	"sync"
	"time"

	"library-backend/internal/models"
	"library-backend/internal/storage"
)

var _ storage.Storage = (*MockDB)(nil)

// MockDB is an in-memory implementation of the Storage interface for testing
type MockDB struct {
	mu      sync.RWMutex
	books   map[int64]models.Book
	users   map[int64]models.User
	records map[int64]models.BorrowRecord
	nextID  map[string]int64
}

// NewMockDB creates a new mock database
func NewMockDB() *MockDB {
	return &MockDB{
		books:   make(map[int64]models.Book),
		users:   make(map[int64]models.User),
		records: make(map[int64]models.BorrowRecord),
		nextID:  make(map[string]int64),
	}
}

// Initialize is a no-op, the mock has no schema
func (m *MockDB) Initialize(ctx context.Context) error {
	return nil
}

// Ping always succeeds
func (m *MockDB) Ping(ctx context.Context) error {
	return nil
}

// Close does nothing for mock DB
func (m *MockDB) Close() error {
	return nil
}

func (m *MockDB) allocateID(table string) int64 {
	m.nextID[table]++
	return m.nextID[table]
}

// ListBooks returns all books ordered by id
func (m *MockDB) ListBooks(ctx context.Context) ([]models.Book, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	books := make([]models.Book, 0, len(m.books))
	for _, book := range m.books {
		books = append(books, cloneBook(book))
	}
	sort.Slice(books, func(i, j int) bool {
		return books[i].ID < books[j].ID
	})
	return books, nil
}

// GetBook returns a book by id
func (m *MockDB) GetBook(ctx context.Context, id int64) (*models.Book, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getBook(id)
}

func (m *MockDB) getBook(id int64) (*models.Book, error) {
	book, ok := m.books[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	b := cloneBook(book)
	return &b, nil
}

// CreateBook stores a new book and assigns its id
func (m *MockDB) CreateBook(ctx context.Context, book *models.Book) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.isbnTaken(book.ISBN, 0) {
		return storage.ErrDuplicateISBN
	}
	book.ID = m.allocateID("books")
	m.books[book.ID] = cloneBook(*book)
	return nil
}

// UpdateBook replaces an existing book
func (m *MockDB) UpdateBook(ctx context.Context, book *models.Book) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateBook(book)
}

func (m *MockDB) updateBook(book *models.Book) error {
	if _, ok := m.books[book.ID]; !ok {
		return storage.ErrNotFound
	}
	if m.isbnTaken(book.ISBN, book.ID) {
		return storage.ErrDuplicateISBN
	}
	m.books[book.ID] = cloneBook(*book)
	return nil
}

// DeleteBook removes a book that has no borrow history
func (m *MockDB) DeleteBook(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.books[id]; !ok {
		return storage.ErrNotFound
	}
	for _, r := range m.records {
		if r.BookID == id {
			return storage.ErrInUse
		}
	}
	delete(m.books, id)
	return nil
}

func (m *MockDB) isbnTaken(isbn *string, exceptID int64) bool {
	if isbn == nil {
		return false
	}
	for id, b := range m.books {
		if id != exceptID && b.ISBN != nil && *b.ISBN == *isbn {
			return true
		}
	}
	return false
}

// ListUsers returns all users ordered by id
func (m *MockDB) ListUsers(ctx context.Context) ([]models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	users := make([]models.User, 0, len(m.users))
	for _, u := range m.users {
		users = append(users, u)
	}
	sort.Slice(users, func(i, j int) bool {
		return users[i].ID < users[j].ID
	})
	return users, nil
}

// GetUser returns a user by id
func (m *MockDB) GetUser(ctx context.Context, id int64) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	u, ok := m.users[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &u, nil
}

// CreateUser stores a new user and assigns its id
func (m *MockDB) CreateUser(ctx context.Context, user *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	user.ID = m.allocateID("users")
	m.users[user.ID] = *user
	return nil
}

// UpdateUser replaces an existing user
func (m *MockDB) UpdateUser(ctx context.Context, user *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.users[user.ID]; !ok {
		return storage.ErrNotFound
	}
	m.users[user.ID] = *user
	return nil
}

// DeleteUser removes a user that has no borrow history
func (m *MockDB) DeleteUser(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.users[id]; !ok {
		return storage.ErrNotFound
	}
	for _, r := range m.records {
		if r.UserID == id {
			return storage.ErrInUse
		}
	}
	delete(m.users, id)
	return nil
}

// ListBorrowHistory returns borrow records joined with user and book, newest first
func (m *MockDB) ListBorrowHistory(ctx context.Context) ([]models.BorrowHistoryEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entries := make([]models.BorrowHistoryEntry, 0, len(m.records))
	for _, r := range m.records {
		user, userOK := m.users[r.UserID]
		book, bookOK := m.books[r.BookID]
		// Inner join semantics
		if !userOK || !bookOK {
			continue
		}
		entries = append(entries, models.BorrowHistoryEntry{
			ID:         r.ID,
			UserName:   user.Name,
			BookTitle:  book.Title,
			BorrowDate: r.BorrowDate,
			ReturnDate: cloneTime(r.ReturnDate),
			Returned:   r.Returned,
			FineAmount: r.FineAmount,
		})
	}

	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].BorrowDate.Equal(entries[j].BorrowDate) {
			return entries[i].BorrowDate.After(entries[j].BorrowDate)
		}
		return entries[i].ID > entries[j].ID
	})
	return entries, nil
}

// WithinTx runs fn with the write lock held and restores the previous state if fn fails
func (m *MockDB) WithinTx(ctx context.Context, fn func(tx storage.Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.snapshot()
	if err := fn(&mockTx{db: m}); err != nil {
		m.restore(snapshot)
		return err
	}
	return nil
}

type mockState struct {
	books   map[int64]models.Book
	records map[int64]models.BorrowRecord
	nextID  map[string]int64
}

func (m *MockDB) snapshot() mockState {
	s := mockState{
		books:   make(map[int64]models.Book, len(m.books)),
		records: make(map[int64]models.BorrowRecord, len(m.records)),
		nextID:  make(map[string]int64, len(m.nextID)),
	}
	for k, v := range m.books {
		s.books[k] = cloneBook(v)
	}
	for k, v := range m.records {
		v.ReturnDate = cloneTime(v.ReturnDate)
		s.records[k] = v
	}
	for k, v := range m.nextID {
		s.nextID[k] = v
	}
	return s
}

func (m *MockDB) restore(s mockState) {
	m.books = s.books
	m.records = s.records
	m.nextID = s.nextID
}

// mockTx runs with MockDB.mu already held
type mockTx struct {
	db *MockDB
}

func (t *mockTx) GetBook(ctx context.Context, id int64) (*models.Book, error) {
	return t.db.getBook(id)
}

func (t *mockTx) GetBookForUpdate(ctx context.Context, id int64) (*models.Book, error) {
	return t.db.getBook(id)
}

func (t *mockTx) UpdateBook(ctx context.Context, book *models.Book) error {
	return t.db.updateBook(book)
}

func (t *mockTx) CountOpenLoans(ctx context.Context, bookID int64) (int, error) {
	n := 0
	for _, r := range t.db.records {
		if r.BookID == bookID && !r.Returned {
			n++
		}
	}
	return n, nil
}

func (t *mockTx) CreateBorrowRecord(ctx context.Context, record *models.BorrowRecord) error {
	if _, ok := t.db.users[record.UserID]; !ok {
		return storage.ErrReferenceNotFound
	}
	if _, ok := t.db.books[record.BookID]; !ok {
		return storage.ErrReferenceNotFound
	}
	record.ID = t.db.allocateID("borrow_records")
	r := *record
	r.ReturnDate = cloneTime(record.ReturnDate)
	t.db.records[r.ID] = r
	return nil
}

func (t *mockTx) DecrementAvailableCopies(ctx context.Context, bookID int64) error {
	book, ok := t.db.books[bookID]
	if !ok || book.AvailableCopies <= 0 {
		return storage.ErrNoCopiesAvailable
	}
	book.AvailableCopies--
	t.db.books[bookID] = book
	return nil
}

func (t *mockTx) GetBorrowRecord(ctx context.Context, id int64) (*models.BorrowRecord, error) {
	r, ok := t.db.records[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	r.ReturnDate = cloneTime(r.ReturnDate)
	return &r, nil
}

func (t *mockTx) MarkReturned(ctx context.Context, recordID int64, returnDate time.Time, fine int) error {
	r, ok := t.db.records[recordID]
	if !ok {
		return storage.ErrNotFound
	}
	if r.Returned {
		return storage.ErrAlreadyReturned
	}
	r.Returned = true
	r.ReturnDate = &returnDate
	r.FineAmount = fine
	t.db.records[recordID] = r
	return nil
}

func (t *mockTx) IncrementAvailableCopies(ctx context.Context, bookID int64) error {
	book, ok := t.db.books[bookID]
	if !ok {
		return nil
	}
	if book.AvailableCopies < book.TotalCopies {
		book.AvailableCopies++
	}
	t.db.books[bookID] = book
	return nil
}

func cloneBook(b models.Book) models.Book {
	if b.ISBN != nil {
		isbn := *b.ISBN
		b.ISBN = &isbn
	}
	if b.CategoryID != nil {
		id := *b.CategoryID
		b.CategoryID = &id
	}
	return b
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
