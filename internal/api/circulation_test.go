package api

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"library-backend/internal/circulation"
	"library-backend/internal/models"
)

// memoryLedger keeps events in memory and serves them back per record
type memoryLedger struct {
	mu     sync.Mutex
	events []models.LedgerEvent
}

func (l *memoryLedger) RecordEvent(ctx context.Context, event models.LedgerEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, event)
	return nil
}

func (l *memoryLedger) ListEvents(ctx context.Context, recordID int64, limit int) ([]models.LedgerEvent, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var events []models.LedgerEvent
	for _, e := range l.events {
		if e.RecordID == recordID && len(events) < limit {
			events = append(events, e)
		}
	}
	return events, nil
}

func borrowBody(userID, bookID int64) string {
	return `{"user_id":` + itoa(userID) + `,"book_id":` + itoa(bookID) + `}`
}

func TestBorrowAndReturn(t *testing.T) {
	env := newTestEnv(t)
	user := env.createUser(t, "Alice", "alice@example.com")
	book := env.createBook(t, `{"title":"Dune","total_copies":1}`)

	rec := env.do(t, http.MethodPost, "/borrow", borrowBody(user.ID, book.ID))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	borrowed := decodeBody[borrowResponse](t, rec)
	assert.Equal(t, "Book borrowed successfully", borrowed.Message)
	assert.NotZero(t, borrowed.RecordID)

	got := decodeBody[models.Book](t, env.do(t, http.MethodGet, "/books/"+itoa(book.ID), ""))
	assert.Equal(t, 0, got.AvailableCopies)

	rec = env.do(t, http.MethodPost, "/borrow", borrowBody(user.ID, book.ID))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "No copies available", errorOf(t, rec))

	// 25 days later
	env.now = env.now.Add(25 * 24 * time.Hour)
	rec = env.do(t, http.MethodPost, "/return", `{"record_id":`+itoa(borrowed.RecordID)+`}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	returned := decodeBody[returnResponse](t, rec)
	assert.Equal(t, "Book returned successfully", returned.Message)
	assert.Equal(t, 25, returned.Fine)
	assert.Equal(t, "⚠️ You have a fine of ₹25.", returned.Notification)

	got = decodeBody[models.Book](t, env.do(t, http.MethodGet, "/books/"+itoa(book.ID), ""))
	assert.Equal(t, 1, got.AvailableCopies)

	rec = env.do(t, http.MethodPost, "/return", `{"record_id":`+itoa(borrowed.RecordID)+`}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Book already returned", errorOf(t, rec))

	history := decodeBody[[]models.BorrowHistoryEntry](t, env.do(t, http.MethodGet, "/borrow-records", ""))
	require.Len(t, history, 1)
	assert.Equal(t, "Alice", history[0].UserName)
	assert.Equal(t, "Dune", history[0].BookTitle)
	assert.True(t, history[0].Returned)
	assert.Equal(t, 25, history[0].FineAmount)

	rec = env.do(t, http.MethodGet, "/metrics", "")
	assert.Contains(t, rec.Body.String(), "library_borrows_total 1")
	assert.Contains(t, rec.Body.String(), "library_fines_total 25")
}

func TestBorrowErrors(t *testing.T) {
	env := newTestEnv(t)
	user := env.createUser(t, "Alice", "alice@example.com")
	book := env.createBook(t, `{"title":"Dune","total_copies":1}`)

	cases := []struct {
		name   string
		body   string
		status int
		want   string
	}{
		{"missing user", `{"book_id":1}`, http.StatusBadRequest, "user_id and book_id are required"},
		{"zero book", `{"user_id":1,"book_id":0}`, http.StatusBadRequest, "user_id and book_id are required"},
		{"garbage id", `{"user_id":"x","book_id":1}`, http.StatusBadRequest, "user_id and book_id are required"},
		{"negative id", `{"user_id":-1,"book_id":1}`, http.StatusBadRequest, "Identifiers must be positive integers"},
		{"unknown book", borrowBody(user.ID, 999), http.StatusNotFound, "Book not found"},
		{"unknown user", borrowBody(999, book.ID), http.StatusNotFound, "User not found"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, "/borrow", tc.body)
			assert.Equal(t, tc.status, rec.Code)
			assert.Equal(t, tc.want, errorOf(t, rec))
		})
	}

	// Failed borrows leave the copy on the shelf
	got := decodeBody[models.Book](t, env.do(t, http.MethodGet, "/books/"+itoa(book.ID), ""))
	assert.Equal(t, 1, got.AvailableCopies)

	// String ids are accepted
	rec := env.do(t, http.MethodPost, "/borrow", `{"user_id":"`+itoa(user.ID)+`","book_id":"`+itoa(book.ID)+`"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestReturnFineOverride(t *testing.T) {
	env := newTestEnv(t)
	user := env.createUser(t, "Alice", "alice@example.com")
	book := env.createBook(t, `{"title":"Dune","total_copies":5}`)

	borrow := func() int64 {
		rec := env.do(t, http.MethodPost, "/borrow", borrowBody(user.ID, book.ID))
		require.Equal(t, http.StatusOK, rec.Code)
		return decodeBody[borrowResponse](t, rec).RecordID
	}
	first, second, third, fourth := borrow(), borrow(), borrow(), borrow()
	env.now = env.now.Add(35 * 24 * time.Hour)

	cases := []struct {
		name     string
		recordID int64
		fine     string
		want     int
		text     string
	}{
		{"numeric string override", first, `"10"`, 10, "⚠️ You have a fine of ₹10."},
		{"zero override", second, `0`, 0, "✅ No fine! Thank you for returning on time."},
		{"invalid override is ignored", third, `"abc"`, 75, "⚠️ You have a fine of ₹75."},
		{"negative override is ignored", fourth, `-5`, 75, "⚠️ You have a fine of ₹75."},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, "/return", `{"record_id":`+itoa(tc.recordID)+`,"fine_amount":`+tc.fine+`}`)
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
			res := decodeBody[returnResponse](t, rec)
			assert.Equal(t, tc.want, res.Fine)
			assert.Equal(t, tc.text, res.Notification)
		})
	}
}

func TestReturnErrors(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/return", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "record_id is required", errorOf(t, rec))

	rec = env.do(t, http.MethodPost, "/return", `{"record_id":77}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Borrow record not found", errorOf(t, rec))
}

func TestReturnFineTooLarge(t *testing.T) {
	env := newTestEnv(t)
	user := env.createUser(t, "Alice", "alice@example.com")
	book := env.createBook(t, `{"title":"Dune","total_copies":1}`)

	rec := env.do(t, http.MethodPost, "/borrow", borrowBody(user.ID, book.ID))
	require.Equal(t, http.StatusOK, rec.Code)
	recordID := decodeBody[borrowResponse](t, rec).RecordID

	rec = env.do(t, http.MethodPost, "/return", `{"record_id":`+itoa(recordID)+`,"fine_amount":3000000000}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "fine_amount is too large", errorOf(t, rec))

	// The rejected return left the loan open
	rec = env.do(t, http.MethodPost, "/return", `{"record_id":`+itoa(recordID)+`,"fine_amount":2147483647}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 2147483647, decodeBody[returnResponse](t, rec).Fine)
}

func TestBorrowRecordEvents(t *testing.T) {
	ledger := &memoryLedger{}
	env := newTestEnv(t, circulation.WithLedger(ledger))
	user := env.createUser(t, "Alice", "alice@example.com")
	book := env.createBook(t, `{"title":"Dune","total_copies":1}`)

	rec := env.do(t, http.MethodPost, "/borrow", borrowBody(user.ID, book.ID))
	require.Equal(t, http.StatusOK, rec.Code)
	recordID := decodeBody[borrowResponse](t, rec).RecordID
	path := "/borrow-records/" + itoa(recordID) + "/events"

	events := decodeBody[[]models.LedgerEvent](t, env.do(t, http.MethodGet, path, ""))
	require.Len(t, events, 1)
	assert.Equal(t, models.LedgerEventBorrowed, events[0].Kind)

	env.now = env.now.Add(31 * 24 * time.Hour)
	rec = env.do(t, http.MethodPost, "/return", `{"record_id":`+itoa(recordID)+`}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, path, "")
	require.Equal(t, http.StatusOK, rec.Code)
	events = decodeBody[[]models.LedgerEvent](t, rec)
	require.Len(t, events, 2)
	assert.Equal(t, models.LedgerEventReturned, events[1].Kind)
	assert.Equal(t, 15, events[1].FineAmount)
	assert.Equal(t, user.ID, events[1].UserID)

	rec = env.do(t, http.MethodGet, "/borrow-records/999/events", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Borrow record not found", errorOf(t, rec))

	rec = env.do(t, http.MethodGet, "/borrow-records/abc/events", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid borrow record id", errorOf(t, rec))
}

func TestBorrowRecordEventsWithoutLedger(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/borrow-records/1/events", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Ledger is not enabled", errorOf(t, rec))
}

func TestBorrowRecordsEmpty(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/borrow-records", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}
