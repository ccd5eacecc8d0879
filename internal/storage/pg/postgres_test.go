package pg

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	postgresTC "github.com/testcontainers/testcontainers-go/modules/postgres"
	"go.uber.org/zap"

	"library-backend/internal/models"
	"library-backend/internal/storage"
)

// setupTestStore starts a PostgreSQL container and returns a migrated store
func setupTestStore(t *testing.T) *PostgresStore {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping PostgreSQL container test in short mode")
	}
	ctx := context.Background()

	// Start PostgreSQL container
	container, err := postgresTC.Run(ctx,
		"postgres:16-alpine",
		postgresTC.WithDatabase("library"),
		postgresTC.WithUsername("library"),
		postgresTC.WithPassword("library"),
		postgresTC.BasicWaitStrategies(),
	)
	require.NoError(t, err, "Failed to start PostgreSQL container")
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	store, err := New(ctx, dsn, PoolConfig{MaxConns: 8, MinConns: 1}, zap.NewNop())
	require.NoError(t, err, "Failed to connect to PostgreSQL")
	t.Cleanup(func() { store.Close() })

	require.NoError(t, store.Initialize(ctx), "Failed to run migrations")
	return store
}

func strPtr(s string) *string { return &s }

func int64Ptr(v int64) *int64 { return &v }

func TestPostgresStore_Books(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	book := &models.Book{
		Title:           "Dune",
		Author:          "Frank Herbert",
		ISBN:            strPtr("978-0441172719"),
		TotalCopies:     3,
		AvailableCopies: 3,
		CategoryID:      int64Ptr(1),
	}
	require.NoError(t, store.CreateBook(ctx, book))
	assert.NotZero(t, book.ID)

	got, err := store.GetBook(ctx, book.ID)
	require.NoError(t, err)
	assert.Equal(t, book, got)

	err = store.CreateBook(ctx, &models.Book{Title: "Dune again", ISBN: strPtr("978-0441172719"), TotalCopies: 1, AvailableCopies: 1})
	assert.ErrorIs(t, err, storage.ErrDuplicateISBN)

	// NULL ISBNs never collide
	require.NoError(t, store.CreateBook(ctx, &models.Book{Title: "A", TotalCopies: 1, AvailableCopies: 1}))
	require.NoError(t, store.CreateBook(ctx, &models.Book{Title: "B", TotalCopies: 1, AvailableCopies: 1}))

	book.Title = "Dune (deluxe)"
	book.AvailableCopies = 2
	book.CategoryID = nil
	require.NoError(t, store.UpdateBook(ctx, book))

	got, err = store.GetBook(ctx, book.ID)
	require.NoError(t, err)
	assert.Equal(t, "Dune (deluxe)", got.Title)
	assert.Equal(t, 2, got.AvailableCopies)
	assert.Nil(t, got.CategoryID)

	assert.ErrorIs(t, store.UpdateBook(ctx, &models.Book{ID: 9999, Title: "Ghost", TotalCopies: 1}), storage.ErrNotFound)

	books, err := store.ListBooks(ctx)
	require.NoError(t, err)
	assert.Len(t, books, 3)

	require.NoError(t, store.DeleteBook(ctx, books[2].ID))
	_, err = store.GetBook(ctx, books[2].ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.ErrorIs(t, store.DeleteBook(ctx, books[2].ID), storage.ErrNotFound)
}

func TestPostgresStore_Users(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	user := &models.User{Name: "Alice", Email: "alice@example.com"}
	require.NoError(t, store.CreateUser(ctx, user))
	assert.NotZero(t, user.ID)

	user.Email = "alice@library.test"
	require.NoError(t, store.UpdateUser(ctx, user))

	got, err := store.GetUser(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, user, got)

	users, err := store.ListUsers(ctx)
	require.NoError(t, err)
	assert.Len(t, users, 1)

	assert.ErrorIs(t, store.UpdateUser(ctx, &models.User{ID: 777}), storage.ErrNotFound)

	require.NoError(t, store.DeleteUser(ctx, user.ID))
	_, err = store.GetUser(ctx, user.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestPostgresStore_BorrowAndReturn(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	user := &models.User{Name: "Bob", Email: "bob@example.com"}
	require.NoError(t, store.CreateUser(ctx, user))
	book := &models.Book{Title: "Dune", TotalCopies: 1, AvailableCopies: 1}
	require.NoError(t, store.CreateBook(ctx, book))

	borrowedAt := time.Date(2025, 4, 1, 8, 30, 0, 0, time.UTC)
	record := &models.BorrowRecord{UserID: user.ID, BookID: book.ID, BorrowDate: borrowedAt}
	err := store.WithinTx(ctx, func(tx storage.Tx) error {
		if err := tx.CreateBorrowRecord(ctx, record); err != nil {
			return err
		}
		return tx.DecrementAvailableCopies(ctx, book.ID)
	})
	require.NoError(t, err)
	assert.NotZero(t, record.ID)

	err = store.WithinTx(ctx, func(tx storage.Tx) error {
		return tx.DecrementAvailableCopies(ctx, book.ID)
	})
	assert.ErrorIs(t, err, storage.ErrNoCopiesAvailable)

	assert.ErrorIs(t, store.DeleteBook(ctx, book.ID), storage.ErrInUse)
	assert.ErrorIs(t, store.DeleteUser(ctx, user.ID), storage.ErrInUse)

	err = store.WithinTx(ctx, func(tx storage.Tx) error {
		return tx.CreateBorrowRecord(ctx, &models.BorrowRecord{UserID: 31337, BookID: book.ID, BorrowDate: borrowedAt})
	})
	assert.ErrorIs(t, err, storage.ErrReferenceNotFound)

	returnedAt := borrowedAt.Add(35 * 24 * time.Hour)
	err = store.WithinTx(ctx, func(tx storage.Tx) error {
		if err := tx.MarkReturned(ctx, record.ID, returnedAt, 75); err != nil {
			return err
		}
		return tx.IncrementAvailableCopies(ctx, book.ID)
	})
	require.NoError(t, err)

	err = store.WithinTx(ctx, func(tx storage.Tx) error {
		return tx.MarkReturned(ctx, record.ID, returnedAt, 0)
	})
	assert.ErrorIs(t, err, storage.ErrAlreadyReturned)

	// Capped at total copies
	require.NoError(t, store.WithinTx(ctx, func(tx storage.Tx) error {
		return tx.IncrementAvailableCopies(ctx, book.ID)
	}))
	got, err := store.GetBook(ctx, book.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.AvailableCopies)

	history, err := store.ListBorrowHistory(ctx)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "Bob", history[0].UserName)
	assert.Equal(t, "Dune", history[0].BookTitle)
	assert.True(t, history[0].Returned)
	assert.Equal(t, 75, history[0].FineAmount)
	require.NotNil(t, history[0].ReturnDate)
	assert.True(t, returnedAt.Equal(*history[0].ReturnDate))
}

func TestPostgresStore_ConcurrentDecrement(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	book := &models.Book{Title: "Popular", TotalCopies: 3, AvailableCopies: 3}
	require.NoError(t, store.CreateBook(ctx, book))

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := store.WithinTx(ctx, func(tx storage.Tx) error {
				return tx.DecrementAvailableCopies(ctx, book.ID)
			})
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 3, succeeded)
	got, err := store.GetBook(ctx, book.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.AvailableCopies)
}

func TestPostgresStore_UpdateBookInTx(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	user := &models.User{Name: "Bob", Email: "bob@example.com"}
	require.NoError(t, store.CreateUser(ctx, user))
	book := &models.Book{Title: "Dune", TotalCopies: 2, AvailableCopies: 2}
	require.NoError(t, store.CreateBook(ctx, book))

	require.NoError(t, store.WithinTx(ctx, func(tx storage.Tx) error {
		record := &models.BorrowRecord{UserID: user.ID, BookID: book.ID, BorrowDate: time.Now().UTC()}
		if err := tx.CreateBorrowRecord(ctx, record); err != nil {
			return err
		}
		return tx.DecrementAvailableCopies(ctx, book.ID)
	}))

	err := store.WithinTx(ctx, func(tx storage.Tx) error {
		locked, err := tx.GetBookForUpdate(ctx, book.ID)
		if err != nil {
			return err
		}
		n, err := tx.CountOpenLoans(ctx, book.ID)
		if err != nil {
			return err
		}
		assert.Equal(t, 1, n)

		locked.Title = "Dune (revised)"
		locked.TotalCopies = 4
		locked.AvailableCopies = 4 - n
		return tx.UpdateBook(ctx, locked)
	})
	require.NoError(t, err)

	got, err := store.GetBook(ctx, book.ID)
	require.NoError(t, err)
	assert.Equal(t, "Dune (revised)", got.Title)
	assert.Equal(t, 3, got.AvailableCopies)

	err = store.WithinTx(ctx, func(tx storage.Tx) error {
		_, err := tx.GetBookForUpdate(ctx, 4242)
		return err
	})
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
