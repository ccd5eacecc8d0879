package circulation

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"library-backend/internal/models"
	"library-backend/internal/storage"
)

var (
	ErrTotalBelowOpenLoans = errors.New("total copies below open loans")
	ErrAvailableTooHigh    = errors.New("available copies exceed copies on the shelf")
)

// UpdateBook overwrites a book while keeping its open loans accounted for.
// When keepLent is true book.AvailableCopies is replaced by total copies minus open loans.
func (s *Service) UpdateBook(ctx context.Context, book *models.Book, keepLent bool) error {
	var openLoans int

	err := s.store.WithinTx(ctx, func(tx storage.Tx) error {
		if _, err := tx.GetBookForUpdate(ctx, book.ID); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return ErrBookNotFound
			}
			return fmt.Errorf("failed to get book: %w", err)
		}

		var err error
		openLoans, err = tx.CountOpenLoans(ctx, book.ID)
		if err != nil {
			return fmt.Errorf("failed to count open loans: %w", err)
		}

		onShelf := book.TotalCopies - openLoans
		switch {
		case onShelf < 0:
			return ErrTotalBelowOpenLoans
		case keepLent:
			book.AvailableCopies = onShelf
		case book.AvailableCopies > onShelf:
			return ErrAvailableTooHigh
		}

		if err := tx.UpdateBook(ctx, book); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return ErrBookNotFound
			}
			return err
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Info("Book updated",
		zap.Int64("book_id", book.ID),
		zap.Int("total_copies", book.TotalCopies),
		zap.Int("available_copies", book.AvailableCopies),
		zap.Int("open_loans", openLoans),
	)
	return nil
}
