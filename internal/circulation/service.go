// Package circulation implements the borrow and return workflows.
package circulation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"library-backend/internal/models"
	"library-backend/internal/storage"
)

const (
	defaultNotifyTimeout = 5 * time.Second
	// maxPendingNotifications bounds the background sends; extra notifications are dropped
	maxPendingNotifications = 16
	maxRecordEvents         = 100
)

var (
	ErrBookNotFound       = errors.New("book not found")
	ErrUserNotFound       = errors.New("user not found")
	ErrRecordNotFound     = errors.New("borrow record not found")
	ErrNoCopiesAvailable  = errors.New("no copies available")
	ErrAlreadyReturned    = errors.New("book already returned")
	ErrInvalidIdentifiers = errors.New("identifiers must be positive")
	ErrLedgerDisabled     = errors.New("ledger disabled")
)

// Ledger receives lending events once a transition has been committed
type Ledger interface {
	RecordEvent(ctx context.Context, event models.LedgerEvent) error
}

// EventReader lists the ledger events of a borrow record, oldest first
type EventReader interface {
	ListEvents(ctx context.Context, recordID int64, limit int) ([]models.LedgerEvent, error)
}

// Notifier delivers the return notification to the library staff
type Notifier interface {
	Notify(ctx context.Context, text string) error
}

// ReturnResult describes a completed return
type ReturnResult struct {
	RecordID     int64
	BookID       int64
	Fine         int
	Notification string
	ReturnedAt   time.Time
}

// Service runs the borrow and return workflows against a Storage
type Service struct {
	store    storage.Storage
	ledger   Ledger
	notifier Notifier
	logger   *zap.Logger
	now      func() time.Time

	notifyTimeout time.Duration
	notifySlots   chan struct{}
	pending       sync.WaitGroup
}

// Option customizes a Service
type Option func(*Service)

// WithLedger sets the ledger that receives lending events
func WithLedger(l Ledger) Option {
	return func(s *Service) { s.ledger = l }
}

// WithNotifier sets the notifier used after returns
func WithNotifier(n Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

// WithNotifyTimeout bounds each background notification send
func WithNotifyTimeout(d time.Duration) Option {
	return func(s *Service) { s.notifyTimeout = d }
}

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a new circulation service
func NewService(store storage.Storage, logger *zap.Logger, opts ...Option) *Service {
	s := &Service{
		store:  store,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },

		notifyTimeout: defaultNotifyTimeout,
		notifySlots:   make(chan struct{}, maxPendingNotifications),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Borrow lends one copy of a book to a user and returns the new borrow record id
func (s *Service) Borrow(ctx context.Context, userID, bookID int64) (int64, error) {
	if userID <= 0 || bookID <= 0 {
		return 0, ErrInvalidIdentifiers
	}

	record := models.BorrowRecord{
		UserID:     userID,
		BookID:     bookID,
		BorrowDate: s.now(),
	}

	err := s.store.WithinTx(ctx, func(tx storage.Tx) error {
		book, err := tx.GetBook(ctx, bookID)
		if errors.Is(err, storage.ErrNotFound) {
			return ErrBookNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to get book: %w", err)
		}
		if book.AvailableCopies <= 0 {
			return ErrNoCopiesAvailable
		}

		if err := tx.CreateBorrowRecord(ctx, &record); err != nil {
			if errors.Is(err, storage.ErrReferenceNotFound) {
				return ErrUserNotFound
			}
			return fmt.Errorf("failed to create borrow record: %w", err)
		}

		if err := tx.DecrementAvailableCopies(ctx, bookID); err != nil {
			// Another borrow took the last copy between the read and the update
			if errors.Is(err, storage.ErrNoCopiesAvailable) {
				return ErrNoCopiesAvailable
			}
			return fmt.Errorf("failed to decrement available copies: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	s.logger.Info("Book borrowed",
		zap.Int64("record_id", record.ID),
		zap.Int64("user_id", userID),
		zap.Int64("book_id", bookID),
	)

	s.recordEvent(ctx, models.LedgerEvent{
		Kind:       models.LedgerEventBorrowed,
		RecordID:   record.ID,
		UserID:     userID,
		BookID:     bookID,
		OccurredAt: record.BorrowDate,
	})

	return record.ID, nil
}

// Return finalizes a borrow record. A non-negative fineOverride replaces the computed fine.
func (s *Service) Return(ctx context.Context, recordID int64, fineOverride *int) (*ReturnResult, error) {
	if recordID <= 0 {
		return nil, ErrInvalidIdentifiers
	}
	// Only a non-negative override replaces the computed fine
	if fineOverride != nil && *fineOverride < 0 {
		fineOverride = nil
	}

	returnedAt := s.now()
	var record *models.BorrowRecord
	var fine int

	err := s.store.WithinTx(ctx, func(tx storage.Tx) error {
		var err error
		record, err = tx.GetBorrowRecord(ctx, recordID)
		if errors.Is(err, storage.ErrNotFound) {
			return ErrRecordNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to get borrow record: %w", err)
		}
		if record.Returned {
			return ErrAlreadyReturned
		}

		if fineOverride != nil {
			fine = *fineOverride
		} else {
			fine = ComputeFine(ElapsedDays(record.BorrowDate, returnedAt))
		}

		if err := tx.MarkReturned(ctx, recordID, returnedAt, fine); err != nil {
			if errors.Is(err, storage.ErrAlreadyReturned) {
				return ErrAlreadyReturned
			}
			return fmt.Errorf("failed to mark record returned: %w", err)
		}

		if err := tx.IncrementAvailableCopies(ctx, record.BookID); err != nil {
			return fmt.Errorf("failed to increment available copies: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	result := &ReturnResult{
		RecordID:     recordID,
		BookID:       record.BookID,
		Fine:         fine,
		Notification: Notification(fine),
		ReturnedAt:   returnedAt,
	}

	s.logger.Info("Book returned",
		zap.Int64("record_id", recordID),
		zap.Int64("book_id", record.BookID),
		zap.Int("fine", fine),
		zap.Bool("fine_overridden", fineOverride != nil),
	)

	s.recordEvent(ctx, models.LedgerEvent{
		Kind:       models.LedgerEventReturned,
		RecordID:   recordID,
		UserID:     record.UserID,
		BookID:     record.BookID,
		FineAmount: fine,
		OccurredAt: returnedAt,
	})
	s.notify(ctx, recordID, result.Notification)

	return result, nil
}

// History returns the joined borrow history, newest borrow first
func (s *Service) History(ctx context.Context) ([]models.BorrowHistoryEntry, error) {
	entries, err := s.store.ListBorrowHistory(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list borrow history: %w", err)
	}
	return entries, nil
}

// Events returns the ledger events of a borrow record, oldest first
func (s *Service) Events(ctx context.Context, recordID int64) ([]models.LedgerEvent, error) {
	reader, ok := s.ledger.(EventReader)
	if !ok {
		return nil, ErrLedgerDisabled
	}
	if recordID <= 0 {
		return nil, ErrInvalidIdentifiers
	}

	err := s.store.WithinTx(ctx, func(tx storage.Tx) error {
		_, err := tx.GetBorrowRecord(ctx, recordID)
		if errors.Is(err, storage.ErrNotFound) {
			return ErrRecordNotFound
		}
		return err
	})
	if err != nil {
		return nil, err
	}

	events, err := reader.ListEvents(ctx, recordID, maxRecordEvents)
	if err != nil {
		return nil, fmt.Errorf("failed to list ledger events: %w", err)
	}
	return events, nil
}

// recordEvent appends to the ledger; ledger failures never undo a committed transition
func (s *Service) recordEvent(ctx context.Context, event models.LedgerEvent) {
	if s.ledger == nil {
		return
	}
	if err := s.ledger.RecordEvent(ctx, event); err != nil {
		s.logger.Warn("Failed to record ledger event",
			zap.Error(err),
			zap.String("kind", string(event.Kind)),
			zap.Int64("record_id", event.RecordID),
		)
	}
}

// notify sends the return notification in the background so a slow
// notifier never delays the response
func (s *Service) notify(ctx context.Context, recordID int64, text string) {
	if s.notifier == nil {
		return
	}

	select {
	case s.notifySlots <- struct{}{}:
	default:
		s.logger.Warn("Dropping return notification, too many pending",
			zap.Int64("record_id", recordID),
		)
		return
	}

	s.pending.Add(1)
	go func() {
		defer func() {
			<-s.notifySlots
			s.pending.Done()
		}()

		sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.notifyTimeout)
		defer cancel()

		if err := s.notifier.Notify(sendCtx, fmt.Sprintf("Borrow record #%d returned. %s", recordID, text)); err != nil {
			s.logger.Warn("Failed to send return notification",
				zap.Error(err),
				zap.Int64("record_id", recordID),
			)
		}
	}()
}

// Wait blocks until background notifications finish or ctx is done
func (s *Service) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.pending.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
