package api

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"library-backend/internal/models"
)

const healthTimeout = 2 * time.Second

type borrowRequest struct {
	UserID flexInt `json:"user_id"`
	BookID flexInt `json:"book_id"`
}

type borrowResponse struct {
	Message  string `json:"message"`
	RecordID int64  `json:"record_id"`
}

type returnRequest struct {
	RecordID   flexInt `json:"record_id"`
	FineAmount flexInt `json:"fine_amount"`
}

type returnResponse struct {
	Message      string `json:"message"`
	Fine         int    `json:"fine"`
	Notification string `json:"notification"`
}

func (s *Server) handleBorrow(w http.ResponseWriter, r *http.Request) {
	var req borrowRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if !req.UserID.Present || !req.BookID.Present || !req.UserID.Valid || !req.BookID.Valid ||
		req.UserID.Value == 0 || req.BookID.Value == 0 {
		s.writeError(w, r, badRequest("user_id and book_id are required"))
		return
	}

	recordID, err := s.circulation.Borrow(r.Context(), req.UserID.Value, req.BookID.Value)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.metrics.borrows.Inc()

	writeJSON(w, http.StatusOK, borrowResponse{
		Message:  "Book borrowed successfully",
		RecordID: recordID,
	})
}

func (s *Server) handleReturn(w http.ResponseWriter, r *http.Request) {
	var req returnRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if !req.RecordID.Present || !req.RecordID.Valid || req.RecordID.Value == 0 {
		s.writeError(w, r, badRequest("record_id is required"))
		return
	}

	if req.FineAmount.tooLarge() {
		s.writeError(w, r, badRequest("fine_amount is too large"))
		return
	}

	// Anything but a valid number leaves the fine to be computed
	var override *int
	if req.FineAmount.Present && req.FineAmount.Valid {
		fine := int(req.FineAmount.Value)
		override = &fine
	}

	result, err := s.circulation.Return(r.Context(), req.RecordID.Value, override)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.metrics.observeReturn(result.Fine)

	writeJSON(w, http.StatusOK, returnResponse{
		Message:      "Book returned successfully",
		Fine:         result.Fine,
		Notification: result.Notification,
	})
}

func (s *Server) handleBorrowRecords(w http.ResponseWriter, r *http.Request) {
	entries, err := s.circulation.History(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if entries == nil {
		entries = []models.BorrowHistoryEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleBorrowRecordEvents(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "borrow record")
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	events, err := s.circulation.Events(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if events == nil {
		events = []models.LedgerEvent{}
	}
	writeJSON(w, http.StatusOK, events)
}

func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, models.Categories())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	if err := s.store.Ping(ctx); err != nil {
		s.logger.Warn("Health check failed", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "Storage unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
