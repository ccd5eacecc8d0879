package api

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"library-backend/internal/circulation"
	"library-backend/internal/storage"
)

// apiError carries the status code and client-facing message of a failed request
type apiError struct {
	status  int
	message string
}

func (e *apiError) Error() string { return e.message }

func badRequest(message string) error {
	return &apiError{status: http.StatusBadRequest, message: message}
}

func notFound(message string) error {
	return &apiError{status: http.StatusNotFound, message: message}
}

// writeError maps err to a status code and writes {"error": message}.
// Unclassified errors become 500 with a generic message; the cause is logged.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, message := classify(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("Request failed",
			zap.Error(err),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("request_id", requestIDFrom(r.Context())),
		)
	}
	writeJSON(w, status, map[string]string{"error": message})
}

func classify(err error) (int, string) {
	var apiErr *apiError
	switch {
	case errors.As(err, &apiErr):
		return apiErr.status, apiErr.message
	case errors.Is(err, errInvalidJSON):
		return http.StatusBadRequest, "Invalid JSON"
	case errors.Is(err, circulation.ErrBookNotFound):
		return http.StatusNotFound, "Book not found"
	case errors.Is(err, circulation.ErrUserNotFound):
		return http.StatusNotFound, "User not found"
	case errors.Is(err, circulation.ErrRecordNotFound):
		return http.StatusNotFound, "Borrow record not found"
	case errors.Is(err, circulation.ErrNoCopiesAvailable):
		return http.StatusBadRequest, "No copies available"
	case errors.Is(err, circulation.ErrAlreadyReturned):
		return http.StatusBadRequest, "Book already returned"
	case errors.Is(err, circulation.ErrInvalidIdentifiers):
		return http.StatusBadRequest, "Identifiers must be positive integers"
	case errors.Is(err, circulation.ErrLedgerDisabled):
		return http.StatusNotFound, "Ledger is not enabled"
	case errors.Is(err, circulation.ErrTotalBelowOpenLoans):
		return http.StatusBadRequest, "total_copies cannot be less than the number of borrowed copies"
	case errors.Is(err, circulation.ErrAvailableTooHigh):
		return http.StatusBadRequest, "available_copies cannot exceed total_copies minus borrowed copies"
	case errors.Is(err, storage.ErrDuplicateISBN):
		return http.StatusBadRequest, "ISBN already exists"
	default:
		return http.StatusInternalServerError, "Internal Server Error"
	}
}
