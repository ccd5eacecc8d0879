package api

import (
	"errors"
	"net/http"
	"strings"

	"library-backend/internal/models"
	"library-backend/internal/storage"
)

type bookRequest struct {
	Title           string  `json:"title"`
	Author          string  `json:"author"`
	ISBN            *string `json:"isbn"`
	TotalCopies     flexInt `json:"total_copies"`
	AvailableCopies flexInt `json:"available_copies"`
	CategoryID      flexInt `json:"category_id"`
}

// toBook validates the request. Available copies start at total copies unless an update sets them.
func (req *bookRequest) toBook(forUpdate bool) (*models.Book, error) {
	title := strings.TrimSpace(req.Title)
	if title == "" || !req.TotalCopies.Present {
		return nil, badRequest("Title and total_copies are required")
	}
	if !req.TotalCopies.positive() {
		return nil, badRequest("total_copies must be a positive number")
	}
	if req.TotalCopies.tooLarge() {
		return nil, badRequest("total_copies is too large")
	}

	book := &models.Book{
		Title:           title,
		Author:          req.Author,
		TotalCopies:     int(req.TotalCopies.Value),
		AvailableCopies: int(req.TotalCopies.Value),
	}

	if req.ISBN != nil {
		if isbn := strings.TrimSpace(*req.ISBN); isbn != "" {
			book.ISBN = &isbn
		}
	}

	if req.CategoryID.Present {
		switch id := req.CategoryID.Value; {
		case !req.CategoryID.Valid:
			return nil, badRequest("category_id must be a number")
		case id == 0:
			// 0 means no category
		case !models.IsKnownCategory(id):
			return nil, badRequest("category_id must be a known category")
		default:
			book.CategoryID = &id
		}
	}

	if forUpdate && req.AvailableCopies.Present {
		available := req.AvailableCopies
		if !available.Valid || available.Value < 0 || available.Value > req.TotalCopies.Value {
			return nil, badRequest("available_copies must be between 0 and total_copies")
		}
		book.AvailableCopies = int(available.Value)
	}
	return book, nil
}

func (s *Server) handleListBooks(w http.ResponseWriter, r *http.Request) {
	books, err := s.store.ListBooks(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if books == nil {
		books = []models.Book{}
	}
	writeJSON(w, http.StatusOK, books)
}

func (s *Server) handleGetBook(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "book")
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	book, err := s.store.GetBook(r.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		err = notFound("Book not found")
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, book)
}

func (s *Server) handleCreateBook(w http.ResponseWriter, r *http.Request) {
	var req bookRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	book, err := req.toBook(false)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	if err := s.store.CreateBook(r.Context(), book); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, book)
}

func (s *Server) handleUpdateBook(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "book")
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	var req bookRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	book, err := req.toBook(true)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	book.ID = id

	if err := s.circulation.UpdateBook(r.Context(), book, !req.AvailableCopies.Present); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Book updated"})
}

func (s *Server) handleDeleteBook(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "book")
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	err = s.store.DeleteBook(r.Context(), id)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		err = notFound("Book not found")
	case errors.Is(err, storage.ErrInUse):
		err = badRequest("Book has borrow history and cannot be deleted")
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Book deleted"})
}
