// Package api exposes the library over HTTP with JSON bodies.
package api

import (
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"library-backend/internal/circulation"
	"library-backend/internal/storage"
)

// Server holds the dependencies shared by the HTTP handlers
type Server struct {
	store       storage.Storage
	circulation *circulation.Service
	metrics     *Metrics
	logger      *zap.Logger
	handler     http.Handler
}

// NewServer builds the route table and middleware chain
func NewServer(store storage.Storage, circ *circulation.Service, metrics *Metrics, logger *zap.Logger) *Server {
	s := &Server{
		store:       store,
		circulation: circ,
		metrics:     metrics,
		logger:      logger,
	}

	router := NewRouter(s.routes())
	s.handler = s.recoverMiddleware(requestIDMiddleware(corsMiddleware(s.observeMiddleware(router))))
	return s
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

func (s *Server) routes() []Route {
	return []Route{
		{Method: http.MethodGet, Pattern: "/books", Handler: s.handleListBooks},
		{Method: http.MethodPost, Pattern: "/books", Handler: s.handleCreateBook},
		{Method: http.MethodGet, Pattern: "/books/{id}", Handler: s.handleGetBook},
		{Method: http.MethodPut, Pattern: "/books/{id}", Handler: s.handleUpdateBook},
		{Method: http.MethodDelete, Pattern: "/books/{id}", Handler: s.handleDeleteBook},

		{Method: http.MethodGet, Pattern: "/users", Handler: s.handleListUsers},
		{Method: http.MethodPost, Pattern: "/users", Handler: s.handleCreateUser},
		{Method: http.MethodGet, Pattern: "/users/{id}", Handler: s.handleGetUser},
		{Method: http.MethodPut, Pattern: "/users/{id}", Handler: s.handleUpdateUser},
		{Method: http.MethodDelete, Pattern: "/users/{id}", Handler: s.handleDeleteUser},

		{Method: http.MethodGet, Pattern: "/categories", Handler: s.handleListCategories},

		{Method: http.MethodPost, Pattern: "/borrow", Handler: s.handleBorrow},
		{Method: http.MethodPost, Pattern: "/return", Handler: s.handleReturn},
		{Method: http.MethodGet, Pattern: "/borrow-records", Handler: s.handleBorrowRecords},
		{Method: http.MethodGet, Pattern: "/borrow-records/{id}/events", Handler: s.handleBorrowRecordEvents},

		{Method: http.MethodGet, Pattern: "/health", Handler: s.handleHealth},
		{Method: http.MethodGet, Pattern: "/metrics", Handler: s.metrics.Handler().ServeHTTP},
	}
}

// pathID parses the {id} path segment as a positive integer
func pathID(r *http.Request, resource string) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, badRequest("Invalid " + resource + " id")
	}
	return id, nil
}
