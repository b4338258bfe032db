// Package server exposes the enrichment pipeline over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"bookdex/internal/book"
	"bookdex/internal/enrich"
	"bookdex/internal/isbn"
	"bookdex/internal/ratelimit"
)

// Server serves the enrichment API.
type Server struct {
	svc  *enrich.Service
	gate *ratelimit.Gate
	log  *slog.Logger
	http *http.Server
}

// New builds the server with its routes mounted.
func New(addr string, svc *enrich.Service, gate *ratelimit.Gate) *Server {
	s := &Server{
		svc:  svc,
		gate: gate,
		log:  slog.Default(),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)

	r.Post("/api/enrich", s.handleEnrich)
	r.Get("/api/books/{isbn}", s.handleGetBook)
	r.Delete("/api/cache/{key}", s.handleInvalidate)
	r.Get("/healthz", s.handleHealth)

	s.http = &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// ListenAndServe blocks until the listener fails or Shutdown is called.
func (s *Server) ListenAndServe() error {
	s.log.Info("listening", "addr", s.http.Addr)
	err := s.http.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests and closes the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

// Handler returns the mounted router, used by tests.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

type enrichRequest struct {
	ISBN         string `json:"isbn,omitempty"`
	Title        string `json:"title,omitempty"`
	Author       string `json:"author,omitempty"`
	ForceRefresh bool   `json:"force_refresh,omitempty"`
}

type errorResponse struct {
	Error          string `json:"error"`
	Code           string `json:"code"`
	TiersAttempted int    `json:"tiers_attempted,omitempty"`
	Partial        bool   `json:"partial,omitempty"`
}

func (s *Server) handleEnrich(w http.ResponseWriter, r *http.Request) {
	var body enrichRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{
			Error: "malformed request body", Code: string(book.FailureInvalidIdentifier),
		})
		return
	}

	var ident book.Identifier
	switch {
	case body.ISBN != "":
		ident = book.ISBNIdentifier(body.ISBN)
	case body.Title != "" || body.Author != "":
		ident = book.TitleAuthorIdentifier(body.Title, body.Author)
	default:
		writeJSON(w, http.StatusBadRequest, errorResponse{
			Error: "request needs an isbn or a title/author pair",
			Code:  string(book.FailureInvalidIdentifier),
		})
		return
	}

	freshness := book.AllowCached
	if body.ForceRefresh {
		freshness = book.ForceRefresh
	}

	rec, err := s.svc.Enrich(r.Context(), ident, freshness)
	if err != nil {
		s.writeEnrichmentError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleGetBook(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "isbn")
	normalized, err := isbn.Normalize(raw)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{
			Error: "invalid ISBN", Code: string(book.FailureInvalidIdentifier),
		})
		return
	}

	rec, found, err := s.svc.Lookup(r.Context(), normalized)
	if err != nil {
		s.log.Error("book lookup failed", "isbn", normalized, "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "lookup failed"})
		return
	}
	if !found {
		writeJSON(w, http.StatusNotFound, errorResponse{
			Error: "book not known", Code: string(book.FailureExhausted),
		})
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleInvalidate(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	if err := s.svc.InvalidateCache(key); err != nil {
		s.log.Error("cache invalidation failed", "key", key, "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "invalidation failed"})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"sources": s.gate.SnapshotAll(),
	})
}

// writeEnrichmentError maps the failure taxonomy to HTTP statuses.
func (s *Server) writeEnrichmentError(w http.ResponseWriter, err error) {
	ee, ok := book.AsEnrichmentError(err)
	if !ok {
		s.log.Error("enrichment failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
		return
	}

	status := http.StatusInternalServerError
	switch ee.Kind {
	case book.FailureInvalidIdentifier:
		status = http.StatusBadRequest
	case book.FailureDataQuality:
		status = http.StatusUnprocessableEntity
	case book.FailureExhausted:
		status = http.StatusNotFound
	case book.FailureTimeout:
		status = http.StatusGatewayTimeout
	}
	writeJSON(w, status, errorResponse{
		Error:          ee.Message,
		Code:           ee.Code(),
		TiersAttempted: ee.TiersAttempted,
		Partial:        ee.Partial,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("writing response", "error", err)
	}
}

// logRequests emits one structured line per request.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"elapsed", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()))
	})
}
