// Package server exposes the ingestion and query flows over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"sort"
	"time"

	"sandbox/docsearch/pkg/search"
)

const maxMemory = 32 << 20

// Searcher is the part of search.Service the HTTP layer drives.
type Searcher interface {
	Ingest(ctx context.Context, uploads []search.Upload) error
	Query(ctx context.Context, query string) ([]search.Result, error)
}

type Config struct {
	Addr string
}

type Server struct {
	config *Config
	svc    Searcher
	health *HealthServer
	logger *slog.Logger
	server *http.Server
}

type errorResponse struct {
	Detail string `json:"detail"`
}

type messageResponse struct {
	Message string `json:"message"`
}

type queryRequest struct {
	Query *string `json:"query"`
}

type queryResponse struct {
	Results []search.Result `json:"results"`
}

func NewServer(config *Config, svc Searcher, health *HealthServer, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		config: config,
		svc:    svc,
		health: health,
		logger: logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /ingest/{$}", s.handleIngest)
	mux.HandleFunc("POST /ingest", s.handleIngest)
	mux.HandleFunc("POST /query/{$}", s.handleQuery)
	mux.HandleFunc("POST /query", s.handleQuery)
	if health != nil {
		health.setLogger(logger)
		health.Register(mux)
	}

	s.server = &http.Server{
		Addr:              config.Addr,
		Handler:           s.loggingMiddleware(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start serves until Stop is called.
func (s *Server) Start() error {
	s.logger.Info("starting docsearch server", "addr", s.config.Addr)
	if s.health != nil {
		s.health.SetReady(true)
	}
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("docsearch server error: %w", err)
	}
	return nil
}

// Stop marks the server unready and drains in-flight requests.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("stopping docsearch server")
	if s.health != nil {
		s.health.SetReady(false)
	}
	return s.server.Shutdown(ctx)
}

// handleIngest handles POST /ingest/. Every file part of the form is
// ingested, whatever its field name.
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxMemory); err != nil {
		writeJSON(s.logger, w, http.StatusUnprocessableEntity, errorResponse{Detail: "Invalid multipart form: " + err.Error()})
		return
	}
	defer r.MultipartForm.RemoveAll()

	uploads := formUploads(r.MultipartForm)
	if len(uploads) == 0 {
		writeJSON(s.logger, w, http.StatusUnprocessableEntity, errorResponse{Detail: "No files uploaded"})
		return
	}

	if err := s.svc.Ingest(r.Context(), uploads); err != nil {
		s.writeError(w, "ingest", err)
		return
	}
	writeJSON(s.logger, w, http.StatusOK, messageResponse{Message: "Documents ingested successfully"})
}

// handleQuery handles POST /query/.
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, "query", search.Malformed("Invalid JSON body: %v", err))
		return
	}
	if req.Query == nil {
		s.writeError(w, "query", search.Malformed("Missing required key: query"))
		return
	}
	s.logger.Debug("parsed query request", "query", *req.Query)

	results, err := s.svc.Query(r.Context(), *req.Query)
	if err != nil {
		s.writeError(w, "query", err)
		return
	}
	writeJSON(s.logger, w, http.StatusOK, queryResponse{Results: results})
}

func (s *Server) writeError(w http.ResponseWriter, op string, err error) {
	kind := search.KindOf(err)
	status := statusFor(kind)
	s.logger.Error("request failed",
		"op", op,
		"kind", kind,
		"status", status,
		"error", err,
	)
	writeJSON(s.logger, w, status, errorResponse{Detail: err.Error()})
}

// statusFor maps an error kind onto its HTTP status.
func statusFor(kind search.Kind) int {
	switch kind {
	case "":
		return http.StatusOK
	case search.KindUnsupportedMediaType:
		return http.StatusUnsupportedMediaType
	default:
		return http.StatusInternalServerError
	}
}

// formUploads collects the file parts of form, ordered by field name and
// then by position within the field.
func formUploads(form *multipart.Form) []search.Upload {
	if form == nil {
		return nil
	}
	fields := make([]string, 0, len(form.File))
	for field := range form.File {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	var uploads []search.Upload
	for _, field := range fields {
		for _, fh := range form.File[field] {
			uploads = append(uploads, search.Upload{
				Filename: fh.Filename,
				Open: func() (io.ReadCloser, error) {
					return fh.Open()
				},
			})
		}
	}
	return uploads
}

func writeJSON(logger *slog.Logger, w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("Failed to encode JSON response", "error", err)
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Debug("HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
		)
	})
}
