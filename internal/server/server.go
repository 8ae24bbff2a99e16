// Package server exposes a reader's capture session over HTTP, so a
// running capture can be watched, stopped and turned into a document from
// outside the process.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	pagecap "github.com/porticus-lab/go-pagecap"
)

// Controller is the capture surface the server drives. *pagecap.Reader
// implements it.
type Controller interface {
	Start(ctx context.Context, limit int) (<-chan pagecap.Outcome, error)
	Stop()
	Clear()
	Status() pagecap.Status
	Generate(ctx context.Context, opts *pagecap.GenerateOptions) (*pagecap.Document, error)
	CaptureSingle(ctx context.Context, opts *pagecap.GenerateOptions) (*pagecap.Document, error)
}

// Options configures a Server.
type Options struct {
	// Limit is used by start requests that name none.
	Limit int

	// Page describes generated documents.
	Page *pagecap.PageConfig

	Logger *slog.Logger
}

// Server serves the control API for one Controller.
type Server struct {
	ctl    Controller
	opts   Options
	logger *slog.Logger
	router *chi.Mux

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu   sync.Mutex
	last *runResult
}

type runResult struct {
	State    string    `json:"state"`
	Reason   string    `json:"reason,omitempty"`
	Captured int       `json:"captured"`
	Failures int       `json:"failures"`
	Error    string    `json:"error,omitempty"`
	EndedAt  time.Time `json:"ended_at"`
}

// New creates a Server for ctl.
func New(ctl Controller, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Limit <= 0 {
		opts.Limit = 50
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		ctl:    ctl,
		opts:   opts,
		logger: opts.Logger,
		ctx:    ctx,
		cancel: cancel,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)

	r.Get("/session", s.handleStatus)
	r.Post("/session/start", s.handleStart)
	r.Post("/session/stop", s.handleStop)
	r.Post("/session/clear", s.handleClear)
	r.Post("/session/document", s.handleDocument)
	r.Post("/capture/page", s.handleCapturePage)
	s.router = r
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Close stops a background run and waits for it to return.
func (s *Server) Close() {
	s.ctl.Stop()
	s.cancel()
	s.wg.Wait()
}

// Wait blocks until background runs started so far have returned.
func (s *Server) Wait() {
	s.wg.Wait()
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("server: request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"elapsed", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()))
	})
}

type statusResponse struct {
	pagecap.Status
	LastRun *runResult `json:"last_run,omitempty"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	last := s.last
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, statusResponse{Status: s.ctl.Status(), LastRun: last})
}

type startRequest struct {
	Limit int `json:"limit"`
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	limit := s.opts.Limit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = n
	} else if r.ContentLength > 0 {
		var req startRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		if req.Limit > 0 {
			limit = req.Limit
		}
	}

	done, err := s.ctl.Start(s.ctx, limit)
	if err != nil {
		writeError(w, err)
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		out := <-done
		res := &runResult{
			State:    out.State.String(),
			Reason:   string(out.Reason),
			Captured: out.Captured,
			Failures: out.Failures,
			EndedAt:  time.Now(),
		}
		if out.Err != nil {
			res.Error = out.Err.Error()
		}
		s.mu.Lock()
		s.last = res
		s.mu.Unlock()
		s.logger.Info("server: run finished", "state", res.State, "reason", res.Reason, "captured", res.Captured)
	}()

	s.logger.Info("server: run started", "limit", limit)
	writeJSON(w, http.StatusAccepted, map[string]int{"limit": limit})
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	s.ctl.Stop()
	writeJSON(w, http.StatusAccepted, s.ctl.Status())
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	s.ctl.Clear()
	writeJSON(w, http.StatusOK, s.ctl.Status())
}

type documentRequest struct {
	Title    string `json:"title"`
	Filename string `json:"filename"`
	Keep     bool   `json:"keep"`
}

func (s *Server) documentOptions(r *http.Request) (*pagecap.GenerateOptions, error) {
	var req documentRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return nil, err
		}
	}
	return &pagecap.GenerateOptions{
		Title:    req.Title,
		Filename: req.Filename,
		Keep:     req.Keep,
		Page:     s.opts.Page,
	}, nil
}

func (s *Server) handleDocument(w http.ResponseWriter, r *http.Request) {
	opts, err := s.documentOptions(r)
	if err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	doc, err := s.ctl.Generate(r.Context(), opts)
	if err != nil {
		s.logger.Warn("server: generate failed", "error", err)
		writeError(w, err)
		return
	}
	writePDF(w, doc)
}

func (s *Server) handleCapturePage(w http.ResponseWriter, r *http.Request) {
	opts, err := s.documentOptions(r)
	if err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	doc, err := s.ctl.CaptureSingle(r.Context(), opts)
	if err != nil {
		s.logger.Warn("server: page capture failed", "error", err)
		writeError(w, err)
		return
	}
	writePDF(w, doc)
}

func writePDF(w http.ResponseWriter, doc *pagecap.Document) {
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", doc.Filename))
	w.Header().Set("X-Page-Count", strconv.Itoa(doc.Pages))
	w.WriteHeader(http.StatusOK)
	doc.WriteTo(w)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, pagecap.ErrEmptySession), errors.Is(err, pagecap.ErrAlreadyRunning):
		return http.StatusConflict
	case errors.Is(err, pagecap.ErrProbeFailed), errors.Is(err, pagecap.ErrImageLoad):
		return http.StatusUnprocessableEntity
	case errors.Is(err, pagecap.ErrCaptureTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, pagecap.ErrClosed):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), map[string]string{"error": err.Error()})
}
