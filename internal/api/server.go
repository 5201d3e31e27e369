// Package api exposes the review engine over a small HTTP surface for a
// UI host: scope control, advance/undo, deletion commit, month summaries
// and a server-sent event stream.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/photosweep/photosweep/internal/engine"
	"github.com/photosweep/photosweep/internal/events"
	"github.com/photosweep/photosweep/internal/logging"
	"github.com/photosweep/photosweep/internal/metrics"
	"github.com/photosweep/photosweep/internal/photostore"
	"github.com/photosweep/photosweep/internal/summary"
)

// Server wires HTTP handlers to the engine.
type Server struct {
	engine    *engine.Engine
	summaries *summary.Service
}

// NewServer creates an API server. summaries may be nil when the
// configured provider has no month browsing.
func NewServer(eng *engine.Engine, summaries *summary.Service) *Server {
	return &Server{engine: eng, summaries: summaries}
}

// Handler builds the route table wrapped in logging and metrics
// middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.handleHealth)

	mux.HandleFunc("POST /api/scope", s.handleScope)
	mux.HandleFunc("POST /api/scope/next", s.handleNextScope)
	mux.HandleFunc("GET /api/state", s.handleState)
	mux.HandleFunc("POST /api/advance", s.handleAdvance)
	mux.HandleFunc("POST /api/undo", s.handleUndo)
	mux.HandleFunc("POST /api/commit", s.handleCommit)
	mux.HandleFunc("GET /api/summaries", s.handleSummaries)
	mux.HandleFunc("GET /api/events", s.handleEvents)

	return metrics.Middleware(logging.Middleware(mux))
}

type errorResponse struct {
	Error string `json:"error"`
	Code  int    `json:"code"`
}

func (s *Server) sendError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(errorResponse{Error: message, Code: code})
}

func (s *Server) sendJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

// engineError maps engine sentinel errors to HTTP status codes.
func (s *Server) engineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, engine.ErrNoScope):
		s.sendError(w, http.StatusConflict, err.Error())
	case errors.Is(err, engine.ErrNotReady):
		s.sendError(w, http.StatusAccepted, err.Error())
	case errors.Is(err, engine.ErrScopeComplete):
		s.sendError(w, http.StatusConflict, err.Error())
	case errors.Is(err, engine.ErrNotComplete):
		s.sendError(w, http.StatusConflict, err.Error())
	case errors.Is(err, engine.ErrNothingToUndo):
		s.sendError(w, http.StatusConflict, err.Error())
	default:
		s.sendError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.sendJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleScope(w http.ResponseWriter, r *http.Request) {
	var scope photostore.Scope
	if err := json.NewDecoder(r.Body).Decode(&scope); err != nil {
		s.sendError(w, http.StatusBadRequest, "invalid scope body")
		return
	}
	if err := scope.Validate(); err != nil {
		s.sendError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.engine.BeginScope(r.Context(), scope); err != nil {
		s.engineError(w, err)
		return
	}
	s.sendJSON(w, http.StatusOK, s.engine.State())
}

func (s *Server) handleNextScope(w http.ResponseWriter, r *http.Request) {
	scope, more, err := s.engine.AdvanceScope(r.Context())
	if err != nil {
		s.engineError(w, err)
		return
	}
	s.sendJSON(w, http.StatusOK, map[string]any{
		"scope": scope,
		"more":  more,
	})
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	s.sendJSON(w, http.StatusOK, s.engine.State())
}

func (s *Server) handleAdvance(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Delete bool `json:"delete"`
	}
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.sendError(w, http.StatusBadRequest, "invalid advance body")
			return
		}
	}
	if err := s.engine.Advance(r.Context(), req.Delete); err != nil {
		s.engineError(w, err)
		return
	}
	s.sendJSON(w, http.StatusOK, s.engine.State())
}

func (s *Server) handleUndo(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Undo(); err != nil {
		s.engineError(w, err)
		return
	}
	s.sendJSON(w, http.StatusOK, s.engine.State())
}

func (s *Server) handleCommit(w http.ResponseWriter, r *http.Request) {
	bytes, err := s.engine.CommitDeletions(r.Context())
	if err != nil {
		s.engineError(w, err)
		return
	}
	s.sendJSON(w, http.StatusOK, map[string]any{
		"bytes_reclaimed": bytes,
	})
}

func (s *Server) handleSummaries(w http.ResponseWriter, r *http.Request) {
	if s.summaries == nil {
		s.sendError(w, http.StatusNotFound, "summaries not available for this provider")
		return
	}
	months := 12
	if v := r.URL.Query().Get("months"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 120 {
			s.sendError(w, http.StatusBadRequest, "months must be between 1 and 120")
			return
		}
		months = n
	}
	out, err := s.summaries.Months(r.Context(), months)
	if err != nil {
		logging.Error("summary build failed", logging.Err(err))
		s.sendError(w, http.StatusInternalServerError, "summary build failed")
		return
	}
	s.sendJSON(w, http.StatusOK, out)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.sendError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	bus := s.engine.Events()
	ch := bus.Subscribe()
	defer bus.Unsubscribe(ch)

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-ch:
			if !ok {
				return
			}
			data, err := events.MarshalEvent(event)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, data)
			flusher.Flush()
		}
	}
}
