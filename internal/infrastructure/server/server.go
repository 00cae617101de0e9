package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httplog"

	"access-assistant/internal/application/port/input"
	"access-assistant/internal/application/port/output"
	"access-assistant/internal/domain/entity"
)

// Server exposes the engine boundary over HTTP. It depends on the input
// port only; it holds no engine state of its own.
type Server struct {
	engine input.Engine
	logger output.LoggerPort
	http   *http.Server
}

type Config struct {
	Addr string
}

func New(engine input.Engine, logger output.LoggerPort, cfg Config) *Server {
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}
	s := &Server{engine: engine, logger: logger}

	httpLogger := httplog.NewLogger("access-assistant", httplog.Options{
		JSON:    true,
		Concise: true,
	})

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(httplog.RequestLogger(httpLogger))

	r.Route("/v1", func(r chi.Router) {
		r.Post("/sessions/{sessionID}/intent", s.handleIntent)
		r.Post("/sessions/{sessionID}/clarification", s.handleClarification)
		r.Post("/plans/{planID}/execute", s.handleExecute)
		r.Post("/plans/{planID}/resume", s.handleResume)
		r.Post("/plans/{planID}/cancel", s.handleCancel)
		r.Get("/plans/{planID}/summary", s.handleSummary)
	})

	s.http = &http.Server{
		Addr:              cfg.Addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) ListenAndServe() error {
	s.logger.Info("HTTP server listening", "addr", s.http.Addr)
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

type intentRequest struct {
	UserID string `json:"user_id"`
	Intent string `json:"intent"`
	Page   struct {
		URL   string `json:"url"`
		Title string `json:"title"`
		Text  string `json:"text"`
	} `json:"page"`
}

func (s *Server) handleIntent(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	var req intentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Intent == "" {
		writeError(w, http.StatusBadRequest, "intent is required")
		return
	}

	plan, err := s.engine.SubmitIntent(r.Context(), sessionID, req.UserID, req.Intent, output.PageContext{
		URL:   req.Page.URL,
		Title: req.Page.Title,
		Text:  req.Page.Text,
	})
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, planResponseFrom(plan))
}

type clarificationRequest struct {
	Clarification string `json:"clarification"`
}

func (s *Server) handleClarification(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	var req clarificationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Clarification == "" {
		writeError(w, http.StatusBadRequest, "clarification is required")
		return
	}

	plan, err := s.engine.SubmitClarification(r.Context(), sessionID, req.Clarification)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, planResponseFrom(plan))
}

// handleExecute streams one NDJSON line per ExecutionResult so the
// caller can render progress while the plan runs.
func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	planID := chi.URLParam(r, "planID")

	results, err := s.engine.Execute(r.Context(), planID)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)
	flusher, _ := w.(http.Flusher)

	enc := json.NewEncoder(w)
	for result := range results {
		if err := enc.Encode(result); err != nil {
			s.logger.Warn("Result stream write failed", "planId", planID, "error", err)
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
	}
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	planID := chi.URLParam(r, "planID")
	if err := s.engine.Resume(planID); err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "resumed"})
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	planID := chi.URLParam(r, "planID")
	if err := s.engine.Cancel(planID); err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "cancelling"})
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	planID := chi.URLParam(r, "planID")
	summary, err := s.engine.Summary(planID)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

type planResponse struct {
	ID                  string         `json:"id"`
	SessionID           string         `json:"session_id"`
	Intent              string         `json:"intent"`
	Status              string         `json:"status"`
	CreatedAt           time.Time      `json:"created_at"`
	EstimatedDurationMS int64          `json:"estimated_duration_ms"`
	Checkpoints         []string       `json:"checkpoints,omitempty"`
	Actions             []actionDetail `json:"actions"`
}

type actionDetail struct {
	ID              string         `json:"id"`
	Kind            string         `json:"kind"`
	Target          string         `json:"target,omitempty"`
	Parameters      map[string]any `json:"parameters,omitempty"`
	ExpectedOutcome string         `json:"expected_outcome"`
	Status          string         `json:"status"`
}

func planResponseFrom(plan *entity.Plan) planResponse {
	resp := planResponse{
		ID:                  plan.ID,
		SessionID:           plan.SessionID,
		Intent:              plan.Intent,
		Status:              string(plan.Status()),
		CreatedAt:           plan.CreatedAt,
		EstimatedDurationMS: plan.EstimatedDuration.Milliseconds(),
		Checkpoints:         plan.Checkpoints(),
	}
	for _, a := range plan.Actions {
		resp.Actions = append(resp.Actions, actionDetail{
			ID:              a.ID,
			Kind:            string(a.Kind),
			Target:          a.Target,
			Parameters:      a.Parameters,
			ExpectedOutcome: a.ExpectedOutcome,
			Status:          string(a.Status()),
		})
	}
	return resp
}

func (s *Server) writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, entity.ErrSessionNotFound), errors.Is(err, entity.ErrPlanNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, entity.ErrPlanBusy):
		writeError(w, http.StatusConflict, err.Error())
	default:
		s.logger.Error("Engine call failed", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
