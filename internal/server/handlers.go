package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ChamsBouzaiene/polyrun/internal/engine"
	"github.com/ChamsBouzaiene/polyrun/internal/history"
	"github.com/ChamsBouzaiene/polyrun/internal/workspace"
	"github.com/go-chi/chi/v5"
)

const (
	maxBodyBytes     = 1 << 20
	defaultListLimit = 20
	maxListLimit     = 200
)

// RunRequest is the body of POST /api/run.
type RunRequest struct {
	Code      string `json:"code"`
	Language  string `json:"language"`
	TimeoutMS int64  `json:"timeout_ms,omitempty"`
}

// RunResponse carries both the structured result and the rendered report.
type RunResponse struct {
	Result engine.ExecutionResult `json:"result"`
	Report string                 `json:"report"`
}

// FixRequest is the body of POST /api/fix.
type FixRequest struct {
	Code     string `json:"code"`
	Language string `json:"language"`
	Report   string `json:"report"`
}

// FixResponse returns the suggested code.
type FixResponse struct {
	Code    string `json:"code"`
	Changed bool   `json:"changed"`
}

// ErrorResponse is the body of every non-2xx answer.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

func writeError(w http.ResponseWriter, status int, kind, message string) {
	writeJSON(w, status, ErrorResponse{Error: kind, Message: message})
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", fmt.Sprintf("invalid request body: %v", err))
		return false
	}
	return true
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleLanguages(w http.ResponseWriter, _ *http.Request) {
	langs := s.exec.Languages()
	out := make([]map[string]string, 0, len(langs))
	for _, l := range langs {
		out = append(out, map[string]string{"id": string(l), "name": l.DisplayName()})
	}
	writeJSON(w, http.StatusOK, map[string]any{"languages": out})
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	var req RunRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.TimeoutMS < 0 {
		writeError(w, http.StatusBadRequest, "validation_error", "timeout_ms must not be negative")
		return
	}
	timeout := s.config.DefaultTimeout
	if req.TimeoutMS > 0 {
		timeout = time.Duration(req.TimeoutMS) * time.Millisecond
		if timeout > s.config.MaxTimeout {
			writeError(w, http.StatusBadRequest, "validation_error",
				fmt.Sprintf("timeout_ms exceeds the maximum of %d", s.config.MaxTimeout.Milliseconds()))
			return
		}
	}

	res := s.exec.Execute(r.Context(), engine.ExecutionRequest{
		Code:     req.Code,
		Language: workspace.ParseLanguage(req.Language),
		Timeout:  timeout,
	})
	writeJSON(w, http.StatusOK, RunResponse{Result: res, Report: engine.FormatReport(res)})
}

func (s *Server) handleFix(w http.ResponseWriter, r *http.Request) {
	if !s.fixAvailable() {
		writeError(w, http.StatusServiceUnavailable, "fix_unavailable", "no AI provider is configured")
		return
	}

	var req FixRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Code) == "" {
		writeError(w, http.StatusBadRequest, "validation_error", "code is required")
		return
	}

	fixed, changed, err := s.fixer.Fix(r.Context(), req.Code, workspace.ParseLanguage(req.Language), req.Report)
	if err != nil {
		s.logger.Warn("fix failed", slog.String("error", err.Error()))
		writeError(w, http.StatusBadGateway, "fix_failed", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, FixResponse{Code: fixed, Changed: changed})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusServiceUnavailable, "history_disabled", "run history is disabled")
		return
	}
	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}
	runs, err := s.history.Recent(r.Context(), limit)
	if err != nil {
		s.internalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": nonNil(runs)})
}

func (s *Server) handleHistorySearch(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusServiceUnavailable, "history_disabled", "run history is disabled")
		return
	}
	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}
	runs, err := s.history.Search(r.Context(), r.URL.Query().Get("q"), limit)
	if err != nil {
		s.internalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": nonNil(runs)})
}

func (s *Server) handleHistoryGet(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusServiceUnavailable, "history_disabled", "run history is disabled")
		return
	}
	run, err := s.history.Get(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, history.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not_found", "run not found")
		return
	}
	if err != nil {
		s.internalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *Server) internalError(w http.ResponseWriter, err error) {
	s.logger.Error("request failed", slog.String("error", err.Error()))
	writeError(w, http.StatusInternalServerError, "internal_error", "An internal error occurred")
}

func parseLimit(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return defaultListLimit, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		writeError(w, http.StatusBadRequest, "validation_error", "limit must be a positive integer")
		return 0, false
	}
	if n > maxListLimit {
		n = maxListLimit
	}
	return n, true
}

func nonNil(runs []history.Run) []history.Run {
	if runs == nil {
		return []history.Run{}
	}
	return runs
}
