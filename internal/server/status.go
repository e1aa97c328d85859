package server

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gorilla/handlers"

	"github.com/pavel-fokin/filexfer/internal/files"
)

const defaultTransfersLimit = 50

func (s *Server) statusHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", healthz)
	mux.HandleFunc("GET /v1/stats", s.getStats)
	mux.HandleFunc("GET /v1/transfers", s.listTransfers)

	recovery := handlers.RecoveryHandler(
		handlers.RecoveryLogger(slog.NewLogLogger(s.logger.Handler(), slog.LevelError)),
	)
	return recovery(handlers.CustomLoggingHandler(io.Discard, mux, s.logRequest))
}

func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (s *Server) getStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.stats.Snapshot())
}

func (s *Server) listTransfers(w http.ResponseWriter, r *http.Request) {
	limit := defaultTransfersLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			http.Error(w, "Invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	transfers, err := s.files.Transfers(r.Context(), limit)
	if err != nil {
		if errors.Is(err, files.ErrNoJournal) {
			http.Error(w, "Transfer journal disabled", http.StatusNotFound)
			return
		}
		slog.Error("List transfers failed", "error", err)
		http.Error(w, "Failed to list transfers", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, transfers)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

// logRequest logs status requests with structured logging
func (s *Server) logRequest(_ io.Writer, params handlers.LogFormatterParams) {
	s.logger.Info("HTTP request",
		"method", params.Request.Method,
		"path", params.URL.Path,
		"query", params.URL.RawQuery,
		"status", params.StatusCode,
		"size", params.Size,
		"remote_addr", params.Request.RemoteAddr,
		"user_agent", params.Request.UserAgent(),
	)
}
