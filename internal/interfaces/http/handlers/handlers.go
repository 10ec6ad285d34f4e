// Package handlers implements the read-only HTTP endpoints of
// internal/interfaces/http (spec.md §6): /health, /signals,
// /quality/stats, /quality/filter-effectiveness. /metrics and /stream are
// wired directly by Server since they need the Prometheus handler and a
// websocket upgrader respectively.
package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/quorumtrade/confluence/internal/interfaces/http/contracts"
	"github.com/quorumtrade/confluence/internal/signalgen"
	"github.com/quorumtrade/confluence/internal/tracker"
)

// Handlers owns the dependencies the JSON endpoints read from.
type Handlers struct {
	tracker   *tracker.Tracker
	signals   func() []signalgen.Signal
	version   string
	startTime time.Time
}

// NewHandlers builds a Handlers. signals returns the current recent-signal
// buffer (see internal/interfaces/http.RecentSignals.List).
func NewHandlers(t *tracker.Tracker, signals func() []signalgen.Signal, version string) *Handlers {
	return &Handlers{tracker: t, signals: signals, version: version, startTime: time.Now()}
}

func (h *Handlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, `{"error":"json_encoding_failed"}`, http.StatusInternalServerError)
	}
}

func (h *Handlers) writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	requestID, _ := r.Context().Value(contracts.RequestIDKey).(string)
	if requestID == "" {
		requestID = "unknown"
	}
	h.writeJSON(w, status, contracts.ErrorResponse{
		Error:     http.StatusText(status),
		Message:   message,
		Code:      code,
		RequestID: requestID,
		Timestamp: time.Now().UTC(),
	})
}

// Health handles GET /health.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, contracts.HealthResponse{
		Status:    "healthy",
		Version:   h.version,
		Uptime:    time.Since(h.startTime).String(),
		Timestamp: time.Now().UTC(),
	})
}

// Signals handles GET /signals, returning the recent-signals buffer.
func (h *Handlers) Signals(w http.ResponseWriter, r *http.Request) {
	if h.signals == nil {
		h.writeJSON(w, http.StatusOK, []signalgen.Signal{})
		return
	}
	h.writeJSON(w, http.StatusOK, h.signals())
}

// QualityStats handles GET /quality/stats?hours=&symbol=.
func (h *Handlers) QualityStats(w http.ResponseWriter, r *http.Request) {
	hours := parseHours(r)
	symbol := r.URL.Query().Get("symbol")
	stats, ok := h.tracker.Statistics(hours, symbol)
	if !ok {
		h.writeError(w, r, http.StatusNotFound, "no_data", "no quality records in the requested window")
		return
	}
	h.writeJSON(w, http.StatusOK, stats)
}

// FilterEffectiveness handles GET /quality/filter-effectiveness?hours=.
func (h *Handlers) FilterEffectiveness(w http.ResponseWriter, r *http.Request) {
	hours := parseHours(r)
	eff, ok := h.tracker.FilterEffectiveness(hours)
	if !ok {
		h.writeError(w, r, http.StatusNotFound, "no_data", "no quality records in the requested window")
		return
	}
	h.writeJSON(w, http.StatusOK, eff)
}

// NotFound handles unmatched routes.
func (h *Handlers) NotFound(w http.ResponseWriter, r *http.Request) {
	h.writeError(w, r, http.StatusNotFound, "endpoint_not_found", "the requested endpoint does not exist")
}

func parseHours(r *http.Request) int {
	if s := r.URL.Query().Get("hours"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			return n
		}
	}
	return 24
}
