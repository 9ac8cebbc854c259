package server

import (
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/teemow/inboxledger/internal/events"
)

// Health status constants for health check responses.
const (
	healthStatusOK           = "ok"
	healthStatusNotReady     = "not ready"
	healthStatusShuttingDown = "shutting down"
	healthStatusDegraded     = "degraded"
)

// HealthChecker provides liveness and readiness endpoints for the scheduler.
type HealthChecker struct {
	// ready indicates whether the scheduler accepts work
	ready atomic.Bool
	// shuttingDown is set once shutdown has started
	shuttingDown atomic.Bool
	// lastRun is the result of the most recent batch
	lastRun atomic.Pointer[runStatus]
	// hub, when set, adds event stream counters to the detailed response
	hub atomic.Pointer[Hub]
	// startTime tracks when the server started
	startTime time.Time
	now       func() time.Time
}

type runStatus struct {
	result events.Result
	at     time.Time
}

// NewHealthChecker creates a new HealthChecker that starts as ready.
func NewHealthChecker() *HealthChecker {
	h := &HealthChecker{
		startTime: time.Now(),
		now:       time.Now,
	}
	h.ready.Store(true)
	return h
}

// SetReady sets the readiness state of the server.
func (h *HealthChecker) SetReady(ready bool) {
	h.ready.Store(ready)
}

// IsReady returns whether the server is ready to receive traffic.
func (h *HealthChecker) IsReady() bool {
	return h.ready.Load()
}

// SetShuttingDown marks the server as draining; readiness fails from then on.
func (h *HealthChecker) SetShuttingDown() {
	h.shuttingDown.Store(true)
}

// WatchHub reports the subscriber count, dropped events and retained log
// lines of hub on the detailed endpoint.
func (h *HealthChecker) WatchHub(hub *Hub) {
	h.hub.Store(hub)
}

// RecordRun stores the result of a finished batch for the detailed endpoint.
func (h *HealthChecker) RecordRun(result events.Result) {
	h.lastRun.Store(&runStatus{result: result, at: h.now()})
}

// Emit implements events.Sink so the checker can sit on the event fan-out and
// pick up terminal results.
func (h *HealthChecker) Emit(e events.Event) {
	if e.Kind == events.KindDone && e.Result != nil {
		h.RecordRun(*e.Result)
	}
}

// HealthResponse represents the JSON response for health endpoints.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// DetailedHealthResponse provides comprehensive health information.
type DetailedHealthResponse struct {
	Status    string         `json:"status"`
	Uptime    string         `json:"uptime"`
	LastRun   *events.Result `json:"lastRun,omitempty"`
	LastRunAt *time.Time     `json:"lastRunAt,omitempty"`
	Events    *EventStats    `json:"events,omitempty"`
}

// EventStats describes the /events stream.
type EventStats struct {
	Subscribers int            `json:"subscribers"`
	Dropped     int64          `json:"dropped"`
	RecentLogs  []events.Event `json:"recentLogs,omitempty"`
}

// LivenessHandler returns an HTTP handler for the /healthz endpoint.
// Liveness only says the process is running.
func (h *HealthChecker) LivenessHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, HealthResponse{Status: healthStatusOK})
	})
}

// ReadinessHandler returns an HTTP handler for the /readyz endpoint.
func (h *HealthChecker) ReadinessHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		checks := make(map[string]string)
		allOk := true

		if !h.ready.Load() {
			checks["ready"] = healthStatusNotReady
			allOk = false
		} else {
			checks["ready"] = healthStatusOK
		}

		if h.shuttingDown.Load() {
			checks["shutdown"] = healthStatusShuttingDown
			allOk = false
		} else {
			checks["shutdown"] = healthStatusOK
		}

		response := HealthResponse{Checks: checks}
		if allOk {
			response.Status = healthStatusOK
			writeJSON(w, http.StatusOK, response)
			return
		}
		response.Status = healthStatusNotReady
		writeJSON(w, http.StatusServiceUnavailable, response)
	})
}

// DetailedHealthHandler returns an HTTP handler for the /healthz/detailed
// endpoint. A last run that failed a precondition reports "degraded" but
// stays 200 so a single bad batch does not restart the process.
func (h *HealthChecker) DetailedHealthHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		response := DetailedHealthResponse{
			Status: healthStatusOK,
			Uptime: time.Since(h.startTime).Truncate(time.Second).String(),
		}
		if last := h.lastRun.Load(); last != nil {
			result, at := last.result, last.at
			response.LastRun = &result
			response.LastRunAt = &at
			if !result.Success {
				response.Status = healthStatusDegraded
			}
		}
		if hub := h.hub.Load(); hub != nil {
			response.Events = &EventStats{
				Subscribers: hub.Subscribers(),
				Dropped:     hub.Dropped(),
				RecentLogs:  hub.Recent(),
			}
		}

		code := http.StatusOK
		switch {
		case !h.ready.Load():
			response.Status = healthStatusNotReady
			code = http.StatusServiceUnavailable
		case h.shuttingDown.Load():
			response.Status = healthStatusShuttingDown
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, response)
	})
}

// RegisterHealthEndpoints registers health check endpoints on the given mux.
func (h *HealthChecker) RegisterHealthEndpoints(mux *http.ServeMux) {
	mux.Handle("/healthz", h.LivenessHandler())
	mux.Handle("/readyz", h.ReadinessHandler())
	mux.Handle("/healthz/detailed", h.DetailedHealthHandler())
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
