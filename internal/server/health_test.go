package server

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/inboxledger/internal/events"
	"github.com/teemow/inboxledger/internal/logging"
)

func TestHealthChecker_Readiness(t *testing.T) {
	tests := []struct {
		name     string
		setup    func(h *HealthChecker)
		wantCode int
		wantBody string
	}{
		{
			name:     "ready",
			setup:    func(*HealthChecker) {},
			wantCode: http.StatusOK,
			wantBody: healthStatusOK,
		},
		{
			name:     "not ready",
			setup:    func(h *HealthChecker) { h.SetReady(false) },
			wantCode: http.StatusServiceUnavailable,
			wantBody: healthStatusNotReady,
		},
		{
			name:     "shutting down",
			setup:    func(h *HealthChecker) { h.SetShuttingDown() },
			wantCode: http.StatusServiceUnavailable,
			wantBody: healthStatusNotReady,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHealthChecker()
			tt.setup(h)

			code, body := get(t, h.ReadinessHandler(), "/readyz")
			assert.Equal(t, tt.wantCode, code)

			var resp HealthResponse
			require.NoError(t, json.Unmarshal([]byte(body), &resp))
			assert.Equal(t, tt.wantBody, resp.Status)
		})
	}
}

func TestHealthChecker_LivenessIgnoresReadiness(t *testing.T) {
	h := NewHealthChecker()
	h.SetReady(false)
	code, _ := get(t, h.LivenessHandler(), "/healthz")
	assert.Equal(t, http.StatusOK, code)
}

func TestHealthChecker_DetailedReportsLastRun(t *testing.T) {
	h := NewHealthChecker()
	at := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	h.now = func() time.Time { return at }

	code, body := get(t, h.DetailedHealthHandler(), "/healthz/detailed")
	assert.Equal(t, http.StatusOK, code)
	var resp DetailedHealthResponse
	require.NoError(t, json.Unmarshal([]byte(body), &resp))
	assert.Equal(t, healthStatusOK, resp.Status)
	assert.Nil(t, resp.LastRun)

	// Only terminal events are recorded.
	h.Emit(events.Event{Kind: events.KindProgress, Percent: 50})
	h.Emit(events.Event{Kind: events.KindDone, Result: &events.Result{Workflow: "documents", Success: false, Failed: 2}})

	code, body = get(t, h.DetailedHealthHandler(), "/healthz/detailed")
	assert.Equal(t, http.StatusOK, code)
	resp = DetailedHealthResponse{}
	require.NoError(t, json.Unmarshal([]byte(body), &resp))
	assert.Equal(t, healthStatusDegraded, resp.Status)
	require.NotNil(t, resp.LastRun)
	assert.Equal(t, "documents", resp.LastRun.Workflow)
	assert.Equal(t, 2, resp.LastRun.Failed)
	require.NotNil(t, resp.LastRunAt)
	assert.True(t, at.Equal(*resp.LastRunAt))
}

func TestHealthChecker_DetailedShuttingDown(t *testing.T) {
	h := NewHealthChecker()
	h.SetShuttingDown()
	code, body := get(t, h.DetailedHealthHandler(), "/healthz/detailed")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Contains(t, body, healthStatusShuttingDown)
}

func TestHealthChecker_DetailedReportsEventStream(t *testing.T) {
	tests := []struct {
		name        string
		withHub     bool
		emit        []events.Event
		wantEvents  bool
		wantDropped int64
		wantLogs    []string
	}{
		{
			name: "no hub",
		},
		{
			name:       "idle hub",
			withHub:    true,
			wantEvents: true,
		},
		{
			name:    "slow subscriber and retained logs",
			withHub: true,
			emit: []events.Event{
				{Kind: events.KindLog, Level: events.LevelInfo, Text: "Found 2 PDF files"},
				{Kind: events.KindProgress, Percent: 40},
				{Kind: events.KindLog, Level: events.LevelWarning, Text: "No line items extracted from a.pdf"},
			},
			wantEvents:  true,
			wantDropped: 2,
			wantLogs:    []string{"Found 2 PDF files", "No line items extracted from a.pdf"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHealthChecker()
			if tt.withHub {
				hub := NewHub(logging.DiscardLogger().Logger())
				hub.buffer = 1
				ch := hub.subscribe()
				defer hub.unsubscribe(ch)
				for _, e := range tt.emit {
					hub.Emit(e)
				}
				h.WatchHub(hub)
			}

			code, body := get(t, h.DetailedHealthHandler(), "/healthz/detailed")
			assert.Equal(t, http.StatusOK, code)
			var resp DetailedHealthResponse
			require.NoError(t, json.Unmarshal([]byte(body), &resp))

			if !tt.wantEvents {
				assert.Nil(t, resp.Events)
				return
			}
			require.NotNil(t, resp.Events)
			assert.Equal(t, 1, resp.Events.Subscribers)
			assert.Equal(t, tt.wantDropped, resp.Events.Dropped)
			var logs []string
			for _, e := range resp.Events.RecentLogs {
				logs = append(logs, e.Text)
			}
			assert.Equal(t, tt.wantLogs, logs)
		})
	}
}
