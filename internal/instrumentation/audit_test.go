package instrumentation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/inboxledger/internal/logging"
)

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &m))
	return m
}

func TestRunRecord_Complete(t *testing.T) {
	r := NewRunRecord(WorkflowDocuments, "run-1").WithAccount("work")
	r.StartTime = time.Now().Add(-2 * time.Second)
	r.Complete(false, errors.New("agent not found"))

	assert.False(t, r.Success)
	assert.Equal(t, StatusError, r.Status())
	assert.Equal(t, "agent not found", r.Error)
	assert.GreaterOrEqual(t, r.Duration, 2*time.Second)

	assert.Equal(t, StatusSuccess, NewRunRecord(WorkflowDocuments, "run-2").Complete(true, nil).Status())
}

func TestAuditLogger_LogRun(t *testing.T) {
	tests := []struct {
		name       string
		includePII bool
		success    bool
		wantMsg    string
		wantLevel  string
		senderKey  string
		wantSender string
	}{
		{
			name:       "anonymized success",
			success:    true,
			wantMsg:    "run_completed",
			wantLevel:  "INFO",
			senderKey:  logging.KeySender,
			wantSender: logging.AnonymizeEmail("billing@supplier.example"),
		},
		{
			name:       "pii failure",
			includePII: true,
			wantMsg:    "run_failed",
			wantLevel:  "WARN",
			senderKey:  "sender",
			wantSender: "billing@supplier.example",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := slog.New(slog.NewJSONHandler(&buf, nil))
			al := NewAuditLoggerWithConfig(logger, AuditLoggingConfig{Enabled: true, IncludePII: tt.includePII})

			r := NewRunRecord(WorkflowAttachments, "run-3").WithSender("billing@supplier.example")
			r.Found, r.Processed, r.Uploaded = 4, 3, 5
			al.LogRun(r.Complete(tt.success, nil))

			line := decodeLine(t, &buf)
			assert.Equal(t, tt.wantMsg, line["msg"])
			assert.Equal(t, tt.wantLevel, line["level"])
			assert.Equal(t, tt.wantSender, line[tt.senderKey])
			assert.Equal(t, "run-3", line["run_id"])
			assert.Equal(t, float64(5), line["uploaded"])
			assert.NotContains(t, line, "rows_added")
		})
	}
}

func TestAuditLogger_Disabled(t *testing.T) {
	var buf bytes.Buffer
	al := NewAuditLoggerWithConfig(slog.New(slog.NewJSONHandler(&buf, nil)), AuditLoggingConfig{Enabled: false})
	al.LogRun(NewRunRecord(WorkflowCombined, "r").Complete(true, nil))
	assert.Zero(t, buf.Len())

	var nilLogger *AuditLogger
	nilLogger.LogRun(NewRunRecord(WorkflowCombined, "r"))
}

func TestRunRecord_WithSpanContext(t *testing.T) {
	withRecorder(t)
	ctx, span := StartRunSpan(context.Background(), WorkflowCombined, "r")
	defer span.End()

	r := NewRunRecord(WorkflowCombined, "r").WithSpanContext(ctx)
	assert.Equal(t, GetTraceID(ctx), r.TraceID)
	assert.NotEmpty(t, r.SpanID)
}
