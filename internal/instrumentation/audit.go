package instrumentation

import (
	"context"
	"log/slog"
	"time"

	"github.com/teemow/inboxledger/internal/logging"
)

// RunRecord is the audit trail of one workflow run.
//
// Sender holds the configured sender filter, which is PII. It is anonymized
// unless the audit logger is configured to include PII.
type RunRecord struct {
	Workflow string
	RunID    string
	Account  string
	Sender   string

	StartTime time.Time
	Duration  time.Duration
	Success   bool
	Error     string

	Found     int
	Processed int
	Skipped   int
	Failed    int
	Uploaded  int
	RowsAdded int

	TraceID string
	SpanID  string
}

// NewRunRecord starts timing a run.
func NewRunRecord(workflow, runID string) *RunRecord {
	return &RunRecord{
		Workflow:  workflow,
		RunID:     runID,
		StartTime: time.Now(),
	}
}

func (r *RunRecord) WithAccount(account string) *RunRecord {
	r.Account = account
	return r
}

func (r *RunRecord) WithSender(sender string) *RunRecord {
	r.Sender = sender
	return r
}

// WithSpanContext copies the trace context of the span in ctx.
func (r *RunRecord) WithSpanContext(ctx context.Context) *RunRecord {
	r.TraceID = GetTraceID(ctx)
	r.SpanID = GetSpanID(ctx)
	return r
}

// Complete stops the timer and records the outcome.
func (r *RunRecord) Complete(success bool, err error) *RunRecord {
	r.Duration = time.Since(r.StartTime)
	r.Success = success
	if err != nil {
		r.Error = err.Error()
	}
	return r
}

// Status returns "success" or "error".
func (r *RunRecord) Status() string {
	if r.Success {
		return StatusSuccess
	}
	return StatusError
}

// LogAttrs returns the record as slog attributes. The sender is anonymized
// unless includePII is set.
func (r *RunRecord) LogAttrs(includePII bool) []slog.Attr {
	attrs := []slog.Attr{
		slog.String("workflow", r.Workflow),
		slog.String("run_id", r.RunID),
		slog.Duration("duration", r.Duration),
		slog.Bool("success", r.Success),
		slog.Int("found", r.Found),
		slog.Int("processed", r.Processed),
		slog.Int("skipped", r.Skipped),
		slog.Int("failed", r.Failed),
	}

	if r.Uploaded > 0 {
		attrs = append(attrs, slog.Int("uploaded", r.Uploaded))
	}
	if r.RowsAdded > 0 {
		attrs = append(attrs, slog.Int("rows_added", r.RowsAdded))
	}
	if r.Account != "" && r.Account != "default" {
		attrs = append(attrs, slog.String("account", r.Account))
	}
	if r.Sender != "" {
		if includePII {
			attrs = append(attrs, slog.String("sender", r.Sender))
		} else {
			attrs = append(attrs, logging.Sender(r.Sender))
		}
	}
	if r.TraceID != "" {
		attrs = append(attrs, slog.String("trace_id", r.TraceID))
	}
	if r.SpanID != "" {
		attrs = append(attrs, slog.String("span_id", r.SpanID))
	}
	if r.Error != "" {
		attrs = append(attrs, slog.String("error", r.Error))
	}

	return attrs
}

// AuditLogger writes one structured record per finished run.
type AuditLogger struct {
	logger     *slog.Logger
	includePII bool
	enabled    bool
}

// NewAuditLogger creates an enabled AuditLogger that anonymizes PII.
func NewAuditLogger(logger *slog.Logger) *AuditLogger {
	return NewAuditLoggerWithConfig(logger, AuditLoggingConfig{Enabled: true})
}

func NewAuditLoggerWithConfig(logger *slog.Logger, config AuditLoggingConfig) *AuditLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditLogger{
		logger:     logger,
		includePII: config.IncludePII,
		enabled:    config.Enabled,
	}
}

// LogRun logs r at INFO when the run succeeded and at WARN otherwise.
func (al *AuditLogger) LogRun(r *RunRecord) {
	if al == nil || !al.enabled || r == nil {
		return
	}

	attrs := r.LogAttrs(al.includePII)
	args := make([]any, len(attrs))
	for i, attr := range attrs {
		args[i] = attr
	}

	if r.Success {
		al.logger.Info("run_completed", args...)
	} else {
		al.logger.Warn("run_failed", args...)
	}
}
