package instrumentation

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metric attribute keys.
const (
	attrMethod    = "method"
	attrPath      = "path"
	attrStatus    = "status"
	attrOperation = "operation"
	attrService   = "service"
	attrResult    = "result"
	attrWorkflow  = "workflow"
	attrAction    = "action"
	attrComponent = "component"
	attrDomain    = "sender_domain"
)

// Metrics provides methods for recording observability metrics.
// A zero Metrics records nothing.
type Metrics struct {
	// HTTP metrics for the schedule server
	httpRequestsTotal   metric.Int64Counter
	httpRequestDuration metric.Float64Histogram

	// Google API and extraction calls
	googleAPIOperationsTotal   metric.Int64Counter
	googleAPIOperationDuration metric.Float64Histogram

	// Sync metrics
	itemsTotal      metric.Int64Counter
	sheetRowsTotal  metric.Int64Counter
	retriesTotal    metric.Int64Counter
	runsTotal       metric.Int64Counter
	runDuration     metric.Float64Histogram
	uploadBytesSent metric.Int64Counter

	// detailedLabels controls whether high-cardinality labels are included
	detailedLabels bool
}

// NewMetrics creates a new Metrics instance with all instruments initialized.
func NewMetrics(meter metric.Meter, detailedLabels bool) (*Metrics, error) {
	m := &Metrics{
		detailedLabels: detailedLabels,
	}

	var err error

	m.httpRequestsTotal, err = meter.Int64Counter(
		"http_requests_total",
		metric.WithDescription("Total number of HTTP requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http_requests_total counter: %w", err)
	}

	m.httpRequestDuration, err = meter.Float64Histogram(
		"http_request_duration_seconds",
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.01, 0.1, 0.5, 1.0, 2.5, 5.0, 10.0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http_request_duration_seconds histogram: %w", err)
	}

	m.googleAPIOperationsTotal, err = meter.Int64Counter(
		"google_api_operations_total",
		metric.WithDescription("Total number of Google API and extraction operations"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create google_api_operations_total counter: %w", err)
	}

	m.googleAPIOperationDuration, err = meter.Float64Histogram(
		"google_api_operation_duration_seconds",
		metric.WithDescription("Google API and extraction operation duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0, 60.0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create google_api_operation_duration_seconds histogram: %w", err)
	}

	m.itemsTotal, err = meter.Int64Counter(
		"sync_items_total",
		metric.WithDescription("Emails and documents handled, by workflow and result"),
		metric.WithUnit("{item}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create sync_items_total counter: %w", err)
	}

	m.sheetRowsTotal, err = meter.Int64Counter(
		"sheet_rows_total",
		metric.WithDescription("Spreadsheet rows appended or deleted"),
		metric.WithUnit("{row}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheet_rows_total counter: %w", err)
	}

	m.retriesTotal, err = meter.Int64Counter(
		"retries_total",
		metric.WithDescription("Retried calls to rate-limited backends"),
		metric.WithUnit("{retry}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create retries_total counter: %w", err)
	}

	m.runsTotal, err = meter.Int64Counter(
		"sync_runs_total",
		metric.WithDescription("Completed workflow runs by status"),
		metric.WithUnit("{run}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create sync_runs_total counter: %w", err)
	}

	m.runDuration, err = meter.Float64Histogram(
		"sync_run_duration_seconds",
		metric.WithDescription("Workflow run duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(1, 5, 15, 30, 60, 120, 300, 600, 1800),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create sync_run_duration_seconds histogram: %w", err)
	}

	m.uploadBytesSent, err = meter.Int64Counter(
		"drive_upload_bytes_total",
		metric.WithDescription("Attachment bytes uploaded to Drive"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create drive_upload_bytes_total counter: %w", err)
	}

	return m, nil
}

// RecordHTTPRequest records an HTTP request with method, path, status code, and duration.
func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, path string, statusCode int, duration time.Duration) {
	if m == nil || m.httpRequestsTotal == nil || m.httpRequestDuration == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String(attrMethod, method),
		attribute.String(attrPath, path),
		attribute.String(attrStatus, strconv.Itoa(statusCode)),
	}

	m.httpRequestsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.httpRequestDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// RecordGoogleAPIOperation records a backend call.
//
// Parameters:
//   - service: gmail, drive, sheets or extraction
//   - operation: list, get, upload, append, delete, extract, ...
//   - status: "success" or "error"
//   - duration: time taken for the call
func (m *Metrics) RecordGoogleAPIOperation(ctx context.Context, service, operation, status string, duration time.Duration) {
	if m == nil || m.googleAPIOperationsTotal == nil || m.googleAPIOperationDuration == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String(attrService, service),
		attribute.String(attrOperation, operation),
		attribute.String(attrStatus, status),
	}

	m.googleAPIOperationsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.googleAPIOperationDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// ObserveAPICall records a backend call that began at start and ended with
// err. It is meant to be deferred at the client boundary.
func (m *Metrics) ObserveAPICall(ctx context.Context, service, operation string, start time.Time, err error) {
	status := StatusSuccess
	if err != nil {
		status = StatusError
	}
	m.RecordGoogleAPIOperation(ctx, service, operation, status, time.Since(start))
}

// RecordItem counts one email or document with its result. The sender is only
// used, reduced to its domain, when detailed labels are enabled.
func (m *Metrics) RecordItem(ctx context.Context, workflow, result, sender string) {
	if m == nil || m.itemsTotal == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String(attrWorkflow, workflow),
		attribute.String(attrResult, result),
	}
	if m.detailedLabels && sender != "" {
		attrs = append(attrs, attribute.String(attrDomain, SenderDomain(sender)))
	}

	m.itemsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordSheetRows counts rows appended or deleted in one write.
func (m *Metrics) RecordSheetRows(ctx context.Context, action string, rows int) {
	if m == nil || m.sheetRowsTotal == nil || rows <= 0 {
		return
	}
	m.sheetRowsTotal.Add(ctx, int64(rows), metric.WithAttributes(attribute.String(attrAction, action)))
}

// RecordRetry counts one retried call.
func (m *Metrics) RecordRetry(ctx context.Context, component string) {
	if m == nil || m.retriesTotal == nil {
		return
	}
	m.retriesTotal.Add(ctx, 1, metric.WithAttributes(attribute.String(attrComponent, component)))
}

// RecordUpload counts bytes sent to Drive.
func (m *Metrics) RecordUpload(ctx context.Context, bytes int) {
	if m == nil || m.uploadBytesSent == nil || bytes <= 0 {
		return
	}
	m.uploadBytesSent.Add(ctx, int64(bytes))
}

// RecordRun records a finished workflow run.
func (m *Metrics) RecordRun(ctx context.Context, workflow string, success bool, duration time.Duration) {
	if m == nil || m.runsTotal == nil || m.runDuration == nil {
		return
	}

	status := StatusSuccess
	if !success {
		status = StatusError
	}
	attrs := []attribute.KeyValue{
		attribute.String(attrWorkflow, workflow),
		attribute.String(attrStatus, status),
	}

	m.runsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.runDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}
