// Package instrumentation provides OpenTelemetry metrics and tracing for
// inboxledger.
//
// # Metrics
//
// Sync metrics:
//   - sync_items_total: emails and documents by workflow and result
//   - sync_runs_total, sync_run_duration_seconds: finished runs by workflow and status
//   - sheet_rows_total: spreadsheet rows by action (appended, deleted)
//   - retries_total: retried backend calls by component
//   - drive_upload_bytes_total: attachment bytes uploaded
//
// Backend metrics:
//   - google_api_operations_total, google_api_operation_duration_seconds:
//     Gmail, Drive, Sheets and extraction calls by service, operation and status
//
// Schedule server metrics:
//   - http_requests_total, http_request_duration_seconds
//
// # Tracing
//
// Each run gets a root span (run.<workflow>), each email or document a child
// span (item.<kind>), and backend calls client spans
// (google.<service>.<operation>).
//
// # Configuration
//
//   - INBOXLEDGER_INSTRUMENTATION_ENABLED (default: true)
//   - INBOXLEDGER_METRICS_EXPORTER: prometheus, otlp, stdout (default: prometheus)
//   - INBOXLEDGER_TRACING_EXPORTER: otlp, stdout, none (default: none)
//   - OTEL_EXPORTER_OTLP_ENDPOINT, OTEL_EXPORTER_OTLP_INSECURE
//   - OTEL_TRACES_SAMPLER_ARG (default: 1.0)
//   - OTEL_SERVICE_NAME (default: inboxledger)
//
// The same settings can be given in the [instrumentation] section of the
// config file.
package instrumentation
