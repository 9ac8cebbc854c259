// Package server is the HTTP side of scheduled mode.
//
// Endpoints:
//   - /healthz, /readyz and /healthz/detailed for orchestrator health checks;
//     the detailed view includes the last batch result and event stream stats
//   - /metrics in the Prometheus text format when the prometheus exporter is on
//   - /events, a websocket that streams batch events as JSON
//
// Hub is an events.Sink; attach it to a batch's sink fan-out to stream it.
package server
