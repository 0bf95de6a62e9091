// Package api implements the HTTP REST API and WebSocket server for sfcd.
//
// This package provides:
//   - REST endpoints for designs, the automation server configuration,
//     the variable catalog, tracking selections and recorded runs
//   - Run control: execute, cancel and status of a design's chart
//   - WebSocket streams of run status events, per design or per run
//   - Middleware stack (request ID, logging, recovery, CORS, body limit)
//   - Prometheus exposition at /metrics and a JSON snapshot at /api/v1/metrics
//
// # Architecture
//
// The API server is a thin translation layer. Designs and catalog data are
// read and written through their repositories; runs are started and
// cancelled through the run manager, whose status events are delivered to
// WebSocket clients registered as broadcast subscribers.
//
// # Error mapping
//
// Domain sentinel errors map onto HTTP statuses in one place (writeDomainError):
// unknown designs and runs are 404, invalid input is 400, and a run started
// without an automation server configuration is 409.
package api
