// Package api hosts the HTTP server, middleware, and REST handlers. Notable
// routes:
//   - GET /healthz, /readyz and /metrics for probes and Prometheus.
//   - /v1/discovery for submitting, inspecting and canceling discovery jobs.
//   - /v1/leads and /v1/pipeline/summary for the sales pipeline, scoped by the
//     X-Owner-ID header.
//   - POST /v1/analyze for one-off website scoring (json, yaml or markdown).
//   - GET /api/jobs and /api/jobs/{id}/sources for progress reporting via the
//     ProgressRepository interface.
package api
