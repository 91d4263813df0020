// Package api hosts the operational HTTP server for the extraction
// pipeline. Notable routes:
//   - GET /healthz and /readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/run for the active run's status snapshot.
package api
