// Package api hosts the HTTP server, middleware, and REST handlers for
// operator access. Notable routes:
//   - GET /healthz / readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/lobby and POST /v1/lobby/refresh for the table list.
//   - POST /v1/seats (and /{seat_id}, /{seat_id}/cancel) for seat requests.
package api
