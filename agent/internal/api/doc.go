// Package api implements the agent's read-only HTTP status API.
//
// New(store) returns an http.Handler that serves:
//
//	GET /api/v1/health                    overall state and per-state counts
//	GET /api/v1/hosts                     all live hosts ([]HostResponse)
//	GET /api/v1/hosts/{hostname}          single host; 404 if unknown or stale
//	GET /api/v1/hosts/{hostname}/payload  merged payload as text/plain
//	GET /metrics                          Prometheus text exposition
//
// JSON endpoints respond with Content-Type: application/json and return 405
// for non-GET methods. No external HTTP framework is used.
package api
