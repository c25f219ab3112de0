// Package api implements the device's read-only diagnostics HTTP API.
//
// New(device, sources) returns an http.Handler that serves:
//
//	GET /api/v1/health            - device name, flags, route counts, broker cert
//	GET /api/v1/routes            - all routes ordered by slot ([]RouteResponse)
//	GET /api/v1/routes/{channel}  - single route; 404 if unknown
//	GET /api/v1/frame             - last rendered frame + generated_at
//	GET /metrics                  - Prometheus text exposition
//
// All JSON endpoints respond with Content-Type: application/json and return
// 405 for non-GET methods. No external HTTP framework is used.
package api
