// Package api implements the bridge's HTTP status API and live event stream.
//
// Routes:
//   - GET /api/v1/health: component health (200 ok, 503 degraded)
//   - GET /api/v1/system: runtime and subscription statistics
//   - GET /api/v1/doorbells: configured doorbells and their states
//   - GET /api/v1/doorbells/last-ring?unique_id=: last ring stored in Redis
//   - GET /api/v1/events?limit=&unique_id=: journaled rings, newest first
//   - GET /api/v1/ws: WebSocket stream of ring events
//   - GET /metrics: Prometheus exposition
//
// The API is read-only and unauthenticated; bind it to a trusted interface.
//
// The server follows the same lifecycle pattern as other infrastructure components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
package api
