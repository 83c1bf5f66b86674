// Package api implements the relay's status HTTP server.
//
// Endpoints (all GET, unauthenticated, meant for a local or trusted network):
//
//	/api/v1/health   component probes; 200 "ok" or 503 "degraded"
//	/api/v1/status   relay counters (connection, pending rows, spool depth)
//	/api/v1/metrics  runtime, MQTT, relay and database pool metrics
//	/api/v1/spool    oldest spooled batches, ?limit=N
//
// Every request gets an X-Request-ID, is logged, and is protected by panic
// recovery.
//
// The server follows the same lifecycle pattern as other infrastructure components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
package api
