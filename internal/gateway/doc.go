// Package gateway serves the conversation store over HTTP.
//
// # Overview
//
// The Gateway owns the conversation.Store, the completion client it uses in
// remote mode, and the HTTP server. It listens on a plain TCP address or,
// when tailscale is enabled, on a tsnet node (optionally with HTTPS using
// Tailscale-issued certificates).
//
// # HTTP API
//
//   - GET /health - Liveness check
//   - GET /health/ready - Mode and conversation count
//   - GET /api/conversations - Summaries, most recently active first
//   - POST /api/conversations - Get or create the conversation for user_name
//   - GET /api/conversations/{id} - Full conversation (?format=html renders markdown)
//   - DELETE /api/conversations/{id} - Remove a conversation
//   - POST /api/conversations/{id}/messages - Append a message (or trigger a reply)
//   - POST /api/conversations/{id}/reply - Generate the assistant reply
//   - GET /api/events - SSE stream of change events (?conversation_id= filters)
//
// Errors are JSON objects of the form {"error": "message"}.
//
// # Lifecycle
//
//	gw, err := gateway.New(cfg, logger)
//	if err != nil {
//	    return err
//	}
//	return gw.Run(ctx) // blocks until ctx is canceled
//
// Shutdown closes event streams, drains the HTTP server with a 5 second
// deadline, leaves the tailnet, and releases the provider client.
package gateway
