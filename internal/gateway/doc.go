// Package gateway provides the HTTP server that upgrades websocket requests
// and hands each connection to a session.
//
// # Overview
//
// The Gateway owns the collaborators every session shares: the SQLite store,
// the asset service, the rate limit policy, the runner factory (the built-in
// echo engine) and the connection activation registry. It builds them from
// config in New and releases them in Shutdown.
//
// # Routes
//
// Health endpoints, no auth:
//
//	GET /health         liveness, always 200 "OK"
//	GET /health/ready   200 when the store answers a ping, 503 otherwise
//
// Websocket routes, behind the optional auth middleware:
//
//	/ws/apps/{app_uuid}                      AppSession (Web)
//	/ws/apps/{app_uuid}/preview              AppSession (Web, preview)
//	/ws/store/apps/{slug}                    AppSession (Store)
//	/ws/playground                           PlaygroundSession
//	/ws/twilio/{app_uuid}/{incoming_number}  TwilioSession
//	/ws/assets/{category}/{uuid}             AssetStreamSession
//	/ws/connections/{conn_id}/activate       ConnectionSession
//
// # Connection Lifecycle
//
// For every websocket request the gateway:
//
//  1. Builds the session from the path and the handshake metadata
//  2. Calls Connect; a refusal is answered before the upgrade with 403
//     (authorization denied), 404 (not found) or 500
//  3. Upgrades with gorilla/websocket, checking Origin against
//     server.allowed_origins and copying the visitor cookie onto the 101
//     response
//  4. Calls Accept and feeds every inbound frame to Receive
//  5. Calls Disconnect when the read loop ends
//
// The mux is wrapped in an otelhttp handler, so handshakes get server spans.
//
// Writes from session tasks are serialized by the connection adapter, and a
// write after close fails with session.ErrConnClosed.
//
// # Shutdown
//
// Shutdown stops the HTTP server and disconnects live sessions with close code
// 1001. It waits for their tasks, bounded by its context, before closing the
// store. Run calls it when its context is canceled.
package gateway
