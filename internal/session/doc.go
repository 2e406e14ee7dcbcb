// Package session maps one accepted websocket connection onto a long-lived
// session and implements each flavor's event protocol.
//
// # Lifecycle
//
// The gateway drives every flavor the same way:
//
//	sess := session.NewAppSession(deps, session.InfoFromRequest(r), appUUID, false)
//	if err := sess.Connect(ctx); err != nil { /* refuse the upgrade */ }
//	sess.Accept(ctx, conn)
//	for { sess.Receive(msg) }
//	sess.Disconnect(session.CloseNormal)
//
// Connect runs before the transport is accepted, so authorization or runner
// failures refuse the connection. Disconnect is idempotent.
//
// # Tasks and liveness
//
// Each inbound event that needs asynchronous work gets a new task. Tasks are
// not queued behind each other and a new one does not cancel the previous
// one, so frames of overlapping runs may interleave. The session keeps only
// the newest task's cancel func. Every outbound frame is gated on the
// session's liveness flag: once Disconnect has been observed nothing more is
// written, even if the engine still has buffered responses.
//
// # Errors
//
// Event handlers return an error classified by ErrorKind. Policies decide per
// event whether that error is sent to the client as
// {"errors": [msg], "request_id": id} or only logged.
//
// # Flavors
//
//   - AppSession: Web apps by uuid and Store apps by slug; run, create_asset,
//     delete_asset, stop.
//   - PlaygroundSession: a fresh runner per run for a processor/provider pair.
//   - TwilioSession: voice calls; start, media, mark, stop.
//   - AssetStreamSession: binary "read\n" and "write\n<payload>" frames.
//   - ConnectionSession: activate and input for third-party credentials.
package session
