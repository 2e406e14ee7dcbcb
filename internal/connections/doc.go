// Package connections activates third-party credentials for a user.
//
// An Actor owns one activation. Callers reach it only through four operations:
//
//	events, _ := actor.Activate(ctx) // ordered *Completed, *Output, *Update events
//	actor.Input(code)                // value the handler is waiting on, or "terminate"
//	actor.SetConnection(ctx, conn)   // commit a finished connection
//	actor.Stop()                     // idempotent; closes events
//
// The actor loads the connection, marks it Connecting and hands it to the
// Handler registered for its connection_type_slug. Handlers emit Output for
// intermediate data (an OAuth2 authorization URL) and finish with Completed.
// A handler error becomes an Update carrying the error followed by a Failed
// Completed connection.
package connections
