// Package runner defines the vocabulary shared by the session gateway and the
// app execution engine.
//
// A Factory builds a Runner for a session. Runner.Run returns a channel of
// Responses that the caller drains until it is closed or a terminal response
// (errors, output_stream_end) arrives. Unknown response types must be ignored
// by consumers so the engine can grow new variants.
package runner
