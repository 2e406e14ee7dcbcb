// Package assets implements binary assets addressed by objref://category/uuid.
//
// An asset is an ordered, append-only list of byte chunks kept in the store.
// A Stream appends chunks, finalizes the asset, and reads it back:
//
//	h, _ := svc.Create(ctx, assets.CreateRequest{MimeType: "audio/wav", Streaming: true})
//	s := h.Stream()
//	_ = s.Append(ctx, pcm)
//	_ = s.Finalize(ctx)
//	for chunk, err := range s.Read(ctx, 0) { ... }
//
// Reads may run while another connection is still writing. Each Append or
// Finalize publishes a ChunkEvent on the service's Broadcaster once the store
// has committed it; readers wake on the event (or a poll tick) and re-query
// from their cursor. Appending after Finalize fails with ErrStreamFinalized.
package assets
