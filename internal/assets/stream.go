// ABOUTME: Append-only chunked byte stream over a stored asset
// ABOUTME: Read tails concurrent writers until the asset is finalized

package assets

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"time"

	"github.com/2389/appstream-gateway/internal/store"
)

// ErrStreamFinalized is returned by Append once the stream has been finalized.
// Callers hitting it have a sequencing bug; the chunk is not stored.
var ErrStreamFinalized = errors.New("asset stream is finalized")

// DefaultPollInterval bounds how long a tailing reader waits without a
// broadcast before re-checking the store. It covers writers in other processes.
const DefaultPollInterval = 250 * time.Millisecond

// Stream reads and writes the chunks of one asset.
type Stream struct {
	ref          Ref
	store        store.AssetStore
	hub          *Broadcaster
	logger       *slog.Logger
	pollInterval time.Duration
}

// Ref returns the asset this stream operates on.
func (s *Stream) Ref() Ref {
	return s.ref
}

// Append stores chunk as the next piece of the asset and wakes tailing readers.
func (s *Stream) Append(ctx context.Context, chunk []byte) error {
	idx, err := s.store.AppendAssetChunk(ctx, s.ref.Category, s.ref.UUID, chunk)
	if errors.Is(err, store.ErrAssetFinalized) {
		return fmt.Errorf("appending to %s: %w", s.ref, ErrStreamFinalized)
	}
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("appending to %s: %w", s.ref, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("appending to %s: %w", s.ref, err)
	}

	s.hub.Publish(s.ref, ChunkEvent{Index: idx})
	return nil
}

// Finalize makes the asset read-only and ends every tailing read once it has
// drained. Finalizing an already finalized stream is a no-op.
func (s *Stream) Finalize(ctx context.Context) error {
	if err := s.store.FinalizeAsset(ctx, s.ref.Category, s.ref.UUID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("finalizing %s: %w", s.ref, ErrNotFound)
		}
		return fmt.Errorf("finalizing %s: %w", s.ref, err)
	}

	s.hub.Publish(s.ref, ChunkEvent{Index: -1, Finalized: true})
	s.logger.Debug("stream finalized", "asset", s.ref.String())
	return nil
}

// Read yields chunks in append order starting at startIndex. Chunks appended
// while reading are yielded as they land. The sequence ends after the last
// chunk of a finalized asset, or with ctx's error if ctx ends first.
func (s *Stream) Read(ctx context.Context, startIndex int) iter.Seq2[[]byte, error] {
	return func(yield func([]byte, error) bool) {
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		// Subscribe before the first query so no append can slip between them
		events, _ := s.hub.Subscribe(ctx, s.ref)

		ticker := time.NewTicker(s.pollInterval)
		defer ticker.Stop()

		next := max(startIndex, 0)
		for {
			// Finalized state is read before listing: if it is set, every
			// chunk is already durable and the listing below is complete.
			asset, err := s.store.GetAsset(ctx, s.ref.Category, s.ref.UUID)
			if err != nil {
				if errors.Is(err, store.ErrNotFound) {
					err = ErrNotFound
				}
				yield(nil, fmt.Errorf("reading %s: %w", s.ref, err))
				return
			}

			chunks, err := s.store.ListAssetChunks(ctx, s.ref.Category, s.ref.UUID, next)
			if err != nil {
				yield(nil, fmt.Errorf("reading %s: %w", s.ref, err))
				return
			}
			for _, c := range chunks {
				if !yield(c.Data, nil) {
					return
				}
				next = c.Index + 1
			}

			if asset.Finalized {
				return
			}

			select {
			case <-ctx.Done():
				yield(nil, ctx.Err())
				return
			case _, ok := <-events:
				if !ok {
					// Broadcaster shut down; keep tailing on the ticker alone
					events = nil
				}
			case <-ticker.C:
			}
		}
	}
}

// ReadAll collects every chunk of a finalized asset. On an unfinalized asset
// it blocks until the asset is finalized or ctx ends.
func (s *Stream) ReadAll(ctx context.Context) ([]byte, error) {
	var out []byte
	for chunk, err := range s.Read(ctx, 0) {
		if err != nil {
			return out, err
		}
		out = append(out, chunk...)
	}
	return out, nil
}
