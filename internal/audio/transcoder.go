// ABOUTME: Streaming transcoder between any two supported encodings
// ABOUTME: Expands to linear16, resamples and compands again, keeping resampler state

package audio

import (
	"fmt"
	"sync"
)

// Transcoder converts a stream of audio chunks from one encoding to another.
// Chunks must be converted in stream order.
type Transcoder struct {
	mu        sync.Mutex
	from, to  EncodingInfo
	resampler *Resampler
}

// NewTranscoder creates a transcoder from one encoding to another.
func NewTranscoder(from, to EncodingInfo) (*Transcoder, error) {
	if err := from.Validate(); err != nil {
		return nil, fmt.Errorf("transcoder source: %w", err)
	}
	if err := to.Validate(); err != nil {
		return nil, fmt.Errorf("transcoder target: %w", err)
	}
	return &Transcoder{
		from:      from,
		to:        to,
		resampler: NewResampler(from.SampleRate, to.SampleRate),
	}, nil
}

// Passthrough reports whether chunks are returned unchanged.
func (t *Transcoder) Passthrough() bool {
	return t.from == t.to
}

// Convert transcodes one chunk.
func (t *Transcoder) Convert(chunk []byte) ([]byte, error) {
	if t.Passthrough() {
		return chunk, nil
	}

	pcm, err := ToLinear16(t.from.Format, chunk)
	if err != nil {
		return nil, err
	}

	t.mu.Lock()
	pcm = t.resampler.Resample(pcm)
	t.mu.Unlock()

	return FromLinear16(t.to.Format, pcm)
}
