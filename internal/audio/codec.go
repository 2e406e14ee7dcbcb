// ABOUTME: G.711 conversions to and from 16-bit linear PCM
// ABOUTME: Thin wrapper over github.com/zaf/g711

package audio

import (
	"fmt"

	"github.com/zaf/g711"
)

// ToLinear16 expands companded audio to 16-bit little-endian PCM.
// Linear16 input is returned unchanged.
func ToLinear16(format encodingFormat, data []byte) ([]byte, error) {
	switch format {
	case EncodingMulaw:
		return g711.DecodeUlaw(data), nil
	case EncodingALaw:
		return g711.DecodeAlaw(data), nil
	case EncodingLinear16:
		return data, nil
	}
	return nil, fmt.Errorf("%w: format %q", ErrUnsupportedEncoding, format)
}

// FromLinear16 compands 16-bit little-endian PCM into format.
func FromLinear16(format encodingFormat, pcm []byte) ([]byte, error) {
	switch format {
	case EncodingMulaw:
		return g711.EncodeUlaw(pcm), nil
	case EncodingALaw:
		return g711.EncodeAlaw(pcm), nil
	case EncodingLinear16:
		return pcm, nil
	}
	return nil, fmt.Errorf("%w: format %q", ErrUnsupportedEncoding, format)
}
