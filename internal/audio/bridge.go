// ABOUTME: Twilio media bridges between base64 telephony audio and engine audio
// ABOUTME: Input decodes and resamples inbound media; output re-encodes engine chunks

package audio

import (
	"encoding/base64"
	"errors"
	"fmt"
)

// ErrInvalidPayload is returned when a media payload is not valid base64
var ErrInvalidPayload = errors.New("invalid media payload")

// InputBridge converts base64 telephony media (8kHz μ-law) into the audio
// encoding the engine reads from its input asset.
type InputBridge struct {
	target EncodingInfo
	tc     *Transcoder
}

// NewInputBridge creates a bridge producing audio in target encoding.
func NewInputBridge(target EncodingInfo) (*InputBridge, error) {
	if err := target.Validate(); err != nil {
		return nil, fmt.Errorf("input bridge: %w", err)
	}
	tc, err := NewTranscoder(Telephony, target)
	if err != nil {
		return nil, fmt.Errorf("input bridge: %w", err)
	}
	return &InputBridge{target: target, tc: tc}, nil
}

// Target returns the encoding produced by Convert.
func (b *InputBridge) Target() EncodingInfo {
	return b.target
}

// Convert decodes one media payload. Calls must be made in arrival order;
// resampler state carries across them.
func (b *InputBridge) Convert(payload string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return b.tc.Convert(raw)
}

// OutputBridge converts engine output audio into base64 telephony media.
type OutputBridge struct {
	tc *Transcoder
}

// NewOutputBridge creates a bridge reading audio in source encoding.
func NewOutputBridge(source EncodingInfo) (*OutputBridge, error) {
	if err := source.Validate(); err != nil {
		return nil, fmt.Errorf("output bridge: %w", err)
	}
	tc, err := NewTranscoder(source, Telephony)
	if err != nil {
		return nil, fmt.Errorf("output bridge: %w", err)
	}
	return &OutputBridge{tc: tc}, nil
}

// Convert encodes one output chunk as a Twilio media payload. Audio that is
// already 8kHz μ-law is passed through untouched.
func (b *OutputBridge) Convert(chunk []byte) (string, error) {
	ulaw, err := b.tc.Convert(chunk)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(ulaw), nil
}
