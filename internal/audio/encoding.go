// ABOUTME: Audio encoding vocabulary: format plus sample rate
// ABOUTME: Maps gateway encodings to engine config names

package audio

import (
	"errors"
	"fmt"
)

const (
	// TelephonySampleRate is the narrowband rate of Twilio media streams.
	TelephonySampleRate = 8000

	DefaultEngineSampleRate = 24000
)

// ErrUnsupportedEncoding is returned for formats or rates the bridge cannot convert
var ErrUnsupportedEncoding = errors.New("unsupported audio encoding")

// Telephony is the fixed encoding of Twilio media payloads.
var Telephony = EncodingInfo{SampleRate: TelephonySampleRate, Format: EncodingMulaw}

type EncodingInfo struct {
	SampleRate int
	Format     encodingFormat
}

// ParseEncoding builds an EncodingInfo from a config format name and rate.
func ParseEncoding(format string, sampleRate int) (EncodingInfo, error) {
	e := EncodingInfo{SampleRate: sampleRate, Format: encodingFormat(format)}
	if err := e.Validate(); err != nil {
		return EncodingInfo{}, err
	}
	return e, nil
}

func (e EncodingInfo) IsZero() bool {
	return e.SampleRate == 0 || e.Format.Name() == ""
}

// Validate checks the format is known and companded formats run at 8kHz.
func (e EncodingInfo) Validate() error {
	if e.Format.ByteSize() < 0 {
		return fmt.Errorf("%w: format %q", ErrUnsupportedEncoding, e.Format)
	}
	if e.SampleRate <= 0 {
		return fmt.Errorf("%w: sample rate %d", ErrUnsupportedEncoding, e.SampleRate)
	}
	if e.Format != EncodingLinear16 && e.SampleRate != TelephonySampleRate {
		return fmt.Errorf("%w: %s requires %d Hz, got %d", ErrUnsupportedEncoding, e.Format, TelephonySampleRate, e.SampleRate)
	}
	return nil
}

func (e EncodingInfo) SilenceValue() byte {
	switch e.Format {
	case EncodingALaw:
		return 0x55
	case EncodingMulaw:
		return 0xFF
	case EncodingLinear16:
		return 0
	}

	return 0
}

// EngineFormatName is the name the execution engine uses for this format in
// its audio format config overrides.
func (e EncodingInfo) EngineFormatName() string {
	switch e.Format {
	case EncodingMulaw:
		return "g711_ulaw"
	case EncodingALaw:
		return "g711_alaw"
	case EncodingLinear16:
		return "pcm16"
	}
	return e.Format.Name()
}

// ParseEngineFormat maps an engine audio format name back to its encoding.
// pcm16 is the engine's 24kHz linear PCM.
func ParseEngineFormat(name string) (EncodingInfo, error) {
	switch name {
	case "pcm16":
		return EncodingInfo{SampleRate: DefaultEngineSampleRate, Format: EncodingLinear16}, nil
	case "g711_ulaw":
		return Telephony, nil
	case "g711_alaw":
		return EncodingInfo{SampleRate: TelephonySampleRate, Format: EncodingALaw}, nil
	}
	return EncodingInfo{}, fmt.Errorf("%w: engine format %q", ErrUnsupportedEncoding, name)
}

func (e EncodingInfo) String() string {
	return fmt.Sprintf("%s@%d", e.Format, e.SampleRate)
}

type encodingFormat string

func (e encodingFormat) Name() string {
	return string(e)
}

func (e encodingFormat) ByteSize() int {
	switch e {
	case EncodingMulaw, EncodingALaw:
		return 1
	case EncodingLinear16:
		return 2
	}
	return -1
}

const (
	EncodingMulaw    encodingFormat = "mulaw"
	EncodingALaw     encodingFormat = "alaw"
	EncodingLinear16 encodingFormat = "linear16"
)
