// ABOUTME: Tests for audio encodings, codec, resampler and Twilio bridges
// ABOUTME: Round-trips silence and tones through the G.711 and resampling paths

package audio

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pcm(samples ...int16) []byte {
	out := make([]byte, 0, len(samples)*2)
	for _, s := range samples {
		out = binary.LittleEndian.AppendUint16(out, uint16(s))
	}
	return out
}

func samples(data []byte) []int16 {
	out := make([]int16, len(data)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(data[i*2:]))
	}
	return out
}

func TestParseEncoding(t *testing.T) {
	tests := []struct {
		format  string
		rate    int
		wantErr bool
	}{
		{"linear16", 24000, false},
		{"linear16", 16000, false},
		{"mulaw", 8000, false},
		{"alaw", 8000, false},
		{"mulaw", 24000, true},
		{"opus", 48000, true},
		{"linear16", 0, true},
	}

	for _, tt := range tests {
		_, err := ParseEncoding(tt.format, tt.rate)
		if tt.wantErr {
			assert.ErrorIs(t, err, ErrUnsupportedEncoding, "%s@%d", tt.format, tt.rate)
		} else {
			assert.NoError(t, err, "%s@%d", tt.format, tt.rate)
		}
	}
}

func TestEncodingInfo_EngineFormatName(t *testing.T) {
	assert.Equal(t, "pcm16", EncodingInfo{SampleRate: 24000, Format: EncodingLinear16}.EngineFormatName())
	assert.Equal(t, "g711_ulaw", Telephony.EngineFormatName())
	assert.Equal(t, "g711_alaw", EncodingInfo{SampleRate: 8000, Format: EncodingALaw}.EngineFormatName())
	assert.Equal(t, byte(0xFF), Telephony.SilenceValue())
	assert.Equal(t, 1, EncodingMulaw.ByteSize())
	assert.Equal(t, 2, EncodingLinear16.ByteSize())
}

func TestResampler_Upsample(t *testing.T) {
	r := NewResampler(8000, 24000)
	out := r.Resample(pcm(0, 300, 600))
	assert.Equal(t, []int16{0, 100, 200, 300, 400, 500}, samples(out))
}

func TestResampler_Downsample(t *testing.T) {
	r := NewResampler(24000, 8000)
	out := r.Resample(pcm(0, 10, 20, 30, 40, 50, 60))
	assert.Equal(t, []int16{0, 30}, samples(out))
}

func TestResampler_StateCarriesAcrossCalls(t *testing.T) {
	input := pcm(-900, -300, 300, 900, 1500, 0, -1500)

	whole := NewResampler(8000, 24000).Resample(input)

	split := NewResampler(8000, 24000)
	var joined []byte
	joined = append(joined, split.Resample(input[:3])...) // odd byte carried
	joined = append(joined, split.Resample(input[3:8])...)
	joined = append(joined, split.Resample(input[8:])...)

	assert.Equal(t, samples(whole), samples(joined))
}

func TestResampler_Passthrough(t *testing.T) {
	r := NewResampler(16000, 16000)
	assert.True(t, r.Passthrough())
	in := pcm(1, 2, 3)
	assert.Equal(t, in, r.Resample(in))
}

func TestResampler_Reset(t *testing.T) {
	r := NewResampler(8000, 24000)
	_ = r.Resample(pcm(1000))
	r.Reset()
	assert.Empty(t, r.Resample(pcm(5)), "first sample after reset only primes")
}

func TestCodec_RoundTrip(t *testing.T) {
	silence := bytes.Repeat([]byte{0xFF}, 8)
	lin, err := ToLinear16(EncodingMulaw, silence)
	require.NoError(t, err)
	assert.Equal(t, make([]int16, 8), samples(lin))

	back, err := FromLinear16(EncodingMulaw, lin)
	require.NoError(t, err)
	assert.Len(t, back, 8)

	_, err = ToLinear16(encodingFormat("opus"), silence)
	assert.ErrorIs(t, err, ErrUnsupportedEncoding)
}

func TestInputBridge_SilenceFrame(t *testing.T) {
	b, err := NewInputBridge(EncodingInfo{SampleRate: 24000, Format: EncodingLinear16})
	require.NoError(t, err)

	// 20ms of telephony silence
	payload := base64.StdEncoding.EncodeToString(bytes.Repeat([]byte{0xFF}, 160))
	out, err := b.Convert(payload)
	require.NoError(t, err)

	// First sample primes the interpolator, the remaining 159 triple
	assert.Len(t, out, 159*3*2)
	for _, s := range samples(out) {
		assert.Equal(t, int16(0), s)
	}

	// The held sample is released by the next frame
	out, err = b.Convert(payload)
	require.NoError(t, err)
	assert.Len(t, out, 160*3*2)
}

func TestInputBridge_InvalidPayload(t *testing.T) {
	b, err := NewInputBridge(EncodingInfo{SampleRate: 24000, Format: EncodingLinear16})
	require.NoError(t, err)

	_, err = b.Convert("!!not base64!!")
	assert.ErrorIs(t, err, ErrInvalidPayload)
}

func TestNewInputBridge_RejectsBadTarget(t *testing.T) {
	_, err := NewInputBridge(EncodingInfo{SampleRate: 24000, Format: EncodingMulaw})
	assert.ErrorIs(t, err, ErrUnsupportedEncoding)
}

func TestOutputBridge_TelephonyPassthrough(t *testing.T) {
	b, err := NewOutputBridge(Telephony)
	require.NoError(t, err)

	chunk := []byte{0x01, 0x7F, 0xFF}
	payload, err := b.Convert(chunk)
	require.NoError(t, err)
	assert.Equal(t, base64.StdEncoding.EncodeToString(chunk), payload)
}

func TestOutputBridge_Linear16Transcode(t *testing.T) {
	b, err := NewOutputBridge(EncodingInfo{SampleRate: 24000, Format: EncodingLinear16})
	require.NoError(t, err)

	payload, err := b.Convert(make([]byte, 480*2))
	require.NoError(t, err)

	raw, err := base64.StdEncoding.DecodeString(payload)
	require.NoError(t, err)
	require.Len(t, raw, 160)

	lin, err := ToLinear16(EncodingMulaw, raw)
	require.NoError(t, err)
	for _, s := range samples(lin) {
		assert.InDelta(t, 0, s, 8)
	}
}

func TestParseEngineFormat(t *testing.T) {
	for _, e := range []EncodingInfo{
		Telephony,
		{SampleRate: TelephonySampleRate, Format: EncodingALaw},
		{SampleRate: DefaultEngineSampleRate, Format: EncodingLinear16},
	} {
		got, err := ParseEngineFormat(e.EngineFormatName())
		require.NoError(t, err)
		assert.Equal(t, e, got)
	}

	_, err := ParseEngineFormat("opus")
	assert.ErrorIs(t, err, ErrUnsupportedEncoding)
}

func TestTranscoder_Linear16ToTelephonyAndBack(t *testing.T) {
	wide := EncodingInfo{SampleRate: DefaultEngineSampleRate, Format: EncodingLinear16}
	down, err := NewTranscoder(wide, Telephony)
	require.NoError(t, err)
	up, err := NewTranscoder(Telephony, wide)
	require.NoError(t, err)

	ulaw, err := down.Convert(make([]byte, 480*2))
	require.NoError(t, err)
	assert.Len(t, ulaw, 160)

	pcm, err := up.Convert(ulaw)
	require.NoError(t, err)
	assert.Len(t, pcm, 159*3*2)
}

func TestTranscoder_Passthrough(t *testing.T) {
	tc, err := NewTranscoder(Telephony, Telephony)
	require.NoError(t, err)
	assert.True(t, tc.Passthrough())

	chunk := []byte{1, 2, 3}
	out, err := tc.Convert(chunk)
	require.NoError(t, err)
	assert.Equal(t, chunk, out)

	_, err = NewTranscoder(Telephony, EncodingInfo{SampleRate: 16000, Format: EncodingMulaw})
	assert.ErrorIs(t, err, ErrUnsupportedEncoding)
}
