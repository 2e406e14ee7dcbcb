// ABOUTME: Streaming linear-interpolation resampler for 16-bit PCM
// ABOUTME: Keeps phase and carry state so chunk boundaries do not click

package audio

import "encoding/binary"

// Resampler converts mono 16-bit little-endian PCM between sample rates by
// linear interpolation. It keeps the last sample and phase between calls so
// consecutive frames join without clicks. Not safe for concurrent use.
type Resampler struct {
	inStep  int // ticks between output samples
	outStep int // ticks between input samples
	phase   int // ticks from prev to the next output sample
	prev    int16
	primed  bool
	carry   []byte // odd trailing byte from the previous call
}

// NewResampler creates a resampler from inRate to outRate Hz.
func NewResampler(inRate, outRate int) *Resampler {
	g := gcd(inRate, outRate)
	return &Resampler{
		inStep:  inRate / g,
		outStep: outRate / g,
	}
}

// Passthrough reports whether input and output rates are equal.
func (r *Resampler) Passthrough() bool {
	return r.inStep == r.outStep
}

// Resample converts pcm and returns the output samples produced so far.
// The first input sample is held back until its successor arrives.
func (r *Resampler) Resample(pcm []byte) []byte {
	if len(r.carry) > 0 {
		pcm = append(r.carry, pcm...)
		r.carry = nil
	}
	if len(pcm)%2 == 1 {
		r.carry = []byte{pcm[len(pcm)-1]}
		pcm = pcm[:len(pcm)-1]
	}

	if r.Passthrough() {
		out := make([]byte, len(pcm))
		copy(out, pcm)
		return out
	}

	n := len(pcm) / 2
	out := make([]byte, 0, n*r.outStep/r.inStep*2+4)
	for i := 0; i < n; i++ {
		cur := int16(binary.LittleEndian.Uint16(pcm[i*2:]))
		if !r.primed {
			r.prev = cur
			r.primed = true
			continue
		}

		for r.phase < r.outStep {
			delta := int(cur) - int(r.prev)
			v := int(r.prev) + delta*r.phase/r.outStep
			out = binary.LittleEndian.AppendUint16(out, uint16(int16(v)))
			r.phase += r.inStep
		}
		r.phase -= r.outStep
		r.prev = cur
	}

	return out
}

// Reset drops interpolation state so the next call starts a new signal.
func (r *Resampler) Reset() {
	r.phase = 0
	r.prev = 0
	r.primed = false
	r.carry = nil
}

func gcd(a, b int) int {
	for b != 0 {
		a, b = b, a%b
	}
	if a == 0 {
		return 1
	}
	return a
}
