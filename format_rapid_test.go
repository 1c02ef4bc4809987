package hda

import (
	"testing"

	"pgregory.net/rapid"
)

// TestPCMFormatRoundTripLaw checks spec.md §8's format round-trip law:
// encoding a format and decoding its SDnFMT bitfields back out always
// reproduces the same channel count and bit depth NewPCMFormat chose, for
// any requested rate/channels/bits triple.
func TestPCMFormatRoundTripLaw(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		rate := rapid.Uint32Range(1, 400000).Draw(rt, "rate")
		channels := rapid.Uint8Range(0, 255).Draw(rt, "channels")
		bits8 := rapid.Uint8Range(0, 255).Draw(rt, "bits")

		f := NewPCMFormat(rate, channels, bits8)
		encoded := f.Encode()

		gotChannels := uint8((encoded&sdfmtCHANMask)>>sdfmtCHANPos) + 1
		if gotChannels != f.Channels {
			rt.Fatalf("channel round-trip: encoded %d, want %d", gotChannels, f.Channels)
		}

		gotBitsField := uint8((encoded >> sdfmtBITSPos) & sdfmtBITSMask)
		if gotBitsField != bitsField(f.BitsPerSample) {
			rt.Fatalf("bits-field round-trip: encoded %d, want %d", gotBitsField, bitsField(f.BitsPerSample))
		}

		if f.Channels < 1 || f.Channels > 16 {
			rt.Fatalf("channels out of range: %d", f.Channels)
		}
		switch f.BitsPerSample {
		case 8, 16, 20, 24, 32:
		default:
			rt.Fatalf("unsupported bits per sample: %d", f.BitsPerSample)
		}
	})
}

// TestPickRateTierMonotonicInRequest checks that the chosen tier's rate is
// monotonic in the request: a larger requested rate never selects a tier
// with a lower rate.
func TestPickRateTierMonotonicInRequest(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		a := rapid.Uint32Range(1, 300000).Draw(rt, "a")
		b := rapid.Uint32Range(1, 300000).Draw(rt, "b")
		if a > b {
			a, b = b, a
		}
		ta := pickRateTier(a)
		tb := pickRateTier(b)
		if ta.rate > tb.rate {
			rt.Fatalf("pickRateTier not monotonic: pickRateTier(%d)=%d > pickRateTier(%d)=%d", a, ta.rate, b, tb.rate)
		}
	})
}
