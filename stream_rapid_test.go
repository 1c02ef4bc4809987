package hda

import (
	"testing"

	"pgregory.net/rapid"

	"github.com/uDrivers/uHDA/internal/fakekernel"
)

// TestRingCopyRoundTripLaw checks spec.md §4.6's ring buffer law: bytes
// written with ringCopyIn and later read back with ringCopyOut in the same
// order come out unchanged, for any sequence of write chunk sizes whose
// total fits the ring's capacity, followed by one read of everything
// written, from any starting position, including wraparound.
func TestRingCopyRoundTripLaw(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		capacity := rapid.IntRange(1, 64).Draw(rt, "capacity")
		ring := make([]byte, capacity)
		startPos := uint32(rapid.IntRange(0, capacity-1).Draw(rt, "startPos"))

		chunkGen := rapid.SliceOfN(rapid.Byte(), 0, 40)
		chunks := rapid.SliceOfN(chunkGen, 0, 8).Draw(rt, "chunks")

		var written []byte
		writePos := startPos
		for i, chunk := range chunks {
			if room := capacity - len(written); len(chunk) > room {
				chunk = chunk[:room]
			}
			writePos = ringCopyIn(ring, writePos, chunk)
			written = append(written, chunk...)
			if writePos >= uint32(capacity) {
				rt.Fatalf("ringCopyIn returned out-of-range position %d (capacity %d) after chunk %d", writePos, capacity, i)
			}
		}

		readPos := startPos
		got := make([]byte, len(written))
		n, newReadPos := ringCopyOut(ring, readPos, got)
		if n != len(written) {
			rt.Fatalf("ringCopyOut returned %d bytes, want %d", n, len(written))
		}
		for i := range written {
			if got[i] != written[i] {
				rt.Fatalf("byte %d mismatch: got %#x, want %#x", i, got[i], written[i])
			}
		}
		if len(written) > 0 && newReadPos != writePos {
			rt.Fatalf("final read position %d does not match final write position %d", newReadPos, writePos)
		}
	})
}

// TestSoftwareAheadNeverNegative checks that softwareAhead, expressed over
// the BDL's circular span, always returns a value strictly less than
// bdlSpan — the distance-around-a-circle law spec.md §4.6 depends on to
// bound OutputIRQ's refill loop.
func TestSoftwareAheadNeverNegative(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		fillPos := uint32(rapid.IntRange(0, bdlSpan-1).Draw(rt, "fillPos"))
		dmaPos := uint32(rapid.IntRange(0, bdlSpan-1).Draw(rt, "dmaPos"))

		ahead := softwareAhead(fillPos, dmaPos)
		if ahead >= bdlSpan {
			rt.Fatalf("softwareAhead(%d, %d) = %d, want < bdlSpan (%d)", fillPos, dmaPos, ahead, bdlSpan)
		}
		if fillPos == dmaPos && ahead != 0 {
			rt.Fatalf("softwareAhead(%d, %d) = %d, want 0 when fill caught up to dma", fillPos, dmaPos, ahead)
		}
	})
}

// TestQueueDataNeverExceedsCapacity checks the saturation bound:
// repeatedly queueing data into a Stream's software ring never grows
// ringSize past ringCapacity, regardless of how much is offered.
func TestQueueDataNeverExceedsCapacity(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		capacity := uint32(rapid.IntRange(1, 256).Draw(rt, "capacity"))
		services := fakekernel.New()
		s := &Stream{
			kernel:       services,
			lock:         services.NewSpinlock(),
			ring:         make([]byte, capacity),
			ringCapacity: capacity,
		}

		offers := rapid.SliceOfN(rapid.IntRange(0, 300), 0, 10).Draw(rt, "offers")
		for _, size := range offers {
			data := make([]byte, size)
			accepted := s.QueueData(nil, data)
			if s.ringSize > s.ringCapacity {
				rt.Fatalf("ringSize %d exceeded capacity %d after offering %d bytes (accepted %d)", s.ringSize, s.ringCapacity, size, accepted)
			}
			if uint32(accepted) > uint32(size) {
				rt.Fatalf("QueueData accepted more than offered: accepted %d, offered %d", accepted, size)
			}
		}
	})
}
