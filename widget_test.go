package hda

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDecodeConnectionsSingles(t *testing.T) {
	raw := []uint8{0x02, 0x05, 0x07}
	got := decodeConnections(raw)
	want := []connectionRange{{2, 2}, {5, 5}, {7, 7}}
	assert.Equal(t, want, got)
}

func TestDecodeConnectionsRange(t *testing.T) {
	raw := []uint8{0x02, 0x05 | 0x80}
	got := decodeConnections(raw)
	want := []connectionRange{{2, 5}}
	assert.Equal(t, want, got)
}

func TestDecodeConnectionsMixed(t *testing.T) {
	raw := []uint8{0x01, 0x03, 0x05 | 0x80, 0x09}
	got := decodeConnections(raw)
	want := []connectionRange{{1, 1}, {3, 5}, {9, 9}}
	assert.Equal(t, want, got)
}

func TestWidgetCapabilityBits(t *testing.T) {
	w := &Widget{pinCaps: (1 << 4) | (1 << 2) | (1 << 3) | (1 << 16)}
	assert.True(t, w.outputCapable())
	assert.True(t, w.presenceCapable())
	assert.True(t, w.triggerCapable())
	assert.True(t, w.eapdCapable())

	quiet := &Widget{}
	assert.False(t, quiet.outputCapable())
	assert.False(t, quiet.presenceCapable())
}

func TestWidgetConfigDefaultDecoding(t *testing.T) {
	// connectivity=0b11 (jack+internal), association=5, sequence=3
	cfg := uint32(0b11)<<30 | uint32(5)<<4 | uint32(3)
	w := &Widget{defaultConfig: cfg}
	assert.Equal(t, uint8(0b11), w.connectivity())
	assert.Equal(t, uint8(5), w.association())
	assert.Equal(t, uint8(3), w.sequence())
}

func TestResolveConnectionIndexAcrossRanges(t *testing.T) {
	w := &Widget{connections: []uint8{0x02, 0x05 | 0x80, 0x0A}}
	// ranges: [2,5] (indices 0..3), then 10 (index 4)
	idx, err := resolveConnectionIndex(w, 4)
	assert.NoError(t, err)
	assert.Equal(t, uint8(2), idx)

	idx, err = resolveConnectionIndex(w, 10)
	assert.NoError(t, err)
	assert.Equal(t, uint8(4), idx)

	_, err = resolveConnectionIndex(w, 99)
	assert.ErrorIs(t, err, ErrUnsupported)
}
