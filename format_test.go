package hda

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPCMFormatCommonRates(t *testing.T) {
	cases := []struct {
		rate     uint32
		wantRate uint32
	}{
		{44100, 44100},
		{48000, 48000},
		{96000, 96000},
		{192000, 192000},
		{8000, 8000},
		{22050, 22050},
		{500000, 192000}, // above the highest tier clamps to the catch-all
	}
	for _, c := range cases {
		got := NewPCMFormat(c.rate, 2, 16)
		assert.Equal(t, c.wantRate, got.SampleRate, "rate %d", c.rate)
	}
}

func TestNewPCMFormatClampsChannelsAndBits(t *testing.T) {
	f := NewPCMFormat(48000, 0, 0)
	assert.Equal(t, uint8(1), f.Channels)
	assert.Equal(t, uint8(8), f.BitsPerSample)

	f = NewPCMFormat(48000, 32, 64)
	assert.Equal(t, uint8(16), f.Channels)
	assert.Equal(t, uint8(32), f.BitsPerSample)
}

func TestPCMFormatEncodeFields(t *testing.T) {
	f := NewPCMFormat(48000, 2, 16)
	encoded := f.Encode()

	require.Equal(t, uint16(1), encoded&sdfmtCHANMask, "2 channels encodes as CHAN=1")
	require.Equal(t, uint16(sdfmtBits16), (encoded>>sdfmtBITSPos)&sdfmtBITSMask)
	require.Equal(t, uint16(0), (encoded>>sdfmtBASEPos)&1, "48kHz base is not the 44.1kHz family")
}

func TestPCMFormatEncode441Base(t *testing.T) {
	f := NewPCMFormat(44100, 2, 16)
	encoded := f.Encode()
	assert.Equal(t, uint16(1), (encoded>>sdfmtBASEPos)&1)
}

func TestPickRateTierMonotonicCeilings(t *testing.T) {
	var prev uint32
	for _, tier := range rateTiers {
		assert.Greater(t, tier.ceiling, prev, "rate tiers must be listed in ascending ceiling order")
		prev = tier.ceiling
	}
}
