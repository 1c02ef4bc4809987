package hda

import "github.com/uDrivers/uHDA/internal/bits"

// PCMFormat is the decoded representation of an SDnFMT register value
// (spec.md §4.5.1). Grounded on original_source/src/spec.hpp's PcmFormat.
type PCMFormat struct {
	SampleRate     uint32 // the actual rate this format encodes, Hz
	Channels       uint8  // 1..16
	BitsPerSample  uint8  // 8, 16, 20, 24, or 32
}

// rateTier is one row of the base/mult/div lookup table transcribed
// tier-for-tier from PcmFormat::set_sample_rate in
// original_source/src/spec.hpp. ceiling is the highest input rate this tier
// accepts; rate is the actual rate it encodes.
type rateTier struct {
	ceiling uint32
	rate    uint32
	base441 bool
	mult    uint8 // encoded value, 0 == ×1
	div     uint8 // encoded value, 0 == ÷1
}

var rateTiers = []rateTier{
	{ceiling: 5513, rate: 5513, base441: true, div: 7},
	{ceiling: 6000, rate: 6000, base441: false, div: 7},
	{ceiling: 6300, rate: 6300, base441: true, div: 6},
	{ceiling: 6857, rate: 6857, base441: false, div: 6},
	{ceiling: 7350, rate: 7350, base441: true, div: 5},
	{ceiling: 8000, rate: 8000, base441: false, div: 5},
	{ceiling: 8820, rate: 8820, base441: true, div: 4},
	{ceiling: 9600, rate: 9600, base441: false, div: 4},
	{ceiling: 11025, rate: 11025, base441: true, div: 3},
	{ceiling: 12000, rate: 12000, base441: false, div: 3},
	{ceiling: 12600, rate: 12600, base441: true, div: 6, mult: 1},
	{ceiling: 13714, rate: 13714, base441: false, div: 6, mult: 1},
	{ceiling: 14700, rate: 14700, base441: true, div: 2},
	{ceiling: 16000, rate: 16000, base441: false, div: 2},
	{ceiling: 16538, rate: 16538, base441: true, div: 7, mult: 2},
	{ceiling: 17640, rate: 17640, base441: true, div: 4, mult: 1},
	{ceiling: 18000, rate: 18000, base441: false, div: 7, mult: 2},
	{ceiling: 18900, rate: 18900, base441: true, div: 6, mult: 2},
	{ceiling: 19200, rate: 19200, base441: false, div: 4, mult: 1},
	{ceiling: 20571, rate: 20571, base441: false, div: 6, mult: 2},
	{ceiling: 22050, rate: 22050, base441: true, div: 1},
	{ceiling: 24000, rate: 24000, base441: false, div: 1},
	{ceiling: 25200, rate: 25200, base441: true, div: 6, mult: 3},
	{ceiling: 26460, rate: 26460, base441: true, div: 4, mult: 2},
	{ceiling: 27429, rate: 27429, base441: false, div: 6, mult: 3},
	{ceiling: 28800, rate: 28800, base441: false, div: 4, mult: 2},
	{ceiling: 29400, rate: 29400, base441: true, div: 2, mult: 1},
	{ceiling: 32000, rate: 32000, base441: false, div: 2, mult: 1},
	{ceiling: 33075, rate: 33075, base441: true, div: 3, mult: 2},
	{ceiling: 35280, rate: 35280, base441: true, div: 4, mult: 3},
	{ceiling: 36000, rate: 36000, base441: false, div: 3, mult: 2},
	{ceiling: 38400, rate: 38400, base441: false, div: 4, mult: 3},
	{ceiling: 44100, rate: 44100, base441: true},
	{ceiling: 48000, rate: 48000, base441: false},
	{ceiling: 58800, rate: 58800, base441: true, div: 2, mult: 3},
	{ceiling: 64000, rate: 64000, base441: false, div: 2, mult: 3},
	{ceiling: 66150, rate: 66150, base441: true, div: 1, mult: 2},
	{ceiling: 72000, rate: 72000, base441: false, div: 1, mult: 2},
	{ceiling: 88200, rate: 88200, base441: true, mult: 1},
	{ceiling: 96000, rate: 96000, base441: false, mult: 1},
	{ceiling: 132300, rate: 132300, base441: true, mult: 2},
	{ceiling: 144000, rate: 144000, base441: false, mult: 2},
	{ceiling: 176400, rate: 176400, base441: true, mult: 3},
	// Falls through below; the final catch-all tier has no ceiling check.
}

// pickRateTier selects the tier for a requested sample rate, per
// PcmFormat::set_sample_rate's cascade of <= comparisons, with the
// trailing else clamping to 192000/48kHz-base/×4.
func pickRateTier(rate uint32) rateTier {
	for _, t := range rateTiers {
		if rate <= t.ceiling {
			return t
		}
	}
	return rateTier{ceiling: 192000, rate: 192000, base441: false, mult: 3}
}

// clampChannels clamps to [1,16], matching PcmFormat::set_channels.
func clampChannels(channels uint8) uint8 {
	if channels < 1 {
		return 1
	}
	if channels > 16 {
		return 16
	}
	return channels
}

// clampBitsPerSample rounds up to the nearest supported depth, matching
// PcmFormat::set_bits_per_sample.
func clampBitsPerSample(bitsPerSample uint8) uint8 {
	switch {
	case bitsPerSample <= 8:
		return 8
	case bitsPerSample <= 16:
		return 16
	case bitsPerSample <= 20:
		return 20
	case bitsPerSample <= 24:
		return 24
	default:
		return 32
	}
}

func bitsField(bitsPerSample uint8) uint8 {
	switch bitsPerSample {
	case 8:
		return sdfmtBits8
	case 16:
		return sdfmtBits16
	case 20:
		return sdfmtBits20
	case 24:
		return sdfmtBits24
	default:
		return sdfmtBits32
	}
}

// NewPCMFormat builds the closest representable format to the requested
// rate/channels/bits, clamping each field independently and returning the
// actually-chosen values — never an error, since every input has some
// representable format (spec.md §4.5.1 and §8's format-round-trip law).
func NewPCMFormat(sampleRate uint32, channels uint8, bitsPerSample uint8) PCMFormat {
	tier := pickRateTier(sampleRate)
	return PCMFormat{
		SampleRate:    tier.rate,
		Channels:      clampChannels(channels),
		BitsPerSample: clampBitsPerSample(bitsPerSample),
	}
}

// Encode packs the format into an SDnFMT register value, per spec.hpp's
// sdfmt bitfield layout.
func (f PCMFormat) Encode() uint16 {
	tier := pickRateTier(f.SampleRate)
	var v uint16
	bits.SetN16(&v, sdfmtCHANPos, sdfmtCHANMask, uint16(f.Channels-1))
	bits.SetN16(&v, sdfmtBITSPos, sdfmtBITSMask, uint16(bitsField(f.BitsPerSample)))
	bits.SetN16(&v, sdfmtDIVPos, sdfmtDIVMask, uint16(tier.div))
	bits.SetN16(&v, sdfmtMULTPos, sdfmtMULTMask, uint16(tier.mult))
	if tier.base441 {
		bits.Set16(&v, sdfmtBASEPos)
	}
	return v
}
