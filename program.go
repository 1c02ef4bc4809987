package hda

import "context"

// Amp gain/mute verb payload bit positions, shared by setAmpGainMute calls
// throughout this file (spec.hpp's implicit SET_AMP_GAIN_MUTE encoding:
// bit15 selects output amp, bit13 selects left, bit12 selects right, bit7
// is mute, bits[0:6] are the gain step).
const (
	ampOutputSelect = 1 << 15
	ampLeftSelect   = 1 << 13
	ampRightSelect  = 1 << 12
	ampMute         = 1 << 7
)

// There is no dedicated error for a path that does not end in a converter;
// every path ends in an AUDIO_OUT widget by construction (findOutputPaths
// only ever terminates a path there), so callers passing a malformed path
// get ErrUnsupported, per spec.md §7's flat error taxonomy.

// Setup programs every widget along the path for playback on the given
// stream, in pin→...→DAC traversal order: selects the correct connection
// index at every branching widget, sets D0 power, and configures pin/mixer/
// converter amplifiers. Grounded on original_source/src/uhda.cpp's
// uhda_path_setup.
func (p *Path) Setup(ctx context.Context, stream *Stream, fmt PCMFormat) error {
	if !stream.Output {
		return ErrUnsupported
	}
	conv := p.Converter()
	if conv.Type != widgetAudioOut {
		return ErrUnsupported
	}

	encoded := fmt.Encode()
	if err := p.codec.setConverterFormat(ctx, conv.NID, encoded); err != nil {
		return err
	}
	if err := p.codec.setConverterChannelCount(ctx, conv.NID, uint8(encoded&sdfmtCHANMask)+1); err != nil {
		return err
	}

	for i, nid := range p.WidgetNIDs {
		w := p.codec.widget(nid)

		if i != len(p.WidgetNIDs)-1 && len(w.connections) > 1 {
			next := p.WidgetNIDs[i+1]
			index, err := resolveConnectionIndex(w, next)
			if err != nil {
				return err
			}
			if err := p.codec.setSelectedConnection(ctx, nid, index); err != nil {
				return err
			}
		}

		if err := p.codec.setPowerState(ctx, nid, 0); err != nil {
			return err
		}

		switch w.Type {
		case widgetPinComplex:
			if w.eapdCapable() {
				if err := p.codec.setEAPDEnable(ctx, nid, 1<<1); err != nil {
					return err
				}
			}
			step := w.outAmpSteps()
			if err := p.codec.setAmpGainMute(ctx, nid, ampOutputSelect|ampLeftSelect|ampRightSelect|uint16(step)); err != nil {
				return err
			}
			if err := p.codec.setPinControl(ctx, nid, (1<<7)|(1<<6)); err != nil {
				return err
			}
		case widgetAudioMixer:
			step := w.outAmpSteps()
			if err := p.codec.setAmpGainMute(ctx, nid, ampOutputSelect|ampLeftSelect|ampRightSelect|uint16(step)); err != nil {
				return err
			}
		case widgetAudioOut:
			if err := p.codec.setConverterControl(ctx, nid, stream.index+1, 0); err != nil {
				return err
			}
			step := w.outAmpSteps() / 2
			p.gain = step
			if err := p.codec.setAmpGainMute(ctx, nid, ampOutputSelect|ampLeftSelect|ampRightSelect|uint16(step)); err != nil {
				return err
			}
		}
	}
	return nil
}

// Shutdown mutes the output amps of the pin and mixer widgets along the
// path, clears the pin's pin control, and clears the converter's stream
// tag. Power states are left as Setup programmed them. Grounded on
// uhda_path_shutdown.
func (p *Path) Shutdown(ctx context.Context) error {
	for _, nid := range p.WidgetNIDs {
		w := p.codec.widget(nid)
		switch w.Type {
		case widgetPinComplex, widgetAudioMixer:
			if err := p.codec.setAmpGainMute(ctx, nid, ampOutputSelect|ampLeftSelect|ampRightSelect|ampMute); err != nil {
				return err
			}
			if w.Type == widgetPinComplex {
				if err := p.codec.setPinControl(ctx, nid, 0); err != nil {
					return err
				}
			}
		case widgetAudioOut:
			if err := p.codec.setConverterControl(ctx, nid, 0, 0); err != nil {
				return err
			}
		}
	}
	return nil
}

// oneHundredthQ16 is 0.01 expressed in Q16.16 fixed point (655.36,
// truncated), matching ONE_PERCENTAGE in original_source/src/uhda.cpp.
const oneHundredthQ16 = 655

// SetVolume sets playback volume as a percentage in [0,100], quantized to
// the converter's available gain steps. 100 always maps to the exact
// maximum step, avoiding the rounding loss the fixed-point math would
// otherwise introduce. Grounded on uhda_path_set_volume.
func (p *Path) SetVolume(ctx context.Context, volume uint8) error {
	conv := p.Converter()
	if conv.Type != widgetAudioOut {
		return ErrUnsupported
	}
	value := volumeToGainStep(volume, conv.outAmpSteps())

	p.gain = value
	return p.codec.setAmpGainMute(ctx, conv.NID, ampOutputSelect|ampLeftSelect|ampRightSelect|uint16(value))
}

// volumeToGainStep quantizes a volume percentage in [0,100] (values above
// 100 clamp) to one of maxStep+1 gain steps, mapping 100 to exactly maxStep
// rather than whatever the fixed-point math would round to.
func volumeToGainStep(volume, maxStep uint8) uint8 {
	if volume > 100 {
		volume = 100
	}
	if volume == 100 {
		return maxStep
	}
	convertedMax := uint64(maxStep) << 16
	multiplier := uint64(oneHundredthQ16) * uint64(volume)
	result := (multiplier * convertedMax) >> 16
	return uint8(result >> 16)
}

// Mute mutes or unmutes the path, preserving the last-programmed gain step.
// The pin is muted if it supports mute; otherwise the converter is muted.
// Grounded on uhda_path_mute.
func (p *Path) Mute(ctx context.Context, mute bool) error {
	pin := p.Pin()
	target := pin
	if !pin.outAmpMuteCapable() {
		target = p.Converter()
	}
	data := ampOutputSelect | ampLeftSelect | ampRightSelect | uint16(p.gain)
	if mute {
		data |= ampMute
	}
	return p.codec.setAmpGainMute(ctx, target.NID, data)
}

// resolveConnectionIndex finds next's position in w's connection list,
// accounting for range-encoded entries, matching the connection-index walk
// inline in uhda_path_setup.
func resolveConnectionIndex(w *Widget, next uint8) (uint8, error) {
	ranges := decodeConnections(w.connections)
	var index uint8
	for _, r := range ranges {
		if next >= r.start && next <= r.end {
			return index + (next - r.start), nil
		}
		index += r.end - r.start + 1
	}
	return 0, ErrUnsupported
}

// OutputType classifies an output pin for UI/selection purposes (spec.md's
// supplemented output-type classification). Color and physical-location
// metadata are out of scope per spec.md §1's Non-goals; only the device
// type is ported.
type OutputType uint8

const (
	OutputUnknown OutputType = iota
	OutputLineOut
	OutputSpeaker
	OutputHeadphone
	OutputCD
	OutputSPDIFOut
	OutputDigitalOtherOut
)

// Kind classifies this output's device type, after the LINE_OUT→SPEAKER
// reclassification already applied when the group was built. Grounded on
// original_source/src/uhda.cpp's uhda_output_get_info (type mapping only;
// color/location are deliberately not ported).
func (o *Output) Kind() OutputType {
	switch o.Device {
	case devLineOut:
		return OutputLineOut
	case devSpeaker:
		return OutputSpeaker
	case devHPOut:
		return OutputHeadphone
	case devCD:
		return OutputCD
	case devSPDIFOut:
		return OutputSPDIFOut
	case devDigitalOtherOut:
		return OutputDigitalOtherOut
	default:
		return OutputUnknown
	}
}

// Presence reports whether a jack is physically connected, for pins that
// support presence detection. Returns (false, ErrUnsupported) if the pin
// doesn't support it. Grounded on uhda_output_get_presence; trigger/
// presence capability is derived from PIN_CAPS rather than stored widget
// fields.
func (o *Output) Presence(ctx context.Context) (bool, error) {
	w := o.Widget()
	if !w.presenceCapable() {
		return false, ErrUnsupported
	}
	if w.triggerCapable() {
		if err := o.codec.setPinSense(ctx, w.NID, 0); err != nil {
			return false, err
		}
	}
	val, err := o.codec.getPinSense(ctx, w.NID)
	if err != nil {
		return false, err
	}
	return val&(1<<31) != 0, nil
}
