package hda

import "context"

// Output is one output-capable pin complex widget exposed by a codec,
// carrying its association sequence number (spec.md §3's Output type).
// Grounded on original_source/src/codec.hpp's UhdaOutput; the raw widget
// pointer becomes a NID, resolved through the owning Codec.
type Output struct {
	codec     *Codec
	WidgetNID uint8
	Sequence  uint8

	// Device is the classified output type, after the LINE_OUT→SPEAKER
	// reclassification original_source/src/codec.cpp applies for jack
	// pins wired as fixed/both internal+jack (spec.md's output-type
	// classification, supplemented from the original per SPEC_FULL.md).
	Device defaultDevice
}

// Widget returns the pin complex widget backing this output.
func (o *Output) Widget() *Widget { return o.codec.widget(o.WidgetNID) }

// OutputGroup is a set of Outputs sharing an association tag, ordered by
// sequence (spec.md §3's OutputGroup). Grounded on UhdaOutputGroup.
type OutputGroup struct {
	Association uint8
	Outputs     []*Output
}

// Codec models one HDA codec function group's audio widget graph (spec.md
// §3's Codec type). Grounded on original_source/src/codec.hpp's UhdaCodec
// and src/codec.cpp's UhdaCodec::init.
type Codec struct {
	controller *Controller
	ring       *verbRing
	Address    uint8

	widgets     map[uint8]*Widget
	DACNIDs     []uint8
	OutputNIDs  []uint8
	OutputPaths []*Path
	OutputGroups []*OutputGroup
}

func newCodec(controller *Controller, ring *verbRing, addr uint8) *Codec {
	return &Codec{
		controller: controller,
		ring:       ring,
		Address:    addr,
		widgets:    make(map[uint8]*Widget),
	}
}

func (c *Codec) widget(nid uint8) *Widget { return c.widgets[nid] }

// --- verb wrappers --------------------------------------------------------
//
// verb submits the ordinary 12-bit-command/8-bit-data shape; wideVerb
// submits the four verbs (format get/set, amp gain/mute get/set) whose
// payload is 4-bit command/16-bit data instead. See verbs.go's newVerb/
// newWideVerb doc comments.

func (c *Codec) verb(ctx context.Context, nid uint8, cmd uint16, data uint8) (responseDescriptor, error) {
	idx := c.ring.submit(newVerb(c.Address, nid, cmd, data))
	return c.ring.wait(ctx, idx)
}

func (c *Codec) wideVerb(ctx context.Context, nid uint8, cmd uint8, data uint16) (responseDescriptor, error) {
	idx := c.ring.submit(newWideVerb(c.Address, nid, cmd, data))
	return c.ring.wait(ctx, idx)
}

func (c *Codec) getParameter(ctx context.Context, nid uint8, param uint8) (uint32, error) {
	r, err := c.verb(ctx, nid, cmdGetParam, param)
	if err != nil {
		return 0, err
	}
	return r.resp, nil
}

func (c *Codec) getConnectionList(ctx context.Context, nid uint8, offset uint8) (uint32, error) {
	r, err := c.verb(ctx, nid, cmdGetConnList, offset)
	if err != nil {
		return 0, err
	}
	return r.resp, nil
}

func (c *Codec) getConfigDefault(ctx context.Context, nid uint8) (uint32, error) {
	r, err := c.verb(ctx, nid, cmdGetConfigDefault, 0)
	if err != nil {
		return 0, err
	}
	return r.resp, nil
}

func (c *Codec) getPinSense(ctx context.Context, nid uint8) (uint32, error) {
	r, err := c.verb(ctx, nid, cmdGetPinSense, 0)
	if err != nil {
		return 0, err
	}
	return r.resp, nil
}

func (c *Codec) setPinSense(ctx context.Context, nid uint8, val uint8) error {
	_, err := c.verb(ctx, nid, cmdSetPinSense, val)
	return err
}

func (c *Codec) setSelectedConnection(ctx context.Context, nid uint8, index uint8) error {
	_, err := c.verb(ctx, nid, cmdSetConnSelect, index)
	return err
}

func (c *Codec) setPowerState(ctx context.Context, nid uint8, state uint8) error {
	_, err := c.verb(ctx, nid, cmdSetPowerState, state)
	return err
}

func (c *Codec) getAmpGainMute(ctx context.Context, nid uint8, data uint16) (uint32, error) {
	r, err := c.wideVerb(ctx, nid, cmdGetAmpGainMute&0xF, data)
	if err != nil {
		return 0, err
	}
	return r.resp, nil
}

func (c *Codec) setAmpGainMute(ctx context.Context, nid uint8, data uint16) error {
	_, err := c.wideVerb(ctx, nid, cmdSetAmpGainMute&0xF, data)
	return err
}

func (c *Codec) setConverterFormat(ctx context.Context, nid uint8, fmtValue uint16) error {
	_, err := c.wideVerb(ctx, nid, cmdSetConverterFormat&0xF, fmtValue)
	return err
}

func (c *Codec) setConverterControl(ctx context.Context, nid uint8, stream uint8, channel uint8) error {
	data := stream<<4 | (channel & 0xF)
	_, err := c.verb(ctx, nid, cmdSetConverterControl, data)
	return err
}

func (c *Codec) setPinControl(ctx context.Context, nid uint8, val uint8) error {
	_, err := c.verb(ctx, nid, cmdSetPinControl, val)
	return err
}

func (c *Codec) setEAPDEnable(ctx context.Context, nid uint8, val uint8) error {
	_, err := c.verb(ctx, nid, cmdSetEAPDEnable, val)
	return err
}

func (c *Codec) setConverterChannelCount(ctx context.Context, nid uint8, count uint8) error {
	_, err := c.verb(ctx, nid, cmdSetConverterChannelCount, count)
	return err
}

// --- widget graph construction --------------------------------------------

// init discovers this codec's function groups and widgets, builds the
// widget table, runs the output path finder, and groups output pins by
// association tag. Grounded on original_source/src/codec.cpp's
// UhdaCodec::init.
func (c *Codec) init(ctx context.Context) error {
	root, err := c.getParameter(ctx, 0, paramNodeCount)
	if err != nil {
		return err
	}
	numFuncGroups := uint8(root & 0xFF)
	startNID := uint8(root >> 16)

	for fg := startNID; fg < startNID+numFuncGroups; fg++ {
		fgType, err := c.getParameter(ctx, fg, paramFuncGroupType)
		if err != nil {
			return err
		}
		if fgType&0xFF != funcGroupTypeAudio {
			continue
		}
		if err := c.setPowerState(ctx, fg, 0); err != nil {
			return err
		}
		nc, err := c.getParameter(ctx, fg, paramNodeCount)
		if err != nil {
			return err
		}
		widgetCount := uint8(nc & 0xFF)
		widgetStart := uint8(nc >> 16)

		for nid := widgetStart; nid < widgetStart+widgetCount; nid++ {
			if err := c.loadWidget(ctx, nid); err != nil {
				return err
			}
		}
	}

	c.findOutputPaths()

	return c.buildOutputGroups()
}

func (c *Codec) loadWidget(ctx context.Context, nid uint8) error {
	audioCaps, err := c.getParameter(ctx, nid, paramAudioCaps)
	if err != nil {
		return err
	}
	inAmpCaps, err := c.getParameter(ctx, nid, paramInAmpCaps)
	if err != nil {
		return err
	}
	outAmpCaps, err := c.getParameter(ctx, nid, paramOutAmpCaps)
	if err != nil {
		return err
	}
	pinCaps, err := c.getParameter(ctx, nid, paramPinCaps)
	if err != nil {
		return err
	}
	connLenResp, err := c.getParameter(ctx, nid, paramConnListLen)
	if err != nil {
		return err
	}
	if connLenResp&0x80 != 0 {
		c.controller.logger.Logf("hda: codec %d nid %d: long-form connection list unsupported", c.Address, nid)
		return ErrUnsupported
	}
	connLen := uint8(connLenResp & 0x7F)

	var connections []uint8
	for off := uint8(0); off < connLen; off += 4 {
		r, err := c.getConnectionList(ctx, nid, off)
		if err != nil {
			return err
		}
		remaining := connLen - off
		n := remaining
		if n > 4 {
			n = 4
		}
		for j := uint8(0); j < n; j++ {
			connections = append(connections, uint8(r>>(j*8)))
		}
	}

	defaultConfig, err := c.getConfigDefault(ctx, nid)
	if err != nil {
		return err
	}

	w := &Widget{
		NID:           nid,
		Type:          widgetType((audioCaps >> 20) & 0xF),
		connections:   connections,
		inAmpCaps:     inAmpCaps,
		outAmpCaps:    outAmpCaps,
		pinCaps:       pinCaps,
		defaultConfig: defaultConfig,
		defaultDevice: defaultDevice((defaultConfig >> 20) & 0xF),
	}
	c.widgets[nid] = w

	switch w.Type {
	case widgetAudioOut:
		c.DACNIDs = append(c.DACNIDs, nid)
	case widgetPinComplex:
		c.OutputNIDs = append(c.OutputNIDs, nid)
	}
	return nil
}

// buildOutputGroups classifies each output-capable, physically-connected
// pin into an OutputGroup keyed by association tag, inserting by sequence
// within a group and by association across groups. Grounded on the second
// half of UhdaCodec::init in original_source/src/codec.cpp.
func (c *Codec) buildOutputGroups() error {
	for _, nid := range c.OutputNIDs {
		w := c.widgets[nid]
		if !w.outputCapable() {
			continue
		}
		if w.connectivity() == 1 {
			continue // no physical connection
		}
		dev := w.defaultDevice
		if dev == devLineOut && (w.connectivity() == 0b10 || w.connectivity() == 0b11) {
			dev = devSpeaker
		}

		assoc := w.association()
		if assoc == 0 {
			continue
		}

		out := &Output{codec: c, WidgetNID: nid, Sequence: w.sequence(), Device: dev}

		if assoc == 0xF {
			c.OutputGroups = append(c.OutputGroups, &OutputGroup{Association: assoc, Outputs: []*Output{out}})
			continue
		}

		var group *OutputGroup
		for _, g := range c.OutputGroups {
			if g.Association == assoc {
				group = g
				break
			}
		}
		if group == nil {
			group = &OutputGroup{Association: assoc}
			inserted := false
			for i, g := range c.OutputGroups {
				if g.Association > assoc {
					c.OutputGroups = append(c.OutputGroups, nil)
					copy(c.OutputGroups[i+1:], c.OutputGroups[i:])
					c.OutputGroups[i] = group
					inserted = true
					break
				}
			}
			if !inserted {
				c.OutputGroups = append(c.OutputGroups, group)
			}
		}

		inserted := false
		for i, existing := range group.Outputs {
			if existing.Sequence > out.Sequence {
				group.Outputs = append(group.Outputs, nil)
				copy(group.Outputs[i+1:], group.Outputs[i:])
				group.Outputs[i] = out
				inserted = true
				break
			}
		}
		if !inserted {
			group.Outputs = append(group.Outputs, out)
		}
	}
	return nil
}
