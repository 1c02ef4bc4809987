package hda

// Path is a chain of widgets from a pin complex back to its feeding DAC,
// in pin→...→DAC order (spec.md §3's Path type). Grounded on
// original_source/src/codec.hpp's UhdaPath.
type Path struct {
	codec *Codec
	// WidgetNIDs holds the path in pin-to-DAC order: WidgetNIDs[0] is the
	// output pin, WidgetNIDs[len-1] is the AUDIO_OUT converter.
	WidgetNIDs []uint8
	gain       uint8 // last programmed gain step, for mute's preserve-gain behavior
}

func (p *Path) widget(i int) *Widget { return p.codec.widget(p.WidgetNIDs[i]) }

// Pin returns the output pin complex widget at the head of the path.
func (p *Path) Pin() *Widget { return p.widget(0) }

// Converter returns the AUDIO_OUT widget at the tail of the path.
func (p *Path) Converter() *Widget { return p.widget(len(p.WidgetNIDs) - 1) }

// maxStackDepth bounds the DFS below, matching original_source/src/codec.cpp's
// find_output_paths circular-reference guard (stack.size() >= 20).
const maxStackDepth = 20

// pathStackEntry tracks one widget's traversal state on the explicit DFS
// stack, mirroring find_output_paths' StackEntry: which connection-list
// index we're at, and — once we've started consuming a range-encoded
// entry — where that range ends.
type pathStackEntry struct {
	nid          uint8
	connIndex    int
	inRange      bool
	rangeCur     uint8
	rangeEnd     uint8
}

// findOutputPaths performs the iterative DFS that discovers every path from
// each output-capable, physically-connected pin back to an AUDIO_OUT
// widget, walking the (possibly range-encoded) connection lists. Grounded
// bit-for-bit on original_source/src/codec.cpp's find_output_paths.
func (c *Codec) findOutputPaths() {
	for _, pinNID := range c.OutputNIDs {
		pin := c.widgets[pinNID]
		if !pin.outputCapable() {
			continue
		}
		if pin.connectivity() == 1 {
			continue
		}
		c.dfsFromPin(pinNID)
	}
}

func (c *Codec) dfsFromPin(pinNID uint8) {
	stack := []*pathStackEntry{{nid: pinNID, connIndex: 0}}

	for len(stack) > 0 {
		top := stack[len(stack)-1]
		w := c.widgets[top.nid]

		if !top.inRange && top.connIndex >= len(w.connections) {
			stack = stack[:len(stack)-1]
			continue
		}

		if !top.inRange {
			b := w.connections[top.connIndex]
			top.connIndex++
			start := b &^ 0x80
			if b&0x80 != 0 {
				// A range cannot legally start the very first read of a
				// connection list; treat it as an individual entry.
				start = b & 0x7F
				c.controller.logger.Logf("hda: codec %d nid %d: connection list starts with a range entry", c.Address, w.NID)
			}
			if top.connIndex < len(w.connections) && w.connections[top.connIndex]&0x80 != 0 {
				end := w.connections[top.connIndex] & 0x7F
				top.connIndex++
				top.rangeEnd = end
			} else {
				top.rangeEnd = start
			}
			top.rangeCur = start
			top.inRange = true
		}

		if top.rangeCur > top.rangeEnd {
			top.inRange = false
			continue
		}
		nid := top.rangeCur
		top.rangeCur++
		if top.rangeCur > top.rangeEnd {
			top.inRange = false
		}

		assoc, ok := c.widgets[nid]
		if !ok {
			c.controller.logger.Logf("hda: codec %d: connection list references invalid nid %d", c.Address, nid)
			continue
		}

		if assoc.Type == widgetAudioOut {
			path := &Path{codec: c}
			for _, e := range stack {
				path.WidgetNIDs = append(path.WidgetNIDs, e.nid)
			}
			path.WidgetNIDs = append(path.WidgetNIDs, nid)
			c.OutputPaths = append(c.OutputPaths, path)
			continue
		}

		circular := false
		for _, e := range stack {
			if e.nid == nid {
				circular = true
				break
			}
		}
		if circular || len(stack) >= maxStackDepth {
			continue
		}
		stack = append(stack, &pathStackEntry{nid: nid, connIndex: 0})
	}
}

// pathsUsableSimultaneously reports whether the given paths can be driven
// at once. Two paths conflict if they share a widget at any position
// (always forbidden), or if they share a feeding widget one step upstream
// of different positions unless sameStream is true (both paths carrying
// the same stream tag — a fan-out, not a conflict). Grounded on
// original_source/src/uhda.cpp's uhda_paths_usable_simultaneously.
func pathsUsableSimultaneously(paths []*Path, sameStream bool) bool {
	for i, p := range paths {
		for wi := 1; wi < len(p.WidgetNIDs); wi++ {
			for j, other := range paths {
				if i == j {
					continue
				}
				for oi := 1; oi < len(other.WidgetNIDs); oi++ {
					if p.WidgetNIDs[wi] == other.WidgetNIDs[oi] {
						return false
					}
					if p.WidgetNIDs[wi-1] == other.WidgetNIDs[oi-1] {
						if !sameStream {
							return false
						}
					}
				}
			}
		}
	}
	return true
}

// FindPath searches this codec's discovered output paths for one ending at
// dest's pin that can be used simultaneously with otherPaths. Grounded on
// original_source/src/uhda.cpp's uhda_find_path.
func (c *Codec) FindPath(dest *Output, otherPaths []*Path, sameStream bool) (*Path, error) {
	for _, p := range c.OutputPaths {
		if p.WidgetNIDs[0] != dest.WidgetNID {
			continue
		}
		candidate := append(append([]*Path{}, otherPaths...), p)
		if pathsUsableSimultaneously(candidate, sameStream) {
			return p, nil
		}
	}
	return nil, ErrUnsupported
}
