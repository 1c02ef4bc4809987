package fakekernel

import "sync"

// HDAFixture is a minimal software emulation of an Intel HDA controller's
// register file, standing in for real silicon (or QEMU's HDA emulation) in
// controller-lifecycle tests. It implements just enough of the register
// contract — GCAP/GCTL/STATESTS and synchronous CORB/RIRB verb processing —
// to drive Controller.Init/Resume/Suspend and codec discovery end to end
// without real hardware. The register offsets below describe the Intel HDA
// hardware interface itself (the same contract this module's reg.go
// implements against), not anything borrowed from the driver core.
type HDAFixture struct {
	mu sync.Mutex

	gcap     uint16
	gctl     uint32
	statests uint16
	intctl   uint32
	intsts   uint32

	corbSize, rirbSize uint8
	corbCtl, rirbCtl   uint8
	corbWP, rirbWP     uint16
	corbLBase, corbUBase uint32
	rirbLBase, rirbUBase uint32

	corb func() []byte // lazily resolved once base addresses are known
	rirb func() []byte

	mem *Services // used to resolve physical addresses into byte slices

	streams [32][0x20]byte // up to 16 in + 16 out stream descriptor subspaces
	streamCount uint8

	// Respond is called synchronously whenever CORBWP advances past an
	// unread slot, once per newly-submitted verb. It decodes the same
	// codecAddr/nodeID/payload fields the driver core's verbDescriptor
	// packs, and returns the resp/respEx pair to place in the RIRB.
	Respond func(codecAddr, nodeID uint8, payload uint32) (resp, respEx uint32)
}

// NewHDAFixture constructs a fixture advertising 64-bit addressing, one
// input stream and one output stream, and codec address 0 present in
// STATESTS.
func NewHDAFixture(mem *Services) *HDAFixture {
	f := &HDAFixture{mem: mem}
	f.gcap = 1<<0 | 1<<8 | 1<<12 // OK64, ISS=1, OSS=1
	f.statests = 1 << 0
	f.corbSize = 0b0010 << 4 // SZCAP=16-capable
	f.rirbSize = 0b0010 << 4
	return f
}

func (f *HDAFixture) Read8(off uint32) uint8 {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch {
	case off == 0x4C:
		return f.corbCtl
	case off == 0x4E:
		return f.corbSize
	case off == 0x5C:
		return f.rirbCtl
	case off == 0x5E:
		return f.rirbSize
	case off >= 0x80:
		return f.streamByte(off)
	}
	return 0
}

func (f *HDAFixture) Write8(off uint32, v uint8) {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch {
	case off == 0x4C:
		f.corbCtl = v
	case off == 0x4E:
		f.corbSize = (f.corbSize &^ 0x3) | (v & 0x3) | (f.corbSize & 0xF0)
	case off == 0x5C:
		f.rirbCtl = v
	case off == 0x5E:
		f.rirbSize = (f.rirbSize &^ 0x3) | (v & 0x3) | (f.rirbSize & 0xF0)
	case off >= 0x80:
		f.setStreamByte(off, v)
	}
}

func (f *HDAFixture) Read16(off uint32) uint16 {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch off {
	case 0x00:
		return f.gcap
	case 0x0E:
		return f.statests
	case 0x48:
		return f.corbWP
	case 0x58:
		return f.rirbWP
	}
	return 0
}

func (f *HDAFixture) Write16(off uint32, v uint16) {
	f.mu.Lock()
	corbWP := false
	if off == 0x48 {
		f.corbWP = v & 0xFF
		corbWP = true
	}
	f.mu.Unlock()
	if corbWP {
		f.processCORB()
	}
}

func (f *HDAFixture) Read32(off uint32) uint32 {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch off {
	case 0x08:
		return f.gctl
	case 0x20:
		return f.intctl
	case 0x24:
		return f.intsts
	case 0x40:
		return f.corbLBase
	case 0x44:
		return f.corbUBase
	case 0x50:
		return f.rirbLBase
	case 0x54:
		return f.rirbUBase
	}
	return 0
}

func (f *HDAFixture) Write32(off uint32, v uint32) {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch off {
	case 0x08:
		// CRST is the only bit the controller ever polls for; reflect it
		// back immediately, as if reset completed instantaneously.
		f.gctl = v
	case 0x20:
		f.intctl = v
	case 0x40:
		f.corbLBase = v
	case 0x44:
		f.corbUBase = v
	case 0x50:
		f.rirbLBase = v
	case 0x54:
		f.rirbUBase = v
	}
}

func (f *HDAFixture) streamByte(off uint32) uint8 {
	idx := (off - 0x80) / 0x20
	sub := (off - 0x80) % 0x20
	if int(idx) >= len(f.streams) {
		return 0
	}
	return f.streams[idx][sub]
}

func (f *HDAFixture) setStreamByte(off uint32, v uint8) {
	idx := (off - 0x80) / 0x20
	sub := (off - 0x80) % 0x20
	if int(idx) >= len(f.streams) {
		return
	}
	f.streams[idx][sub] = v
}

// processCORB resolves the CORB/RIRB buffers (now that base addresses are
// programmed), decodes the newest verb, invokes Respond, and writes the
// response into the RIRB before advancing RIRBWP to match — all
// synchronously, so transport.go's polling wait() observes the answer on
// its very first iteration.
func (f *HDAFixture) processCORB() {
	f.mu.Lock()
	defer f.mu.Unlock()

	corb, ok := f.mem.lookupPhysical(uintptr(f.corbLBase) | uintptr(f.corbUBase)<<32)
	if !ok {
		return
	}
	rirb, ok := f.mem.lookupPhysical(uintptr(f.rirbLBase) | uintptr(f.rirbUBase)<<32)
	if !ok {
		return
	}

	slot := int(f.corbWP)
	off := slot * 4
	entry := uint32(corb[off]) | uint32(corb[off+1])<<8 | uint32(corb[off+2])<<16 | uint32(corb[off+3])<<24

	payload := entry & 0xFFFFF
	nodeID := uint8(entry >> 20)
	codecAddr := uint8(entry >> 28)

	var resp, respEx uint32
	if f.Respond != nil {
		resp, respEx = f.Respond(codecAddr, nodeID, payload)
	}

	roff := slot * 8
	putU32(rirb, roff, resp)
	putU32(rirb, roff+4, respEx)
	f.rirbWP = uint16(slot)
}

func putU32(buf []byte, off int, v uint32) {
	buf[off] = byte(v)
	buf[off+1] = byte(v >> 8)
	buf[off+2] = byte(v >> 16)
	buf[off+3] = byte(v >> 24)
}

// lookupPhysical exposes Services' DMA region map for the fixture's
// synchronous CORB/RIRB emulation above; it is not part of the
// hda.KernelServices contract.
func (s *Services) lookupPhysical(phys uintptr) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	buf, ok := s.memory[phys]
	return buf, ok
}
