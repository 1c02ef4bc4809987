package hda

import (
	"context"
	"fmt"

	"github.com/uDrivers/uHDA/internal/bits"
)

// verbRing holds the CORB (command) and RIRB (response) buffers plus the
// bookkeeping needed to submit verbs and wait for their responses. Grounded
// on original_source/src/controller.cpp's submit_verb/submit_verb_long/
// wait_for_verb and the CORB/RIRB size negotiation in resume().
//
// Resolves the open question in spec.md §9 (CORB/RIRB index wrap ambiguity
// when depth < 256) by tracking a monotonically increasing uint64
// submission counter instead of reasoning about the hardware's 8-bit write
// pointer directly: submit writes counter%depth into CORBWP.WP, and
// wait polls for the write/read pointers to reach that same
// counter%depth value. Since the counter itself never wraps within any
// single verb's lifetime, the hardware pointer wrapping around a short ring
// (2, 16, or 256 entries) can never be confused with "no progress yet".
type verbRing struct {
	space MMIOSpace
	kernel KernelServices
	lock  Spinlock

	corb     []byte // mapped CORB buffer, depth*4 bytes
	rirb     []byte // mapped RIRB buffer, depth*8 bytes
	corbPhys uintptr
	rirbPhys uintptr
	depth    uint16 // CORB and RIRB always negotiated to the same depth

	submitted uint64 // verbs submitted so far
}

// ringDepthFor picks the largest ring size the hardware capability bits
// support, per original_source/src/controller.cpp's resume(): prefer 256
// entries, then 16, then 2.
func ringDepthFor(capBits uint8) (depth uint16, sizeField uint8) {
	switch {
	case capBits&ringSizeCap256 != 0:
		return 256, ringSize256Entries
	case capBits&ringSizeCap16 != 0:
		return 16, ringSize16Entries
	default:
		return 2, ringSize2Entries
	}
}

// allocate reserves and maps the CORB/RIRB physical pages. Called exactly
// once per controller lifetime, matching UhdaController::init's one-time
// allocate_physical/map calls for corb/rirb (as opposed to program, which
// re-negotiates and rewrites the control registers on every Resume).
func (r *verbRing) allocate(space MMIOSpace, kernel KernelServices, lock Spinlock) error {
	r.space = space
	r.kernel = kernel
	r.lock = lock

	corbPhys, err := kernel.AllocatePhysical(4096)
	if err != nil {
		return fmt.Errorf("hda: allocate CORB: %w", err)
	}
	rirbPhys, err := kernel.AllocatePhysical(4096)
	if err != nil {
		kernel.DeallocatePhysical(corbPhys, 4096)
		return fmt.Errorf("hda: allocate RIRB: %w", err)
	}
	corb, err := kernel.Map(corbPhys, 4096)
	if err != nil {
		kernel.DeallocatePhysical(corbPhys, 4096)
		kernel.DeallocatePhysical(rirbPhys, 4096)
		return fmt.Errorf("hda: map CORB: %w", err)
	}
	rirb, err := kernel.Map(rirbPhys, 4096)
	if err != nil {
		kernel.Unmap(corb)
		kernel.DeallocatePhysical(corbPhys, 4096)
		kernel.DeallocatePhysical(rirbPhys, 4096)
		return fmt.Errorf("hda: map RIRB: %w", err)
	}

	r.corb = corb
	r.rirb = rirb
	r.corbPhys = corbPhys
	r.rirbPhys = rirbPhys
	return nil
}

// program negotiates CORB/RIRB depth from the hardware's capability bits
// and writes the base address / size / control registers. Called on every
// Resume, after DMA engines have been stopped by Suspend. Grounded on the
// CORB/RIRB section of UhdaController::resume.
func (r *verbRing) program() {
	space := r.space

	corbCap := bits.Get8(space.Read8(regCORBSIZE), ringSizeSZCAPPos, ringSizeSZCAPMask)
	rirbCap := bits.Get8(space.Read8(regRIRBSIZE), ringSizeSZCAPPos, ringSizeSZCAPMask)
	corbDepth, _ := ringDepthFor(corbCap)
	rirbDepth, _ := ringDepthFor(rirbCap)
	depth := corbDepth
	if rirbDepth < depth {
		depth = rirbDepth
	}
	r.depth = depth
	r.submitted = 0

	space.Write32(regCORBLBASE, uint32(r.corbPhys))
	space.Write32(regCORBUBASE, uint32(r.corbPhys>>32))
	space.Write32(regRIRBLBASE, uint32(r.rirbPhys))
	space.Write32(regRIRBUBASE, uint32(r.rirbPhys>>32))

	var corbSize, rirbSize uint8
	bits.SetN8(&corbSize, ringSizeSIZEPos, ringSizeSIZEMask, corbSizeFieldFor(depth))
	bits.SetN8(&rirbSize, ringSizeSIZEPos, ringSizeSIZEMask, corbSizeFieldFor(depth))
	space.Write8(regCORBSIZE, corbSize)
	space.Write8(regRIRBSIZE, rirbSize)

	corbCtl := space.Read8(regCORBCTL)
	bits.Set8(&corbCtl, corbctlRUNPos)
	space.Write8(regCORBCTL, corbCtl)

	rirbCtl := space.Read8(regRIRBCTL)
	bits.Set8(&rirbCtl, rirbctlDMAENPos)
	space.Write8(regRIRBCTL, rirbCtl)

	rintcnt := space.Read16(regRINTCNT)
	bits.SetN16(&rintcnt, 0, 0xFF, 255)
	space.Write16(regRINTCNT, rintcnt)
}

// corbSizeFieldFor derives the SIZE field to program once depth has been
// clamped to the minimum of CORB/RIRB capability.
func corbSizeFieldFor(depth uint16) uint8 {
	switch depth {
	case 256:
		return ringSize256Entries
	case 16:
		return ringSize16Entries
	default:
		return ringSize2Entries
	}
}

func (r *verbRing) teardown() {
	if r.corb == nil {
		return
	}
	r.kernel.Unmap(r.corb)
	r.kernel.Unmap(r.rirb)
	r.kernel.DeallocatePhysical(r.corbPhys, 4096)
	r.kernel.DeallocatePhysical(r.rirbPhys, 4096)
	r.corb, r.rirb = nil, nil
}

func (r *verbRing) stop() {
	corbCtl := r.space.Read8(regCORBCTL)
	bits.Clear8(&corbCtl, corbctlRUNPos)
	r.space.Write8(regCORBCTL, corbCtl)

	rirbCtl := r.space.Read8(regRIRBCTL)
	bits.Clear8(&rirbCtl, rirbctlDMAENPos)
	r.space.Write8(regRIRBCTL, rirbCtl)
}

// submit writes a verb into the CORB and advances CORBWP, returning the
// submission index (the counter value at the time of this call) to be
// passed to wait.
func (r *verbRing) submit(v verbDescriptor) uint64 {
	irq := r.kernel.LockSpinlock(r.lock)
	defer r.kernel.UnlockSpinlock(r.lock, irq)

	r.submitted++
	idx := r.submitted
	slot := uint16(idx % uint64(r.depth))
	putUint32(r.corb, int(slot)*4, v.encode())

	wp := r.space.Read16(regCORBWP)
	bits.SetN16(&wp, corbwpWPPos, corbwpWPMask, slot)
	r.space.Write16(regCORBWP, wp)
	return idx
}

// wait polls until the CORB write pointer and RIRB write pointer both reach
// the given submission index, then returns the response. Grounded on
// wait_for_verb in original_source/src/controller.cpp, generalized to use
// the monotonic counter instead of the raw hardware pointer.
func (r *verbRing) wait(ctx context.Context, idx uint64) (responseDescriptor, error) {
	slot := uint16(idx % uint64(r.depth))

	const pollIterations = 5 * 2000
	const pollDelayMicros = 200

	ok := false
	for i := 0; i < pollIterations; i++ {
		wp := bits.Get16(r.space.Read16(regCORBWP), corbwpWPPos, corbwpWPMask)
		if wp == slot {
			ok = true
			break
		}
		r.kernel.Delay(ctx, pollDelayMicros)
	}
	if !ok {
		return responseDescriptor{}, ErrTimeout
	}

	ok = false
	for i := 0; i < pollIterations; i++ {
		wp := bits.Get16(r.space.Read16(regRIRBWP), rirbwpWPPos, rirbwpWPMask)
		if wp == slot {
			ok = true
			break
		}
		r.kernel.Delay(ctx, pollDelayMicros)
	}
	if !ok {
		return responseDescriptor{}, ErrTimeout
	}

	off := int(slot) * 8
	return responseDescriptor{
		resp:   getUint32(r.rirb, off),
		respEx: getUint32(r.rirb, off+4),
	}, nil
}

func putUint32(buf []byte, off int, v uint32) {
	buf[off] = byte(v)
	buf[off+1] = byte(v >> 8)
	buf[off+2] = byte(v >> 16)
	buf[off+3] = byte(v >> 24)
}

func getUint32(buf []byte, off int) uint32 {
	return uint32(buf[off]) | uint32(buf[off+1])<<8 | uint32(buf[off+2])<<16 | uint32(buf[off+3])<<24
}
