package hda

import (
	"context"
	"fmt"

	"github.com/uDrivers/uHDA/internal/bits"
)

// resetPollIterations/resetPollDelayMicros bound CRST polling at roughly
// 10ms, per spec.md §4.7's Resume/Suspend sequences ("poll up to 10 ms"),
// not the ~2s loop the literal C++ source uses (5*2000 iterations of
// 200us) nor §5's differing 400ms summary figure — see DESIGN.md's Open
// Question decisions for why §4.7 governs here.
const (
	resetPollIterations  = 50
	resetPollDelayMicros = 200
)

// pciCmdMemSpace/pciCmdBusMaster are PCI_COMMAND register bits this driver
// must set during pciSetup, per original_source/src/controller.cpp.
const (
	pciCmdMemSpace  = 1 << 1
	pciCmdBusMaster = 1 << 2
)

const maxCodecs = 15 // STATESTS has one bit per possible codec address, 0..14

// Controller owns one Intel HDA PCI function: its register space, CORB/
// RIRB verb ring, discovered codecs, and input/output stream descriptors
// (spec.md §3's Controller type). Grounded on
// original_source/src/controller.hpp's UhdaController and
// src/controller.cpp.
type Controller struct {
	kernel KernelServices
	dev    PCIDevice
	irq    IRQHandle

	space MMIOSpace
	bar   uint32

	verbs verbRing
	lock  Spinlock

	inStreamCount  uint8
	outStreamCount uint8
	inStreams      []*Stream
	outStreams     []*Stream

	dmaPositionBuffer []byte
	dmaPositionPhys   uintptr

	Codecs []*Codec

	logger Logger
}

// New constructs a Controller bound to dev, using services for every
// privileged operation. It does not touch hardware until Resume is called.
func New(kernel KernelServices, dev PCIDevice) *Controller {
	return &Controller{
		kernel: kernel,
		dev:    dev,
		logger: defaultLogger(kernel),
	}
}

// Init performs first-time setup: PCI enablement, BAR mapping, IRQ
// allocation, CORB/RIRB allocation, then defers register programming to
// Resume. A failure before Resume unwinds everything allocated so far and
// returns that error. A failure inside Resume is returned as is, with the
// IRQ, BAR mapping and CORB/RIRB pages still held; Destroy releases them.
// Grounded on UhdaController::init.
func (c *Controller) Init(ctx context.Context) error {
	if err := c.pciSetup(); err != nil {
		return err
	}
	space, bar, err := c.mapBAR()
	if err != nil {
		return err
	}
	c.space = space
	c.bar = bar

	c.lock = c.kernel.NewSpinlock()

	irq, err := c.kernel.PCIAllocateIRQ(c.dev, c.handleIRQ)
	if err != nil {
		c.kernel.PCIUnmapBAR(c.dev, c.bar, c.space)
		return fmt.Errorf("hda: allocate IRQ: %w", err)
	}
	c.irq = irq

	if err := c.verbs.allocate(c.space, c.kernel, c.lock); err != nil {
		c.kernel.PCIDeallocateIRQ(c.dev, c.irq)
		c.kernel.PCIUnmapBAR(c.dev, c.bar, c.space)
		return err
	}

	return c.Resume(ctx)
}

// Destroy suspends the controller and releases the IRQ. Grounded on
// UhdaController::destroy.
func (c *Controller) Destroy(ctx context.Context) error {
	err := c.Suspend(ctx)
	c.verbs.teardown()
	c.kernel.PCIDeallocateIRQ(c.dev, c.irq)
	c.kernel.PCIUnmapBAR(c.dev, c.bar, c.space)
	return err
}

// Suspend halts all DMA engines (CORB, RIRB, every stream descriptor) and
// clears GCTL.CRST, masking the IRQ first. Grounded on
// UhdaController::suspend.
func (c *Controller) Suspend(ctx context.Context) error {
	c.kernel.PCIEnableIRQ(c.dev, c.irq, false)

	gctl := c.space.Read32(regGCTL)
	if bits.Get32(gctl, gctlCRSTPos, 1) == 0 {
		return nil
	}

	c.verbs.stop()

	for _, s := range c.inStreams {
		ctl0 := s.space.Read8(sdCTL0)
		bits.Clear8(&ctl0, sdctl0RUNPos)
		s.space.Write8(sdCTL0, ctl0)
	}
	for _, s := range c.outStreams {
		ctl0 := s.space.Read8(sdCTL0)
		bits.Clear8(&ctl0, sdctl0RUNPos)
		s.space.Write8(sdCTL0, ctl0)
	}

	bits.Clear32(&gctl, gctlCRSTPos)
	c.space.Write32(regGCTL, gctl)

	if !c.pollBit32(ctx, regGCTL, gctlCRSTPos, false) {
		return ErrTimeout
	}
	c.kernel.Delay(ctx, 200)
	return nil
}

// Resume re-enables the PCI function, asserts then polls GCTL.CRST, checks
// 64-bit addressing support, negotiates CORB/RIRB sizes, re-enables
// interrupts, (re)initializes every stream descriptor, and probes for
// codecs via STATESTS. Grounded on UhdaController::resume.
func (c *Controller) Resume(ctx context.Context) error {
	if err := c.pciSetup(); err != nil {
		return err
	}
	if err := c.Suspend(ctx); err != nil {
		return err
	}
	c.kernel.PCIEnableIRQ(c.dev, c.irq, true)

	gctl := c.space.Read32(regGCTL)
	bits.Set32(&gctl, gctlCRSTPos)
	c.space.Write32(regGCTL, gctl)
	if !c.pollBit32(ctx, regGCTL, gctlCRSTPos, true) {
		return ErrTimeout
	}

	gcap := c.space.Read16(regGCAP)
	if bits.Get16(gcap, gcapOK64Pos, 1) == 0 {
		c.logger.Logf("hda: controller lacks 64-bit addressing support")
		return ErrUnsupported
	}

	c.verbs.program()

	c.inStreamCount = uint8(bits.Get16(gcap, gcapISSPos, gcapISSMask))
	c.outStreamCount = uint8(bits.Get16(gcap, gcapOSSPos, gcapOSSMask))

	// Only (re)create stream descriptors the first time: a later Resume
	// (after a Suspend) must not discard a caller's already-configured
	// ring buffer and callbacks.
	if len(c.inStreams) != int(c.inStreamCount) {
		c.inStreams = make([]*Stream, c.inStreamCount)
		for i := range c.inStreams {
			c.inStreams[i] = c.newStream(uint8(i), false)
		}
	}
	if len(c.outStreams) != int(c.outStreamCount) {
		c.outStreams = make([]*Stream, c.outStreamCount)
		for i := range c.outStreams {
			c.outStreams[i] = c.newStream(uint8(i), true)
		}
	}

	c.kernel.Delay(ctx, 1000) // allow codecs to complete self-identification

	intctl := c.space.Read32(regINTCTL)
	bits.Set32(&intctl, intctlGIEPos)
	totalStreams := uint32(c.inStreamCount) + uint32(c.outStreamCount)
	bits.SetN32(&intctl, intctlSIEPos, intctlSIEMask, (uint32(1)<<totalStreams)-1)
	c.space.Write32(regINTCTL, intctl)

	return c.probeCodecs(ctx)
}

// OutputStreams returns the controller's output stream descriptors, sized
// and indexed by GCAP.OSS. Callers configure and start playback through the
// returned Streams directly (Setup/SetCallbacks/Play).
func (c *Controller) OutputStreams() []*Stream { return c.outStreams }

// InputStreams returns the controller's input stream descriptors, sized and
// indexed by GCAP.ISS.
func (c *Controller) InputStreams() []*Stream { return c.inStreams }

func (c *Controller) newStream(index uint8, output bool) *Stream {
	base := streamBase(c.inStreamCount, int(index), output)
	return &Stream{
		kernel: c.kernel,
		space:  subspace(c.space, base),
		lock:   c.kernel.NewSpinlock(),
		index:  index,
		Output: output,

		dmaPositionBuffer: c.dmaPositionBuffer,
		dmaPositionOffset: int(index) * 8,
	}
}

// probeCodecs reads STATESTS and constructs a Codec for every bit set,
// skipping (not aborting on) a codec that times out during init — a
// non-fatal condition, per UhdaController::resume.
func (c *Controller) probeCodecs(ctx context.Context) error {
	c.Codecs = nil
	statests := c.space.Read16(regSTATESTS)
	for addr := uint8(0); addr < maxCodecs; addr++ {
		if bits.Get16(statests, int(addr), 1) == 0 {
			continue
		}
		codec := newCodec(c, &c.verbs, addr)
		if err := codec.init(ctx); err != nil {
			if err == ErrTimeout {
				c.logger.Logf("hda: codec %d: timeout during discovery, skipping", addr)
				continue
			}
			return err
		}
		c.Codecs = append(c.Codecs, codec)
	}
	return nil
}

// handleIRQ is the top-half IRQ handler: it reads INTSTS, dispatches to
// every stream with its bit set, and reports whether this device's
// interrupt was the source. Grounded on hda_irq in
// original_source/src/controller.cpp.
func (c *Controller) handleIRQ() bool {
	intsts := c.space.Read32(regINTSTS)
	if intsts == 0 {
		return false
	}
	streams := bits.Get32(intsts, intstsSISPos, intstsSISMask)
	for i := 0; i < int(c.inStreamCount)+int(c.outStreamCount); i++ {
		if streams&(1<<uint(i)) == 0 {
			continue
		}
		if i < int(c.inStreamCount) {
			continue // input streams carry no refill work in this driver
		}
		c.outStreams[i-int(c.inStreamCount)].OutputIRQ()
	}
	return true
}

// pollBit32 polls a 32-bit register's bit until it reaches want, or times
// out. Shared by Suspend/Resume's CRST polling.
func (c *Controller) pollBit32(ctx context.Context, off uint32, pos int, want bool) bool {
	for i := 0; i < resetPollIterations; i++ {
		if (bits.Get32(c.space.Read32(off), pos, 1) != 0) == want {
			return true
		}
		c.kernel.Delay(ctx, resetPollDelayMicros)
	}
	return false
}

// pciSetup enables memory space decoding and bus mastering. Grounded on
// UhdaController::pci_setup.
func (c *Controller) pciSetup() error {
	cmd, err := c.kernel.PCIRead(c.dev, 0x04, 2)
	if err != nil {
		return err
	}
	cmd |= pciCmdMemSpace | pciCmdBusMaster
	return c.kernel.PCIWrite(c.dev, 0x04, 2, cmd)
}

// mapBAR finds and maps the controller's first 32- or 64-bit memory BAR.
// Grounded on UhdaController::map_bar.
func (c *Controller) mapBAR() (MMIOSpace, uint32, error) {
	for i := uint32(0); i < 6; i++ {
		barVal, err := c.kernel.PCIRead(c.dev, uint8(0x10+i*4), 4)
		if err != nil {
			return nil, 0, err
		}
		if barVal&1 != 0 {
			if i == 5 {
				return nil, 0, ErrUnsupported
			}
			continue
		}
		space, err := c.kernel.PCIMapBAR(c.dev, i)
		if err != nil {
			return nil, 0, fmt.Errorf("hda: map BAR %d: %w", i, err)
		}
		return space, i, nil
	}
	return nil, 0, ErrUnsupported
}

// DeviceMatches reports whether a probed PCI vendor/device ID pair
// identifies an Intel HDA controller (see ClassMatches for the class/
// subclass check). Grounded on original_source/src/uhda.cpp's
// uhda_device_matches/uhda_class_matches.
func DeviceMatches(vendor, device uint16) bool {
	return vendor == 0x8086 && device == 0xA0C8
}

// ClassMatches reports whether a PCI class/subclass pair identifies a
// generic HD Audio controller (class 4, subclass 3).
func ClassMatches(class, subclass uint8) bool {
	return class == 0x04 && subclass == 0x03
}
