// Package hostpci implements hda.KernelServices against a Linux host,
// reading and writing PCI configuration space and memory BARs through
// sysfs (/sys/bus/pci/devices/<address>/config and resourceN) and mapping
// them with mmap. It is a reference, non-core implementation: the domain
// stack SPEC_FULL.md calls for wiring golang.org/x/sys/unix into — the
// driver core itself (the hda package) never imports it.
//
// Grounded on the shape of _examples/usbarmory-tamago's soc/intel/pci
// package (Device{Bus,Vendor,Device,Slot}, Read/Write, BaseAddress), here
// reimplemented against a hosted OS's PCI access mechanism instead of bare
// metal I/O-port config space access.
package hostpci

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	hda "github.com/uDrivers/uHDA"
)

// Device identifies a PCI function by its Linux sysfs address, e.g.
// "0000:00:1b.0".
type Device struct {
	Address string
}

// sysfsPath returns the device's directory under /sys/bus/pci/devices.
func (d Device) sysfsPath() string {
	return filepath.Join("/sys/bus/pci/devices", d.Address)
}

// Find scans /sys/bus/pci/devices for a function matching vendor/device;
// the class code is not consulted. Mirrors
// _examples/usbarmory-tamago/soc/intel/pci.Probe/Devices, reimplemented
// against sysfs instead of I/O-port config space scanning.
func Find(vendor, device uint16) (Device, bool) {
	entries, err := os.ReadDir("/sys/bus/pci/devices")
	if err != nil {
		return Device{}, false
	}
	for _, e := range entries {
		d := Device{Address: e.Name()}
		v, errV := readSysfsHex(d, "vendor")
		dv, errD := readSysfsHex(d, "device")
		if errV != nil || errD != nil {
			continue
		}
		if uint16(v) == vendor && uint16(dv) == device {
			return d, true
		}
	}
	return Device{}, false
}

func readSysfsHex(d Device, file string) (uint64, error) {
	b, err := os.ReadFile(filepath.Join(d.sysfsPath(), file))
	if err != nil {
		return 0, err
	}
	var v uint64
	_, err = fmt.Sscanf(string(b), "0x%x", &v)
	return v, err
}

// Services implements hda.KernelServices against the host Linux kernel.
type Services struct {
	mu         sync.Mutex
	irqs       map[string]*irqState
	dmaCounter uint64
	dmaRegions map[uintptr][]byte
}

type irqState struct {
	enabled bool
}

// NewServices constructs a Services ready to bind Controllers to host PCI
// devices.
func NewServices() *Services {
	return &Services{
		irqs:       make(map[string]*irqState),
		dmaRegions: make(map[uintptr][]byte),
	}
}

func (s *Services) configFile(dev hda.PCIDevice) (string, error) {
	d, ok := dev.(Device)
	if !ok {
		return "", fmt.Errorf("hostpci: not a hostpci.Device: %v", dev)
	}
	return filepath.Join(d.sysfsPath(), "config"), nil
}

func (s *Services) PCIRead(dev hda.PCIDevice, off uint8, size uint8) (uint32, error) {
	path, err := s.configFile(dev)
	if err != nil {
		return 0, err
	}
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	buf := make([]byte, size)
	if _, err := f.ReadAt(buf, int64(off)); err != nil {
		return 0, err
	}
	var v uint32
	for i := 0; i < int(size); i++ {
		v |= uint32(buf[i]) << (8 * i)
	}
	return v, nil
}

func (s *Services) PCIWrite(dev hda.PCIDevice, off uint8, size uint8, val uint32) error {
	path, err := s.configFile(dev)
	if err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return err
	}
	defer f.Close()

	buf := make([]byte, size)
	for i := 0; i < int(size); i++ {
		buf[i] = byte(val >> (8 * i))
	}
	_, err = f.WriteAt(buf, int64(off))
	return err
}

func (s *Services) PCIAllocateIRQ(dev hda.PCIDevice, fn hda.IRQHandlerFunc) (hda.IRQHandle, error) {
	d, ok := dev.(Device)
	if !ok {
		return nil, fmt.Errorf("hostpci: not a hostpci.Device: %v", dev)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	st := &irqState{}
	s.irqs[d.Address] = st
	// A real implementation would open /dev/vfio or uioX and run fn on a
	// dedicated goroutine per interrupt; the reference backend's scope is
	// config-space/BAR access, not a full VFIO IRQ bridge (see DESIGN.md).
	return d.Address, nil
}

func (s *Services) PCIDeallocateIRQ(dev hda.PCIDevice, irq hda.IRQHandle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if addr, ok := irq.(string); ok {
		delete(s.irqs, addr)
	}
}

func (s *Services) PCIEnableIRQ(dev hda.PCIDevice, irq hda.IRQHandle, enable bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if addr, ok := irq.(string); ok {
		if st, found := s.irqs[addr]; found {
			st.enabled = enable
		}
	}
}

// mmioSpace implements hda.MMIOSpace over an mmap'd PCI resource file.
type mmioSpace struct {
	data []byte
}

func (m *mmioSpace) Read8(off uint32) uint8    { return m.data[off] }
func (m *mmioSpace) Write8(off uint32, v uint8) { m.data[off] = v }
func (m *mmioSpace) Read16(off uint32) uint16 {
	return uint16(m.data[off]) | uint16(m.data[off+1])<<8
}
func (m *mmioSpace) Write16(off uint32, v uint16) {
	m.data[off] = byte(v)
	m.data[off+1] = byte(v >> 8)
}
func (m *mmioSpace) Read32(off uint32) uint32 {
	return uint32(m.data[off]) | uint32(m.data[off+1])<<8 | uint32(m.data[off+2])<<16 | uint32(m.data[off+3])<<24
}
func (m *mmioSpace) Write32(off uint32, v uint32) {
	m.data[off] = byte(v)
	m.data[off+1] = byte(v >> 8)
	m.data[off+2] = byte(v >> 16)
	m.data[off+3] = byte(v >> 24)
}

func (s *Services) PCIMapBAR(dev hda.PCIDevice, bar uint32) (hda.MMIOSpace, error) {
	d, ok := dev.(Device)
	if !ok {
		return nil, fmt.Errorf("hostpci: not a hostpci.Device: %v", dev)
	}
	path := filepath.Join(d.sysfsPath(), fmt.Sprintf("resource%d", bar))
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	data, err := unix.Mmap(int(f.Fd()), 0, int(info.Size()), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, err
	}
	return &mmioSpace{data: data}, nil
}

func (s *Services) PCIUnmapBAR(dev hda.PCIDevice, bar uint32, space hda.MMIOSpace) {
	if m, ok := space.(*mmioSpace); ok {
		unix.Munmap(m.data)
	}
}

// AllocatePhysical asks the kernel for DMA-capable memory. A userspace
// process on Linux has no direct way to learn a real physical address
// without an IOMMU/VFIO mapping; this reference backend instead hands out
// an opaque handle backed by anonymous mmap'd memory, tracked in
// dmaRegions, which is sufficient for exercising the driver against QEMU's
// software HDA emulation (QEMU's DMA engine operates on guest-physical
// addresses that this process's "physical" handles stand in for) but not a
// substitute for a real IOMMU-aware allocator on physical hardware.
func (s *Services) AllocatePhysical(size int) (uintptr, error) {
	data, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED|unix.MAP_ANONYMOUS)
	if err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dmaCounter++
	handle := uintptr(s.dmaCounter)
	s.dmaRegions[handle] = data
	return handle, nil
}

func (s *Services) DeallocatePhysical(phys uintptr, size int) {
	s.mu.Lock()
	data, ok := s.dmaRegions[phys]
	delete(s.dmaRegions, phys)
	s.mu.Unlock()
	if ok {
		unix.Munmap(data)
	}
}

func (s *Services) Map(phys uintptr, size int) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.dmaRegions[phys]
	if !ok {
		return nil, fmt.Errorf("hostpci: unknown physical handle %d", phys)
	}
	return data, nil
}

func (s *Services) Unmap(buf []byte) {
	// Regions are released by DeallocatePhysical; Map above just hands
	// back the same backing slice, so there's nothing additional to undo
	// here.
}

func (s *Services) Delay(ctx context.Context, microseconds uint32) {
	t := time.NewTimer(time.Duration(microseconds) * time.Microsecond)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}

type hostSpinlock struct {
	mu sync.Mutex
}

func (s *Services) NewSpinlock() hda.Spinlock {
	return &hostSpinlock{}
}

func (s *Services) LockSpinlock(lock hda.Spinlock) uint64 {
	lock.(*hostSpinlock).mu.Lock()
	return 0
}

func (s *Services) UnlockSpinlock(lock hda.Spinlock, irqState uint64) {
	lock.(*hostSpinlock).mu.Unlock()
}

func (s *Services) Log(msg string) {
	fmt.Fprintln(os.Stderr, msg)
}
