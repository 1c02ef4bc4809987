package hda

import "context"

// PCIDevice identifies the PCI function a Controller is bound to. It is an
// opaque handle from the driver core's point of view — KernelServices
// implementations give it whatever meaning they need (e.g. a bus/slot/fn
// triple, or a pointer to a host-specific device struct).
type PCIDevice any

// IRQHandle is an opaque handle to an allocated interrupt line, returned by
// KernelServices.PCIAllocateIRQ and threaded back through PCIEnableIRQ/
// PCIDeallocateIRQ.
type IRQHandle any

// Spinlock is an opaque handle to a host spinlock, returned by
// KernelServices.NewSpinlock and threaded back through LockSpinlock/
// UnlockSpinlock. The
// lock must mask interrupts on acquire and restore the prior interrupt
// state on release (spec.md §5): acquisitions from thread context disable
// interrupts, so the IRQ handler re-entering the same lock on the same CPU
// cannot happen.
type Spinlock any

// IRQHandlerFunc runs in interrupt context. It must not block. The return
// value indicates whether this device's handler claimed the interrupt.
type IRQHandlerFunc func() bool

// KernelServices is the abstraction this driver core is built against
// (spec.md §6). PCI configuration-space access, interrupt registration,
// physical memory allocation, virtual mapping, spinlocks, delay, and
// logging are thin external collaborators — their contracts are specified
// here but implementations live outside this package (see hostpci for a
// Linux-hosted one, internal/fakekernel for the in-memory test double).
//
// All operations are synchronous; none may block indefinitely.
type KernelServices interface {
	// PCIRead reads 1, 2 or 4 bytes of PCI configuration space at offset
	// off for the given function.
	PCIRead(dev PCIDevice, off uint8, size uint8) (uint32, error)

	// PCIWrite writes size bytes of val to PCI configuration space at
	// offset off.
	PCIWrite(dev PCIDevice, off uint8, size uint8, val uint32) error

	// PCIAllocateIRQ binds one IRQ line to the device, invoking fn in IRQ
	// context on each interrupt. Called exactly once per device lifetime.
	PCIAllocateIRQ(dev PCIDevice, fn IRQHandlerFunc) (IRQHandle, error)

	// PCIDeallocateIRQ releases a previously allocated IRQ. Only called
	// while the IRQ is masked (disabled via PCIEnableIRQ(..., false)).
	PCIDeallocateIRQ(dev PCIDevice, irq IRQHandle)

	// PCIEnableIRQ masks or unmasks a previously allocated IRQ.
	PCIEnableIRQ(dev PCIDevice, irq IRQHandle, enable bool)

	// PCIMapBAR uncached-maps PCI memory BAR n, returning an MMIOSpace
	// over the BAR's register space.
	PCIMapBAR(dev PCIDevice, bar uint32) (MMIOSpace, error)

	// PCIUnmapBAR reverses PCIMapBAR.
	PCIUnmapBAR(dev PCIDevice, bar uint32, space MMIOSpace)

	// AllocatePhysical allocates size bytes of contiguous, 4 KiB-aligned
	// physical memory (size is always a multiple of 4 KiB) suitable for
	// DMA. It returns the physical address for programming into a
	// hardware register.
	AllocatePhysical(size int) (uintptr, error)

	// DeallocatePhysical releases memory from AllocatePhysical.
	DeallocatePhysical(phys uintptr, size int)

	// Map maps size bytes of physical memory at phys into the caller's
	// address space, uncached, returning a byte slice view of it.
	Map(phys uintptr, size int) ([]byte, error)

	// Unmap reverses Map.
	Unmap(buf []byte)

	// Delay busy-waits for the given duration. IRQ-safe.
	Delay(ctx context.Context, microseconds uint32)

	// NewSpinlock allocates a spinlock suitable for protecting
	// interrupt/thread-shared state.
	NewSpinlock() Spinlock

	// LockSpinlock acquires the lock, masking interrupts, and returns the
	// prior interrupt state to restore on unlock.
	LockSpinlock(lock Spinlock) (irqState uint64)

	// UnlockSpinlock releases the lock and restores the prior interrupt
	// state.
	UnlockSpinlock(lock Spinlock, irqState uint64)

	// Log writes a diagnostic message. Never raised as an error — see
	// errors.go and spec.md §7.
	Log(msg string)
}

// MMIOSpace is a mapped PCI memory BAR. It is read through explicitly-sized
// accessors so that, per spec.md §4.1, adjacent registers are never
// combined into wider loads.
type MMIOSpace interface {
	Read8(off uint32) uint8
	Write8(off uint32, v uint8)
	Read16(off uint32) uint16
	Write16(off uint32, v uint16)
	Read32(off uint32) uint32
	Write32(off uint32, v uint32)
}
