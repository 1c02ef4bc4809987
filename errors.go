package hda

import "errors"

// Flat error taxonomy (spec.md §7). Conditions this package detects itself
// are reported with these sentinels, checkable with errors.Is. Errors
// returned by KernelServices calls (PCI config access, BAR mapping, IRQ
// allocation, physical allocation and mapping) are passed through as they
// come, wrapped with context via fmt.Errorf and %w where useful; they are
// not translated into these sentinels.
var (
	// ErrUnsupported indicates the hardware lacks a needed feature, or a
	// request named an unsupported parameter (e.g. a long-form connection
	// list, a 32-bit-only controller, a path with no audio-out end).
	ErrUnsupported = errors.New("hda: unsupported")

	// ErrNoMemory names an allocation failure. No operation in this
	// package returns it: a failed KernelServices allocation is returned
	// as the kernel's own error, wrapped. Every allocation in this package
	// has a paired reverse step that runs on such a failure.
	ErrNoMemory = errors.New("hda: no memory")

	// ErrTimeout indicates a verb or register-bit polling window expired.
	// Timeouts during codec discovery are non-fatal and are logged and
	// skipped by Controller.Resume; everywhere else a timeout aborts the
	// current operation only, leaving the controller in a defined state.
	ErrTimeout = errors.New("hda: timeout")
)
