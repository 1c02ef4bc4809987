package hda

import (
	"fmt"

	charmlog "github.com/charmbracelet/log"
)

// Logger is the diagnostic sink this package writes to in place of the
// original's bare uhda_kernel_log(msg) callback (spec.md §6's "log" Kernel
// Service). Diagnostics routed here are never errors — malformed
// connection lists, invalid NIDs, a skipped codec timeout, and similar
// non-fatal conditions are reported this way and then the caller proceeds,
// per spec.md §7.
type Logger interface {
	Logf(format string, args ...any)
}

// kernelAndCharmLogger forwards diagnostics both through
// github.com/charmbracelet/log (grounded on
// _examples/doismellburning-samoyed's use of the same package for its
// hardware-control daemon's structured logs) and through the Kernel
// Services Log callback, so a host that only wired KernelServices.Log
// still sees every diagnostic.
type kernelAndCharmLogger struct {
	kernel KernelServices
	charm  *charmlog.Logger
}

// defaultLogger is the Logger every Controller starts with.
func defaultLogger(kernel KernelServices) Logger {
	return kernelAndCharmLogger{kernel: kernel, charm: charmlog.Default()}
}

func (l kernelAndCharmLogger) Logf(format string, args ...any) {
	l.charm.Warnf(format, args...)
	l.kernel.Log(fmt.Sprintf(format, args...))
}
