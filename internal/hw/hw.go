// Package hw declares the external hardware boundary the kernel core
// depends on but never implements itself: initialization, timer,
// interrupt-controller acknowledgement, the console/memory-viewer
// renderer, and the register save/restore trampoline.
//
// Grounded on the original WeensyOS kernel.cc's free functions of the same
// names (init_hardware, console_printf, lapicstate::get().ack(),
// check_keyboard, exception_return) and on mit-pdos-biscuit's hw.go, which
// keeps hardware-facing calls behind small Go functions rather than a large
// struct — here expressed as interfaces so internal/hw/sim can stand in for
// real hardware in boot and tests.
package hw

import "github.com/weensyos/kernel/internal/process"

// Console is the operator-facing text output the kernel reports faults and
// diagnostics to, and the memory-viewer render target.
type Console interface {
	Printf(format string, args ...any)
	Clear()
	ShowCursor(show bool)
	MemViewer(pt *process.Table, current int32)
}

// InterruptController acknowledges the timer interrupt once the scheduler
// has consumed it, standing in for lapicstate.get().ack().
type InterruptController interface {
	Ack()
}

// Keyboard reports whether the operator has requested a host-side quit,
// used by the idle scheduler to poll for Ctrl-C.
type Keyboard interface {
	QuitRequested() bool
}

// Timer starts the periodic timer interrupt at the given frequency.
type Timer interface {
	Init(hz int)
}

// Trampoline installs a process's root page table and saved registers and
// transfers control to user mode, returning only when the next kernel
// entry occurs. Because this module runs as an ordinary Go process rather
// than on bare metal, Enter cannot truly "return to user mode" —
// sim.Trampoline instead records which pid was entered and returns at
// once, and the caller supplies that process's next kernel entry (timer,
// syscall or page fault) itself.
type Trampoline interface {
	Enter(pid int32) error
}

// Machine bundles the full hardware boundary the kernel depends on.
type Machine struct {
	Console    Console
	Interrupts InterruptController
	Keyboard   Keyboard
	Timer      Timer
	Trampoline Trampoline
}
