// Package sim provides deterministic, in-memory stand-ins for the hw
// interfaces, used by cmd/weensy's boot command and by package sched's
// tests in place of real x86-64 hardware.
//
// Grounded on mit-pdos-biscuit's hw.go pattern of keeping hardware access
// behind small functions, and on the original WeensyOS kernel.cc's
// console_memviewer, which renders the frame table and every process's
// page-table summary into the CGA text buffer — here rendered into a log
// line instead, since there is no real text-mode buffer to draw into.
package sim

import (
	"fmt"

	"github.com/weensyos/kernel/internal/frame"
	"github.com/weensyos/kernel/internal/kernlog"
	"github.com/weensyos/kernel/internal/process"
)

// Console renders kernel diagnostics and memory-viewer snapshots through
// kernlog instead of a text-mode buffer, and records every call for tests
// that need to assert on what was reported to the operator.
type Console struct {
	Lines       []string
	cursorShown bool
}

func (c *Console) Printf(format string, args ...any) {
	line := fmt.Sprintf(format, args...)
	c.Lines = append(c.Lines, line)
	kernlog.Log.WithField("component", "console").Info(line)
}

func (c *Console) Clear() {
	c.Lines = nil
}

func (c *Console) ShowCursor(show bool) {
	c.cursorShown = show
}

// MemViewer renders a single line naming the current pid, standing in for
// kernel.cc's console_memviewer page-table grid. It reports neither the
// frame table nor any per-process state.
func (c *Console) MemViewer(pt *process.Table, current int32) {
	c.Printf("memviewer: current=%d", current)
}

// InterruptController counts acknowledgements so tests can assert the
// scheduler acknowledges exactly once per timer interrupt.
type InterruptController struct {
	Acks int
}

func (ic *InterruptController) Ack() { ic.Acks++ }

// Keyboard is a deterministic, programmable stand-in for check_keyboard:
// tests set Quit to request scheduler shutdown instead of waiting on a
// real Ctrl-C.
type Keyboard struct {
	Quit bool
}

func (k *Keyboard) QuitRequested() bool { return k.Quit }

// Timer records the frequency it was asked to run at; there is no real
// periodic interrupt source in simulation, so ticks are driven explicitly
// by callers (e.g. a test calling Scheduler.DispatchException with
// IntTimer).
type Timer struct {
	HZ int
}

func (t *Timer) Init(hz int) { t.HZ = hz }

// Trampoline hands control to a process's simulated user-mode span. There
// is no instruction-level user-mode emulation in this module: Enter simply
// records that pid was dispatched and returns immediately, leaving the
// caller (in this module, a test) to inject whatever trap — timer,
// syscall, or page fault — that process's program would next have taken,
// mirroring the real trampoline's contract that control returns to the
// kernel only on the next trap. kernel.Run injects no traps; it only calls
// Schedule again.
type Trampoline struct {
	Frames  *frame.Table
	Entered []int32
}

func (t *Trampoline) Enter(pid int32) error {
	t.Entered = append(t.Entered, pid)
	return nil
}
