// Package sched implements the round-robin scheduler and the two kernel
// entry points the trampoline calls into: dispatch_exception and
// dispatch_syscall.
//
// Grounded on the original WeensyOS kernel.cc's schedule()/run()/memshow()
// (the modulo-NPROC scan from the current pid, the idle spin that checks
// the keyboard and redraws the memory viewer) and kernel.cc's
// exception_handler/syscall_handler switches for the trap-classification
// shape, adapted to Go's named-constant switch idiom the way
// mit-pdos-biscuit's proc.Sys_ methods are dispatched from
// biscuit/syscall.go.
package sched

import (
	"errors"
	"sync/atomic"

	"github.com/weensyos/kernel/internal/frame"
	"github.com/weensyos/kernel/internal/hw"
	"github.com/weensyos/kernel/internal/kernlog"
	"github.com/weensyos/kernel/internal/memlayout"
	"github.com/weensyos/kernel/internal/process"
)

// Exception numbers the trampoline reports to DispatchException.
const (
	IntTimer = iota
	IntPageFault
)

// Syscall numbers, matching the kernel's ABI table exactly.
const (
	SysPanic = iota + 1
	SysGetpid
	SysYield
	SysPageAlloc
	SysFork
	SysExit
)

// ErrShutdown is returned by Schedule when the idle loop observes a
// host-quit request from the keyboard (the operator's Ctrl-C).
var ErrShutdown = errors.New("sched: shutdown requested")

// Scheduler owns the process table, the frame allocator, the hardware
// boundary, the current pid, and the tick counter.
//
// tick is a plain uint64 mutated only via the sync/atomic package: it is
// the one datum a future preemptive extension might touch from an
// interrupt path concurrently with other kernel activity — everything
// else here runs single-threaded and needs no synchronization.
type Scheduler struct {
	Procs   *process.Table
	Frames  *frame.Table
	Machine *hw.Machine
	Current int32
	tick    uint64
}

// New returns a scheduler ready to run, with pid 0 (the sentinel slot) as
// the starting "current" process so the first Schedule call's modulo scan
// begins at pid 1.
func New(procs *process.Table, frames *frame.Table, m *hw.Machine) *Scheduler {
	return &Scheduler{Procs: procs, Frames: frames, Machine: m}
}

// Ticks returns the current tick count.
func (s *Scheduler) Ticks() uint64 {
	return atomic.LoadUint64(&s.tick)
}

// Schedule picks the next RUNNABLE process starting after Current,
// wrapping modulo NPROC, and enters it. If no process is RUNNABLE it spins,
// checking the keyboard for a quit request and redrawing the memory viewer
// once per full sweep, until either a process becomes runnable or a quit
// is observed.
func (s *Scheduler) Schedule() error {
	for {
		for i := 0; i < memlayout.NProc; i++ {
			s.Current = (s.Current + 1) % memlayout.NProc
			if s.Procs.Get(s.Current).State == process.StateRunnable {
				return s.Machine.Trampoline.Enter(s.Current)
			}
		}
		s.Machine.Console.MemViewer(s.Procs, s.Current)
		if s.Machine.Keyboard.QuitRequested() {
			return ErrShutdown
		}
	}
}

// resume re-enters Current if it is still RUNNABLE, or falls through to a
// fresh schedule otherwise — the "after handling, if current->state ==
// RUNNABLE, resume it; else schedule" rule shared by both dispatch paths.
func (s *Scheduler) resume() error {
	if s.Procs.Get(s.Current).State == process.StateRunnable {
		return s.Machine.Trampoline.Enter(s.Current)
	}
	return s.Schedule()
}

// tickIRQ advances the tick counter and acknowledges the interrupt
// controller, then schedules — the timer-IRQ arm of DispatchException.
func (s *Scheduler) tickIRQ() error {
	atomic.AddUint64(&s.tick, 1)
	s.Machine.Interrupts.Ack()
	return s.Schedule()
}

// DispatchException implements dispatch_exception: copies regs into the
// current process's descriptor, then routes by intNo. A
// timer IRQ advances the tick counter, acknowledges the interrupt
// controller, and reschedules. A page fault is classified and reported by
// DispatchPageFault. Any other exception number is a kernel bug and
// panics.
func (s *Scheduler) DispatchException(regs process.Regs, intNo int, errCode, faultAddr uint64) error {
	s.Procs.Get(s.Current).Regs = regs

	switch intNo {
	case IntTimer:
		return s.tickIRQ()
	case IntPageFault:
		return s.DispatchPageFault(errCode, faultAddr, regs.RIP)
	default:
		kernlog.Log.WithField("component", "sched").Panicf("unhandled exception %d", intNo)
		return nil
	}
}
