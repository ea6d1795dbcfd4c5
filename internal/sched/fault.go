package sched

import (
	"github.com/weensyos/kernel/internal/kernlog"
	"github.com/weensyos/kernel/internal/process"
)

// Error-code bit positions the hardware reports on a page fault, matching
// kernel.cc's PTE_W/PTE_P/PTE_U masks used against reg_errcode.
const (
	errBitWrite   = 1 << 1 // 0 = read, 1 = write
	errBitPresent = 1 << 0 // 0 = missing page, 1 = protection violation
	errBitUser    = 1 << 2 // 0 = kernel mode, 1 = user mode
)

// DispatchPageFault classifies a page fault from its error code and
// reports it: a kernel-mode fault is fatal and panics; a user-mode fault
// is printed to the operator console with the faulting address,
// operation, problem, and saved instruction pointer, and the current
// process transitions to FAULTED. It then resumes or reschedules per the
// shared dispatch_exception rule.
func (s *Scheduler) DispatchPageFault(errCode uint64, faultAddr uint64, savedRIP uint64) error {
	user := errCode&errBitUser != 0
	operation := "read"
	if errCode&errBitWrite != 0 {
		operation = "write"
	}
	problem := "missing page"
	if errCode&errBitPresent != 0 {
		problem = "protection problem"
	}

	if !user {
		kernlog.Log.WithField("component", "sched").Panicf(
			"kernel page fault on %#x (%s %s)", faultAddr, operation, problem)
	}

	d := s.Procs.Get(s.Current)
	s.Machine.Console.Printf(
		"pid %d: %s %s at %#x, rip=%#x",
		d.PID, operation, problem, faultAddr, savedRIP)
	d.State = process.StateFaulted

	return s.resume()
}
