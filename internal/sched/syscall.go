package sched

import (
	"github.com/weensyos/kernel/internal/kernlog"
	"github.com/weensyos/kernel/internal/process"
)

// negOne is the ABI's error return value for a syscall, the accumulator
// register reinterpreted as a signed -1.
const negOne = ^uint64(0)

// DispatchSyscall implements dispatch_syscall: copies regs into the
// current process's descriptor, then switches on the syscall number
// carried in RAX. PANIC never returns. GETPID, PAGE_ALLOC and FORK set RAX
// to their result and resume the caller if still RUNNABLE, else
// reschedule. YIELD sets RAX to 0 and always reschedules; EXIT tears the
// caller down and reschedules without setting a result. An unknown
// syscall number panics.
func (s *Scheduler) DispatchSyscall(regs process.Regs) error {
	d := s.Procs.Get(s.Current)
	d.Regs = regs

	switch regs.RAX {
	case SysPanic:
		s.Machine.Console.Printf("pid %d called panic", d.PID)
		kernlog.Log.WithField("component", "sched").Panicf("user panic from pid %d", d.PID)
		return nil

	case SysGetpid:
		d.Regs.RAX = uint64(d.PID)
		return s.resume()

	case SysYield:
		d.Regs.RAX = 0
		return s.Schedule()

	case SysPageAlloc:
		d.Regs.RAX = uint64(process.PageAlloc(d.AS, s.Frames, regs.RDI))
		return s.resume()

	case SysFork:
		child, err := process.Fork(s.Procs, s.Frames, s.Current)
		if err != nil {
			d.Regs.RAX = negOne
		} else {
			d.Regs.RAX = uint64(child)
		}
		return s.resume()

	case SysExit:
		process.Exit(s.Procs, s.Frames, s.Current)
		return s.Schedule()

	default:
		kernlog.Log.WithField("component", "sched").Panicf("unknown syscall %d", regs.RAX)
		return nil
	}
}
