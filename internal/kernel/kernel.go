// Package kernel wires the independently testable packages — frame,
// pagetable, process, sched, hw — together into the bootable whole
// cmd/weensy drives, mirroring the way kernel.cc's kernel_start() builds
// the frame table, loads the configured images, and hands off to
// schedule().
package kernel

import (
	"errors"

	"github.com/weensyos/kernel/internal/frame"
	"github.com/weensyos/kernel/internal/hw"
	"github.com/weensyos/kernel/internal/hw/sim"
	"github.com/weensyos/kernel/internal/kconfig"
	"github.com/weensyos/kernel/internal/memlayout"
	"github.com/weensyos/kernel/internal/process"
	"github.com/weensyos/kernel/internal/sched"
)

// ErrTooManyImages is returned by Boot when the configured image set would
// need more descriptors than pids 1..NPROC-1 provide.
var ErrTooManyImages = errors.New("kernel: too many boot images for the process table")

// Kernel bundles the booted subsystems.
type Kernel struct {
	Frames  *frame.Table
	Procs   *process.Table
	Machine *hw.Machine
	Sched   *sched.Scheduler
}

// Boot builds a fresh kernel per cfg: a process table with cfg.Images()
// loaded as pids 1..N, a simulated hardware boundary, and a scheduler
// ready to run. It mirrors kernel_start()'s init_hardware/init_timer/
// process_init sequence, with sim standing in for real hardware.
func Boot(cfg kconfig.Config) (*Kernel, error) {
	frames := frame.New()
	procs := process.NewTable()

	images := cfg.Images()
	if len(images) >= memlayout.NProc {
		return nil, ErrTooManyImages
	}

	console := &sim.Console{}
	timer := &sim.Timer{}
	machine := &hw.Machine{
		Console:    console,
		Interrupts: &sim.InterruptController{},
		Keyboard:   &sim.Keyboard{},
		Timer:      timer,
		Trampoline: &sim.Trampoline{Frames: frames},
	}
	timer.Init(cfg.HZ)
	console.Clear()
	console.ShowCursor(true)

	for i, name := range images {
		process.Load(procs, frames, int32(i+1), demoImage(name))
	}

	s := sched.New(procs, frames, machine)
	return &Kernel{Frames: frames, Procs: procs, Machine: machine, Sched: s}, nil
}

// Run drives the scheduler for up to maxSteps kernel entries, stopping
// early if the idle loop observes a shutdown request. Real hardware never
// returns from schedule(); this bound exists because this module has no
// instruction-level user-mode emulation to generate further traps on its
// own, so each step models one already-decided kernel entry rather than
// free-running forever.
func (k *Kernel) Run(maxSteps int) error {
	for i := 0; i < maxSteps; i++ {
		if err := k.Sched.Schedule(); err != nil {
			if errors.Is(err, sched.ErrShutdown) {
				return nil
			}
			return err
		}
	}
	return nil
}
