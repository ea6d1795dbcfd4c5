// Package process implements the process descriptor table, the program
// loader, fork, and exit/teardown.
//
// Grounded on the original WeensyOS kernel.cc's process_setup/
// syscall_fork/syscall_exit (the per-PTE-kind branching in fork, the
// leaves-then-interiors-then-root teardown order) and
// mit-pdos-biscuit's biscuit/src/proc/proc.go (Proc_t, the ptable free-slot
// scan starting at index 1, Vm_fork's structure).
package process

import (
	"errors"
	"fmt"

	"github.com/weensyos/kernel/internal/frame"
	"github.com/weensyos/kernel/internal/kernlog"
	"github.com/weensyos/kernel/internal/memlayout"
	"github.com/weensyos/kernel/internal/pagetable"
)

// State is a process descriptor's lifecycle state.
type State int

const (
	// StateFree marks an unused descriptor slot.
	StateFree State = iota
	// StateRunnable marks a process eligible for scheduling.
	StateRunnable
	// StateFaulted marks a process that took a user-mode page fault.
	StateFaulted
	// StateBroken is a transient label during a failed fork, reverted to
	// StateFree by teardown before Fork returns.
	StateBroken
)

func (s State) String() string {
	switch s {
	case StateFree:
		return "FREE"
	case StateRunnable:
		return "RUNNABLE"
	case StateFaulted:
		return "FAULTED"
	case StateBroken:
		return "BROKEN"
	default:
		return "UNKNOWN"
	}
}

// Regs is the subset of saved user register state the core cares about:
// the instruction pointer, stack pointer, the syscall argument register
// (RDI, by the standard x86-64 ABI), and the syscall number/return-value
// register (RAX).
type Regs struct {
	RIP uint64
	RSP uint64
	RDI uint64
	RAX uint64
}

// Descriptor is one process table slot.
type Descriptor struct {
	PID   int32
	State State
	Regs  Regs
	AS    *pagetable.AddressSpace
}

// Table is the fixed-size process descriptor array; index 0 is a permanent
// sentinel and is never assigned.
type Table struct {
	slots [memlayout.NProc]Descriptor
}

// NewTable returns a process table with every slot FREE.
func NewTable() *Table {
	t := &Table{}
	for i := range t.slots {
		t.slots[i].PID = int32(i)
		t.slots[i].State = StateFree
	}
	return t
}

// Get returns the descriptor for pid. pid must be in [0, NProc).
func (t *Table) Get(pid int32) *Descriptor {
	return &t.slots[pid]
}

// FreeSlot scans ascending from index 1 (index 0 is never chosen) and
// returns the first FREE slot.
func (t *Table) FreeSlot() (int32, bool) {
	for i := int32(1); i < memlayout.NProc; i++ {
		if t.slots[i].State == StateFree {
			return i, true
		}
	}
	return 0, false
}

// ErrNoFreeSlot is returned by Fork when every descriptor is in use.
var ErrNoFreeSlot = errors.New("process: no free process slot")

// ErrOutOfMemory is returned by Fork when the child's address space cannot
// be completed; the child is fully rolled back before this is returned.
var ErrOutOfMemory = errors.New("process: out of memory during fork")

// Segment describes one loadable region of a program image: a virtual
// address range, whether it is writable, and the initialized prefix bytes
// to copy in (the remainder is the segment's bss tail, which must read as
// zero).
type Segment struct {
	VA       uint64
	Size     uint64
	Data     []byte
	DataSize uint64
	Writable bool
}

// Image is the external program-image collaborator: an iterable set of
// loadable segments plus an entry point.
type Image interface {
	Name() string
	Entry() uint64
	Segments() []Segment
}

// StaticImage is an in-memory Image, standing in for the ELF-adjacent
// loader kernel.cc calls program_image(name) against.
type StaticImage struct {
	ImgName string
	EntryPt uint64
	Segs    []Segment
}

func (s *StaticImage) Name() string        { return s.ImgName }
func (s *StaticImage) Entry() uint64       { return s.EntryPt }
func (s *StaticImage) Segments() []Segment { return s.Segs }

// writeAt copies data into as's virtual range starting at va, which must
// already be fully mapped.
func writeAt(as *pagetable.AddressSpace, va uint64, data []byte) {
	off := 0
	for off < len(data) {
		cur := va + uint64(off)
		pageVA := memlayout.AlignDown(cur)
		pa, _, present := as.Lookup(memlayout.VirtAddr(pageVA))
		if !present {
			panic(fmt.Sprintf("process: write to unmapped address %#x", cur))
		}
		pageOff := int(cur - pageVA)
		n := copy(memlayout.Frame(pa)[pageOff:], data[off:])
		off += n
	}
}

// Load initializes pid's descriptor, builds a fresh address space, maps
// and populates every loadable segment of img, maps the stack page, and
// marks the process RUNNABLE. Loader OOM is a boot-time failure, so it
// panics rather than returning an error.
func Load(pt *Table, frames *frame.Table, pid int32, img Image) {
	d := pt.Get(pid)
	d.PID = pid
	d.Regs = Regs{}

	as, err := pagetable.New(frames)
	if err != nil {
		kernlog.Log.WithField("pid", pid).Panic("out of memory building address space")
	}
	d.AS = as

	for _, seg := range img.Segments() {
		start := memlayout.AlignDown(seg.VA)
		end := seg.VA + seg.Size
		for va := start; va < end; va += memlayout.PageSize {
			pa, aerr := frames.Alloc()
			if aerr != nil {
				kernlog.Log.WithField("pid", pid).Panic("out of memory loading segment")
			}
			perm := pagetable.PermU
			if seg.Writable {
				perm |= pagetable.PermW
			}
			if merr := as.Map(frames, memlayout.VirtAddr(va), pa, perm); merr != nil {
				kernlog.Log.WithField("pid", pid).Panic("out of memory mapping segment")
			}
		}
	}

	// The allocator fills fresh frames with the 0xCC trap pattern, not
	// zero, so bss tails must be explicitly zeroed before the initialized
	// prefix is copied in.
	for _, seg := range img.Segments() {
		writeAt(as, seg.VA, make([]byte, seg.Size))
		writeAt(as, seg.VA, seg.Data[:seg.DataSize])
	}

	stackPA, aerr := frames.Alloc()
	if aerr != nil {
		kernlog.Log.WithField("pid", pid).Panic("out of memory allocating stack")
	}
	stackVA := memlayout.VirtAddr(memlayout.MemSizeVirtual - memlayout.PageSize)
	if merr := as.Map(frames, stackVA, stackPA, pagetable.PermW|pagetable.PermU); merr != nil {
		kernlog.Log.WithField("pid", pid).Panic("out of memory mapping stack")
	}

	d.Regs.RSP = uint64(memlayout.MemSizeVirtual)
	d.Regs.RIP = img.Entry()
	d.State = StateRunnable
}

// PageAlloc implements the PAGE_ALLOC syscall: maps a fresh, zeroed frame
// at addr, releasing any frame previously mapped there. It
// returns 0 on success and -1 for every rejected or failed case — the ABI
// collapses all of those to -1, so callers never need to distinguish
// bad-argument from out-of-memory.
func PageAlloc(as *pagetable.AddressSpace, frames *frame.Table, addr uint64) int64 {
	if addr%memlayout.PageSize != 0 || addr < memlayout.ProcStartAddr || addr >= memlayout.MemSizeVirtual {
		return -1
	}
	va := memlayout.VirtAddr(addr)
	if oldPA, _, present := as.Lookup(va); present {
		frames.Free(oldPA)
	}
	pa, err := frames.Alloc()
	if err != nil {
		return -1
	}
	if merr := as.Map(frames, va, pa, pagetable.PermW|pagetable.PermU); merr != nil {
		frames.Free(pa)
		return -1
	}
	pg := memlayout.Frame(pa)
	for i := range pg {
		pg[i] = 0
	}
	return 0
}

// Fork allocates a child descriptor, builds a fresh address space for it,
// and walks the parent's full virtual range
// re-deriving each mapping according to its kind — kernel-range entries
// (including the console cell) are re-derived from the canonical policy
// rather than copied or refcounted, writable user pages are deep-copied
// into freshly allocated frames, and read-only user pages are shared with
// the parent via a refcount bump. The child starts RUNNABLE with a copy of
// the parent's registers and RAX forced to 0 (the child's FORK return
// value); the parent's own RAX is set to the child's pid by the caller.
//
// On any out-of-memory failure mid-walk, the partially built child is
// rolled back: every frame it already owns is released, its address space
// is torn down, its descriptor reverts through StateBroken to StateFree,
// and Fork returns ErrOutOfMemory leaving the parent and every other
// process completely unaffected.
func Fork(pt *Table, frames *frame.Table, parentPID int32) (int32, error) {
	childPID, ok := pt.FreeSlot()
	if !ok {
		return 0, ErrNoFreeSlot
	}
	parent := pt.Get(parentPID)
	child := pt.Get(childPID)
	child.PID = childPID
	child.State = StateBroken

	childAS, err := pagetable.New(frames)
	if err != nil {
		child.State = StateFree
		return 0, ErrOutOfMemory
	}
	child.AS = childAS

	var walkErr error
	parent.AS.Walk(0, memlayout.MemSizeVirtual, func(va memlayout.VirtAddr, pa memlayout.PhysAddr, perm pagetable.Perm, present bool) {
		if walkErr != nil || !present {
			return
		}
		if perm&pagetable.PermU == 0 {
			// Kernel-range mapping: re-derive from the canonical policy
			// rather than copying or refcounting, exactly as New already
			// did while building childAS.
			return
		}
		if va == memlayout.ConsoleAddr {
			// Shared hardware cell, not process-owned memory: already
			// mapped identically by pagetable.New, nothing to do.
			return
		}
		if perm&pagetable.PermW == 0 {
			frames.Ref(pa)
			if merr := childAS.Map(frames, va, pa, perm); merr != nil {
				frames.Free(pa)
				walkErr = merr
			}
			return
		}
		newPA, aerr := frames.Alloc()
		if aerr != nil {
			walkErr = aerr
			return
		}
		copy(memlayout.Frame(newPA), memlayout.Frame(pa))
		if merr := childAS.Map(frames, va, newPA, perm); merr != nil {
			frames.Free(newPA)
			walkErr = merr
		}
	})

	if walkErr != nil {
		childAS.Walk(0, memlayout.MemSizeVirtual, func(va memlayout.VirtAddr, pa memlayout.PhysAddr, perm pagetable.Perm, present bool) {
			if present && perm&pagetable.PermU != 0 && va != memlayout.ConsoleAddr {
				frames.Free(pa)
			}
		})
		childAS.Teardown(frames)
		child.State = StateFree
		child.AS = nil
		return 0, ErrOutOfMemory
	}

	child.Regs = parent.Regs
	child.Regs.RAX = 0
	child.State = StateRunnable
	return childPID, nil
}

// Exit walks the address space leaves-first, releasing every present user
// frame except the externally-owned console cell, then every interior
// page-table frame, then the root, and finally frees the descriptor for
// reuse.
func Exit(pt *Table, frames *frame.Table, pid int32) {
	d := pt.Get(pid)
	if d.AS != nil {
		d.AS.Walk(0, memlayout.MemSizeVirtual, func(va memlayout.VirtAddr, pa memlayout.PhysAddr, perm pagetable.Perm, present bool) {
			if !present || perm&pagetable.PermU == 0 {
				return
			}
			if va == memlayout.ConsoleAddr {
				return
			}
			frames.Free(pa)
		})
		d.AS.Teardown(frames)
	}
	d.State = StateFree
	d.AS = nil
}
