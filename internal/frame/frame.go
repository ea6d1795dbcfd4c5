// Package frame implements the physical frame table and the page-granular
// allocator: a flat, refcounted array over every frame in the simulated
// physical address space.
//
// Grounded on mit-pdos-biscuit's biscuit/src/mem/mem.go (Physpg_t.Refcnt,
// Physmem_t.Refup/Refdown, the panic-on-underflow assertion) and the
// original WeensyOS kernel.cc's kalloc/kfree (linear scan in ascending
// physical-address order, the 0xCC fill pattern, decrement-only-on-free).
//
// The kernel disables interrupts on entry and runs single-threaded (no
// multi-core, no preemption inside kernel code), so unlike Biscuit's
// Physmem_t this table carries no locks.
package frame

import (
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/weensyos/kernel/internal/kernlog"
	"github.com/weensyos/kernel/internal/memlayout"
)

// ErrOutOfFrames is returned when no allocatable frame has a zero refcount.
var ErrOutOfFrames = errors.New("frame: out of frames")

// trapPattern is written across a freshly allocated frame so that a stray
// jump into uninitialized memory traps immediately (int3 on x86).
const trapPattern = 0xCC

type entry struct {
	refcount uint32
}

// Table is the physical frame table: one entry per frame in
// [0, MemSizePhysical). Entries for reserved frames are never touched by
// Alloc/Free; memlayout.Allocatable is the sole policy function deciding
// which frames this table will ever hand out.
type Table struct {
	entries [memlayout.NPages]entry
}

// New returns a fresh, all-free frame table.
func New() *Table {
	return &Table{}
}

// Alloc scans allocatable frames in ascending physical-address order and
// returns the first with a zero refcount, bumping it to 1 and filling it
// with the trap pattern. It returns ErrOutOfFrames if none is free.
func (t *Table) Alloc() (memlayout.PhysAddr, error) {
	for pa := memlayout.PhysAddr(0); pa < memlayout.MemSizePhysical; pa += memlayout.PageSize {
		if !memlayout.Allocatable(pa) {
			continue
		}
		idx := pa.FrameNumber()
		if t.entries[idx].refcount != 0 {
			continue
		}
		t.entries[idx].refcount = 1
		pg := memlayout.Frame(pa)
		for i := range pg {
			pg[i] = trapPattern
		}
		return pa, nil
	}
	kernlog.Log.WithField("component", "frame").Warn("allocator exhausted")
	return 0, ErrOutOfFrames
}

// Free decrements pa's refcount. It is a no-op if pa is the null sentinel
// (zero). The caller must ensure pa was obtained from Alloc or shared via
// Ref; a refcount that would go negative is a programming error and panics,
// mirroring mem.go's "panic(\"wut\")" underflow guard.
func (t *Table) Free(pa memlayout.PhysAddr) {
	if pa == 0 {
		return
	}
	e := &t.entries[pa.FrameNumber()]
	if e.refcount == 0 {
		kernlog.Log.WithFields(logrus.Fields{"component": "frame", "pa": pa}).Panic("refcount underflow")
	}
	e.refcount--
}

// Ref increments pa's refcount, used when forking a process shares a
// read-only user page into the child address space instead of copying it.
func (t *Table) Ref(pa memlayout.PhysAddr) {
	e := &t.entries[pa.FrameNumber()]
	if e.refcount == 0 {
		kernlog.Log.WithFields(logrus.Fields{"component": "frame", "pa": pa}).Panic("ref on a free frame")
	}
	e.refcount++
}

// Refcount returns pa's current refcount, used by tests and diagnostics.
func (t *Table) Refcount(pa memlayout.PhysAddr) uint32 {
	if pa == 0 {
		return 0
	}
	return t.entries[pa.FrameNumber()].refcount
}

// FreeCount reports the number of allocatable frames currently at refcount 0.
func (t *Table) FreeCount() int {
	n := 0
	for pa := memlayout.PhysAddr(0); pa < memlayout.MemSizePhysical; pa += memlayout.PageSize {
		if !memlayout.Allocatable(pa) {
			continue
		}
		if t.entries[pa.FrameNumber()].refcount == 0 {
			n++
		}
	}
	return n
}
