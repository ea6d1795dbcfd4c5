package pagetable

import (
	"testing"

	"github.com/weensyos/kernel/internal/frame"
	"github.com/weensyos/kernel/internal/memlayout"
)

// The canonical kernel mapping covers [0, ProcStartAddr), identical
// everywhere except CONSOLE_ADDR, which additionally carries U; address 0
// is never present.
func TestNewInstallsCanonicalKernelMapping(t *testing.T) {
	alloc := frame.New()
	as, err := New(alloc)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if _, _, present := as.Lookup(0); present {
		t.Fatal("address 0 must never be present")
	}

	for va := memlayout.VirtAddr(memlayout.PageSize); va < memlayout.ProcStartAddr; va += memlayout.PageSize {
		pa, perm, present := as.Lookup(va)
		if !present {
			t.Fatalf("kernel page %#x missing", va)
		}
		if memlayout.PhysAddr(va) != pa {
			t.Fatalf("kernel page %#x: pa = %#x, want identity mapping", va, pa)
		}
		if perm&PermP == 0 || perm&PermW == 0 {
			t.Fatalf("kernel page %#x: perm %v missing P|W", va, perm)
		}
		wantU := va == memlayout.ConsoleAddr
		if (perm&PermU != 0) != wantU {
			t.Fatalf("kernel page %#x: U bit = %v, want %v", va, perm&PermU != 0, wantU)
		}
	}
}

// Regression test for the shared-interior-node permission hazard: the
// console cell must be reachable with P|W|U even though it shares every
// interior node with ordinary kernel pages that carry no U bit at the leaf.
func TestConsoleCellReachableWithUserBit(t *testing.T) {
	alloc := frame.New()
	as, err := New(alloc)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	pa, perm, present := as.Lookup(memlayout.ConsoleAddr)
	if !present {
		t.Fatal("console cell not mapped")
	}
	if pa != memlayout.ConsoleAddr {
		t.Fatalf("got pa %#x, want identity %#x", pa, uint64(memlayout.ConsoleAddr))
	}
	if perm != PermP|PermW|PermU {
		t.Fatalf("got perm %v, want P|W|U", perm)
	}

	// Walk every interior node from the root to the console leaf and
	// confirm each one actually carries U, not just the leaf.
	idx := indices(memlayout.ConsoleAddr)
	table := tableAt(as.Root)
	for level := 0; level < 3; level++ {
		pa, perm, present := table[idx[level]].decode()
		if !present {
			t.Fatalf("interior node at level %d absent", level)
		}
		if perm&PermU == 0 {
			t.Fatalf("interior node at level %d missing U bit: %v", level, perm)
		}
		table = tableAt(pa)
	}
}

func TestMapAndLookupRoundTrip(t *testing.T) {
	alloc := frame.New()
	as, err := New(alloc)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	dataPA, err := alloc.Alloc()
	if err != nil {
		t.Fatalf("Alloc: %v", err)
	}
	va := memlayout.VirtAddr(memlayout.ProcStartAddr)
	if err := as.Map(alloc, va, dataPA, PermW|PermU); err != nil {
		t.Fatalf("Map: %v", err)
	}
	pa, perm, present := as.Lookup(va)
	if !present || pa != dataPA {
		t.Fatalf("got (pa=%#x, present=%v), want (pa=%#x, present=true)", pa, present, dataPA)
	}
	if perm != PermP|PermW|PermU {
		t.Fatalf("got perm %v, want P|W|U", perm)
	}
}

func TestLookupAbsentReturnsNotPresent(t *testing.T) {
	alloc := frame.New()
	as, err := New(alloc)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, _, present := as.Lookup(memlayout.ProcStartAddr); present {
		t.Fatal("unmapped user address reported present")
	}
}

func TestWalkReportsAbsentSlotsWithoutTreatingThemAsReal(t *testing.T) {
	alloc := frame.New()
	as, err := New(alloc)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	seenAbsent := false
	as.Walk(memlayout.ProcStartAddr, memlayout.ProcStartAddr+4*memlayout.PageSize, func(va memlayout.VirtAddr, pa memlayout.PhysAddr, perm Perm, present bool) {
		if !present {
			seenAbsent = true
		}
	})
	if !seenAbsent {
		t.Fatal("expected at least one absent slot in an unmapped user range")
	}
}

func TestTeardownFreesInteriorAndRoot(t *testing.T) {
	alloc := frame.New()
	before := alloc.FreeCount()
	as, err := New(alloc)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if after := alloc.FreeCount(); after >= before {
		t.Fatalf("got %d free right after New, want fewer than %d (some frames consumed)", after, before)
	}
	as.Teardown(alloc)
	if got := alloc.FreeCount(); got != before {
		t.Fatalf("got %d free after teardown, want %d (all frames released)", got, before)
	}
}

func TestInteriorVisitsEveryNonRootNode(t *testing.T) {
	alloc := frame.New()
	as, err := New(alloc)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	count := 0
	as.Interior(func(pa memlayout.PhysAddr) { count++ })
	if count == 0 {
		t.Fatal("expected at least one interior node for a populated kernel range")
	}
}
