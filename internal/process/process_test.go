package process

import (
	"testing"

	"github.com/weensyos/kernel/internal/frame"
	"github.com/weensyos/kernel/internal/memlayout"
	"github.com/weensyos/kernel/internal/pagetable"
)

func helloImage() *StaticImage {
	data := []byte{0x90, 0x90, 0x90, 0xcc} // nop nop nop int3
	return &StaticImage{
		ImgName: "hello",
		EntryPt: memlayout.ProcStartAddr,
		Segs: []Segment{
			{VA: memlayout.ProcStartAddr, Size: memlayout.PageSize, Data: data, DataSize: uint64(len(data)), Writable: false},
			{VA: memlayout.ProcStartAddr + memlayout.PageSize, Size: memlayout.PageSize, DataSize: 0, Writable: true},
		},
	}
}

func TestLoadMapsSegmentsAndStack(t *testing.T) {
	frames := frame.New()
	pt := NewTable()
	Load(pt, frames, 1, helloImage())

	d := pt.Get(1)
	if d.State != StateRunnable {
		t.Fatalf("got state %v, want RUNNABLE", d.State)
	}
	if d.Regs.RIP != memlayout.ProcStartAddr {
		t.Fatalf("got RIP %#x, want %#x", d.Regs.RIP, memlayout.ProcStartAddr)
	}

	pa, perm, present := d.AS.Lookup(memlayout.ProcStartAddr)
	if !present {
		t.Fatal("text segment not mapped")
	}
	if perm&pagetable.PermW != 0 {
		t.Fatal("read-only segment mapped writable")
	}
	if got := memlayout.Frame(pa)[:4]; got[0] != 0x90 || got[3] != 0xcc {
		t.Fatalf("segment bytes not copied: %v", got)
	}

	_, bssPerm, bssPresent := d.AS.Lookup(memlayout.ProcStartAddr + memlayout.PageSize)
	if !bssPresent || bssPerm&pagetable.PermW == 0 {
		t.Fatal("bss segment not mapped writable")
	}
	bssPA, _, _ := d.AS.Lookup(memlayout.ProcStartAddr + memlayout.PageSize)
	for _, b := range memlayout.Frame(bssPA) {
		if b != 0 {
			t.Fatal("bss segment not zero-filled before data copy")
		}
	}

	stackVA := memlayout.VirtAddr(memlayout.MemSizeVirtual - memlayout.PageSize)
	if _, _, present := d.AS.Lookup(stackVA); !present {
		t.Fatal("stack page not mapped")
	}
	if d.Regs.RSP != memlayout.MemSizeVirtual {
		t.Fatalf("got RSP %#x, want %#x", d.Regs.RSP, memlayout.MemSizeVirtual)
	}
}

func TestForkSharesReadOnlyAndCopiesWritable(t *testing.T) {
	frames := frame.New()
	pt := NewTable()
	Load(pt, frames, 1, helloImage())

	childPID, err := Fork(pt, frames, 1)
	if err != nil {
		t.Fatalf("Fork: %v", err)
	}

	parent := pt.Get(1)
	child := pt.Get(childPID)
	if child.State != StateRunnable {
		t.Fatalf("got child state %v, want RUNNABLE", child.State)
	}
	if child.Regs.RAX != 0 {
		t.Fatalf("child RAX = %d, want 0", child.Regs.RAX)
	}

	roPA, _, _ := parent.AS.Lookup(memlayout.ProcStartAddr)
	childRoPA, _, _ := child.AS.Lookup(memlayout.ProcStartAddr)
	if roPA != childRoPA {
		t.Fatalf("read-only page not shared: parent %#x child %#x", roPA, childRoPA)
	}
	if frames.Refcount(roPA) != 2 {
		t.Fatalf("got refcount %d for shared read-only page, want 2", frames.Refcount(roPA))
	}

	rwVA := memlayout.VirtAddr(memlayout.ProcStartAddr + memlayout.PageSize)
	rwPA, _, _ := parent.AS.Lookup(rwVA)
	childRwPA, _, _ := child.AS.Lookup(rwVA)
	if rwPA == childRwPA {
		t.Fatal("writable page shared instead of copied")
	}

	consolePA, _, _ := parent.AS.Lookup(memlayout.ConsoleAddr)
	childConsolePA, _, _ := child.AS.Lookup(memlayout.ConsoleAddr)
	if consolePA != childConsolePA {
		t.Fatal("console cell mapping diverged between parent and child")
	}
}

func TestForkOutOfMemoryRollsBackChild(t *testing.T) {
	frames := frame.New()
	pt := NewTable()
	Load(pt, frames, 1, helloImage())

	for {
		if _, err := frames.Alloc(); err != nil {
			break
		}
	}

	_, err := Fork(pt, frames, 1)
	if err == nil {
		t.Fatal("expected Fork to fail when frames are exhausted")
	}

	child := pt.Get(2)
	if child.State != StateFree {
		t.Fatalf("got child state %v after failed fork, want FREE", child.State)
	}
}

func TestExitReleasesUserFramesNotConsole(t *testing.T) {
	frames := frame.New()
	pt := NewTable()
	Load(pt, frames, 1, helloImage())

	roPA, _, _ := pt.Get(1).AS.Lookup(memlayout.ProcStartAddr)
	consolePA, _, _ := pt.Get(1).AS.Lookup(memlayout.ConsoleAddr)
	consoleRefBefore := frames.Refcount(consolePA)

	Exit(pt, frames, 1)

	if frames.Refcount(roPA) != 0 {
		t.Fatalf("got refcount %d for exited process's page, want 0", frames.Refcount(roPA))
	}
	if frames.Refcount(consolePA) != consoleRefBefore {
		t.Fatal("exit touched the shared console cell's refcount")
	}
	if pt.Get(1).State != StateFree {
		t.Fatalf("got state %v after exit, want FREE", pt.Get(1).State)
	}
}

func TestPageAllocRejectsMisalignedAndOutOfRange(t *testing.T) {
	frames := frame.New()
	as, err := pagetable.New(frames)
	if err != nil {
		t.Fatalf("pagetable.New: %v", err)
	}

	if got := PageAlloc(as, frames, memlayout.ProcStartAddr+1); got != -1 {
		t.Fatalf("got %d for misaligned address, want -1", got)
	}
	if got := PageAlloc(as, frames, 0); got != -1 {
		t.Fatalf("got %d for address below ProcStartAddr, want -1", got)
	}
	if got := PageAlloc(as, frames, memlayout.MemSizeVirtual); got != -1 {
		t.Fatalf("got %d for address at MemSizeVirtual, want -1", got)
	}
	if got := PageAlloc(as, frames, memlayout.ProcStartAddr); got != 0 {
		t.Fatalf("got %d for valid allocation, want 0", got)
	}
}
