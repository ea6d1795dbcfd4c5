// Package pagetable implements the 4-level x86-64-shaped radix tree:
// per-process address spaces built over frames obtained from package
// frame, with the canonical kernel identity mapping mirrored into every
// process below ProcStartAddr.
//
// Because this module runs as an ordinary Go process rather than on real
// hardware, a page-table node is a [512]PTE array reinterpreted in place
// over a frame.Table frame — the same trick mem.Pg2bytes/pg2pmap in the
// reference Biscuit kernel use to view one physical page as a Pg_t, a
// Bytepg_t, or a Pmap_t. The leaf/interior walking shape is grounded on
// mit-pdos-biscuit's biscuit/src/vm/pmap.go (pmap_pgtbl, _instpg, pmfree)
// and on google-gvisor's pkg/ring0/pagetables/walker_amd64.go, which walks
// the same four levels for a real x86-64 MMU.
package pagetable

import (
	"errors"
	"unsafe"

	"github.com/weensyos/kernel/internal/frame"
	"github.com/weensyos/kernel/internal/memlayout"
)

// ErrOutOfMemory is returned when building or extending an address space
// cannot obtain an interior frame from the allocator.
var ErrOutOfMemory = errors.New("pagetable: out of memory")

// Perm holds the hardware leaf permission bits: present, writable, user.
type Perm uint8

const (
	PermP Perm = 1 << iota // present
	PermW                  // writable
	PermU                  // user-accessible
)

// entriesPerTable is the fan-out of every level of the tree (512 entries of
// 8 bytes fill exactly one 4 KiB page).
const entriesPerTable = memlayout.PageSize / 8

// pte packs a physical frame address and permission bits into one 64-bit
// hardware-shaped entry, exactly like Biscuit's Pa_t-valued Pmap_t slots.
type pte uint64

const addrMask = pte(^uint64(0)) &^ 0xfff

func encode(pa memlayout.PhysAddr, perm Perm) pte {
	return pte(pa)&addrMask | pte(perm)
}

func (e pte) decode() (memlayout.PhysAddr, Perm, bool) {
	perm := Perm(e & 0x7)
	present := perm&PermP != 0
	return memlayout.PhysAddr(e & addrMask), perm, present
}

// Table is one node of the 4-level tree: 512 hardware-shaped entries
// occupying exactly one physical frame.
type Table [entriesPerTable]pte

func tableAt(pa memlayout.PhysAddr) *Table {
	return (*Table)(unsafe.Pointer(&memlayout.Arena[pa]))
}

// newNode allocates an interior (or root) frame and explicitly zeroes it —
// independent of the allocator's own 0xCC trap fill, which happens to also
// read as "not present" when reinterpreted as PTEs, but correctness here
// does not lean on that coincidence.
func newNode(alloc *frame.Table) (memlayout.PhysAddr, *Table, error) {
	pa, err := alloc.Alloc()
	if err != nil {
		return 0, nil, ErrOutOfMemory
	}
	t := tableAt(pa)
	*t = Table{}
	return pa, t, nil
}

// indices splits a virtual address into its four 9-bit page-table indices,
// most significant (PML4) first.
func indices(va memlayout.VirtAddr) [4]int {
	v := uint64(va)
	return [4]int{
		int((v >> 39) & 0x1ff),
		int((v >> 30) & 0x1ff),
		int((v >> 21) & 0x1ff),
		int((v >> 12) & 0x1ff),
	}
}

// kernelMapping returns the canonical kernel policy for a single page
// within [0, ProcStartAddr): present and writable everywhere, additionally
// user-accessible at ConsoleAddr (the one frame every process may touch),
// and an explicit present-cleared sentinel at address 0 to catch null
// dereferences.
func kernelMapping(va memlayout.VirtAddr) (perm Perm, present bool) {
	switch {
	case va == 0:
		return 0, false
	case va == memlayout.ConsoleAddr:
		return PermP | PermW | PermU, true
	default:
		return PermP | PermW, true
	}
}

// AddressSpace is a process's page-table tree, identified by its root
// frame. The root is owned by whichever process descriptor references it;
// Teardown must be called exactly once before the frame is reused.
type AddressSpace struct {
	Root memlayout.PhysAddr
}

// New builds a fresh address space: a zeroed root, with the canonical
// kernel mapping installed over [0, ProcStartAddr). On failure, every
// frame already allocated for this address space is released before
// returning ErrOutOfMemory.
func New(alloc *frame.Table) (*AddressSpace, error) {
	rootPA, _, err := newNode(alloc)
	if err != nil {
		return nil, err
	}
	as := &AddressSpace{Root: rootPA}
	for va := memlayout.VirtAddr(0); va < memlayout.ProcStartAddr; va += memlayout.PageSize {
		perm, present := kernelMapping(va)
		if !present {
			continue
		}
		if err := as.Map(alloc, va, memlayout.PhysAddr(va), perm); err != nil {
			as.Teardown(alloc)
			return nil, ErrOutOfMemory
		}
	}
	return as, nil
}

// interiorPerm is installed on every interior (non-leaf) entry, regardless
// of what permission the eventual leaf carries. Access control is enforced
// at the leaf alone; this sidesteps an ordering hazard where two leaves
// under the same PT (e.g. a kernel page and ConsoleAddr, which share one
// PT because the whole kernel range fits in a single 2 MiB PT span) would
// otherwise race to set the shared PDPT/PD entry's permission bits, and a
// real MMU ANDs permissions down the walk.
const interiorPerm = PermP | PermW | PermU

// walk returns the leaf table and slot index for va, creating interior
// nodes along the way if create is true and they don't yet exist. It
// returns (nil, 0, nil) if create is false and any level of the path is
// absent.
func walk(root memlayout.PhysAddr, alloc *frame.Table, va memlayout.VirtAddr, create bool) (*Table, int, error) {
	idx := indices(va)
	table := tableAt(root)
	for level := 0; level < 3; level++ {
		i := idx[level]
		pa, _, present := table[i].decode()
		if !present {
			if !create {
				return nil, 0, nil
			}
			newPA, newT, err := newNode(alloc)
			if err != nil {
				return nil, 0, err
			}
			table[i] = encode(newPA, interiorPerm)
			table = newT
			continue
		}
		table = tableAt(pa)
	}
	return table, idx[3], nil
}

// Map installs a leaf mapping at va, allocating any missing interior nodes
// via alloc.
func (as *AddressSpace) Map(alloc *frame.Table, va memlayout.VirtAddr, pa memlayout.PhysAddr, perm Perm) error {
	leaf, slot, err := walk(as.Root, alloc, va, true)
	if err != nil {
		return err
	}
	leaf[slot] = encode(pa, perm|PermP)
	return nil
}

// Lookup returns the mapping installed at va, if any.
func (as *AddressSpace) Lookup(va memlayout.VirtAddr) (pa memlayout.PhysAddr, perm Perm, present bool) {
	leaf, slot, err := walk(as.Root, nil, va, false)
	if err != nil || leaf == nil {
		return 0, 0, false
	}
	return leaf[slot].decode()
}

// Walk invokes fn once for every page-aligned virtual address in
// [start, end), reporting whether a leaf mapping is present there and, if
// so, its physical address and permissions. Absent slots are reported with
// present=false and an unspecified pa/perm that callers must never treat as
// a real frame.
func (as *AddressSpace) Walk(start, end memlayout.VirtAddr, fn func(va memlayout.VirtAddr, pa memlayout.PhysAddr, perm Perm, present bool)) {
	for va := start; va < end; va += memlayout.PageSize {
		pa, perm, present := as.Lookup(va)
		fn(va, pa, perm, present)
	}
}

// Interior invokes fn once for every non-root page-table node (PDPT, PD,
// and PT frames) reachable from the root — the "interior frames" that
// teardown must free separately from both leaf data and the root.
func (as *AddressSpace) Interior(fn func(pa memlayout.PhysAddr)) {
	walkInterior(tableAt(as.Root), 3, fn)
}

// walkInterior recurses through table levels. childDistance counts how
// many more table-hops separate this table's children from leaf data: 3 at
// the root (PML4 -> PDPT -> PD -> PT -> leaf), decreasing by one per level,
// reaching 0 once a table's children are themselves leaf data (a PT's
// entries), at which point there is nothing further to report or recurse
// into.
func walkInterior(t *Table, childDistance int, fn func(pa memlayout.PhysAddr)) {
	if childDistance == 0 {
		return
	}
	for _, e := range t {
		pa, _, present := e.decode()
		if !present {
			continue
		}
		fn(pa)
		walkInterior(tableAt(pa), childDistance-1, fn)
	}
}

// Teardown frees every interior frame and the root via alloc. It does not
// touch leaf (user data) frames — callers that need leaf refcounts dropped
// first during exit must do so via Walk before calling Teardown.
// Teardown is safe to call on a partially built address space: any
// interior frame not yet allocated was never installed and so is never
// visited. It is not idempotent: a second call frees the same frames again.
func (as *AddressSpace) Teardown(alloc *frame.Table) {
	as.Interior(func(pa memlayout.PhysAddr) {
		alloc.Free(pa)
	})
	alloc.Free(as.Root)
}
