package memlayout

import "testing"

func TestAllocatableBoundaries(t *testing.T) {
	cases := []struct {
		pa   PhysAddr
		want bool
	}{
		{0, false},
		{ProcStartAddr - 1, false},
		{ProcStartAddr, true},
		{MemSizePhysical - PageSize, true},
		{MemSizePhysical, false},
	}
	for _, c := range cases {
		if got := Allocatable(c.pa); got != c.want {
			t.Errorf("Allocatable(%#x) = %v, want %v", c.pa, got, c.want)
		}
	}
}

func TestAlignDown(t *testing.T) {
	if got := AlignDown(ProcStartAddr + 17); got != ProcStartAddr {
		t.Errorf("AlignDown(ProcStartAddr+17) = %#x, want %#x", got, uint64(ProcStartAddr))
	}
	if got := AlignDown(ProcStartAddr); got != ProcStartAddr {
		t.Errorf("AlignDown(ProcStartAddr) = %#x, want %#x", got, uint64(ProcStartAddr))
	}
}

func TestFrameNumber(t *testing.T) {
	if got := PhysAddr(ProcStartAddr).FrameNumber(); got != ProcStartAddr/PageSize {
		t.Errorf("FrameNumber = %d, want %d", got, ProcStartAddr/PageSize)
	}
}
