package kernel

import (
	"github.com/weensyos/kernel/internal/memlayout"
	"github.com/weensyos/kernel/internal/process"
)

// demoText is the loadable text segment shared by every built-in demo
// image: three no-op bytes followed by a trap instruction, standing in
// for the tiny assembly programs (p-allocator.S and friends) the original
// WeensyOS ships as its default process images.
var demoText = []byte{0x90, 0x90, 0x90, 0xcc}

// demoImage returns the StaticImage for one of kconfig.DefaultImages (or a
// custom single name): one read-only text page at ProcStartAddr and one
// writable data page immediately after it, matching the simple
// two-segment layout every p-allocator*.S program links to.
func demoImage(name string) *process.StaticImage {
	const (
		textVA = memlayout.ProcStartAddr
		dataVA = memlayout.ProcStartAddr + memlayout.PageSize
	)
	return &process.StaticImage{
		ImgName: name,
		EntryPt: textVA,
		Segs: []process.Segment{
			{VA: textVA, Size: memlayout.PageSize, Data: demoText, DataSize: uint64(len(demoText)), Writable: false},
			{VA: dataVA, Size: memlayout.PageSize, DataSize: 0, Writable: true},
		},
	}
}
