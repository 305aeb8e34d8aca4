package vmm

// VirtualAddress is a canonical x86-64 virtual address together with the
// accessors needed to walk a 4-level page table.
type VirtualAddress uintptr

const (
	levelShift4    = 39
	levelShift3    = 30
	levelShift2    = 21
	levelShift1    = 12
	levelIndexMask = 0x1FF
)

// IndexLevel4 returns the index into the top-level (PML4) page table.
func (a VirtualAddress) IndexLevel4() uint16 { return uint16((a >> levelShift4) & levelIndexMask) }

// IndexLevel3 returns the index into the level-3 (PDPT) page table.
func (a VirtualAddress) IndexLevel3() uint16 { return uint16((a >> levelShift3) & levelIndexMask) }

// IndexLevel2 returns the index into the level-2 (PD) page table.
func (a VirtualAddress) IndexLevel2() uint16 { return uint16((a >> levelShift2) & levelIndexMask) }

// IndexLevel1 returns the index into the level-1 (PT) page table.
func (a VirtualAddress) IndexLevel1() uint16 { return uint16((a >> levelShift1) & levelIndexMask) }
