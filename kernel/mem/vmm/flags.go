// Package vmm implements the virtual memory manager: a 4-level x86-64 page
// table walker/builder addressed through the kernel's identity mapping of
// physical memory, plus the Region/AddressSpace bookkeeping built on top of
// it.
package vmm

import "nucleus/kernel/mem"

// PageFlags are the bits of a page table entry that are not part of the
// physical address it encodes.
type PageFlags uint64

// Page table entry flags, as defined by the x86-64 paging structures.
const (
	FlagPresent        PageFlags = 1 << 0
	FlagWritable       PageFlags = 1 << 1
	FlagUserAccessible PageFlags = 1 << 2
	FlagHugePage       PageFlags = 1 << 7
	FlagGlobal         PageFlags = 1 << 8
	FlagNoExecute      PageFlags = 1 << 63

	flagsMask = FlagPresent | FlagWritable | FlagUserAccessible | FlagHugePage | FlagGlobal | FlagNoExecute
)

// PageSize identifies the size of a mapping. Level 3 entries may map a
// 1 GiB huge page and level 2 entries a 2 MiB huge page; only level 1
// entries map an ordinary 4 KiB page.
type PageSize uint64

const (
	PageSize4KiB PageSize = PageSize(4 * mem.KiB)
	PageSize2MiB PageSize = PageSize(2 * mem.MiB)
	PageSize1GiB PageSize = PageSize(1 * mem.GiB)
)
