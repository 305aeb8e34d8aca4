// Package bootinfo describes the contract the bootloader hands the kernel
// at entry: a BOOTBOOT-style header carrying framebuffer geometry and the
// initrd location, followed immediately in memory by the physical memory
// map. This package only reads that header; it never owns it, since it
// lives in memory the bootloader itself set up before jumping to the
// kernel's entry point.
package bootinfo

import (
	"unsafe"

	"nucleus/kernel/mem"
)

// MMapEntryType classifies a MemoryMapEntry.
type MMapEntryType uint8

const (
	// MMapTypeUsed marks memory already in use (by the kernel image,
	// the bootloader structures, or reserved hardware ranges).
	MMapTypeUsed MMapEntryType = iota
	// MMapTypeFree marks memory the kernel is free to hand out via its
	// frame allocator.
	MMapTypeFree
	// MMapTypeACPI marks ACPI reclaimable memory.
	MMapTypeACPI
	// MMapTypeMMIO marks a memory-mapped I/O region.
	MMapTypeMMIO
)

// typeMask and the low 4 bits of Size carry the entry's type, BOOTBOOT-style
// (the real size is Size with those bits cleared).
const typeMask = 0xF

// MemoryMapEntry describes one physical memory region reported by the
// bootloader.
type MemoryMapEntry struct {
	Ptr  uint64
	Size uint64
}

// Type extracts the entry's type from the low bits of Size.
func (e MemoryMapEntry) Type() MMapEntryType {
	return MMapEntryType(e.Size & typeMask)
}

// Length returns the entry's size in bytes, with the type bits masked off.
func (e MemoryMapEntry) Length() uint64 {
	return e.Size &^ typeMask
}

// IsFree reports whether this region is available for the frame allocator
// to hand out.
func (e MemoryMapEntry) IsFree() bool {
	return e.Type() == MMapTypeFree
}

// Header mirrors the fixed-size portion of the BOOTBOOT information
// structure the bootloader places at a well-known physical address before
// jumping to the kernel entry point. The memory map itself follows
// immediately after this header as a trailing array of MemoryMapEntry
// values, which is why Header is not declared with a trailing Go slice
// field: MMapEntries below recovers it via pointer arithmetic instead.
type Header struct {
	Magic          [4]byte
	Size           uint32
	Protocol       uint8
	FbType         uint8
	FbScanline     uint32
	FbWidth        uint32
	FbHeight       uint32
	FbPtr          uint64
	FbSize         uint32
	AcpiPtr        uint64
	SmbiPtr        uint64
	EfiPtr         uint64
	MpPtr          uint64
	InitrdPtr      uint64
	InitrdSize     uint64
	BspID          uint16
	Timezone       int16
	DateTime       [8]byte
}

const headerSize = unsafe.Sizeof(Header{})

// MMapEntries returns a view over the memory map entries trailing the
// header, computed from Header.Size the same way the bootloader lays them
// out: every byte past the fixed header, in MemoryMapEntry-sized chunks.
func (h *Header) MMapEntries() []MemoryMapEntry {
	count := (uintptr(h.Size) - headerSize) / unsafe.Sizeof(MemoryMapEntry{})
	base := unsafe.Add(unsafe.Pointer(h), headerSize)
	return unsafe.Slice((*MemoryMapEntry)(base), count)
}

// Iterator walks only the free regions of a Header's memory map, in the
// narrow Next()-based shape the frame allocator needs (spec §9's note on
// type-erased streams/iterators: the allocator should see nothing wider
// than this).
type Iterator struct {
	entries []MemoryMapEntry
	index   int
}

// NewIterator builds an Iterator over h's memory map.
func NewIterator(h *Header) *Iterator {
	return &Iterator{entries: h.MMapEntries()}
}

// Next returns the next free memory block in the map, skipping any entry
// that is not MMapTypeFree, and false once the map is exhausted. This is
// the pmm.MemoryMap contract the frame allocator is built against.
func (it *Iterator) Next() (mem.Block, bool) {
	for it.index < len(it.entries) {
		entry := it.entries[it.index]
		it.index++
		if entry.IsFree() {
			return mem.Block{StartAddress: uintptr(entry.Ptr), Size: mem.Size(entry.Length())}, true
		}
	}
	return mem.Block{}, false
}
