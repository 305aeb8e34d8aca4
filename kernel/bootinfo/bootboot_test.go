package bootinfo

import (
	"testing"
	"unsafe"
)

func TestMemoryMapEntryTypeAndLength(t *testing.T) {
	entry := MemoryMapEntry{Ptr: 0x100000, Size: 0x2000 | uint64(MMapTypeFree)}
	if entry.Type() != MMapTypeFree {
		t.Errorf("expected MMapTypeFree; got %v", entry.Type())
	}
	if !entry.IsFree() {
		t.Error("expected IsFree to be true")
	}
	if entry.Length() != 0x2000 {
		t.Errorf("expected length 0x2000; got %#x", entry.Length())
	}
}

func TestMemoryMapEntryUsedIsNotFree(t *testing.T) {
	entry := MemoryMapEntry{Ptr: 0, Size: 0x1000 | uint64(MMapTypeUsed)}
	if entry.IsFree() {
		t.Error("expected a used entry to report IsFree() == false")
	}
}

func TestIteratorSkipsNonFreeEntries(t *testing.T) {
	entries := []MemoryMapEntry{
		{Ptr: 0x0, Size: 0x1000 | uint64(MMapTypeUsed)},
		{Ptr: 0x1000, Size: 0x4000 | uint64(MMapTypeFree)},
		{Ptr: 0x10000, Size: 0x1000 | uint64(MMapTypeACPI)},
		{Ptr: 0x20000, Size: 0x8000 | uint64(MMapTypeFree)},
	}

	it := &Iterator{entries: entries}

	block, ok := it.Next()
	if !ok || block.StartAddress != 0x1000 || uint64(block.Size) != 0x4000 {
		t.Fatalf("expected first free block at 0x1000 size 0x4000; got %+v ok=%v", block, ok)
	}

	block, ok = it.Next()
	if !ok || block.StartAddress != 0x20000 || uint64(block.Size) != 0x8000 {
		t.Fatalf("expected second free block at 0x20000 size 0x8000; got %+v ok=%v", block, ok)
	}

	if _, ok = it.Next(); ok {
		t.Fatal("expected iterator to be exhausted")
	}
}

func TestHeaderMMapEntries(t *testing.T) {
	type layout struct {
		hdr     Header
		entries [2]MemoryMapEntry
	}
	var l layout
	l.hdr.Size = uint32(unsafe.Sizeof(Header{}) + 2*unsafe.Sizeof(MemoryMapEntry{}))
	l.entries[0] = MemoryMapEntry{Ptr: 0x1000, Size: 0x1000 | uint64(MMapTypeFree)}
	l.entries[1] = MemoryMapEntry{Ptr: 0x2000, Size: 0x2000 | uint64(MMapTypeUsed)}

	got := l.hdr.MMapEntries()
	if len(got) != 2 {
		t.Fatalf("expected 2 entries; got %d", len(got))
	}
	if got[0] != l.entries[0] || got[1] != l.entries[1] {
		t.Errorf("unexpected entries: %+v", got)
	}
}
