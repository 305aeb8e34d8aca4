package pmm

import (
	"nucleus/kernel/mem"
	"testing"
	"unsafe"
)

// sliceMemoryMap adapts a []mem.Block to the MemoryMap iterator contract.
type sliceMemoryMap struct {
	blocks []mem.Block
	pos    int
}

func (m *sliceMemoryMap) Next() (mem.Block, bool) {
	if m.pos >= len(m.blocks) {
		return mem.Block{}, false
	}
	b := m.blocks[m.pos]
	m.pos++
	return b, true
}

// backingIdentity returns an IdentityMapping that treats the supplied Go
// byte slice as if it were a block of physical memory starting at physical
// address 0: Translate(p) == &buf[p]. This is the same trick gopher-os uses
// in its pmm/vmm tests (real heap memory standing in for physical frames).
func backingIdentity(buf []byte) mem.IdentityMapping {
	return mem.IdentityMapping{Offset: uintptr(unsafe.Pointer(&buf[0]))}
}

func TestFrameAllocatorLIFO(t *testing.T) {
	// Three frames worth of backing memory.
	buf := make([]byte, 3*int(mem.FrameSize))
	identity := backingIdentity(buf)

	mm := &sliceMemoryMap{blocks: []mem.Block{{StartAddress: 0, Size: mem.Size(len(buf))}}}
	alloc := New(mm, identity, mem.FrameSize)

	var got []uintptr
	for i := 0; i < 3; i++ {
		f, err := alloc.Alloc()
		if err != nil {
			t.Fatalf("unexpected error on alloc %d: %v", i, err)
		}
		got = append(got, f)
	}

	// LIFO: frames come back in reverse of push order, i.e. highest
	// address first since New() pushes them low-to-high.
	exp := []uintptr{2 * uintptr(mem.FrameSize), uintptr(mem.FrameSize), 0}
	for i := range exp {
		if got[i] != exp[i] {
			t.Errorf("frame %d: expected %#x; got %#x", i, exp[i], got[i])
		}
	}

	if _, err := alloc.Alloc(); err != ErrOutOfPhysicalMemory {
		t.Errorf("expected ErrOutOfPhysicalMemory on exhaustion; got %v", err)
	}
}

func TestFrameAllocatorDeallocThenAllocIsIdentity(t *testing.T) {
	buf := make([]byte, 2*int(mem.FrameSize))
	identity := backingIdentity(buf)
	mm := &sliceMemoryMap{blocks: []mem.Block{{StartAddress: 0, Size: mem.Size(len(buf))}}}
	alloc := New(mm, identity, mem.FrameSize)

	f, err := alloc.Alloc()
	if err != nil {
		t.Fatal(err)
	}
	alloc.Dealloc(f)

	got, err := alloc.Alloc()
	if err != nil {
		t.Fatal(err)
	}
	if got != f {
		t.Errorf("expected dealloc(alloc()) to return the same frame %#x; got %#x", f, got)
	}
}

func TestFrameAllocatorAlignsBlocks(t *testing.T) {
	buf := make([]byte, 3*int(mem.FrameSize))
	identity := backingIdentity(buf)

	// Misaligned block [1, 0x3000): its start rounds up to 0x1000 and its
	// end is already frame-aligned, so frame 0 is dropped and frames 1 and
	// 2 remain usable.
	mm := &sliceMemoryMap{blocks: []mem.Block{{StartAddress: 1, Size: mem.Size(len(buf)) - 1}}}
	alloc := New(mm, identity, mem.FrameSize)

	count := 0
	for {
		if _, err := alloc.Alloc(); err != nil {
			break
		}
		count++
	}

	if count != 2 {
		t.Errorf("expected exactly 2 usable frames after alignment; got %d", count)
	}
}
