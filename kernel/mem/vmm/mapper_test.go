package vmm

import (
	"nucleus/kernel/mem"
	"nucleus/kernel/mem/pmm"
	"testing"
	"unsafe"
)

// sliceMemoryMap adapts a single mem.Block into a pmm.MemoryMap, matching
// the one used in the pmm package's own tests.
type sliceMemoryMap struct {
	block mem.Block
	done  bool
}

func (m *sliceMemoryMap) Next() (mem.Block, bool) {
	if m.done {
		return mem.Block{}, false
	}
	m.done = true
	return m.block, true
}

// newTestMapper builds a PageMapper backed by nFrames worth of real Go heap
// memory standing in for physical RAM, with physical address 0 at the start
// of the buffer, the same way the pmm package's own tests do.
func newTestMapper(t *testing.T, nFrames int) (*PageMapper, mem.IdentityMapping) {
	t.Helper()
	buf := make([]byte, nFrames*int(mem.FrameSize))
	identity := mem.IdentityMapping{Offset: uintptr(unsafe.Pointer(&buf[0]))} //nolint:govet
	mm := &sliceMemoryMap{block: mem.Block{StartAddress: 0, Size: mem.Size(len(buf))}}
	frames := pmm.New(mm, identity, mem.FrameSize)
	return NewPageMapper(identity, frames), identity
}

func TestPageMapperMapAndRead(t *testing.T) {
	mapper, _ := newTestMapper(t, 8)
	root, err := mapper.CreatePageTable()
	if err != nil {
		t.Fatal(err)
	}

	frame, err := mapper.Allocate()
	if err != nil {
		t.Fatal(err)
	}

	const virtualAddress = VirtualAddress(0x0000_1234_5000)
	if err := mapper.Map(root, virtualAddress, frame.PhysicalAddress, PageSize4KiB, FlagPresent|FlagWritable); err != nil {
		t.Fatalf("map failed: %v", err)
	}

	got, ok := mapper.Read(root, virtualAddress)
	if !ok {
		t.Fatal("expected mapping to be present")
	}
	if got != frame.PhysicalAddress {
		t.Errorf("expected physical address %#x; got %#x", frame.PhysicalAddress, got)
	}

	if err := mapper.Map(root, virtualAddress, frame.PhysicalAddress, PageSize4KiB, FlagPresent); err != ErrAlreadyMapped {
		t.Errorf("expected ErrAlreadyMapped on remap; got %v", err)
	}
}

func TestPageMapperReadCombinesPageOffset(t *testing.T) {
	mapper, _ := newTestMapper(t, 8)
	root, err := mapper.CreatePageTable()
	if err != nil {
		t.Fatal(err)
	}

	frame, err := mapper.Allocate()
	if err != nil {
		t.Fatal(err)
	}

	const virtualAddress = VirtualAddress(0x1000)
	if err := mapper.Map(root, virtualAddress, frame.PhysicalAddress, PageSize4KiB, FlagPresent|FlagWritable); err != nil {
		t.Fatalf("map failed: %v", err)
	}

	const queryAddress = VirtualAddress(0x1123)
	got, ok := mapper.Read(root, queryAddress)
	if !ok {
		t.Fatal("expected mapping to be present")
	}
	if want := frame.PhysicalAddress + 0x123; got != want {
		t.Errorf("expected %#x; got %#x", want, got)
	}
}

func TestPageMapperHugePageMapAndRead(t *testing.T) {
	mapper, _ := newTestMapper(t, 8)
	root, err := mapper.CreatePageTable()
	if err != nil {
		t.Fatal(err)
	}

	const virtualAddress = VirtualAddress(0x4000_0000)
	const physicalAddress = uintptr(0x1_0000_0000)
	if err := mapper.Map(root, virtualAddress, physicalAddress, PageSize1GiB, FlagPresent); err != nil {
		t.Fatalf("map failed: %v", err)
	}

	const queryAddress = VirtualAddress(0x4000_1234)
	got, ok := mapper.Read(root, queryAddress)
	if !ok {
		t.Fatal("expected mapping to be present")
	}
	if want := physicalAddress + 0x1234; got != want {
		t.Errorf("expected %#x; got %#x", want, got)
	}

	if err := mapper.Map(root, virtualAddress, physicalAddress, PageSize1GiB, FlagPresent); err != ErrAlreadyMapped {
		t.Errorf("expected ErrAlreadyMapped on remap; got %v", err)
	}
}

func TestPageMapperUnmapAndDeallocate(t *testing.T) {
	mapper, _ := newTestMapper(t, 8)
	root, err := mapper.CreatePageTable()
	if err != nil {
		t.Fatal(err)
	}

	const virtualAddress = VirtualAddress(0x2000)
	if err := mapper.AllocateAndMap(root, virtualAddress, FlagPresent|FlagWritable); err != nil {
		t.Fatal(err)
	}

	if _, ok := mapper.Read(root, virtualAddress); !ok {
		t.Fatal("expected mapping to be present before unmap")
	}

	block, ok := mapper.UnmapAndDeallocate(root, virtualAddress)
	if !ok {
		t.Fatal("expected UnmapAndDeallocate to report success")
	}
	if block.Size != mem.Size(PageSize4KiB) {
		t.Errorf("expected unmapped block size %#x; got %#x", PageSize4KiB, block.Size)
	}

	if _, ok := mapper.Read(root, virtualAddress); ok {
		t.Error("expected mapping to be gone after unmap")
	}
}

func TestPageMapperAllocateAndMapRange(t *testing.T) {
	mapper, _ := newTestMapper(t, 8)
	root, err := mapper.CreatePageTable()
	if err != nil {
		t.Fatal(err)
	}

	const start = VirtualAddress(0x10_0000)
	if err := mapper.AllocateAndMapRange(root, start, FlagPresent|FlagWritable, 4); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 4; i++ {
		addr := VirtualAddress(uintptr(start) + uintptr(i)*uintptr(PageSize4KiB))
		if _, ok := mapper.Read(root, addr); !ok {
			t.Errorf("page %d of range not mapped", i)
		}
	}

	freed := mapper.UnmapAndDeallocateRange(root, start, mem.Size(4*PageSize4KiB))
	if freed != mem.Size(4*PageSize4KiB) {
		t.Errorf("expected %d bytes freed; got %d", 4*PageSize4KiB, freed)
	}
}
