package vmm

import (
	"nucleus/kernel"
	"nucleus/kernel/mem"
	"testing"
)

func vaddr(a uintptr) *VirtualAddress {
	v := VirtualAddress(a)
	return &v
}

func TestAddressSpaceReserveRejectsOverlap(t *testing.T) {
	mapper, _ := newTestMapper(t, 16)
	as, err := NewAddressSpace(mapper, VirtualAddress(0), mem.Size(1*mem.MiB))
	if err != nil {
		t.Fatal(err)
	}

	if _, err := as.Reserve(vaddr(0x1000), mem.Size(4*uint64(PageSize4KiB)), FlagPresent|FlagWritable, PageSize4KiB); err != nil {
		t.Fatal(err)
	}

	if _, err := as.Reserve(vaddr(0x2000), mem.Size(PageSize4KiB), FlagPresent|FlagWritable, PageSize4KiB); err != ErrVirtualRangeInUse {
		t.Errorf("expected ErrVirtualRangeInUse for overlapping reservation; got %v", err)
	}

	// Adjacent, non-overlapping range should succeed.
	if _, err := as.Reserve(vaddr(0x5000), mem.Size(PageSize4KiB), FlagPresent|FlagWritable, PageSize4KiB); err != nil {
		t.Errorf("expected adjacent reservation to succeed; got %v", err)
	}
}

func TestAddressSpaceReserveAnywhere(t *testing.T) {
	mapper, _ := newTestMapper(t, 16)
	as, err := NewAddressSpace(mapper, VirtualAddress(0x1000), mem.Size(0x4000))
	if err != nil {
		t.Fatal(err)
	}

	first, err := as.Reserve(nil, mem.Size(PageSize4KiB), FlagPresent|FlagWritable, PageSize4KiB)
	if err != nil {
		t.Fatal(err)
	}
	if first.Start() != VirtualAddress(0x1000) {
		t.Errorf("expected first anywhere-reservation to land at the start of the range; got %#x", first.Start())
	}

	second, err := as.Reserve(nil, mem.Size(PageSize4KiB), FlagPresent|FlagWritable, PageSize4KiB)
	if err != nil {
		t.Fatal(err)
	}
	if second.Overlap(first) {
		t.Errorf("expected second anywhere-reservation to avoid the first")
	}
}

func TestAddressSpaceAllocateBacksEveryFrame(t *testing.T) {
	mapper, _ := newTestMapper(t, 16)
	as, err := NewAddressSpace(mapper, VirtualAddress(0x40_0000), mem.Size(1*mem.MiB))
	if err != nil {
		t.Fatal(err)
	}

	region, err := as.Allocate(vaddr(0x40_0000), mem.Size(3*uint64(PageSize4KiB)), FlagPresent|FlagWritable, PageSize4KiB)
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i < region.SizeInFrames(); i++ {
		addr := VirtualAddress(uintptr(region.Start()) + uintptr(i)*uintptr(PageSize4KiB))
		if _, ok := mapper.Read(as.root, addr); !ok {
			t.Errorf("frame %d of allocated region not mapped", i)
		}
	}
}

func TestAddressSpaceDestroyReturnsFramesToAllocator(t *testing.T) {
	mapper, _ := newTestMapper(t, 7)
	as, err := NewAddressSpace(mapper, VirtualAddress(0x40_0000), mem.Size(1*mem.MiB))
	if err != nil {
		t.Fatal(err)
	}

	// The root table itself consumed one of the seven frames; mapping three
	// pages takes the level-3, level-2 and level-1 tables plus three data
	// frames, which uses up the other six. Destroy gives the data frames back.
	if _, err := as.Allocate(vaddr(0x40_0000), mem.Size(3*uint64(PageSize4KiB)), FlagPresent|FlagWritable, PageSize4KiB); err != nil {
		t.Fatal(err)
	}

	as.Destroy()

	// All three region frames should be back on the free list.
	for i := 0; i < 3; i++ {
		if _, err := mapper.frames.Alloc(); err != nil {
			t.Fatalf("expected frame %d to have been returned by Destroy; got %v", i, err)
		}
	}
}

func TestAddressSpaceShareMapsSameFrames(t *testing.T) {
	mapper, _ := newTestMapper(t, 16)
	source, err := NewAddressSpace(mapper, VirtualAddress(0x80_0000), mem.Size(1*mem.MiB))
	if err != nil {
		t.Fatal(err)
	}
	target, err := NewAddressSpace(mapper, VirtualAddress(0x90_0000), mem.Size(1*mem.MiB))
	if err != nil {
		t.Fatal(err)
	}

	region, err := source.Allocate(vaddr(0x80_0000), mem.Size(2*uint64(PageSize4KiB)), FlagPresent|FlagWritable, PageSize4KiB)
	if err != nil {
		t.Fatal(err)
	}

	shared, err := source.Share(region, target, vaddr(0x90_0000), FlagPresent|FlagWritable|FlagUserAccessible)
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i < region.SizeInFrames(); i++ {
		sourcePhys, ok := region.QueryPhysicalAddress(source.root, source.mapper, i)
		if !ok {
			t.Fatalf("source frame %d not mapped", i)
		}
		targetPhys, ok := shared.QueryPhysicalAddress(target.root, target.mapper, i)
		if !ok {
			t.Fatalf("shared frame %d not mapped", i)
		}
		if sourcePhys != targetPhys {
			t.Errorf("frame %d: expected shared mapping to point at %#x; got %#x", i, sourcePhys, targetPhys)
		}
	}

	if source.sharerCount != 1 {
		t.Errorf("expected source address space to record 1 sharer; got %d", source.sharerCount)
	}
}

func TestAddressSpaceDestroyDoesNotFreeSharedFrames(t *testing.T) {
	mapper, _ := newTestMapper(t, 16)
	source, err := NewAddressSpace(mapper, VirtualAddress(0x80_0000), mem.Size(1*mem.MiB))
	if err != nil {
		t.Fatal(err)
	}
	target, err := NewAddressSpace(mapper, VirtualAddress(0x90_0000), mem.Size(1*mem.MiB))
	if err != nil {
		t.Fatal(err)
	}

	region, err := source.Allocate(vaddr(0x80_0000), mem.Size(PageSize4KiB), FlagPresent|FlagWritable, PageSize4KiB)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := source.Share(region, target, vaddr(0x90_0000), FlagPresent|FlagWritable); err != nil {
		t.Fatal(err)
	}
	if source.sharerCount != 1 {
		t.Fatalf("expected source to record 1 sharer; got %d", source.sharerCount)
	}

	sourcePhys, ok := region.QueryPhysicalAddress(source.root, source.mapper, 0)
	if !ok {
		t.Fatal("expected source region's frame to be mapped")
	}

	// Destroying the sharer must not return the source's frame to the
	// allocator: the frame is still owned and mapped by source.
	target.Destroy()

	if source.sharerCount != 0 {
		t.Errorf("expected source's sharer count to drop to 0 after sharer teardown; got %d", source.sharerCount)
	}

	stillMapped, ok := region.QueryPhysicalAddress(source.root, source.mapper, 0)
	if !ok || stillMapped != sourcePhys {
		t.Fatalf("expected source's own mapping to survive sharer teardown; got %#x, ok=%v", stillMapped, ok)
	}
}

func TestAddressSpaceDestroyPanicsWhileSharersRemain(t *testing.T) {
	defer func() { panicFn = kernel.Panic }()

	mapper, _ := newTestMapper(t, 16)
	source, err := NewAddressSpace(mapper, VirtualAddress(0x80_0000), mem.Size(1*mem.MiB))
	if err != nil {
		t.Fatal(err)
	}
	target, err := NewAddressSpace(mapper, VirtualAddress(0x90_0000), mem.Size(1*mem.MiB))
	if err != nil {
		t.Fatal(err)
	}

	region, err := source.Allocate(vaddr(0x80_0000), mem.Size(PageSize4KiB), FlagPresent|FlagWritable, PageSize4KiB)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := source.Share(region, target, vaddr(0x90_0000), FlagPresent|FlagWritable); err != nil {
		t.Fatal(err)
	}

	var called *kernel.Error
	panicFn = func(e interface{}) { called, _ = e.(*kernel.Error) }

	source.Destroy()

	if called == nil {
		t.Fatal("expected Destroy to invoke the panic path while a sharer is still live")
	}
}
