package vmm

import (
	"nucleus/kernel"
	"nucleus/kernel/mem"
)

var (
	// ErrVirtualRangeInUse is returned by Reserve/Allocate when a
	// fixed-start request does not fit the free virtual range.
	ErrVirtualRangeInUse = &kernel.Error{Module: "vmm", Message: "virtual address range is already reserved"}

	errSharersRemain = &kernel.Error{Module: "vmm", Message: "address space destroyed while shared regions are still live"}

	// panicFn is swapped out by tests so Destroy's failure path can be
	// exercised without actually halting.
	panicFn = kernel.Panic
)

// AddressSpace owns a root page table, the free virtual range within it and
// the set of Regions currently carved out of that range.
type AddressSpace struct {
	mapper      *PageMapper
	root        TableView
	free        *freeRange
	regions     []*Region
	sharerCount int
}

// NewAddressSpace allocates a fresh root page table and returns an empty
// AddressSpace managing the virtual range [start, start+size).
func NewAddressSpace(mapper *PageMapper, start VirtualAddress, size mem.Size) (*AddressSpace, *kernel.Error) {
	root, err := mapper.CreatePageTable()
	if err != nil {
		return nil, err
	}
	return &AddressSpace{
		mapper: mapper,
		root:   root,
		free:   newFreeRange(uintptr(start), uintptr(size)),
	}, nil
}

// RootTablePhysicalAddress returns the physical address to load into CR3 to
// activate this address space.
func (as *AddressSpace) RootTablePhysicalAddress() uintptr {
	return as.root.PhysicalAddress()
}

func framesFor(size mem.Size, pageSize PageSize) int {
	frames := (uintptr(size) + uintptr(pageSize) - 1) / uintptr(pageSize)
	return int(frames)
}

// reserve claims sizeInFrames*pageSize bytes of virtual address space,
// either at a caller-chosen start (fixedStart != nil) or anywhere the free
// range can fit it, and registers a Region over the claim.
func (as *AddressSpace) reserve(fixedStart *VirtualAddress, size mem.Size, flags PageFlags, pageSize PageSize) (*Region, *kernel.Error) {
	sizeInFrames := framesFor(size, pageSize)
	roundedSize := uintptr(sizeInFrames) * uintptr(pageSize)

	var start uintptr
	if fixedStart != nil {
		start = uintptr(*fixedStart)
		if err := as.free.AllocateAt(start, roundedSize); err != nil {
			return nil, ErrVirtualRangeInUse
		}
	} else {
		claimed, err := as.free.Allocate(roundedSize)
		if err != nil {
			return nil, err
		}
		start = claimed
	}

	region := NewRegion(VirtualAddress(start), sizeInFrames, flags, pageSize)
	as.regions = append(as.regions, region)
	return region, nil
}

// Reserve carves out a range of virtual address space without backing it
// with any frames. Pass fixedStart == nil to let the address space pick any
// large-enough free range.
func (as *AddressSpace) Reserve(fixedStart *VirtualAddress, size mem.Size, flags PageFlags, pageSize PageSize) (*Region, *kernel.Error) {
	return as.reserve(fixedStart, size, flags, pageSize)
}

// Allocate reserves a range and immediately backs every page of it with a
// freshly allocated frame.
func (as *AddressSpace) Allocate(fixedStart *VirtualAddress, size mem.Size, flags PageFlags, pageSize PageSize) (*Region, *kernel.Error) {
	region, err := as.reserve(fixedStart, size, flags, pageSize)
	if err != nil {
		return nil, err
	}
	if err := region.Allocate(as.root, as.mapper); err != nil {
		return nil, err
	}
	return region, nil
}

// MapPageOfRegion maps a single page of an already-reserved region.
func (as *AddressSpace) MapPageOfRegion(region *Region, physicalAddress uintptr, offsetInFrames int) *kernel.Error {
	return region.MapPage(as.root, as.mapper, physicalAddress, offsetInFrames)
}

// AllocatePageOfRegion allocates and maps a single page of an
// already-reserved region.
func (as *AddressSpace) AllocatePageOfRegion(region *Region, offsetInFrames int) *kernel.Error {
	return region.AllocatePage(as.root, as.mapper, offsetInFrames)
}

// Share reserves a region in target covering the same number of frames as
// region and maps each of region's already-present physical frames into
// it under the new flags. The shared region does not own those frames:
// target's AddressSpace must never deallocate them, and as must not be
// destroyed while the share is still outstanding.
func (as *AddressSpace) Share(region *Region, target *AddressSpace, targetStart *VirtualAddress, flags PageFlags) (*Region, *kernel.Error) {
	shared, err := target.reserve(targetStart, mem.Size(region.Size()), flags, region.pageSize)
	if err != nil {
		return nil, err
	}

	for frame := 0; frame < region.sizeInFrames; frame++ {
		physicalAddress, ok := region.QueryPhysicalAddress(as.root, as.mapper, frame)
		if !ok {
			return nil, ErrInvalidMapping
		}
		if err := shared.MapPage(target.root, target.mapper, physicalAddress, frame); err != nil {
			return nil, err
		}
	}

	shared.sharedFrom = as
	as.sharerCount++
	return shared, nil
}

// ShallowCopyRootMapping copies the top-level entries covering
// [start, end], including the entry that covers end itself, from another
// AddressSpace's root table into this one's. This
// is how the kernel's own higher-half mapping gets installed into every
// freshly created user address space.
func (as *AddressSpace) ShallowCopyRootMapping(from *AddressSpace, start, end VirtualAddress) {
	for i := start.IndexLevel4(); i <= end.IndexLevel4(); i++ {
		as.root.At(i).CopyFrom(from.root.At(i))
	}
}

// Destroy unmaps and frees every Region this address space owns, returning
// their frames to the frame allocator. A Region that was installed by
// Share (region.sharedFrom != nil) does not own its frames — they belong
// to the source AddressSpace — so it is only unmapped, never deallocated,
// and the source's sharer count is released instead. Destroy panics if any
// Region of its own is still shared into another, still-live address
// space, since the physical frames backing that share would otherwise be
// silently invalidated.
func (as *AddressSpace) Destroy() {
	if as.sharerCount > 0 {
		panicFn(errSharersRemain)
		return
	}

	for _, region := range as.regions {
		if region.sharedFrom != nil {
			as.mapper.UnmapRange(as.root, region.Start(), mem.Size(region.Size()))
			region.sharedFrom.sharerCount--
			continue
		}
		as.mapper.UnmapAndDeallocateRange(as.root, region.Start(), mem.Size(region.Size()))
	}
	as.regions = nil
}
