package vmm

import (
	"nucleus/kernel"
	"nucleus/kernel/mem"
	"unsafe"
)

var (
	// ErrAlreadyMapped is returned by Map when the target entry is already
	// present.
	ErrAlreadyMapped = &kernel.Error{Module: "vmm", Message: "virtual address is already mapped"}

	// ErrInvalidMapping is returned when an operation needs to read the
	// physical address behind a virtual address that isn't mapped.
	ErrInvalidMapping = &kernel.Error{Module: "vmm", Message: "virtual address does not point to a mapped physical page"}
)

// FrameAllocator is the capability PageMapper needs from the physical frame
// allocator: allocate and free single 4 KiB frames.
type FrameAllocator interface {
	Alloc() (uintptr, *kernel.Error)
	Dealloc(physicalAddress uintptr)
}

// PageFrame is a physical frame together with its identity-mapped virtual
// address, as handed back by Allocate.
type PageFrame struct {
	Ptr             unsafe.Pointer
	PhysicalAddress uintptr
}

// PageMapper builds and tears down page table mappings. It knows nothing
// about which virtual ranges are in use: that bookkeeping belongs to
// Region and AddressSpace.
type PageMapper struct {
	identity mem.IdentityMapping
	frames   FrameAllocator
}

// NewPageMapper constructs a PageMapper over the given identity mapping and
// physical frame allocator.
func NewPageMapper(identity mem.IdentityMapping, frames FrameAllocator) *PageMapper {
	return &PageMapper{identity: identity, frames: frames}
}

// MapTableView returns a TableView over the page table physically located
// at physicalAddress, addressed through the kernel's identity mapping.
func (m *PageMapper) MapTableView(physicalAddress uintptr) TableView {
	return newTableView(unsafe.Pointer(m.identity.Translate(physicalAddress)), physicalAddress) //nolint:govet
}

// CreatePageTable allocates a fresh, zeroed page table and returns a view
// over it.
func (m *PageMapper) CreatePageTable() (TableView, *kernel.Error) {
	physicalAddress, err := m.frames.Alloc()
	if err != nil {
		return TableView{}, err
	}
	table := m.MapTableView(physicalAddress)
	for i := range table.ptr {
		table.ptr[i] = 0
	}
	return table, nil
}

// ensurePageTable returns the table that entry points to, allocating and
// wiring up a new one if entry is not yet present.
func (m *PageMapper) ensurePageTable(entry TableEntryView) (TableView, *kernel.Error) {
	if entry.Present() {
		return m.MapTableView(entry.PhysicalAddress()), nil
	}

	table, err := m.CreatePageTable()
	if err != nil {
		return TableView{}, err
	}

	entry.SetPhysicalAddress(table.PhysicalAddress())
	entry.SetFlags(FlagPresent | FlagWritable | FlagUserAccessible)
	return table, nil
}

// Map installs a mapping from virtualAddress to physicalAddress in root,
// allocating any intermediate page tables that don't exist yet. flags must
// include FlagPresent; it is applied as-is to the final entry (plus
// FlagHugePage, for 2 MiB/1 GiB mappings).
func (m *PageMapper) Map(root TableView, virtualAddress VirtualAddress, physicalAddress uintptr, pageSize PageSize, flags PageFlags) *kernel.Error {
	tableLevel3, err := m.ensurePageTable(root.At(virtualAddress.IndexLevel4()))
	if err != nil {
		return err
	}

	entryLevel3 := tableLevel3.At(virtualAddress.IndexLevel3())
	if pageSize == PageSize1GiB {
		if entryLevel3.Present() {
			return ErrAlreadyMapped
		}
		entryLevel3.SetPhysicalAddress(physicalAddress)
		entryLevel3.SetFlags(flags | FlagHugePage)
		return nil
	}

	tableLevel2, err := m.ensurePageTable(entryLevel3)
	if err != nil {
		return err
	}

	entryLevel2 := tableLevel2.At(virtualAddress.IndexLevel2())
	if pageSize == PageSize2MiB {
		if entryLevel2.Present() {
			return ErrAlreadyMapped
		}
		entryLevel2.SetPhysicalAddress(physicalAddress)
		entryLevel2.SetFlags(flags | FlagHugePage)
		return nil
	}

	tableLevel1, err := m.ensurePageTable(entryLevel2)
	if err != nil {
		return err
	}

	entryLevel1 := tableLevel1.At(virtualAddress.IndexLevel1())
	if entryLevel1.Present() {
		return ErrAlreadyMapped
	}
	entryLevel1.SetPhysicalAddress(physicalAddress)
	entryLevel1.SetFlags(flags)
	return nil
}

// Read walks root for virtualAddress and returns the physical address it
// resolves to, honouring huge pages at levels 2 and 3.
func (m *PageMapper) Read(root TableView, virtualAddress VirtualAddress) (uintptr, bool) {
	entryLevel4 := root.At(virtualAddress.IndexLevel4())
	if !entryLevel4.Present() {
		return 0, false
	}

	tableLevel3 := m.MapTableView(entryLevel4.PhysicalAddress())
	entryLevel3 := tableLevel3.At(virtualAddress.IndexLevel3())
	if !entryLevel3.Present() {
		return 0, false
	}
	if entryLevel3.Flags()&FlagHugePage != 0 {
		return entryLevel3.PhysicalAddress() + pageOffset(virtualAddress, PageSize1GiB), true
	}

	tableLevel2 := m.MapTableView(entryLevel3.PhysicalAddress())
	entryLevel2 := tableLevel2.At(virtualAddress.IndexLevel2())
	if !entryLevel2.Present() {
		return 0, false
	}
	if entryLevel2.Flags()&FlagHugePage != 0 {
		return entryLevel2.PhysicalAddress() + pageOffset(virtualAddress, PageSize2MiB), true
	}

	tableLevel1 := m.MapTableView(entryLevel2.PhysicalAddress())
	entryLevel1 := tableLevel1.At(virtualAddress.IndexLevel1())
	if !entryLevel1.Present() {
		return 0, false
	}
	return entryLevel1.PhysicalAddress() + pageOffset(virtualAddress, PageSize4KiB), true
}

// pageOffset returns the low bits of virtualAddress within a page of the
// given size: the part read() must add back to the leaf's physical base,
// since the leaf's stored address is page-aligned and the query address
// generally isn't (e.g. a huge-page lookup partway through the 1 GiB/2 MiB
// region, or any 4 KiB lookup that isn't page-aligned).
func pageOffset(virtualAddress VirtualAddress, pageSize PageSize) uintptr {
	return uintptr(virtualAddress) & (uintptr(pageSize) - 1)
}

// Unmap clears the entry backing virtualAddress and returns the physical
// block it was mapping. It does not free the underlying frame.
func (m *PageMapper) Unmap(root TableView, virtualAddress VirtualAddress) (mem.Block, bool) {
	entryLevel4 := root.At(virtualAddress.IndexLevel4())
	if !entryLevel4.Present() {
		return mem.Block{}, false
	}

	tableLevel3 := m.MapTableView(entryLevel4.PhysicalAddress())
	entryLevel3 := tableLevel3.At(virtualAddress.IndexLevel3())
	if !entryLevel3.Present() {
		return mem.Block{}, false
	}
	if entryLevel3.Flags()&FlagHugePage != 0 {
		block := mem.Block{StartAddress: entryLevel3.PhysicalAddress(), Size: mem.Size(PageSize1GiB)}
		entryLevel3.Clear()
		return block, true
	}

	tableLevel2 := m.MapTableView(entryLevel3.PhysicalAddress())
	entryLevel2 := tableLevel2.At(virtualAddress.IndexLevel2())
	if !entryLevel2.Present() {
		return mem.Block{}, false
	}
	if entryLevel2.Flags()&FlagHugePage != 0 {
		block := mem.Block{StartAddress: entryLevel2.PhysicalAddress(), Size: mem.Size(PageSize2MiB)}
		entryLevel2.Clear()
		return block, true
	}

	tableLevel1 := m.MapTableView(entryLevel2.PhysicalAddress())
	entryLevel1 := tableLevel1.At(virtualAddress.IndexLevel1())
	if !entryLevel1.Present() {
		return mem.Block{}, false
	}
	block := mem.Block{StartAddress: entryLevel1.PhysicalAddress(), Size: mem.Size(PageSize4KiB)}
	entryLevel1.Clear()
	return block, true
}

// UnmapAndDeallocate unmaps virtualAddress and returns its frame to the
// frame allocator.
func (m *PageMapper) UnmapAndDeallocate(root TableView, virtualAddress VirtualAddress) (mem.Block, bool) {
	block, ok := m.Unmap(root, virtualAddress)
	if ok {
		m.frames.Dealloc(block.StartAddress)
	}
	return block, ok
}

// Allocate hands out a fresh physical frame without mapping it anywhere.
func (m *PageMapper) Allocate() (PageFrame, *kernel.Error) {
	physicalAddress, err := m.frames.Alloc()
	if err != nil {
		return PageFrame{}, err
	}
	return PageFrame{
		Ptr:             unsafe.Pointer(m.identity.Translate(physicalAddress)), //nolint:govet
		PhysicalAddress: physicalAddress,
	}, nil
}

// AllocateAndMap allocates a frame and maps it at virtualAddress as a
// 4 KiB page.
func (m *PageMapper) AllocateAndMap(root TableView, virtualAddress VirtualAddress, flags PageFlags) *kernel.Error {
	frame, err := m.Allocate()
	if err != nil {
		return err
	}
	if mapErr := m.Map(root, virtualAddress, frame.PhysicalAddress, PageSize4KiB, flags); mapErr != nil {
		m.frames.Dealloc(frame.PhysicalAddress)
		return mapErr
	}
	return nil
}

// AllocateAndMapRange calls AllocateAndMap for each of nFrames consecutive
// 4 KiB pages starting at virtualAddress.
func (m *PageMapper) AllocateAndMapRange(root TableView, virtualAddress VirtualAddress, flags PageFlags, nFrames int) *kernel.Error {
	for i := 0; i < nFrames; i++ {
		addr := VirtualAddress(uintptr(virtualAddress) + uintptr(i)*uintptr(PageSize4KiB))
		if err := m.AllocateAndMap(root, addr, flags); err != nil {
			return err
		}
	}
	return nil
}

// UnmapRange clears every 4 KiB page's entry covering
// [virtualAddress, virtualAddress+size) that is actually mapped, on a
// best-effort basis, without returning any frame to the frame allocator.
// Used to tear down a shared Region, whose frames are owned by the
// AddressSpace it was shared from, not by the Region itself.
func (m *PageMapper) UnmapRange(root TableView, virtualAddress VirtualAddress, size mem.Size) {
	end := uintptr(virtualAddress) + uintptr(size)
	for addr := uintptr(virtualAddress); addr < end; addr += uintptr(PageSize4KiB) {
		m.Unmap(root, VirtualAddress(addr))
	}
}

// UnmapAndDeallocateRange unmaps and deallocates every 4 KiB page covering
// [virtualAddress, virtualAddress+size) that is actually mapped, on a
// best-effort basis, and returns the number of bytes freed.
func (m *PageMapper) UnmapAndDeallocateRange(root TableView, virtualAddress VirtualAddress, size mem.Size) mem.Size {
	var freed mem.Size
	end := uintptr(virtualAddress) + uintptr(size)
	for addr := uintptr(virtualAddress); addr < end; addr += uintptr(PageSize4KiB) {
		if block, ok := m.UnmapAndDeallocate(root, VirtualAddress(addr)); ok {
			freed += block.Size
		}
	}
	return freed
}
