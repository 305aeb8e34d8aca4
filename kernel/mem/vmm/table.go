package vmm

import "unsafe"

// TableView is a view over a single page table's 512 entries, addressed
// through whatever virtual mapping of physicalAddress the caller supplied.
// It does not own the memory it points at.
type TableView struct {
	ptr             *[512]uint64
	physicalAddress uintptr
}

func newTableView(ptr unsafe.Pointer, physicalAddress uintptr) TableView {
	return TableView{ptr: (*[512]uint64)(ptr), physicalAddress: physicalAddress}
}

// At returns a view over the entry at the given index.
func (t TableView) At(index uint16) TableEntryView {
	return newTableEntryView(&t.ptr[index])
}

// PhysicalAddress returns the physical address of the table itself.
func (t TableView) PhysicalAddress() uintptr {
	return t.physicalAddress
}
