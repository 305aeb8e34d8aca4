package vmm

// physicalAddressMask covers bits 12-51, the physical address field of an
// x86-64 page table entry.
const physicalAddressMask = 0x000F_FFFF_FFFF_F000

// TableEntryView is a mutable view over a single 64-bit page table entry.
// Like TableView, it does not own the memory it points at.
type TableEntryView struct {
	entry *uint64
}

func newTableEntryView(entry *uint64) TableEntryView {
	return TableEntryView{entry: entry}
}

// Present reports whether this entry's Present bit is set.
func (e TableEntryView) Present() bool {
	return *e.entry&uint64(FlagPresent) != 0
}

// Flags returns the entry's flag bits.
func (e TableEntryView) Flags() PageFlags {
	return PageFlags(*e.entry) & flagsMask
}

// PhysicalAddress returns the physical address encoded in this entry.
func (e TableEntryView) PhysicalAddress() uintptr {
	return uintptr(*e.entry & physicalAddressMask)
}

// SetFlags replaces the entry's flag bits, leaving its physical address
// untouched.
func (e TableEntryView) SetFlags(flags PageFlags) TableEntryView {
	*e.entry = (*e.entry &^ uint64(flagsMask)) | uint64(flags&flagsMask)
	return e
}

// SetPhysicalAddress replaces the entry's physical address, leaving its
// flags untouched.
func (e TableEntryView) SetPhysicalAddress(address uintptr) TableEntryView {
	*e.entry = (*e.entry &^ physicalAddressMask) | (uint64(address) & physicalAddressMask)
	return e
}

// CopyFrom overwrites this entry with the raw contents of other. Used for
// shallow-copying a slice of the kernel's own root mapping into a freshly
// created address space.
func (e TableEntryView) CopyFrom(other TableEntryView) {
	*e.entry = *other.entry
}

// Clear zeroes out the entry.
func (e TableEntryView) Clear() {
	*e.entry = 0
}
