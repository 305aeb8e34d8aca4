package cpu

// Segment selectors into the GDT built by newGDT. The "user data before
// user code" ordering is not arbitrary: sysretq reloads CS from
// STAR[63:48]+16 and SS from STAR[63:48]+8, so a single MSR base value can
// only serve both selectors if user data sits immediately before user
// code in the table (spec §4.5).
const (
	SelectorNull       = uint16(0x00)
	SelectorKernelCode = uint16(0x08)
	SelectorKernelData = uint16(0x10)
	SelectorUserData   = uint16(0x18 | 3) // RPL 3
	SelectorUserCode   = uint16(0x20 | 3) // RPL 3
	SelectorTSS        = uint16(0x28)
)

// gdtEntryCount is 7: null, kernel code, kernel data, user data, user code,
// and a 16-byte (two-slot) TSS descriptor.
const gdtEntryCount = 7

// gdt is the kernel's Global Descriptor Table. Entries 0-4 are standard
// 8-byte flat segment descriptors (base/limit are ignored in long mode
// except for the TSS); entries 5-6 together hold the 16-byte TSS
// descriptor, since a 64-bit system-segment descriptor does not fit in a
// single legacy GDT slot.
type gdt struct {
	entries [gdtEntryCount]uint64
}

// Access byte bits shared by the flat code/data descriptors.
const (
	accessPresent    = 1 << 7
	accessDescType   = 1 << 4 // 1 = code/data, 0 = system
	accessExecutable = 1 << 3
	accessRW         = 1 << 1 // readable (code) / writable (data)
	accessDPL3       = 3 << 5

	flagLongMode = 1 << 1 // in the flags nibble, for 64-bit code segments
)

func flatDescriptor(access uint8, longMode bool) uint64 {
	var flags uint64
	if longMode {
		flags = flagLongMode
	}
	// Base and limit are irrelevant for long-mode flat segments but are
	// still laid out at their legacy offsets for completeness; only the
	// access byte (bits 40-47) and flags nibble (bits 52-55) matter.
	return uint64(access) << 40 | flags << 52
}

// newGDT builds the fixed 7-entry table spec §4.5 requires and installs
// tssDescriptor at the TSS slot.
func newGDT(tssBase uint64, tssLimit uint32) *gdt {
	g := &gdt{}
	g.entries[0] = 0 // null
	g.entries[1] = flatDescriptor(accessPresent|accessDescType|accessExecutable|accessRW, true)          // kernel code
	g.entries[2] = flatDescriptor(accessPresent|accessDescType|accessRW, false)                           // kernel data
	g.entries[3] = flatDescriptor(accessPresent|accessDescType|accessRW|accessDPL3, false)                // user data
	g.entries[4] = flatDescriptor(accessPresent|accessDescType|accessExecutable|accessRW|accessDPL3, true) // user code

	low, high := tssDescriptor(tssBase, tssLimit)
	g.entries[5] = low
	g.entries[6] = high
	return g
}

// tssDescriptor builds the two 64-bit words of a long-mode TSS system
// segment descriptor: a 64-bit base address does not fit in the 8-byte
// legacy descriptor format, so the upper 32 base bits spill into a second
// GDT slot that has no selector of its own.
func tssDescriptor(base uint64, limit uint32) (low, high uint64) {
	const tssAccessByte = 0x89 // present, type=0x9 (64-bit TSS, available)

	low = uint64(limit&0xFFFF) |
		(base&0xFFFFFF)<<16 |
		uint64(tssAccessByte)<<40 |
		(uint64(limit>>16)&0xF)<<48 |
		((base >> 24) & 0xFF) << 56
	high = base >> 32
	return low, high
}

// loadGDT is implemented in assembly: it points GDTR at g, reloads the
// segment registers with the kernel selectors, and loads TR with
// SelectorTSS. switch_context relies on this having already run once at
// boot.
func loadGDT(gp *gdt)

// loadGDTafter is the landing point loadGDT's CS-reload far-return
// transfers to; it has nothing left to do but return to loadGDT's caller.
func loadGDTafter()
