package cpu

// cpuid is a test seam over the raw CPUID instruction; production code
// always leaves it pointing at ID.
var cpuid = ID

// EnableInterrupts sets the interrupt flag (STI).
func EnableInterrupts()

// DisableInterrupts clears the interrupt flag (CLI).
func DisableInterrupts()

// Halt stops instruction execution until the next interrupt (HLT).
func Halt()

// FlushTLBEntry invalidates the TLB entry covering virtAddr (INVLPG).
func FlushTLBEntry(virtAddr uintptr)

// SwitchPDT loads pdtPhysAddr into CR3, switching the active page table
// root and implicitly flushing every non-global TLB entry.
func SwitchPDT(pdtPhysAddr uintptr)

// ActivePDT reads CR3, the physical address of the currently active page
// table root.
func ActivePDT() uintptr

// ReadCR2 reads CR2, the faulting address the CPU latches on a page fault.
func ReadCR2() uint64

// ID executes CPUID with EAX=leaf and ECX=0, returning the values left in
// EAX, EBX, ECX and EDX.
func ID(leaf uint32) (a, b, c, d uint32)

// IsIntel reports whether leaf 0 of CPUID identifies the vendor string
// "GenuineIntel".
func IsIntel() bool {
	_, ebx, ecx, edx := cpuid(0)
	return ebx == 0x756e6547 && // "Genu"
		edx == 0x49656e69 && // "ineI"
		ecx == 0x6c65746e // "ntel"
}

// HasSyscallExtension reports whether leaf 0x80000001 advertises the
// SYSCALL/SYSRET instruction pair (EDX bit 11 of the extended feature
// leaf). installSyscallEntry assumes this unconditionally; Make calls this
// first so a CPU without it fails loudly instead of faulting on its first
// SYSCALL from ring 3.
func HasSyscallExtension() bool {
	_, _, _, edx := cpuid(0x80000001)
	return edx&(1<<11) != 0
}

// PortWriteByte writes val to the given I/O port (OUTB).
func PortWriteByte(port uint16, val uint8)

// PortWriteWord writes val to the given I/O port (OUTW).
func PortWriteWord(port uint16, val uint16)

// PortWriteDword writes val to the given I/O port (OUTL).
func PortWriteDword(port uint16, val uint32)

// PortReadByte reads a uint8 from the given I/O port (INB).
func PortReadByte(port uint16) uint8

// PortReadWord reads a uint16 from the given I/O port (INW).
func PortReadWord(port uint16) uint16

// PortReadDword reads a uint32 from the given I/O port (INL).
func PortReadDword(port uint16) uint32
