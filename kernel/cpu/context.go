package cpu

// contextModeKernel is bit 0 of Context.Flags: when set, ScheduleContext
// IRETs into the context with ring-0 selectors instead of ring-3 ones, and
// the syscall return path resumes it by restoring RFLAGS and jumping to its
// RIP in ring 0 instead of executing sysretq into ring 3.
const contextModeKernel = uint16(1 << 0)

// Context is the minimal register set required to resume a thread on this
// CPU: RFLAGS, CR3, the instruction pointer, the callee-saved GPRs, the
// stack pointer and a mode flag. Field order is significant — the syscall
// entry trampoline and switchContext are hand-written assembly that index
// into this struct by byte offset, so this layout must never be
// reordered. A Thread embeds its Context as the very first field for the
// same reason: a raw pointer to a saved Context is also a valid pointer to
// the Thread that owns it (see thread.Thread).
type Context struct {
	RFlags uint64
	CR3    uint64
	RIP    uint64
	RBX    uint64
	RSP    uint64
	RBP    uint64
	R12    uint64
	R13    uint64
	R14    uint64
	R15    uint64
	Flags  uint16
}

// contextFieldCount is the number of uint64-sized fields preceding Flags;
// TestContextLayout uses it to derive the struct's logical packed size
// (contextFieldCount*8 + 2 = 82 bytes) without hardcoding the arithmetic
// twice. Go rounds the struct's actual unsafe.Sizeof up to a multiple of
// its largest field's alignment (8, from the uint64 fields), so the real
// in-memory size is 88: six trailing pad bytes the assembly never reads
// or writes, since switchContext and the syscall trampoline address every
// field by its absolute offset rather than by the struct's total size.
const contextFieldCount = 10

// KernelMode reports whether this context resumes in ring 0.
func (c *Context) KernelMode() bool {
	return c.Flags&contextModeKernel != 0
}

// MakeContext builds a fresh Context ready to be scheduled for the first
// time. rflags always starts at 0x202 (interrupts enabled, reserved bit 1
// set) regardless of caller-supplied flags, matching the only value the
// original kernel ever constructs a Context with.
func MakeContext(kernelMode bool, rootPageTablePhysAddr uintptr, entryPoint uintptr, stackTop uintptr) Context {
	var flags uint16
	if kernelMode {
		flags = contextModeKernel
	}
	return Context{
		RFlags: 0x202,
		CR3:    uint64(rootPageTablePhysAddr),
		RIP:    uint64(entryPoint),
		RSP:    uint64(stackTop),
		Flags:  flags,
	}
}

// Core is the per-logical-CPU struct the syscall entry assembly reaches
// through a GS-relative pointer. The assembly dereferences KernelStack at
// offset 0 to switch onto the kernel stack, then writes the user
// RSP/RIP/RFLAGS/callee-saved registers into whatever Context
// ActiveContext currently points at, which is why both fields must stay in
// this exact order and Core must stay exactly 16 bytes (spec §8, property
// 8).
type Core struct {
	KernelStack   uintptr
	ActiveContext *Context
}
