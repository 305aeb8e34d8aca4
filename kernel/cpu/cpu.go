// Package cpu provides the single-core x86-64 CPU facade: it owns the
// GDT/IDT/TSS, programs the legacy 8259 PIC, dispatches hardware interrupts
// and syscalls to a registered observer, and performs context switches into
// user or kernel contexts.
package cpu

import (
	"sync/atomic"
	"unsafe"

	"nucleus/kernel"
	"nucleus/kernel/allocator"
)

var (
	errAlreadyCreated   = &kernel.Error{Module: "cpu", Message: "Cpu singleton already created"}
	errOutOfMemory      = &kernel.Error{Module: "cpu", Message: "out of memory while constructing Cpu"}
	errNoSyscallSupport = &kernel.Error{Module: "cpu", Message: "CPU does not support SYSCALL/SYSRET"}
)

// CpuObserver is the single callback receiver the Cpu singleton invokes on
// hardware interrupts and syscalls. The kernel is the only implementation;
// IRQ delivery must never block inside OnInterrupt.
type CpuObserver interface {
	OnInterrupt(irq uint8)
	OnSyscall(ctx *Context) *Context
}

// Cpu is the process-wide singleton constructed once via Make. Its header
// (gdt/idt/tss/core) is written once at construction and read thereafter;
// observer is set once by RegisterObserver; spuriousIrqCount is the only
// field mutated concurrently with the kernel loop, from IRQ context.
type Cpu struct {
	gdt  *gdt
	idt  *idt
	tss  *tss
	core Core

	observer CpuObserver

	spuriousIrqCount atomic.Uint64
}

// theCpu is the package-level singleton pointer the assembly-reachable
// dispatchIRQ and systemCallHandler functions operate on; neither can take a
// receiver argument since they're called from a hardware vector with no Go
// calling convention.
var theCpu *Cpu

// kernelContext is the fixed Context that the assembly switchContext
// routine always saves the outgoing machine state into before transferring
// control to its argument. ScheduleContext is only ever called from Go code
// running as the kernel thread, so the context being suspended on every
// call is always this same one; reading it back via systemCallHandler's
// return value is what makes a schedule-and-later-resume cycle look like an
// ordinary function return to the Run loop.
var kernelContext *Context

// Make allocates the interrupt stack (1 KiB) and the syscall stack (1 KiB)
// from alloc, builds the GDT/IDT/TSS, loads them, remaps the PIC, and
// installs initialContext as the active context for the syscall entry
// path. It fails with errAlreadyCreated on a second call, or
// errOutOfMemory if either stack allocation fails.
func Make(alloc allocator.Allocator, initialContext *Context) (*Cpu, *kernel.Error) {
	if theCpu != nil {
		return nil, errAlreadyCreated
	}
	if !HasSyscallExtension() {
		return nil, errNoSyscallSupport
	}

	interruptStack, err := alloc.Allocate(interruptStackSize, 16)
	if err != nil {
		return nil, errOutOfMemory
	}
	syscallStack, err := alloc.Allocate(syscallStackSize, 16)
	if err != nil {
		return nil, errOutOfMemory
	}

	c := &Cpu{
		tss: newTSS(interruptStack + interruptStackSize),
	}
	c.gdt = newGDT(uint64(uintptr(unsafe.Pointer(c.tss))), uint32(unsafe.Sizeof(tss{})-1))
	c.idt = newIDT(funcPC(doubleFaultStub), irqStubAddresses())
	c.core = Core{
		KernelStack:   syscallStack + syscallStackSize,
		ActiveContext: initialContext,
	}
	kernelContext = initialContext

	loadGDT(c.gdt)
	loadIDT(c.idt)
	remapPIC()
	installSyscallEntry(&c.core)

	theCpu = c
	return c, nil
}

// RegisterObserver stores obs as the single receiver of interrupts and
// syscalls, then unmasks interrupts. Hardware interrupts may begin arriving
// as soon as this returns.
func (c *Cpu) RegisterObserver(obs CpuObserver) {
	c.observer = obs
	EnableInterrupts()
}

// SetRootPageTable writes phys into CR3, switching the active page table
// directory and flushing the TLB.
func (c *Cpu) SetRootPageTable(phys uintptr) {
	SwitchPDT(phys)
}

// ScheduleContext resumes ctx via the assembly switchContext routine, which
// restores CR3 and every callee-saved register, then IRETs into ctx with
// ring-0 selectors (for a kernel-mode context) or ring-3 selectors (for a
// user-mode context). This call does not return for as long as ctx keeps running; control only
// comes back to Go code the next time a syscall or interrupt hands
// execution back to the kernel thread.
func (c *Cpu) ScheduleContext(ctx *Context) {
	c.core.ActiveContext = ctx
	switchContext(ctx)
}

// Halt stops instruction execution until the next interrupt arrives. The
// kernel loop calls this when both the IRQ queue and its mailbox are empty.
func (c *Cpu) Halt() {
	Halt()
}

// SpuriousIRQCount reports how many hardware interrupts the PIC reported as
// spurious since boot.
func (c *Cpu) SpuriousIRQCount() uint64 {
	return c.spuriousIrqCount.Load()
}

// handleIRQ is invoked by dispatchIRQ from vector context: it forwards to
// the observer (if one is registered) and acknowledges the PIC, counting
// spurious interrupts instead of treating them as real ones. It must never
// block, since it runs on the shared interrupt stack with interrupts from
// other vectors masked.
func (c *Cpu) handleIRQ(irq uint8) {
	if c.observer != nil {
		c.observer.OnInterrupt(irq)
	}
	if notifyEndOfInterrupt(irq) {
		c.spuriousIrqCount.Add(1)
	}
}

// systemCallHandler is the Go-side half of the MSR-based syscall entry: the
// assembly trampoline has already switched onto core.KernelStack and saved
// the user registers into *core.ActiveContext before calling here. With no
// observer registered this is an identity hop, returning the same context
// the assembly just populated; otherwise the observer decides what runs
// next.
func systemCallHandler() *Context {
	if theCpu.observer == nil {
		return theCpu.core.ActiveContext
	}
	next := theCpu.observer.OnSyscall(theCpu.core.ActiveContext)
	theCpu.core.ActiveContext = next
	return next
}

// switchContext is implemented in assembly: it restores CR3 and the
// callee-saved registers from ctx, pushes an IRET frame whose CS/SS
// selectors are chosen by ctx.KernelMode(), and transfers control with IRETQ.
func switchContext(ctx *Context)

// installSyscallEntry is implemented in assembly: it writes the IA32_STAR,
// IA32_LSTAR and IA32_FMASK MSRs so that a ring-3 syscall instruction loads
// RIP from systemCallHandler's trampoline, switches to core.KernelStack,
// and derives the kernel/user CS/SS pairs from the single STAR base value
// spec §4.5 requires.
func installSyscallEntry(core *Core)

// syscallEntry is the code IA32_LSTAR points at; it is never called
// directly from Go, only entered by the CPU on SYSCALL.
func syscallEntry()
