package cpu

import (
	"unsafe"

	"nucleus/kernel"
)

var errDoubleFault = &kernel.Error{Module: "cpu", Message: "double fault"}

// irqStub0..irqStub15 are the 16 assembly entry points installed into
// vectors 32-47. Each is hand-written assembly hardcoded to its own IRQ
// number (0-15): it saves every general-purpose register, pushes that number,
// calls dispatchIRQ, restores registers and iretq's. A single generic
// entry point cannot work here because the CPU gives the handler no way to
// learn which vector fired.
func irqStub0()
func irqStub1()
func irqStub2()
func irqStub3()
func irqStub4()
func irqStub5()
func irqStub6()
func irqStub7()
func irqStub8()
func irqStub9()
func irqStub10()
func irqStub11()
func irqStub12()
func irqStub13()
func irqStub14()
func irqStub15()

// funcPC extracts the entry address of a Go function value, the same trick
// used to hand raw code addresses to a hardware descriptor table.
func funcPC(f func()) uintptr {
	return **(**uintptr)(unsafe.Pointer(&f))
}

func irqStubAddresses() [vectorIRQCount]uintptr {
	return [vectorIRQCount]uintptr{
		funcPC(irqStub0), funcPC(irqStub1), funcPC(irqStub2), funcPC(irqStub3),
		funcPC(irqStub4), funcPC(irqStub5), funcPC(irqStub6), funcPC(irqStub7),
		funcPC(irqStub8), funcPC(irqStub9), funcPC(irqStub10), funcPC(irqStub11),
		funcPC(irqStub12), funcPC(irqStub13), funcPC(irqStub14), funcPC(irqStub15),
	}
}

// dispatchIRQ is called by each irqStubN with its hardcoded IRQ number. It
// must not block: it forwards to the registered observer (if any) and
// acknowledges the PIC, counting spurious interrupts instead of treating
// them as real ones.
func dispatchIRQ(irq uint8) {
	theCpu.handleIRQ(irq)
}

// doubleFaultStub is the assembly trap-gate entry for vector 8. It does not
// return: it hands the faulting RIP to reportDoubleFault, which panics.
func doubleFaultStub()

// lastDoubleFaultRIP is recorded purely for a PanicSink or debugger to
// inspect; it plays no role in the panic path itself.
var lastDoubleFaultRIP uintptr

// reportDoubleFault is called by doubleFaultStub with the RIP that was
// executing when the fault landed. There is no recovering from a double
// fault on this core (no nested task switch, no second IST level below
// this one), so the only sane response is kernel.Panic.
func reportDoubleFault(rip uintptr) {
	lastDoubleFaultRIP = rip
	kernel.Panic(errDoubleFault)
}
