package main

import (
	"unsafe"

	"nucleus/kernel/bootinfo"
	"nucleus/kernel/kmain"
	"nucleus/kernel/mem"
)

// These are populated by the linker script / rt0 assembly before main is
// called: the physical address of the BOOTBOOT header, the CR3 value rt0
// left active, the scratch region reserved for the initial bump allocator,
// the addresses of the kernel image's code and writable data sections, the
// top of the boot-time stack rt0 allocated, the virtual base the linker
// reserved for the framebuffer mapping, and the total installed RAM rt0
// read out of the memory map. None of these can be expressed as Go
// constants since they depend on the final link and the machine rt0 boots
// on.
var (
	bootHeaderPtr       uintptr
	bootRootPhysAddr    uintptr
	initialHeapStart    uintptr
	initialHeapSize     uintptr
	codeStart, codeEnd  uintptr
	dataStart, dataEnd  uintptr
	initialStackTop     uintptr
	framebufferVirtBase uintptr
	ramSize             uintptr
)

// main is the only Go symbol visible from the rt0 initialization code. It
// works as a trampoline into kmain.Kmain and exists, deliberately, to keep
// the Go compiler from treating the rest of the kernel as dead code: rt0
// has no notion of Go's call graph, so without this entry point nothing
// would root the kernel package tree.
//
// main is not expected to return. If it does, rt0 halts the CPU.
func main() {
	kmain.Kmain(bootConfig())
}

func bootConfig() kmain.BootConfig {
	return kmain.BootConfig{
		Header:              (*bootinfo.Header)(unsafe.Pointer(bootHeaderPtr)),
		BootRootPhysAddr:    bootRootPhysAddr,
		InitialHeap:         mem.Block{StartAddress: initialHeapStart, Size: mem.Size(initialHeapSize)},
		CodeStart:           codeStart,
		CodeEnd:             codeEnd,
		WritableDataStart:   dataStart,
		WritableDataEnd:     dataEnd,
		InitialStackTop:     initialStackTop,
		FramebufferVirtBase: framebufferVirtBase,
		RAMSize:             mem.Size(ramSize),
		InitService:         "serial.elf",
	}
}
