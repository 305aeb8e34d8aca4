// Package kmain wires every subsystem together: it is the only package
// that imports both the root kernel package (for kernel.Error/kernel.Panic)
// and the concrete subsystems (cpu, vmm, pmm, thread, loader, ...), so it is
// also the only place an import cycle back into kernel could appear. Every
// other subsystem stays a leaf with respect to this package.
package kmain

import (
	"io"
	"unsafe"

	"nucleus/kernel"
	"nucleus/kernel/allocator"
	"nucleus/kernel/bootinfo"
	"nucleus/kernel/cpu"
	"nucleus/kernel/ipc"
	"nucleus/kernel/irq"
	"nucleus/kernel/kfmt"
	"nucleus/kernel/loader"
	"nucleus/kernel/mem"
	"nucleus/kernel/mem/pmm"
	"nucleus/kernel/mem/vmm"
	"nucleus/kernel/thread"
)

const (
	kernelHeapSize = 1 * mem.MiB
	userStackSize  = 64 * mem.KiB
	ipcBufferSize  = 4 * mem.KiB
)

var (
	errIRQQueueOverflow     = &kernel.Error{Module: "kmain", Message: "interrupt queue overflow"}
	errMailboxOverflow      = &kernel.Error{Module: "kmain", Message: "kernel mailbox overflow"}
	errUnknownSyscallOrigin = &kernel.Error{Module: "kmain", Message: "syscall delivered from an unregistered thread"}
	errKmainReturned        = &kernel.Error{Module: "kmain", Message: "Kmain returned"}
	errSegmentRead          = &kernel.Error{Module: "kmain", Message: "failed to read ELF segment contents"}
)

// BootConfig carries the addresses the construction pipeline needs but
// cannot discover on its own: the BOOTBOOT header plus the handful of
// linker-provided symbols (spec §6) the rt0 trampoline reads before handing
// control to Go.
type BootConfig struct {
	Header *bootinfo.Header

	// BootRootPhysAddr is CR3 as set up by the bootloader; the construction
	// pipeline reads it once to copy the existing kernel code/data/stack
	// mappings into the address space it builds.
	BootRootPhysAddr uintptr

	// InitialHeap is the small pre-reserved scratch region (spec §4.6 step
	// 1) the initial bump allocator seeds from, before any Region exists.
	InitialHeap mem.Block

	CodeStart, CodeEnd                 uintptr
	WritableDataStart, WritableDataEnd uintptr
	InitialStackTop                    uintptr
	FramebufferVirtBase                uintptr

	// RAMSize is the total physical RAM to identity-map at 1 GiB granularity.
	RAMSize mem.Size

	// InitService names the initrd entry Kmain loads and schedules first.
	InitService string
}

// Kernel is the CpuObserver: it owns process lifetime, the kernel's own
// address space and heap, and the single-producer/single-consumer IRQ
// queue the CPU's interrupt gates feed into.
type Kernel struct {
	mapper       *vmm.PageMapper
	addressSpace *vmm.AddressSpace
	heap         *allocator.Fallback
	cpu          *cpu.Cpu
	kernelThread *thread.Thread
	threads      thread.List
	initrd       io.ReaderAt
	initrdSize   int64

	irqQueue irq.Queue
}

// physMemory adapts an identity mapping into an io.ReaderAt over raw
// physical memory, which is all the initrd ever needs: it is never written,
// only scanned and sliced via loader.Lookup.
type physMemory struct {
	identity mem.IdentityMapping
}

func (p physMemory) ReadAt(dst []byte, off int64) (int, error) {
	src := unsafe.Slice((*byte)(unsafe.Pointer(p.identity.Translate(uintptr(off)))), len(dst))
	return copy(dst, src), nil
}

// kfmtWriter forwards every Write to kfmt.Printf, so anything built on top
// of it (bootLog below) is subject to the same early-ring-buffer fallback
// as a bare kfmt.Printf call.
type kfmtWriter struct{}

func (kfmtWriter) Write(p []byte) (int, error) {
	kfmt.Printf("%s", p)
	return len(p), nil
}

// bootLog tags every construction-pipeline log line with which phase of
// Kmain produced it, the way hal's driver loader tags each driver's own
// output.
var bootLog = &kfmt.PrefixWriter{Sink: kfmtWriter{}, Prefix: []byte("[kmain] ")}

// Kmain is the only Go symbol the rt0 assembly trampoline calls. It is not
// expected to return: Make brings every subsystem up, then Run schedules
// the initial service and never returns control here.
//
//go:noinline
func Kmain(cfg BootConfig) {
	kfmt.Fprintf(bootLog, "booting: building address space and Cpu singleton\n")
	k, err := Make(cfg)
	if err != nil {
		kernel.Panic(err)
	}

	kfmt.Fprintf(bootLog, "loading init service %s\n", cfg.InitService)
	initial, err := k.LoadProcess(cfg.InitService)
	if err != nil {
		kernel.Panic(err)
	}

	kfmt.Fprintf(bootLog, "scheduling init service, entering kernel loop\n")
	k.Run(initial)

	kernel.Panic(errKmainReturned)
}

// Make runs the construction pipeline described in spec §4.6: it brings up
// the physical frame allocator, builds the kernel's own address space,
// switches to it, stands up a real heap, and constructs the kernel thread
// and the Cpu singleton.
func Make(cfg BootConfig) (*Kernel, *kernel.Error) {
	initialAlloc := allocator.NewBump(cfg.InitialHeap.StartAddress, uintptr(cfg.InitialHeap.Size))

	identity := mem.IdentityMapping{Offset: 0} // the bootloader's low identity window, kept mapped for the kernel's lifetime
	frames := pmm.New(bootinfo.NewIterator(cfg.Header), identity, mem.FrameSize)
	mapper := vmm.NewPageMapper(identity, frames)

	addressSpace, err := vmm.NewAddressSpace(mapper, vmm.VirtualAddress(mem.HigherHalfStart), mem.Size(mem.UserSpaceEnd))
	if err != nil {
		return nil, err
	}

	bootRoot := mapper.MapTableView(cfg.BootRootPhysAddr)

	if err := mapRAMIdentity(addressSpace, cfg.RAMSize); err != nil {
		return nil, err
	}
	if err := copyBootMapping(addressSpace, mapper, bootRoot, cfg.CodeStart, cfg.CodeEnd, vmm.FlagPresent); err != nil {
		return nil, err
	}
	if err := copyBootMapping(addressSpace, mapper, bootRoot, cfg.WritableDataStart, cfg.WritableDataEnd, vmm.FlagPresent|vmm.FlagWritable|vmm.FlagNoExecute); err != nil {
		return nil, err
	}
	if err := reserveKernelStack(addressSpace, mapper, bootRoot, cfg.InitialStackTop); err != nil {
		return nil, err
	}
	if err := mapFramebuffer(addressSpace, cfg); err != nil {
		return nil, err
	}

	cpu.SwitchPDT(addressSpace.RootTablePhysicalAddress())

	heapRegion, err := addressSpace.Allocate(nil, mem.Size(kernelHeapSize), vmm.FlagPresent|vmm.FlagWritable|vmm.FlagNoExecute, vmm.PageSize4KiB)
	if err != nil {
		return nil, err
	}
	heapBump := allocator.NewBump(uintptr(heapRegion.Start()), heapRegion.Size())
	heap := allocator.NewFallback(initialAlloc, heapBump)

	kernelThread := thread.New(addressSpace, cpu.Context{})

	cpuSingleton, cpuErr := cpu.Make(heap, &kernelThread.Context)
	if cpuErr != nil {
		return nil, cpuErr
	}

	k := &Kernel{
		mapper:       mapper,
		addressSpace: addressSpace,
		heap:         heap,
		cpu:          cpuSingleton,
		kernelThread: kernelThread,
		initrd:       physMemory{identity: identity},
		initrdSize:   int64(cfg.Header.InitrdSize),
	}
	return k, nil
}

// mapRAMIdentity reserves and maps all of physical RAM at 1 GiB granularity
// starting at HigherHalfStart, the "identity map of all RAM" entry in
// spec §6's virtual layout diagram.
func mapRAMIdentity(as *vmm.AddressSpace, ramSize mem.Size) *kernel.Error {
	start := vmm.VirtualAddress(mem.HigherHalfStart)
	region, err := as.Reserve(&start, ramSize, vmm.FlagPresent|vmm.FlagWritable|vmm.FlagNoExecute, vmm.PageSize1GiB)
	if err != nil {
		return err
	}
	for frame := 0; frame < region.SizeInFrames(); frame++ {
		physicalAddress := uintptr(frame) * uintptr(vmm.PageSize1GiB)
		if err := as.MapPageOfRegion(region, physicalAddress, frame); err != nil {
			return err
		}
	}
	return nil
}

// copyBootMapping reserves [start, end) in as at 4 KiB granularity and
// copies each page's mapping verbatim from the boot-built root table,
// rather than allocating fresh frames — the kernel image itself already
// lives in physical memory the bootloader mapped in.
func copyBootMapping(as *vmm.AddressSpace, mapper *vmm.PageMapper, bootRoot vmm.TableView, start, end uintptr, flags vmm.PageFlags) *kernel.Error {
	if end <= start {
		return nil
	}
	virtStart := vmm.VirtualAddress(start)
	region, err := as.Reserve(&virtStart, mem.Size(end-start), flags, vmm.PageSize4KiB)
	if err != nil {
		return err
	}
	for frame := 0; frame < region.SizeInFrames(); frame++ {
		addr := vmm.VirtualAddress(start + uintptr(frame)*uintptr(vmm.PageSize4KiB))
		physicalAddress, ok := mapper.Read(bootRoot, addr)
		if !ok {
			continue
		}
		if err := as.MapPageOfRegion(region, physicalAddress, frame); err != nil {
			return err
		}
	}
	return nil
}

// reserveKernelStack reserves KernelStackSize at the very top of the
// kernel's address space. Pages the boot mapping already backs (the top of
// the initial kernel stack, set up before Go code ran) are copied verbatim;
// the rest of the stack is freshly allocated.
func reserveKernelStack(as *vmm.AddressSpace, mapper *vmm.PageMapper, bootRoot vmm.TableView, initialStackTop uintptr) *kernel.Error {
	stackStart := vmm.VirtualAddress(initialStackTop - uintptr(mem.KernelStackSize))
	region, err := as.Reserve(&stackStart, mem.Size(mem.KernelStackSize), vmm.FlagPresent|vmm.FlagWritable|vmm.FlagNoExecute, vmm.PageSize4KiB)
	if err != nil {
		return err
	}
	for frame := 0; frame < region.SizeInFrames(); frame++ {
		addr := vmm.VirtualAddress(uintptr(stackStart) + uintptr(frame)*uintptr(vmm.PageSize4KiB))
		if physicalAddress, ok := mapper.Read(bootRoot, addr); ok {
			if err := as.MapPageOfRegion(region, physicalAddress, frame); err != nil {
				return err
			}
			continue
		}
		if err := as.AllocatePageOfRegion(region, frame); err != nil {
			return err
		}
	}
	return nil
}

// mapFramebuffer reserves and maps the linear framebuffer at 2 MiB
// granularity, per spec §6's layout diagram.
func mapFramebuffer(as *vmm.AddressSpace, cfg BootConfig) *kernel.Error {
	if cfg.Header.FbSize == 0 {
		return nil
	}
	start := vmm.VirtualAddress(cfg.FramebufferVirtBase)
	region, err := as.Reserve(&start, mem.Size(cfg.Header.FbSize), vmm.FlagPresent|vmm.FlagWritable|vmm.FlagNoExecute, vmm.PageSize2MiB)
	if err != nil {
		return err
	}
	for frame := 0; frame < region.SizeInFrames(); frame++ {
		physicalAddress := uintptr(cfg.Header.FbPtr) + uintptr(frame)*uintptr(vmm.PageSize2MiB)
		if err := as.MapPageOfRegion(region, physicalAddress, frame); err != nil {
			return err
		}
	}
	return nil
}

// Run registers the kernel as the CPU's observer, schedules the initial
// service's thread, and enters the event loop described in spec §4.6:
// schedule_context hands control to user code and blocks until that code
// syscalls, at which point the loop drains whatever arrived on the IRQ
// queue and kernel mailbox before halting again.
func (k *Kernel) Run(initial *thread.Thread) {
	k.threads.Push(initial)
	k.cpu.RegisterObserver(k)
	k.cpu.ScheduleContext(&initial.Context)

	for {
		if k.irqQueue.Empty() && k.kernelThread.Mailbox.Empty() {
			k.cpu.Halt()
		}
		k.irqQueue.DequeueAll(k.handleHardwareInterrupt)
		k.kernelThread.Mailbox.DequeueAll(k.reapSyscallOrigin)
	}
}

// handleHardwareInterrupt is a placeholder dispatch point for device
// drivers this core does not implement; every IRQ that reaches here was
// already acknowledged by the CPU facade right after the observer queued it.
func (k *Kernel) handleHardwareInterrupt(event irq.HardwareInterrupt) {
	_ = event
}

// reapSyscallOrigin is the kernel loop's only response to a syscall in this
// minimal core: the thread that issued it is torn down. A richer syscall
// ABI (reading Param1..4/Data to dispatch a real request) is outside this
// core's scope; the kernel thread here is a dispatcher, not a full service
// implementation.
func (k *Kernel) reapSyscallOrigin(msg ipc.Message) {
	origin := k.threads.Find(msg.SenderID)
	if origin == nil {
		kernel.Panic(errUnknownSyscallOrigin)
		return
	}
	k.threads.Remove(origin)
	origin.Destroy()
}

// OnInterrupt is the CpuObserver callback for hardware interrupts. It must
// not block: enqueue only.
func (k *Kernel) OnInterrupt(irqNum uint8) {
	if !k.irqQueue.Enqueue(irq.HardwareInterrupt{IRQ: irqNum}) {
		kernel.Panic(errIRQQueueOverflow)
	}
}

// OnSyscall is the CpuObserver callback for the syscall entry path. It
// enqueues a message identifying the calling thread on the kernel thread's
// mailbox and always resumes the kernel thread's own context, handing
// control back to the Run loop.
func (k *Kernel) OnSyscall(sender *cpu.Context) *cpu.Context {
	origin := thread.FromContext(sender)
	if !k.kernelThread.Mailbox.Enqueue(ipc.Message{SenderID: origin.ID}) {
		kernel.Panic(errMailboxOverflow)
	}
	return &k.kernelThread.Context
}

// LoadProcess parses name out of the initrd, maps it into a fresh user
// address space, and constructs a Thread ready to be scheduled. It follows
// spec §4.6's load_process steps: shallow-copy the kernel half of the root
// mapping, map each PT_LOAD segment one frame at a time so the whole
// segment never needs to be mapped into kernel space at once, then give the
// thread a stack and an IPC buffer allocated in the kernel's own address
// space and shared into the new one.
func (k *Kernel) LoadProcess(name string) (*thread.Thread, *kernel.Error) {
	section, err := loader.Lookup(k.initrd, k.initrdSize, name)
	if err != nil {
		return nil, err
	}
	exe, err := loader.Parse(section)
	if err != nil {
		return nil, err
	}

	userSpace, err := vmm.NewAddressSpace(k.mapper, vmm.VirtualAddress(0), mem.Size(mem.UserSpaceEnd))
	if err != nil {
		return nil, err
	}
	userSpace.ShallowCopyRootMapping(k.addressSpace, vmm.VirtualAddress(mem.HigherHalfStart), vmm.VirtualAddress(^uintptr(0)))

	for _, segment := range exe.Segments {
		if err := loadSegment(userSpace, k.mapper, section, segment); err != nil {
			return nil, err
		}
	}

	userStackTop, err := allocateUserStack(userSpace)
	if err != nil {
		return nil, err
	}

	ipcRegion, ipcUserAddr, err := shareIPCBuffer(k.addressSpace, userSpace)
	if err != nil {
		return nil, err
	}

	ctx := cpu.MakeContext(false, userSpace.RootTablePhysicalAddress(), exe.EntryPoint, uintptr(userStackTop))
	th := thread.New(userSpace, ctx)
	th.IPCBufferRegion = ipcRegion
	th.IPCBufferUser = ipcUserAddr

	k.threads.Push(th)
	return th, nil
}

// segmentFlags derives page flags from an ELF segment's p_flags, per
// spec §4.6 step 4: user-accessible always, no-execute unless the segment
// is marked executable, writable only when writable-and-not-executable.
func segmentFlags(seg loader.Segment) vmm.PageFlags {
	flags := vmm.PageFlags(vmm.FlagPresent | vmm.FlagUserAccessible)
	if seg.Flags&loader.SegmentExecutable == 0 {
		flags |= vmm.FlagNoExecute
	}
	if seg.Flags&loader.SegmentWritable != 0 && seg.Flags&loader.SegmentExecutable == 0 {
		flags |= vmm.FlagWritable
	}
	return flags
}

// loadSegment reserves a region for seg and copies its file contents into
// freshly allocated frames one 4 KiB chunk at a time, mapping each chunk
// into place immediately after it is filled so the whole segment is never
// simultaneously resident in kernel-mapped memory.
func loadSegment(userSpace *vmm.AddressSpace, mapper *vmm.PageMapper, section io.ReaderAt, seg loader.Segment) *kernel.Error {
	if seg.MemSize == 0 {
		return nil
	}

	start := vmm.VirtualAddress(seg.VirtualAddress)
	region, err := userSpace.Reserve(&start, mem.Size(seg.MemSize), segmentFlags(seg), vmm.PageSize4KiB)
	if err != nil {
		return err
	}

	const pageSize = int64(vmm.PageSize4KiB)
	for frame := 0; frame < region.SizeInFrames(); frame++ {
		pageFrame, allocErr := mapper.Allocate()
		if allocErr != nil {
			return allocErr
		}

		chunk := unsafe.Slice((*byte)(pageFrame.Ptr), pageSize)
		kernel.Memset(uintptr(pageFrame.Ptr), 0, uintptr(pageSize))

		fileOffset := int64(frame) * pageSize
		if fileOffset < int64(seg.FileSize) {
			n := int64(seg.FileSize) - fileOffset
			if n > pageSize {
				n = pageSize
			}
			if _, readErr := section.ReadAt(chunk[:n], int64(seg.FileOffset)+fileOffset); readErr != nil && readErr != io.EOF {
				return errSegmentRead
			}
		}

		if err := userSpace.MapPageOfRegion(region, pageFrame.PhysicalAddress, frame); err != nil {
			return err
		}
	}
	return nil
}

// allocateUserStack reserves and backs a 64 KiB user stack at the top of
// the user half of the address space (spec §6: the user stack sits just
// below the canonical-hole boundary).
func allocateUserStack(userSpace *vmm.AddressSpace) (vmm.VirtualAddress, *kernel.Error) {
	start := vmm.VirtualAddress(uintptr(mem.UserSpaceEnd) - uintptr(userStackSize))
	region, err := userSpace.Allocate(&start, mem.Size(userStackSize), vmm.FlagPresent|vmm.FlagWritable|vmm.FlagUserAccessible|vmm.FlagNoExecute, vmm.PageSize4KiB)
	if err != nil {
		return 0, err
	}
	return region.End(), nil
}

// shareIPCBuffer allocates a 4 KiB IPC buffer owned by the kernel's own
// address space and shares it into userSpace with user-writable
// permissions, giving the new thread a channel to place syscall payloads
// in before trapping into the kernel.
func shareIPCBuffer(kernelSpace *vmm.AddressSpace, userSpace *vmm.AddressSpace) (*vmm.Region, uintptr, *kernel.Error) {
	kernelRegion, err := kernelSpace.Allocate(nil, mem.Size(ipcBufferSize), vmm.FlagPresent|vmm.FlagWritable|vmm.FlagNoExecute, vmm.PageSize4KiB)
	if err != nil {
		return nil, 0, err
	}

	shared, err := kernelSpace.Share(kernelRegion, userSpace, nil, vmm.FlagPresent|vmm.FlagWritable|vmm.FlagUserAccessible)
	if err != nil {
		return nil, 0, err
	}
	return kernelRegion, uintptr(shared.Start()), nil
}
