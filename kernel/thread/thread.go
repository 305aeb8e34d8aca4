// Package thread implements the kernel's unit of execution: a saved
// register context paired with the address space and mailbox it owns.
package thread

import (
	"sync/atomic"
	"unsafe"

	"nucleus/kernel/cpu"
	"nucleus/kernel/ipc"
	"nucleus/kernel/mem/vmm"
)

const mailboxCapacity = 256

var nextID atomic.Uint64

// Thread is the kernel's unit of execution. Context is the first field so
// that a raw pointer to a saved cpu.Context (the only thing the syscall
// and interrupt assembly ever see) is also a valid pointer to the Thread
// that owns it — the same trick spec.md §6 requires of the original
// layout. AddressSpace and Mailbox are owned: Destroy tears down the
// address space, and the mailbox needs no explicit teardown.
type Thread struct {
	Context cpu.Context

	ID              uint64
	AddressSpace    *vmm.AddressSpace
	Mailbox         *ipc.Mailbox
	IPCBufferRegion *vmm.Region
	IPCBufferUser   uintptr
}

// New constructs a Thread bound to addressSpace, with ctx as its initial
// saved context and a mailbox of the standard 256-message capacity.
func New(addressSpace *vmm.AddressSpace, ctx cpu.Context) *Thread {
	return &Thread{
		Context:      ctx,
		ID:           nextID.Add(1),
		AddressSpace: addressSpace,
		Mailbox:      ipc.NewMailbox(mailboxCapacity),
	}
}

// FromContext recovers the owning Thread from a pointer to its embedded
// Context, relying on Context being Thread's first field.
func FromContext(ctx *cpu.Context) *Thread {
	return (*Thread)(unsafe.Pointer(ctx))
}

// Destroy tears down the thread's owned address space: every region it owns
// is unmapped and freed, and the user-side IPC buffer mapping, which only
// shares the kernel's frame, is unmapped without freeing that frame. The
// mailbox needs no explicit teardown. IPCBufferRegion, the kernel-side IPC
// buffer, belongs to the kernel's address space and is not released here.
func (t *Thread) Destroy() {
	t.AddressSpace.Destroy()
}
