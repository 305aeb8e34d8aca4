// Package pmm implements the physical frame allocator: a LIFO stack of free
// 4 KiB frames that stores its own bookkeeping inside the free frames
// themselves, so it needs no backing memory of its own.
package pmm

import (
	"nucleus/kernel"
	"nucleus/kernel/mem"
)

var (
	// ErrOutOfPhysicalMemory is returned by Alloc when the free list is
	// empty.
	ErrOutOfPhysicalMemory = &kernel.Error{Module: "pmm", Message: "out of physical memory"}
)

// MemoryMap is the minimal iterator capability the allocator needs over the
// bootloader-reported free physical blocks: Next returns the next block and
// false once exhausted. Kept deliberately narrow per spec §9's note on
// type-erased streams — callers never need to hand us a wider container.
type MemoryMap interface {
	Next() (mem.Block, bool)
}

// freePage is the header written at the start of every free frame. It is
// only valid while the frame it lives in is free; the instant the frame is
// allocated these bytes belong to the caller.
type freePage struct {
	next uintptr // virtual address of the next freePage, or 0
}

// FrameAllocator hands out and reclaims 4 KiB physical frames. The free
// list is a singly linked LIFO stack threaded through the free frames
// themselves via the kernel's identity mapping, giving O(1) alloc/dealloc
// with zero auxiliary storage.
type FrameAllocator struct {
	identity mem.IdentityMapping
	frameSize mem.Size
	top      uintptr // virtual address of the top freePage, or 0 if empty
}

// New builds a FrameAllocator by consuming every block of the supplied
// memory map: each block is aligned to frameSize and every resulting frame
// is pushed onto the free list.
func New(blocks MemoryMap, identity mem.IdentityMapping, frameSize mem.Size) *FrameAllocator {
	a := &FrameAllocator{identity: identity, frameSize: frameSize}

	for {
		block, ok := blocks.Next()
		if !ok {
			break
		}

		aligned := block.Align(frameSize)
		for addr := aligned.StartAddress; addr < aligned.EndAddress(); addr += uintptr(frameSize) {
			a.Dealloc(addr)
		}
	}

	return a
}

// Alloc pops a frame off the free list and returns its physical address.
func (a *FrameAllocator) Alloc() (uintptr, *kernel.Error) {
	if a.top == 0 {
		return 0, ErrOutOfPhysicalMemory
	}

	page := (*freePage)(ptrAt(a.top))
	physicalAddress := a.top - a.identity.Offset
	a.top = page.next
	return physicalAddress, nil
}

// Dealloc returns a physical frame to the free list by writing a freePage
// header at its identity-mapped virtual address and pushing it onto the
// stack.
func (a *FrameAllocator) Dealloc(physicalAddress uintptr) {
	virtualAddress := a.identity.Translate(physicalAddress)
	page := (*freePage)(ptrAt(virtualAddress))
	page.next = a.top
	a.top = virtualAddress
}
