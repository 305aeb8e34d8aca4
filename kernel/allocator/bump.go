// Package allocator provides the two general-purpose allocators the kernel
// uses before a real heap exists: a bump allocator that never frees
// individual objects, and a fallback composite that chains two of them so
// the kernel can start handing out memory from a tiny pre-reserved buffer
// and later switch to a larger backing region without the caller noticing.
package allocator

import "nucleus/kernel"

var errOutOfMemory = &kernel.Error{Module: "allocator", Message: "heap exhausted"}

// Bump is the simplest possible allocator: it owns a single contiguous
// buffer and hands out ever-increasing, alignment-respecting slices of it.
// Deallocate is a no-op — freeing individual objects is not supported, only
// discarding the whole allocator.
type Bump struct {
	base      uintptr
	size      uintptr
	available uintptr
}

// NewBump constructs a Bump allocator over the byte range
// [base, base+size).
func NewBump(base uintptr, size uintptr) *Bump {
	return &Bump{base: base, size: size, available: size}
}

// Allocate returns size bytes aligned to alignment, or an error if the
// buffer cannot satisfy the request. alignment must be a power of two.
func (b *Bump) Allocate(size uintptr, alignment uintptr) (uintptr, *kernel.Error) {
	cursor := b.base + (b.size - b.available)
	alignMask := alignment - 1
	aligned := (cursor + alignMask) &^ alignMask
	padding := aligned - cursor

	if padding+size > b.available {
		return 0, errOutOfMemory
	}

	b.available -= padding + size
	return aligned, nil
}

// Deallocate is a no-op: Bump never reclaims memory.
func (b *Bump) Deallocate(uintptr, uintptr) {}

// Owns reports whether ptr lies within the range this allocator was
// constructed over.
func (b *Bump) Owns(ptr uintptr) bool {
	return ptr >= b.base && ptr < b.base+b.size
}
