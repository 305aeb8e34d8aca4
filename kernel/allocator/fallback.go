package allocator

import "nucleus/kernel"

// Allocator is the capability both Bump allocators (and Fallback itself)
// provide: allocate a block, free a block, and report whether a given
// pointer was handed out by this allocator.
type Allocator interface {
	Allocate(size uintptr, alignment uintptr) (uintptr, *kernel.Error)
	Deallocate(ptr uintptr, size uintptr)
	Owns(ptr uintptr) bool
}

// Fallback composes two allocators: every request is tried against primary
// first, and only routed to secondary when primary returns an error (for a
// Bump allocator, that means it has run out of space). This is how Kernel.Make bridges
// the tiny pre-reserved initial heap to the larger heap Region it maps in
// once virtual memory management is up (spec §4.6 step 6): the initial
// bump allocator services every allocation until it runs out, then the
// heap bump allocator takes over, with callers never needing to know which
// one actually served a given request.
type Fallback struct {
	primary   Allocator
	secondary Allocator
}

// NewFallback constructs a Fallback allocator over primary and secondary.
func NewFallback(primary, secondary Allocator) *Fallback {
	return &Fallback{primary: primary, secondary: secondary}
}

// Allocate tries primary first, falling back to secondary if primary is
// exhausted.
func (f *Fallback) Allocate(size uintptr, alignment uintptr) (uintptr, *kernel.Error) {
	if ptr, err := f.primary.Allocate(size, alignment); err == nil {
		return ptr, nil
	}
	return f.secondary.Allocate(size, alignment)
}

// Deallocate routes the call to whichever allocator owns ptr.
func (f *Fallback) Deallocate(ptr uintptr, size uintptr) {
	if f.primary.Owns(ptr) {
		f.primary.Deallocate(ptr, size)
		return
	}
	f.secondary.Deallocate(ptr, size)
}

// Owns reports whether either allocator owns ptr.
func (f *Fallback) Owns(ptr uintptr) bool {
	return f.primary.Owns(ptr) || f.secondary.Owns(ptr)
}
