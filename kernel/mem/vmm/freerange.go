package vmm

import (
	"nucleus/kernel"
	"sort"
)

var (
	// ErrOutOfRange is returned by freeRange.Allocate when no free block is
	// large enough to satisfy the request.
	ErrOutOfRange = &kernel.Error{Module: "vmm", Message: "virtual address range exhausted"}

	// ErrDoesNotFit is returned when a fixed-address reservation does not
	// lie entirely within a single free block.
	ErrDoesNotFit = &kernel.Error{Module: "vmm", Message: "requested virtual address range does not fit inside any free block"}
)

// freeBlock is a maximal run of unclaimed virtual address space.
type freeBlock struct {
	start uintptr
	size  uintptr
}

// freeRange tracks the unclaimed virtual address space of an AddressSpace
// as a set of disjoint blocks kept sorted by start address. Allocate does a
// best-fit scan, AllocateAt claims a caller-chosen range, and Deallocate
// coalesces with whichever neighbour blocks are adjacent.
//
// The original design backs this index with a pair of skip lists (one
// ordered by address, one by size) for O(log n) lookups in both
// directions. A kernel only ever holds a handful of top-level Regions per
// AddressSpace, so a single address-sorted slice with a linear best-fit
// scan is the simpler choice here; AllocateAt and Deallocate still use
// binary search for the address-ordered lookup they need.
type freeRange struct {
	blocks []freeBlock
}

func newFreeRange(start uintptr, size uintptr) *freeRange {
	return &freeRange{blocks: []freeBlock{{start: start, size: size}}}
}

// indexOf returns the index of the first block whose start is >= addr.
func (f *freeRange) indexOf(addr uintptr) int {
	return sort.Search(len(f.blocks), func(i int) bool { return f.blocks[i].start >= addr })
}

// Allocate finds the smallest free block that can hold size bytes and
// carves size bytes off the front of it.
func (f *freeRange) Allocate(size uintptr) (uintptr, *kernel.Error) {
	best := -1
	for i, b := range f.blocks {
		if b.size < size {
			continue
		}
		if best == -1 || b.size < f.blocks[best].size {
			best = i
		}
	}
	if best == -1 {
		return 0, ErrOutOfRange
	}

	start := f.blocks[best].start
	if f.blocks[best].size == size {
		f.blocks = append(f.blocks[:best], f.blocks[best+1:]...)
	} else {
		f.blocks[best].start += size
		f.blocks[best].size -= size
	}
	return start, nil
}

// AllocateAt claims exactly [start, start+size), which must lie entirely
// within a single free block.
func (f *freeRange) AllocateAt(start uintptr, size uintptr) *kernel.Error {
	i := f.indexOf(start+1) - 1
	if i < 0 {
		return ErrDoesNotFit
	}

	block := f.blocks[i]
	if block.start+block.size < start+size {
		return ErrDoesNotFit
	}

	leftSize := start - block.start
	rightStart := start + size
	rightSize := block.start + block.size - rightStart

	replacement := make([]freeBlock, 0, 2)
	if leftSize > 0 {
		replacement = append(replacement, freeBlock{start: block.start, size: leftSize})
	}
	if rightSize > 0 {
		replacement = append(replacement, freeBlock{start: rightStart, size: rightSize})
	}

	tail := append([]freeBlock{}, f.blocks[i+1:]...)
	f.blocks = append(append(f.blocks[:i], replacement...), tail...)
	return nil
}

// Deallocate returns [start, start+size) to the free range, coalescing with
// an adjacent free block on either side.
func (f *freeRange) Deallocate(start uintptr, size uintptr) {
	i := f.indexOf(start)

	mergeLeft := i > 0 && f.blocks[i-1].start+f.blocks[i-1].size == start
	mergeRight := i < len(f.blocks) && f.blocks[i].start == start+size

	switch {
	case mergeLeft && mergeRight:
		f.blocks[i-1].size += size + f.blocks[i].size
		f.blocks = append(f.blocks[:i], f.blocks[i+1:]...)
	case mergeLeft:
		f.blocks[i-1].size += size
	case mergeRight:
		f.blocks[i].start = start
		f.blocks[i].size += size
	default:
		f.blocks = append(f.blocks, freeBlock{})
		copy(f.blocks[i+1:], f.blocks[i:])
		f.blocks[i] = freeBlock{start: start, size: size}
	}
}
