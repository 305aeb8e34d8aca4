package pmm

import "unsafe"

// ptrAt converts a virtual address into an unsafe.Pointer. Kept as its own
// tiny indirection (rather than inlined unsafe.Pointer casts scattered
// through pmm.go) so tests can see exactly where raw memory is touched,
// mirroring gopher-os's ptePtrFn pattern.
func ptrAt(addr uintptr) unsafe.Pointer {
	return unsafe.Pointer(addr) //nolint:govet
}
