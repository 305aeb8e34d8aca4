package kernel

import "unsafe"

// Memset fills size bytes starting at addr with value. After seeding the
// first byte it doubles the filled region on each pass instead of looping
// byte by byte, the same trick bytes.Repeat uses, which pays off here since
// callers mostly clear whole pages.
func Memset(addr uintptr, value byte, size uintptr) {
	if size == 0 {
		return
	}

	target := unsafe.Slice((*byte)(unsafe.Pointer(addr)), size)
	target[0] = value
	for filled := uintptr(1); filled < size; filled *= 2 {
		copy(target[filled:], target[:filled])
	}
}

// Memcopy copies size bytes from src to dst. The two regions must not
// overlap; callers that need overlap-safe semantics should not use this.
func Memcopy(src, dst uintptr, size uintptr) {
	if size == 0 {
		return
	}

	srcSlice := unsafe.Slice((*byte)(unsafe.Pointer(src)), size)
	dstSlice := unsafe.Slice((*byte)(unsafe.Pointer(dst)), size)
	copy(dstSlice, srcSlice)
}
