package kfmt

import "io"

// ringBufferSize is the capacity of the early-boot log buffer: big enough
// to hold a full screen of an 80x25 text console. Must stay a power of 2 so
// the index wrap below can use a mask instead of a modulo.
const ringBufferSize = 2048

// ringBuffer is a fixed-capacity circular byte buffer: Write never blocks
// and never fails, overwriting the oldest unread bytes once full. It backs
// earlyLog, the only place Printf output can go before a real console
// exists.
type ringBuffer struct {
	buffer           [ringBufferSize]byte
	readPos, writePos int
}

// Write appends p, advancing readPos past whatever it overwrites once the
// buffer is full.
func (rb *ringBuffer) Write(p []byte) (int, error) {
	for _, b := range p {
		rb.buffer[rb.writePos] = b
		rb.writePos = (rb.writePos + 1) & (ringBufferSize - 1)
		if rb.readPos == rb.writePos {
			rb.readPos = (rb.readPos + 1) & (ringBufferSize - 1)
		}
	}
	return len(p), nil
}

// Read drains the unread portion of the buffer into p, returning io.EOF
// once readPos catches up to writePos. A single call never wraps around
// the end of the backing array; io.Copy loops until EOF so that is fine.
func (rb *ringBuffer) Read(p []byte) (int, error) {
	switch {
	case rb.readPos < rb.writePos:
		n := rb.writePos - rb.readPos
		if len(p) < n {
			n = len(p)
		}
		copy(p, rb.buffer[rb.readPos:rb.readPos+n])
		rb.readPos += n
		return n, nil
	case rb.readPos > rb.writePos:
		n := len(rb.buffer) - rb.readPos
		if len(p) < n {
			n = len(p)
		}
		copy(p, rb.buffer[rb.readPos:rb.readPos+n])
		rb.readPos += n
		if rb.readPos == len(rb.buffer) {
			rb.readPos = 0
		}
		return n, nil
	default:
		return 0, io.EOF
	}
}

// Len reports how many unread bytes are currently buffered.
func (rb *ringBuffer) Len() int {
	if rb.writePos >= rb.readPos {
		return rb.writePos - rb.readPos
	}
	return len(rb.buffer) - rb.readPos + rb.writePos
}
